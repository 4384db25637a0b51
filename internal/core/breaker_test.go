package core

import (
	"testing"
	"time"
)

func newTestBreaker(t *testing.T, threshold int, cooldown time.Duration) (*circuitBreaker, *time.Time) {
	t.Helper()
	b := newCircuitBreaker(threshold, cooldown)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, 3, time.Minute)

	b.Failure()
	b.Failure()
	if !b.Allow() {
		t.Fatal("breaker opened below the threshold")
	}
	b.Failure()
	if b.State() != breakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if b.Allow() {
		t.Error("open breaker admitted a call")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(t, 3, time.Minute)

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()

	if b.State() != breakerClosed {
		t.Errorf("state = %v, want closed after counter reset", b.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(t, 1, time.Minute)

	b.Failure()
	if b.Allow() {
		t.Fatal("open breaker admitted a call")
	}

	*now = now.Add(61 * time.Second)
	if !b.Allow() {
		t.Fatal("cooldown elapsed but probe denied")
	}
	if b.State() != breakerHalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}
	// Only one probe may be in flight.
	if b.Allow() {
		t.Error("second concurrent probe admitted")
	}

	b.Success()
	if b.State() != breakerClosed {
		t.Errorf("state = %v, want closed after successful probe", b.State())
	}
	if !b.Allow() {
		t.Error("closed breaker denied a call")
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(t, 1, time.Minute)

	b.Failure()
	*now = now.Add(61 * time.Second)
	if !b.Allow() {
		t.Fatal("probe denied")
	}
	b.Failure()

	if b.State() != breakerOpen {
		t.Fatalf("state = %v, want open after failed probe", b.State())
	}
	// The cooldown restarts from the probe failure.
	*now = now.Add(30 * time.Second)
	if b.Allow() {
		t.Error("reopened breaker admitted a call before the new cooldown elapsed")
	}
	*now = now.Add(31 * time.Second)
	if !b.Allow() {
		t.Error("probe denied after the new cooldown")
	}
}

func TestBreakerIgnoreReleasesProbe(t *testing.T) {
	b, now := newTestBreaker(t, 1, time.Minute)

	b.Failure()
	*now = now.Add(61 * time.Second)
	if !b.Allow() {
		t.Fatal("probe denied")
	}

	// The admitted call was never sent; the slot must free up without
	// changing the verdict on the backend.
	b.Ignore()
	if b.State() != breakerHalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}
	if !b.Allow() {
		t.Error("released probe slot not reusable")
	}
}

func TestSelectBackend(t *testing.T) {
	tests := []struct {
		name       string
		configured bool
		healthy    bool
		quota      bool
		want       Backend
	}{
		{"all green", true, true, true, BackendRemote},
		{"no client", false, false, false, BackendFallback},
		{"breaker open", true, false, false, BackendFallback},
		{"quota exhausted", true, true, false, BackendFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := selectBackend(tt.configured, tt.healthy, tt.quota); got != tt.want {
				t.Errorf("selectBackend(%v, %v, %v) = %v, want %v",
					tt.configured, tt.healthy, tt.quota, got, tt.want)
			}
		})
	}
}
