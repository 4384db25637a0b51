package store

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestUser(t *testing.T, s *SQLiteStore, email string) *User {
	t.Helper()
	user, err := s.CreateUser(email, "hashed", "Test User")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)

	user := newTestUser(t, s, "alice@example.com")
	if user.ID == "" {
		t.Error("expected non-empty ID")
	}

	byEmail, err := s.GetUserByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail == nil || byEmail.ID != user.ID {
		t.Errorf("got %+v, want user %s", byEmail, user.ID)
	}

	byID, err := s.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID == nil || byID.Email != "alice@example.com" {
		t.Errorf("got %+v", byID)
	}

	missing, err := s.GetUserByEmail("nobody@example.com")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown email, got %+v", missing)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := newTestStore(t)

	newTestUser(t, s, "alice@example.com")
	if _, err := s.CreateUser("alice@example.com", "hash2", "Other"); err == nil {
		t.Error("expected error for duplicate email")
	}
}

func TestSubscriptionCRUD(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "alice@example.com")

	sub := Subscription{UserID: user.ID, ServiceName: "Netflix", Price: 15.99}
	if err := s.CreateSubscription(&sub); err != nil {
		t.Fatalf("create: %v", err)
	}
	if sub.ID == "" {
		t.Error("expected non-empty ID")
	}
	// Defaults fill in on create.
	if sub.Currency != "CNY" || sub.BillingCycle != CycleMonthly ||
		sub.Category != DefaultCategory || sub.Status != StatusActive {
		t.Errorf("defaults not applied: %+v", sub)
	}

	got, err := s.GetSubscriptionByID(sub.ID, user.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.ServiceName != "Netflix" {
		t.Fatalf("got %+v", got)
	}

	got.Price = 19.99
	got.Status = StatusPaused
	if err := s.UpdateSubscription(got); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, _ := s.GetSubscriptionByID(sub.ID, user.ID)
	if updated.Price != 19.99 || updated.Status != StatusPaused {
		t.Errorf("update not persisted: %+v", updated)
	}

	if err := s.DeleteSubscription(sub.ID, user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	gone, err := s.GetSubscriptionByID(sub.ID, user.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if gone != nil {
		t.Errorf("expected nil after delete, got %+v", gone)
	}

	if err := s.DeleteSubscription(sub.ID, user.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestSubscriptionOwnership(t *testing.T) {
	s := newTestStore(t)
	alice := newTestUser(t, s, "alice@example.com")
	bob := newTestUser(t, s, "bob@example.com")

	sub := Subscription{UserID: alice.ID, ServiceName: "Netflix", Price: 15.99}
	if err := s.CreateSubscription(&sub); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetSubscriptionByID(sub.ID, bob.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("bob can read alice's subscription")
	}

	stolen := sub
	stolen.UserID = bob.ID
	if err := s.UpdateSubscription(&stolen); !errors.Is(err, ErrNotFound) {
		t.Errorf("update err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteSubscription(sub.ID, bob.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete err = %v, want ErrNotFound", err)
	}
}

func TestListSubscriptionsByStatus(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "alice@example.com")

	for _, sub := range []Subscription{
		{UserID: user.ID, ServiceName: "Netflix", Price: 15.99},
		{UserID: user.ID, ServiceName: "Spotify", Price: 9.99},
		{UserID: user.ID, ServiceName: "Old Service", Price: 5, Status: StatusCancelled},
	} {
		if err := s.CreateSubscription(&sub); err != nil {
			t.Fatalf("create %s: %v", sub.ServiceName, err)
		}
	}

	all, err := s.GetSubscriptionsByUserID(user.ID, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all = %d, want 3", len(all))
	}

	active, _ := s.GetSubscriptionsByUserID(user.ID, StatusActive)
	if len(active) != 2 {
		t.Errorf("active = %d, want 2", len(active))
	}

	cancelled, _ := s.GetSubscriptionsByUserID(user.ID, StatusCancelled)
	if len(cancelled) != 1 {
		t.Errorf("cancelled = %d, want 1", len(cancelled))
	}
}

func TestMonthlyPrice(t *testing.T) {
	tests := []struct {
		cycle string
		price float64
		want  float64
	}{
		{CycleMonthly, 30, 30},
		{CycleYearly, 120, 10},
		{CycleWeekly, 10, 43.3},
		{CycleDaily, 2, 60},
		{CycleLifetime, 499, 0},
	}
	for _, tt := range tests {
		sub := Subscription{Price: tt.price, BillingCycle: tt.cycle}
		if got := sub.MonthlyPrice(); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("MonthlyPrice(%s, %v) = %v, want %v", tt.cycle, tt.price, got, tt.want)
		}
	}
}

func TestBuildUserContext(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "alice@example.com")

	for _, sub := range []Subscription{
		{UserID: user.ID, ServiceName: "Netflix", Price: 50, Category: "娱乐"},
		{UserID: user.ID, ServiceName: "Domain", Price: 120, Category: "工具", BillingCycle: CycleYearly},
		{UserID: user.ID, ServiceName: "Gone", Price: 99, Status: StatusCancelled},
	} {
		if err := s.CreateSubscription(&sub); err != nil {
			t.Fatalf("create %s: %v", sub.ServiceName, err)
		}
	}

	uc, err := s.BuildUserContext(user.ID)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}

	if math.Abs(uc.MonthlySpending-60) > 1e-9 {
		t.Errorf("monthly spending = %v, want 60", uc.MonthlySpending)
	}
	if len(uc.Subscriptions) != 2 {
		t.Errorf("subscriptions = %d, want 2 (cancelled excluded)", len(uc.Subscriptions))
	}
	if stat := uc.CategoryTotals["娱乐"]; stat.Count != 1 || math.Abs(stat.Spending-50) > 1e-9 {
		t.Errorf("娱乐 = %+v, want {1 50}", stat)
	}
	if stat := uc.CategoryTotals["工具"]; stat.Count != 1 || math.Abs(stat.Spending-10) > 1e-9 {
		t.Errorf("工具 = %+v, want {1 10}", stat)
	}
}

func TestBuildUserContextEmpty(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "alice@example.com")

	uc, err := s.BuildUserContext(user.ID)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if uc.MonthlySpending != 0 || len(uc.Subscriptions) != 0 {
		t.Errorf("expected empty context, got %+v", uc)
	}
}

func TestSaveAndGetSessionHistory(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "alice@example.com")

	for i, msg := range []string{"第一条", "第二条", "第三条"} {
		rec := ConversationRecord{
			UserID:     user.ID,
			SessionID:  "session-a",
			Message:    msg,
			Response:   "回答",
			Intent:     "general_chat",
			Confidence: 0.9,
			Backend:    "fallback",
		}
		if err := s.SaveConversation(&rec); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		if rec.ID == "" {
			t.Fatal("expected ULID assigned on save")
		}
	}

	records, err := s.GetSessionHistory("session-a", user.ID, 10)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if records[0].Message != "第一条" || records[2].Message != "第三条" {
		t.Errorf("wrong order: %q ... %q", records[0].Message, records[2].Message)
	}

	// A limit keeps the most recent exchanges, still oldest first.
	recent, _ := s.GetSessionHistory("session-a", user.ID, 2)
	if len(recent) != 2 {
		t.Fatalf("recent = %d, want 2", len(recent))
	}
	if recent[0].Message != "第二条" || recent[1].Message != "第三条" {
		t.Errorf("limit kept wrong rows: %q, %q", recent[0].Message, recent[1].Message)
	}
}

func TestSessionHistoryScopedToUser(t *testing.T) {
	s := newTestStore(t)
	alice := newTestUser(t, s, "alice@example.com")
	bob := newTestUser(t, s, "bob@example.com")

	rec := ConversationRecord{
		UserID: alice.ID, SessionID: "session-a",
		Message: "私密问题", Response: "回答", Intent: "general_chat", Backend: "fallback",
	}
	if err := s.SaveConversation(&rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	records, err := s.GetSessionHistory("session-a", bob.ID, 10)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(records) != 0 {
		t.Error("bob can read alice's session")
	}
}

func TestConversationTimestampRoundTrip(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "alice@example.com")

	rec := ConversationRecord{
		UserID: user.ID, SessionID: "s", Message: "m", Response: "r",
		Intent: "unknown", Backend: "fallback",
	}
	if err := s.SaveConversation(&rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	records, _ := s.GetSessionHistory("s", user.ID, 1)
	if len(records) != 1 {
		t.Fatal("record not found")
	}
	if records[0].CreatedAt.IsZero() {
		t.Error("created_at not persisted")
	}
	if time.Since(records[0].CreatedAt) > time.Minute {
		t.Errorf("created_at implausible: %v", records[0].CreatedAt)
	}
}
