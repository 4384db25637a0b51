package core

import (
	"strings"
	"testing"
)

func TestFallbackSpendingQuery(t *testing.T) {
	uc := UserContext{
		MonthlySpending: 150.0,
		Subscriptions:   make([]SubscriptionInfo, 3),
	}
	got := fallbackRespond(IntentSpendingQuery, uc)

	for _, want := range []string{"¥150.00", "¥1800.00", "3 个"} {
		if !strings.Contains(got, want) {
			t.Errorf("response missing %q:\n%s", want, got)
		}
	}
}

func TestFallbackSubscriptionCountEmpty(t *testing.T) {
	got := fallbackRespond(IntentSubscriptionCount, UserContext{})
	if !strings.Contains(got, "还没有任何活跃订阅") {
		t.Errorf("zero-subscription answer wrong:\n%s", got)
	}
}

func TestFallbackSubscriptionCountBreakdown(t *testing.T) {
	got := fallbackRespond(IntentSubscriptionCount, testUserContext())

	if !strings.Contains(got, "共有 3 个活跃订阅") {
		t.Errorf("count missing:\n%s", got)
	}
	if !strings.Contains(got, "娱乐：2 个，月支出 ¥25.98") {
		t.Errorf("category line missing:\n%s", got)
	}
	if !strings.Contains(got, "效率：1 个，月支出 ¥140.00") {
		t.Errorf("category line missing:\n%s", got)
	}
}

func TestFallbackDeterministic(t *testing.T) {
	uc := testUserContext()
	for _, kind := range []IntentKind{
		IntentSpendingQuery, IntentSubscriptionCount, IntentOptimizationAdvice,
		IntentAddSubscription, IntentGeneralChat, IntentUnknown,
	} {
		if fallbackRespond(kind, uc) != fallbackRespond(kind, uc) {
			t.Errorf("%s: responses differ between identical calls", kind)
		}
	}
}

func TestFallbackNeverEmpty(t *testing.T) {
	contexts := []UserContext{{}, testUserContext()}
	kinds := []IntentKind{
		IntentSpendingQuery, IntentSubscriptionCount, IntentOptimizationAdvice,
		IntentAddSubscription, IntentGeneralChat, IntentUnknown, IntentKind("bogus"),
	}
	for _, uc := range contexts {
		for _, kind := range kinds {
			if fallbackRespond(kind, uc) == "" {
				t.Errorf("%s: empty response", kind)
			}
		}
	}
}

func TestFallbackCacheable(t *testing.T) {
	tests := []struct {
		kind IntentKind
		want bool
	}{
		{IntentSpendingQuery, false},
		{IntentSubscriptionCount, false},
		{IntentOptimizationAdvice, true},
		{IntentAddSubscription, true},
		{IntentGeneralChat, true},
		{IntentUnknown, true},
	}
	for _, tt := range tests {
		if got := fallbackCacheable(tt.kind); got != tt.want {
			t.Errorf("fallbackCacheable(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestDefaultInsightsHighSpending(t *testing.T) {
	uc := UserContext{MonthlySpending: 250.0}
	insights := defaultInsights(uc)

	found := false
	for _, in := range insights {
		if in.Title == "订阅支出偏高" {
			found = true
			if in.Importance != "high" {
				t.Errorf("importance = %q, want high", in.Importance)
			}
			if !strings.Contains(in.Content, "¥250.00") {
				t.Errorf("content missing amount:\n%s", in.Content)
			}
		}
	}
	if !found {
		t.Error("high-spending insight missing")
	}
}

func TestDefaultInsightsManySubscriptions(t *testing.T) {
	uc := UserContext{Subscriptions: make([]SubscriptionInfo, 5)}
	insights := defaultInsights(uc)

	found := false
	for _, in := range insights {
		if in.Title == "订阅数量较多" {
			found = true
		}
	}
	if !found {
		t.Error("subscription-count insight missing")
	}
}

func TestDefaultInsightsEntertainmentSpending(t *testing.T) {
	uc := UserContext{
		CategoryTotals: map[string]CategoryStat{"娱乐": {Count: 3, Spending: 80.0}},
	}
	insights := defaultInsights(uc)

	found := false
	for _, in := range insights {
		if in.Title == "娱乐订阅提醒" {
			found = true
		}
	}
	if !found {
		t.Error("entertainment insight missing")
	}
}

func TestDefaultInsightsQuietAccount(t *testing.T) {
	insights := defaultInsights(UserContext{})
	if len(insights) != 1 {
		t.Fatalf("insights = %d, want exactly 1", len(insights))
	}
	if insights[0].Importance != "low" {
		t.Errorf("importance = %q, want low", insights[0].Importance)
	}
}
