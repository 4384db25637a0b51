// Package core implements the assistant request pipeline: intent
// classification, context assembly, backend selection between the remote
// model and the deterministic fallback, response caching, daily quotas and
// circuit breaking.
package core

import (
	"errors"
	"sync"
	"time"
)

// ErrInvalidInput is the only error Chat returns. Everything else the
// pipeline can go wrong with is absorbed into a fallback envelope.
var ErrInvalidInput = errors.New("invalid input")

// Backend identifies which path produced a response.
type Backend string

const (
	BackendRemote   Backend = "remote"
	BackendFallback Backend = "fallback"
	BackendCached   Backend = "cached"
)

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message in a session's history.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// SubscriptionInfo is the per-subscription slice of a user's profile the
// assistant works with.
type SubscriptionInfo struct {
	Name         string  `json:"name"`
	MonthlyPrice float64 `json:"monthly_price"`
	Category     string  `json:"category"`
	BillingCycle string  `json:"billing_cycle"`
}

// CategoryStat aggregates one spending category.
type CategoryStat struct {
	Count    int     `json:"count"`
	Spending float64 `json:"spending"`
}

// UserContext is the caller-supplied snapshot of a user's subscription
// data. The assistant never loads it itself; persistence stays outside
// this package.
type UserContext struct {
	MonthlySpending float64                 `json:"monthly_spending"`
	Subscriptions   []SubscriptionInfo      `json:"subscriptions"`
	CategoryTotals  map[string]CategoryStat `json:"category_totals"`
}

// ResponseEnvelope is the uniform answer shape for every chat request,
// whichever backend produced it.
type ResponseEnvelope struct {
	Text        string     `json:"text"`
	Confidence  float64    `json:"confidence"`
	Intent      IntentKind `json:"intent"`
	BackendUsed Backend    `json:"backend_used"`
	TokensUsed  int        `json:"tokens_used,omitempty"`
	LatencyMs   int64      `json:"latency_ms"`
}

// Insight is one recommendation produced for the insights feed.
type Insight struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Icon       string `json:"icon"`
	Importance string `json:"importance"`
}

// Status is a point-in-time snapshot of the assistant's health knobs.
type Status struct {
	BackendHealthy    bool `json:"backend_healthy"`
	RemoteConfigured  bool `json:"remote_configured"`
	DailyRequestsUsed int  `json:"daily_requests_used"`
	DailyLimit        int  `json:"daily_limit"`
	CacheSize         int  `json:"cache_size"`
}

// BatchRequest is one element of a fan-out chat call.
type BatchRequest struct {
	SessionID string
	UserID    string
	Message   string
	Context   UserContext
}

// BatchResult pairs the envelope (or validation error) with its request.
// Results keep the order of the requests that produced them.
type BatchResult struct {
	Envelope *ResponseEnvelope
	Err      error
}

// conversation holds one session's in-memory history. Appends are
// serialized per session; the bound keeps the most recent turns.
type conversation struct {
	mu    sync.Mutex
	turns []ConversationTurn
	max   int
}

func newConversation(maxTurns int) *conversation {
	return &conversation{max: maxTurns}
}

func (c *conversation) append(turns ...ConversationTurn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turns...)
	if len(c.turns) > c.max {
		c.turns = append([]ConversationTurn(nil), c.turns[len(c.turns)-c.max:]...)
	}
}

// recent returns a copy of the last n turns, oldest first. n <= 0 means
// the whole bounded history.
func (c *conversation) recent(n int) []ConversationTurn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n > len(c.turns) {
		n = len(c.turns)
	}
	out := make([]ConversationTurn, n)
	copy(out, c.turns[len(c.turns)-n:])
	return out
}

func (c *conversation) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}
