package store

import "time"

// Billing cycles a subscription can be charged on.
const (
	CycleDaily    = "daily"
	CycleWeekly   = "weekly"
	CycleMonthly  = "monthly"
	CycleYearly   = "yearly"
	CycleLifetime = "lifetime"
)

// Subscription lifecycle states.
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCancelled = "cancelled"
)

// DefaultCategory is assigned when the caller does not name one.
const DefaultCategory = "其他"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
}

type Subscription struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	ServiceName     string     `json:"service_name"`
	Price           float64    `json:"price"`
	Currency        string     `json:"currency"`
	BillingCycle    string     `json:"billing_cycle"`
	Category        string     `json:"category"`
	Status          string     `json:"status"`
	NextBillingDate *time.Time `json:"next_billing_date"` // Nullable
	Notes           string     `json:"notes"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// MonthlyPrice normalizes the price onto a monthly basis. Lifetime
// purchases do not recur, so they contribute nothing to monthly spend.
func (s *Subscription) MonthlyPrice() float64 {
	switch s.BillingCycle {
	case CycleYearly:
		return s.Price / 12
	case CycleWeekly:
		return s.Price * 4.33
	case CycleDaily:
		return s.Price * 30
	case CycleLifetime:
		return 0
	default:
		return s.Price
	}
}

// ConversationRecord is one archived chat exchange. IDs are ULIDs, so
// ordering by id is chronological.
type ConversationRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id"`
	Message    string    `json:"message"`
	Response   string    `json:"response"`
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Backend    string    `json:"backend"`
	CreatedAt  time.Time `json:"created_at"`
}
