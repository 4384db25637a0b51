package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/oklog/ulid/v2"

	"github.com/cxy630/ai-subscription-butler/internal/core"
)

// ErrNotFound is returned by mutations that matched no row owned by
// the requesting user.
var ErrNotFound = errors.New("record not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY
	// under concurrent handlers.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        email TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        name TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS subscriptions (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT NOT NULL,
        service_name TEXT NOT NULL,
        price REAL NOT NULL,
        currency TEXT NOT NULL DEFAULT 'CNY',
        billing_cycle TEXT NOT NULL DEFAULT 'monthly'
            CHECK (billing_cycle IN ('daily', 'weekly', 'monthly', 'yearly', 'lifetime')),
        category TEXT NOT NULL DEFAULT '其他',
        status TEXT NOT NULL DEFAULT 'active'
            CHECK (status IN ('active', 'paused', 'cancelled')),
        next_billing_date DATETIME,
        notes TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions (user_id, status);

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- ULID, sortable
        user_id TEXT NOT NULL,
        session_id TEXT NOT NULL,
        message TEXT NOT NULL,
        response TEXT NOT NULL,
        intent TEXT NOT NULL,
        confidence REAL NOT NULL,
        backend TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations (session_id);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) CreateUser(email, passwordHash, name string) (*User, error) {
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		CreatedAt:    time.Now(),
	}
	_, err := s.db.Exec(
		"INSERT INTO users (id, email, password_hash, name, created_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Email, user.PasswordHash, user.Name, user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByEmail(email string) (*User, error) {
	var user User
	err := s.db.QueryRow(
		"SELECT id, email, password_hash, name, created_at FROM users WHERE email = ?", email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) GetUserByID(id string) (*User, error) {
	var user User
	err := s.db.QueryRow(
		"SELECT id, email, password_hash, name, created_at FROM users WHERE id = ?", id,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Subscription methods

func (s *SQLiteStore) CreateSubscription(sub *Subscription) error {
	sub.ID = uuid.NewString()
	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	if sub.Currency == "" {
		sub.Currency = "CNY"
	}
	if sub.BillingCycle == "" {
		sub.BillingCycle = CycleMonthly
	}
	if sub.Category == "" {
		sub.Category = DefaultCategory
	}
	if sub.Status == "" {
		sub.Status = StatusActive
	}

	stmt, err := s.db.Prepare(`INSERT INTO subscriptions
        (id, user_id, service_name, price, currency, billing_cycle, category, status, next_billing_date, notes, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare subscription insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(sub.ID, sub.UserID, sub.ServiceName, sub.Price, sub.Currency,
		sub.BillingCycle, sub.Category, sub.Status, sub.NextBillingDate, sub.Notes,
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute subscription insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSubscriptionByID(id, userID string) (*Subscription, error) {
	row := s.db.QueryRow(`SELECT id, user_id, service_name, price, currency, billing_cycle,
        category, status, next_billing_date, notes, created_at, updated_at
        FROM subscriptions WHERE id = ? AND user_id = ?`, id, userID)

	sub, err := scanSubscription(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// GetSubscriptionsByUserID lists a user's subscriptions, newest first.
// An empty status returns all of them.
func (s *SQLiteStore) GetSubscriptionsByUserID(userID, status string) ([]Subscription, error) {
	query := `SELECT id, user_id, service_name, price, currency, billing_cycle,
        category, status, next_billing_date, notes, created_at, updated_at
        FROM subscriptions WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (s *SQLiteStore) UpdateSubscription(sub *Subscription) error {
	sub.UpdatedAt = time.Now()
	stmt, err := s.db.Prepare(`UPDATE subscriptions SET service_name = ?, price = ?, currency = ?,
        billing_cycle = ?, category = ?, status = ?, next_billing_date = ?, notes = ?, updated_at = ?
        WHERE id = ? AND user_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare subscription update: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(sub.ServiceName, sub.Price, sub.Currency, sub.BillingCycle,
		sub.Category, sub.Status, sub.NextBillingDate, sub.Notes, sub.UpdatedAt,
		sub.ID, sub.UserID)
	if err != nil {
		return fmt.Errorf("failed to execute subscription update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("update subscription %s: %w", sub.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteSubscription(id, userID string) error {
	res, err := s.db.Exec("DELETE FROM subscriptions WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("delete subscription %s: %w", id, ErrNotFound)
	}
	return nil
}

// BuildUserContext aggregates a user's active subscriptions into the
// snapshot the assistant consumes: monthly-normalized spending plus
// per-category totals.
func (s *SQLiteStore) BuildUserContext(userID string) (core.UserContext, error) {
	subs, err := s.GetSubscriptionsByUserID(userID, StatusActive)
	if err != nil {
		return core.UserContext{}, fmt.Errorf("failed to load subscriptions for context: %w", err)
	}

	uc := core.UserContext{CategoryTotals: make(map[string]core.CategoryStat)}
	for _, sub := range subs {
		monthly := sub.MonthlyPrice()
		uc.MonthlySpending += monthly
		uc.Subscriptions = append(uc.Subscriptions, core.SubscriptionInfo{
			Name:         sub.ServiceName,
			MonthlyPrice: monthly,
			Category:     sub.Category,
			BillingCycle: sub.BillingCycle,
		})
		stat := uc.CategoryTotals[sub.Category]
		stat.Count++
		stat.Spending += monthly
		uc.CategoryTotals[sub.Category] = stat
	}
	return uc, nil
}

// Conversation methods

func (s *SQLiteStore) SaveConversation(rec *ConversationRecord) error {
	rec.ID = ulid.Make().String()
	rec.CreatedAt = time.Now()

	stmt, err := s.db.Prepare(`INSERT INTO conversations
        (id, user_id, session_id, message, response, intent, confidence, backend, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare conversation insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(rec.ID, rec.UserID, rec.SessionID, rec.Message, rec.Response,
		rec.Intent, rec.Confidence, rec.Backend, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute conversation insert: %w", err)
	}
	return nil
}

// GetSessionHistory returns a session's most recent archived exchanges,
// oldest first. ULIDs sort by creation time, so ordering by id is enough.
func (s *SQLiteStore) GetSessionHistory(sessionID, userID string, limit int) ([]ConversationRecord, error) {
	rows, err := s.db.Query(`SELECT * FROM (
            SELECT id, user_id, session_id, message, response, intent, confidence, backend, created_at
            FROM conversations WHERE session_id = ? AND user_id = ?
            ORDER BY id DESC LIMIT ?
        ) ORDER BY id ASC`, sessionID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var records []ConversationRecord
	for rows.Next() {
		var rec ConversationRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &rec.Message, &rec.Response,
			&rec.Intent, &rec.Confidence, &rec.Backend, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var sub Subscription
	var nextBilling sql.NullTime
	err := row.Scan(&sub.ID, &sub.UserID, &sub.ServiceName, &sub.Price, &sub.Currency,
		&sub.BillingCycle, &sub.Category, &sub.Status, &nextBilling, &sub.Notes,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if nextBilling.Valid {
		sub.NextBillingDate = &nextBilling.Time
	}
	return &sub, nil
}
