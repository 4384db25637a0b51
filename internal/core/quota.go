package core

import (
	"sync"
	"time"
)

const quotaDayLayout = "2006-01-02"

// quotaTracker enforces the per-user daily ceiling on remote model calls.
// One counter exists per user; the embedded day key makes stale counts
// from earlier days read as zero, and a sweep drops counters of users who
// stopped showing up.
type quotaTracker struct {
	mu       sync.Mutex
	limit    int
	loc      *time.Location
	now      func() time.Time
	counters map[string]*dayCounter
	sweptDay string
}

type dayCounter struct {
	day   string
	count int
}

func newQuotaTracker(limit int, loc *time.Location) *quotaTracker {
	if loc == nil {
		loc = time.Local
	}
	return &quotaTracker{
		limit:    limit,
		loc:      loc,
		now:      time.Now,
		counters: make(map[string]*dayCounter),
	}
}

// TryConsume reserves one remote call for userID today. The check and the
// increment happen under one lock, so concurrent callers can never push a
// user past the limit.
func (q *quotaTracker) TryConsume(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	day := q.dayKey()
	q.sweepLocked(day)

	c, ok := q.counters[userID]
	if !ok {
		c = &dayCounter{day: day}
		q.counters[userID] = c
	}
	if c.day != day {
		c.day = day
		c.count = 0
	}
	if c.count >= q.limit {
		return false
	}
	c.count++
	return true
}

// Used reports how many remote calls userID has consumed today.
func (q *quotaTracker) Used(userID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	c, ok := q.counters[userID]
	if !ok || c.day != q.dayKey() {
		return 0
	}
	return c.count
}

// UsedToday sums today's consumption across all users.
func (q *quotaTracker) UsedToday() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	day := q.dayKey()
	total := 0
	for _, c := range q.counters {
		if c.day == day {
			total += c.count
		}
	}
	return total
}

func (q *quotaTracker) Limit() int {
	return q.limit
}

func (q *quotaTracker) dayKey() string {
	return q.now().In(q.loc).Format(quotaDayLayout)
}

// sweepLocked runs at most once per day and deletes counters more than
// two days old. Day keys sort lexicographically, so a string compare is
// enough.
func (q *quotaTracker) sweepLocked(day string) {
	if q.sweptDay == day {
		return
	}
	q.sweptDay = day
	cutoff := q.now().In(q.loc).AddDate(0, 0, -2).Format(quotaDayLayout)
	for userID, c := range q.counters {
		if c.day < cutoff {
			delete(q.counters, userID)
		}
	}
}
