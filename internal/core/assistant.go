package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/cxy630/ai-subscription-butler/internal/metrics"
)

// Config carries the assistant's tunables. Zero values fall back to the
// documented defaults, so tests can construct a Config with only the
// fields they care about.
type Config struct {
	MaxHistoryTurns  int
	MaxDailyRequests int
	QuotaLocation    *time.Location
	CacheTTL         time.Duration
	CacheMaxEntries  int
	BreakerThreshold int
	BreakerCooldown  time.Duration
	MaxMessageRunes  int
}

func (c Config) withDefaults() Config {
	if c.MaxHistoryTurns <= 0 {
		c.MaxHistoryTurns = 10
	}
	if c.MaxDailyRequests <= 0 {
		c.MaxDailyRequests = 1000
	}
	if c.QuotaLocation == nil {
		c.QuotaLocation = time.Local
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = 512
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 3
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 60 * time.Second
	}
	if c.MaxMessageRunes <= 0 {
		c.MaxMessageRunes = 1000
	}
	return c
}

// Assistant orchestrates one chat request end to end: classify the
// intent, assemble the bounded context, consult the cache, pick a backend
// and always hand back a well-formed envelope. A nil remote Completer
// puts it in fallback-only mode.
type Assistant struct {
	cfg     Config
	remote  Completer
	breaker *circuitBreaker
	quota   *quotaTracker
	cache   *responseCache
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*conversation
}

func NewAssistant(cfg Config, remote Completer, log zerolog.Logger, m *metrics.Metrics) *Assistant {
	cfg = cfg.withDefaults()
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &Assistant{
		cfg:      cfg,
		remote:   remote,
		breaker:  newCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		quota:    newQuotaTracker(cfg.MaxDailyRequests, cfg.QuotaLocation),
		cache:    newResponseCache(cfg.CacheMaxEntries),
		log:      log.With().Str("component", "assistant").Logger(),
		metrics:  m,
		sessions: make(map[string]*conversation),
	}
}

// Chat answers one user message. The only error it returns is
// ErrInvalidInput; remote trouble of any kind degrades to the fallback
// backend instead of surfacing.
func (a *Assistant) Chat(ctx context.Context, sessionID, userID, message string, uc UserContext) (*ResponseEnvelope, error) {
	start := time.Now()
	if err := validateChatInput(sessionID, userID, message, a.cfg.MaxMessageRunes); err != nil {
		return nil, err
	}

	intent := ClassifyIntent(message)
	conv := a.session(sessionID)
	bctx := assembleContext(uc, conv.recent(a.cfg.MaxHistoryTurns), a.cfg.MaxHistoryTurns)
	key := cacheKey(normalizeMessage(message), bctx.Digest, intent.Kind)

	if text, ok := a.cache.Get(key); ok {
		a.metrics.CacheHitsTotal.Inc()
		return a.finishChat(conv, message, text, intent, BackendCached, 0, start), nil
	}
	a.metrics.CacheMissesTotal.Inc()

	backend := a.selectForCall(userID)

	var text string
	var tokens int
	if backend == BackendRemote {
		res, err := a.completeRemote(ctx, CompletionRequest{Message: message, Intent: intent, Context: bctx})
		if err != nil {
			backend = BackendFallback
		} else {
			text = res.Text
			tokens = res.TokensUsed
		}
	}
	if backend == BackendFallback {
		text = fallbackRespond(intent.Kind, uc)
	}

	if backend == BackendRemote || fallbackCacheable(intent.Kind) {
		a.cache.Put(key, text, a.cfg.CacheTTL)
	}
	return a.finishChat(conv, message, text, intent, backend, tokens, start), nil
}

// ChatBatch answers several messages concurrently. Results keep the order
// of the requests; one request's failure never affects its siblings.
func (a *Assistant) ChatBatch(ctx context.Context, reqs []BatchRequest) []BatchResult {
	results := make([]BatchResult, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req BatchRequest) {
			defer wg.Done()
			env, err := a.Chat(ctx, req.SessionID, req.UserID, req.Message, req.Context)
			results[i] = BatchResult{Envelope: env, Err: err}
		}(i, req)
	}
	wg.Wait()
	return results
}

// GenerateInsights produces the insights feed through the same backend
// selection as chat. It never fails: when the remote path is unavailable
// or misbehaves, the rule-based defaults answer.
func (a *Assistant) GenerateInsights(ctx context.Context, userID string, uc UserContext) []Insight {
	if a.selectForCall(userID) == BackendRemote {
		insights, err := a.remote.Insights(ctx, buildProfile(uc))
		a.recordRemoteOutcome(err)
		if err == nil && len(insights) > 0 {
			a.metrics.InsightsTotal.WithLabelValues("remote").Inc()
			return insights
		}
		if err != nil {
			a.log.Warn().Err(err).Str("kind", string(KindOf(err))).Msg("remote insights failed, using defaults")
		}
	}
	a.metrics.InsightsTotal.WithLabelValues("fallback").Inc()
	return defaultInsights(uc)
}

// Status reports the assistant's current health snapshot.
func (a *Assistant) Status() Status {
	return Status{
		BackendHealthy:    a.breaker.State() == breakerClosed,
		RemoteConfigured:  a.remote != nil,
		DailyRequestsUsed: a.quota.UsedToday(),
		DailyLimit:        a.quota.Limit(),
		CacheSize:         a.cache.Len(),
	}
}

// History returns a copy of the last n in-memory turns of a session, or
// nil for sessions this process has not seen.
func (a *Assistant) History(sessionID string, n int) []ConversationTurn {
	a.mu.RLock()
	conv := a.sessions[sessionID]
	a.mu.RUnlock()
	if conv == nil {
		return nil
	}
	return conv.recent(n)
}

// selectForCall runs the backend decision for one request. The inputs are
// evaluated left to right so the quota is only touched when the remote
// path is otherwise eligible, and a half-open probe reserved by Allow is
// released when the quota then denies the call.
func (a *Assistant) selectForCall(userID string) Backend {
	remoteConfigured := a.remote != nil
	remoteHealthy := remoteConfigured && a.breaker.Allow()
	quotaOK := false
	if remoteHealthy {
		quotaOK = a.quota.TryConsume(userID)
		if !quotaOK {
			a.breaker.Ignore()
			a.metrics.QuotaRejectionsTotal.Inc()
		}
	}
	return selectBackend(remoteConfigured, remoteHealthy, quotaOK)
}

func (a *Assistant) completeRemote(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	res, err := a.remote.Complete(ctx, req)
	a.recordRemoteOutcome(err)
	if err != nil {
		a.log.Warn().Err(err).Str("kind", string(KindOf(err))).Msg("remote completion failed, falling back")
		return nil, err
	}
	return res, nil
}

// recordRemoteOutcome feeds exactly one call-level outcome into the
// breaker. BadRequest is the caller's fault, not the backend's, so it
// releases the probe slot without counting as a failure.
func (a *Assistant) recordRemoteOutcome(err error) {
	if err == nil {
		a.breaker.Success()
	} else {
		kind := KindOf(err)
		a.metrics.RemoteErrorsTotal.WithLabelValues(string(kind)).Inc()
		if kind == ErrKindBadRequest {
			a.breaker.Ignore()
		} else {
			a.breaker.Failure()
		}
	}
	a.metrics.BreakerState.Set(breakerGauge(a.breaker.State()))
}

func (a *Assistant) finishChat(conv *conversation, message, text string, intent Intent, backend Backend, tokens int, start time.Time) *ResponseEnvelope {
	now := time.Now()
	conv.append(
		ConversationTurn{Role: RoleUser, Text: message, Timestamp: now},
		ConversationTurn{Role: RoleAssistant, Text: text, Timestamp: now},
	)
	elapsed := time.Since(start)
	a.metrics.RecordChat(string(backend), string(intent.Kind), elapsed)
	a.metrics.CacheEntries.Set(float64(a.cache.Len()))
	a.log.Debug().
		Str("intent", string(intent.Kind)).
		Str("backend", string(backend)).
		Int64("latency_ms", elapsed.Milliseconds()).
		Msg("chat handled")

	return &ResponseEnvelope{
		Text:        text,
		Confidence:  intent.Confidence,
		Intent:      intent.Kind,
		BackendUsed: backend,
		TokensUsed:  tokens,
		LatencyMs:   elapsed.Milliseconds(),
	}
}

func (a *Assistant) session(sessionID string) *conversation {
	a.mu.RLock()
	conv := a.sessions[sessionID]
	a.mu.RUnlock()
	if conv != nil {
		return conv
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if conv = a.sessions[sessionID]; conv == nil {
		conv = newConversation(a.cfg.MaxHistoryTurns)
		a.sessions[sessionID] = conv
	}
	return conv
}

func validateChatInput(sessionID, userID, message string, maxRunes int) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id is empty", ErrInvalidInput)
	}
	if userID == "" {
		return fmt.Errorf("%w: user id is empty", ErrInvalidInput)
	}
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if maxRunes > 0 && utf8.RuneCountInString(message) > maxRunes {
		return fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, maxRunes)
	}
	return nil
}

func breakerGauge(s breakerState) float64 {
	switch s {
	case breakerOpen:
		return metrics.BreakerOpen
	case breakerHalfOpen:
		return metrics.BreakerHalfOpen
	default:
		return metrics.BreakerClosed
	}
}
