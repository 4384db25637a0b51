package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/cxy630/ai-subscription-butler/internal/api"
	"github.com/cxy630/ai-subscription-butler/internal/auth"
	"github.com/cxy630/ai-subscription-butler/internal/config"
	"github.com/cxy630/ai-subscription-butler/internal/core"
	"github.com/cxy630/ai-subscription-butler/internal/logger"
	"github.com/cxy630/ai-subscription-butler/internal/metrics"
	"github.com/cxy630/ai-subscription-butler/internal/store"
)

func main() {
	seedFlag := flag.Bool("seed", false, "Seed demo data and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logg := logger.New(cfg.LogLevel, cfg.LogPretty, os.Stderr)

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logg.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer dbStore.Close()

	if *seedFlag {
		if err := seedDemoData(dbStore, logg); err != nil {
			logg.Fatal().Err(err).Msg("demo seeding failed")
		}
		logg.Info().Msg("demo data seeded, exiting")
		return
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Without an API key the assistant still serves every request from
	// the deterministic fallback, so a missing key is not fatal.
	var remote core.Completer
	if cfg.GeminiAPIKey == "" {
		logg.Warn().Msg("GEMINI_API_KEY is not set, assistant runs in fallback-only mode")
	} else {
		client, err := core.NewGeminiClient(context.Background(), core.GeminiConfig{
			APIKey:          cfg.GeminiAPIKey,
			ChatModel:       cfg.GeminiModelChat,
			ComplexModel:    cfg.GeminiModelComplex,
			MaxOutputTokens: int32(cfg.GeminiMaxTokens),
			Temperature:     float32(cfg.GeminiTemperature),
			RequestTimeout:  cfg.RequestTimeout,
			ComplexMinRunes: cfg.ComplexMinRunes,
		}, logg, m)
		if err != nil {
			logg.Fatal().Err(err).Msg("failed to initialize Gemini client")
		}
		defer client.Close()
		remote = client
	}

	assistant := core.NewAssistant(core.Config{
		MaxHistoryTurns:  cfg.MaxHistoryTurns,
		MaxDailyRequests: cfg.MaxDailyRequests,
		QuotaLocation:    cfg.QuotaLocation(),
		CacheTTL:         cfg.CacheTTL,
		CacheMaxEntries:  cfg.CacheMaxEntries,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
		MaxMessageRunes:  cfg.MaxMessageRunes,
	}, remote, logg, m)

	apiHandler := api.NewAPIHandler(dbStore, assistant, []byte(cfg.JWTSecret), logg)
	router := api.NewRouter(apiHandler, registry)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // remote model calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logg.Info().Str("addr", serverAddr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logg.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logg.Fatal().Err(err).Msg("server forced to shutdown")
	}
	logg.Info().Msg("server exited gracefully")
}

// seedDemoData provisions a demo account with a few subscriptions so
// the assistant has something to talk about on a fresh database.
func seedDemoData(s *store.SQLiteStore, logg zerolog.Logger) error {
	const demoEmail = "demo@example.com"

	user, err := s.GetUserByEmail(demoEmail)
	if err != nil {
		return err
	}
	if user == nil {
		hash, err := auth.HashPassword("demo123")
		if err != nil {
			return err
		}
		user, err = s.CreateUser(demoEmail, hash, "Demo User")
		if err != nil {
			return err
		}
		logg.Info().Str("email", demoEmail).Msg("created demo user")
	}

	existing, err := s.GetSubscriptionsByUserID(user.ID, "")
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logg.Info().Int("count", len(existing)).Msg("demo user already has subscriptions, skipping")
		return nil
	}

	demos := []store.Subscription{
		{UserID: user.ID, ServiceName: "Netflix", Price: 15.99, Currency: "CNY", BillingCycle: store.CycleMonthly, Category: "娱乐"},
		{UserID: user.ID, ServiceName: "ChatGPT Plus", Price: 140.0, Currency: "CNY", BillingCycle: store.CycleMonthly, Category: "效率"},
		{UserID: user.ID, ServiceName: "Spotify", Price: 9.99, Currency: "CNY", BillingCycle: store.CycleMonthly, Category: "娱乐"},
	}
	for i := range demos {
		if err := s.CreateSubscription(&demos[i]); err != nil {
			return err
		}
		logg.Info().Str("service", demos[i].ServiceName).Msg("created demo subscription")
	}
	return nil
}
