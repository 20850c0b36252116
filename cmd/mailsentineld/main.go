// Command mailsentineld wires the core subsystem together and runs the
// categorization worker loop. The OAuth callback server, remote-provider
// wire clients, and tool-schema dispatch that would front this process in
// production are out of scope here (spec.md §1) — this is the dependency
// graph a tool-call handler would sit on top of, grounded on
// cmd/email-retrieval/main.go's wiring shape (load config, build adapters,
// inject into the application layer, run).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailsentinel/core/internal/analysis"
	"github.com/mailsentinel/core/internal/auth"
	"github.com/mailsentinel/core/internal/bulk"
	"github.com/mailsentinel/core/internal/cache"
	"github.com/mailsentinel/core/internal/categorize"
	"github.com/mailsentinel/core/internal/config"
	"github.com/mailsentinel/core/internal/fileacl"
	"github.com/mailsentinel/core/internal/ingest"
	"github.com/mailsentinel/core/internal/jobs"
	"github.com/mailsentinel/core/internal/logging"
	"github.com/mailsentinel/core/internal/search"
	"github.com/mailsentinel/core/internal/store"
)

// defaultImportanceRules is a starter rule set for the ImportanceAnalyzer;
// production deployments configure these per tenant (spec.md §4.E.1).
func defaultImportanceRules() []analysis.Rule {
	return []analysis.Rule{
		{ID: "urgent-keyword", Kind: analysis.RuleKeyword, Keywords: []string{"urgent", "action required", "deadline"}, Weight: 0.4, Priority: 10},
		{ID: "vip-domain", Kind: analysis.RuleDomain, Domains: []string{"board.example.com"}, Weight: 0.5, Priority: 20},
		{ID: "starred-label", Kind: analysis.RuleLabel, Labels: []string{"IMPORTANT", "STARRED"}, Weight: 0.3, Priority: 15},
		{ID: "no-reply-sender", Kind: analysis.RuleNoReply, Weight: -0.3, Priority: 5},
		{ID: "large-attachment", Kind: analysis.RuleLargeAttachment, Weight: 0.2, Priority: 1},
	}
}

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Msg("starting mailsentineld")

	registry := store.NewRegistry(cfg.StoragePath, log)
	defer func() {
		if err := registry.CloseAll(); err != nil {
			log.Error().Err(err).Msg("error closing store registry")
		}
	}()

	jobBackend, err := registry.Get("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open shared job store")
	}
	jobStore := jobs.New(jobBackend, log)
	queue := jobs.NewQueue()

	sharedCache := cache.New(cfg.CacheDefaultTTL)
	importanceAnalyzer := analysis.NewImportanceAnalyzer(defaultImportanceRules(), 0.7, 0.3, sharedCache, cfg.CacheDefaultTTL, analysis.KeyPartial, log)
	dateSizeAnalyzer := analysis.NewDateSizeAnalyzer(sharedCache, cfg.CacheDefaultTTL, analysis.KeyPartial)
	labelClassifier := analysis.NewLabelClassifier(sharedCache, cfg.CacheDefaultTTL, analysis.KeyPartial)

	engineTemplate := categorize.Engine{
		Importance: importanceAnalyzer,
		DateSize:   dateSizeAnalyzer,
		Label:      labelClassifier,
		Cache:      sharedCache,
		BatchSize:  100,
		Timeout:    5 * time.Second,
		Log:        log.With().Str("component", "categorization_engine").Logger(),
	}

	worker := jobs.NewWorker(queue, jobStore, registry, engineTemplate, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go worker.Run(ctx)
	log.Info().Msg("categorization worker running")

	// Per-request collaborators are built the same way a tool-call handler
	// would build them for each authenticated call: resolve the caller's
	// Store from the registry, then construct the narrow component that
	// call needs. Shown here once per component to document the wiring;
	// the out-of-scope dispatcher is what would actually invoke these per
	// request.
	sessions := auth.NewSessionStore()
	validator := auth.NewValidator(sessions)
	_ = validator

	fileACLPolicy := fileacl.DefaultPolicy()
	for _, userID := range mustList(registry, log) {
		userStore, err := registry.Get(userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("failed to open user store, skipping")
			continue
		}

		facl := fileacl.New(userStore, fileACLPolicy, log)
		searchEngine := search.New(userStore, log)
		mutator := bulk.New(userStore, nil, facl, cfg.BulkBatchDelay, log)
		_ = ingest.New(nil, userStore, log)
		_ = searchEngine
		_ = mutator

		if n, err := facl.CleanupExpiredFiles(ctx); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("expired file sweep failed")
		} else if n > 0 {
			log.Info().Str("user_id", userID).Int("removed", n).Msg("swept expired files")
		}
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining worker")

	worker.Stop()
	worker.WaitForShutdown()
	registry.WaitForIdleAll(context.Background())

	log.Info().Msg("mailsentineld stopped")
}

func mustList(registry *store.Registry, log zerolog.Logger) []string {
	ids, err := registry.List()
	if err != nil {
		log.Error().Err(err).Msg("failed to list existing user stores")
		return nil
	}
	return ids
}
