package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/po-intake/internal/normalize"
	"github.com/sells-group/po-intake/internal/session"
	"github.com/sells-group/po-intake/internal/store"
	"github.com/sells-group/po-intake/internal/submit"
	"github.com/sells-group/po-intake/internal/workflow"
	"github.com/sells-group/po-intake/pkg/ocr"
	"github.com/sells-group/po-intake/pkg/registry"
)

// env bundles the wired clients and workflow for a command invocation.
type env struct {
	store        store.Store
	session      *session.Session
	orchestrator *workflow.Orchestrator
	transaction  *submit.Transaction
}

// initEnv wires the extraction client, persistence client, run-history store,
// and workflow orchestrator from the loaded configuration.
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	ocrOpts := []ocr.Option{ocr.WithBaseURL(cfg.OCR.BaseURL)}
	if cfg.OCR.RateLimitRPS > 0 {
		ocrOpts = append(ocrOpts, ocr.WithRateLimit(cfg.OCR.RateLimitRPS, 1))
	}
	ocrClient := ocr.NewClient(cfg.OCR.Key, ocrOpts...)

	registryClient := registry.NewClient(cfg.Registry.Key, registry.WithBaseURL(cfg.Registry.BaseURL))

	normalizer := normalize.New()
	if cfg.Workflow.AliasFile != "" {
		overrides, err := normalize.LoadOverrides(cfg.Workflow.AliasFile)
		if err != nil {
			st.Close()
			return nil, eris.Wrap(err, "load alias overrides")
		}
		normalizer.ApplyOverrides(overrides)
		zap.L().Info("alias overrides loaded", zap.String("file", cfg.Workflow.AliasFile))
	}

	sess := session.New()
	orchestrator := workflow.New(workflow.Config{
		PollInterval:            time.Duration(cfg.Workflow.PollIntervalSecs) * time.Second,
		MaxPollAttempts:         cfg.Workflow.PollMaxAttempts,
		PlaceholderOnMissingJob: cfg.Workflow.PlaceholderOnMissingJob,
		LocalKeywordAssist:      cfg.OCR.LocalKeywordAssist,
	}, ocrClient, st, normalizer, sess)

	return &env{
		store:        st,
		session:      sess,
		orchestrator: orchestrator,
		transaction:  submit.New(registryClient, st),
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.Disabled {
		return store.NewNop(), nil
	}

	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}
