package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/config"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/llm"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/orchestrator"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/plan"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// #region app

// app is the LLM-backed core shared by serve, chat and eval.
type app struct {
	cfg       *config.Config
	log       *log.Logger
	llm       *llm.Client
	snapshots *session.SnapshotStore // nil when SESSION_DB is empty
	sessions  *session.MemoryStore
	orch      *orchestrator.Orchestrator
}

func newApp(cfg *config.Config, logger *log.Logger) (*app, error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	client, err := llm.New(cfg.LLM(), logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: logger, llm: client}
	deps := orchestrator.Deps{
		Generator:  client,
		Plans:      plan.NewExtractor(client, logger),
		Assistant:  client,
		Summarizer: client,
		Logger:     logger,
	}
	if cfg.SessionDB != "" {
		snaps, err := session.NewSnapshotStore(cfg.SessionDB)
		if err != nil {
			return nil, fmt.Errorf("session db: %w", err)
		}
		a.snapshots = snaps
		a.sessions = session.NewBackedStore(snaps)
		deps.DB = snaps.DB()
	} else {
		a.sessions = session.NewMemoryStore()
	}

	a.orch, err = orchestrator.New(cfg.Orchestrator(), deps)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	return a, nil
}

func (a *app) Close() error {
	if a.snapshots == nil {
		return nil
	}
	return a.snapshots.Close()
}

// #endregion app
