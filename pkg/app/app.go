// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package app assembles the orchestrator: storage, tool registry, approval
// bridge, turn engine, event projections, scheduler and the WebSocket
// gateway.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/action"
	"github.com/chapo-dev/chapo/pkg/approval"
	"github.com/chapo-dev/chapo/pkg/config"
	"github.com/chapo-dev/chapo/pkg/dispatch"
	"github.com/chapo-dev/chapo/pkg/events"
	"github.com/chapo-dev/chapo/pkg/external"
	"github.com/chapo-dev/chapo/pkg/gateway"
	"github.com/chapo-dev/chapo/pkg/llm"
	"github.com/chapo-dev/chapo/pkg/llm/anthropic"
	"github.com/chapo-dev/chapo/pkg/projection"
	"github.com/chapo-dev/chapo/pkg/scheduler"
	"github.com/chapo-dev/chapo/pkg/state"
	"github.com/chapo-dev/chapo/pkg/storage"
	"github.com/chapo-dev/chapo/pkg/subagent"
	"github.com/chapo-dev/chapo/pkg/tools"
	"github.com/chapo-dev/chapo/pkg/turn"
)

// App holds the wired components and the HTTP server in front of them.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	backend    storage.Backend
	states     *state.Store
	actions    *action.Store
	bus        *events.Bus
	engine     *turn.Engine
	dispatcher *dispatch.Dispatcher
	scheduler  *scheduler.Scheduler
	hub        *gateway.Hub
	server     *http.Server
}

// New wires the application from configuration. Provider is the optional LLM
// override for tests; nil builds the configured provider.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, provider llm.Provider) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	var messages storage.MessageLog
	var audit storage.AuditLog
	if cfg.Database.Path != "" {
		backend, err := storage.NewSQLiteBackend(ctx, cfg.Database.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.backend = backend
		messages = backend
		audit = backend
	} else {
		a.backend = storage.NewMemoryBackend()
		messages = storage.NewMemoryMessageLog()
		audit = storage.NewMemoryAuditLog()
		logger.Warn("no database path configured, state is in-memory only")
	}

	states, err := state.NewStore(state.Config{
		Backend:  a.backend,
		Logger:   logger,
		Debounce: cfg.Engine.StateDebounce,
	})
	if err != nil {
		return nil, err
	}
	a.states = states

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, ""); err != nil {
		return nil, err
	}
	executor := tools.NewLocalExecutor(registry, logger)

	actions, err := action.NewStore(action.Config{
		Backend:  a.backend,
		Executor: executor,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	a.actions = actions

	bridge, err := approval.NewBridge(approval.Config{
		Registry: registry,
		Policy:   approval.NewStaticPolicy(approval.DefaultPolicyConfig()),
		Executor: executor,
		Actions:  actions,
		Logger:   logger,
		ReadFile: readFile,
	})
	if err != nil {
		return nil, err
	}

	if provider == nil {
		provider, err = buildProvider(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	runner, err := subagent.NewRunner(subagent.Config{
		Provider: provider,
		Bridge:   bridge,
		Registry: registry,
		Logger:   logger,
		MaxTurns: cfg.Engine.AgentMaxTurns,
	})
	if err != nil {
		return nil, err
	}

	a.bus = events.NewBus(logger)

	compactor, err := turn.NewCompactor(provider, cfg.Engine.CompactionThreshold, logger)
	if err != nil {
		return nil, err
	}

	engine, err := turn.NewEngine(turn.Config{
		Provider:      provider,
		Bridge:        bridge,
		Runner:        runner,
		Registry:      registry,
		States:        states,
		Inbox:         state.NewInbox(),
		Bus:           a.bus,
		Compactor:     compactor,
		Usage:         llm.NewUsageMeter(a.backend, logger),
		Logger:        logger,
		MaxIterations: cfg.Engine.MaxIterations,
		QuestionTTL:   cfg.Engine.QuestionTTL,
	})
	if err != nil {
		return nil, err
	}
	a.engine = engine

	a.hub = gateway.NewHub(gateway.Config{
		Logger: logger,
		OnMessage: func(ctx context.Context, sessionID string, raw []byte) {
			if err := a.dispatcher.Dispatch(ctx, sessionID, raw); err != nil {
				logger.Warn("dispatch failed", zap.String("session_id", sessionID), zap.Error(err))
			}
		},
	})

	dispatcher, err := dispatch.NewDispatcher(dispatch.Config{
		Engine:       engine,
		States:       states,
		Actions:      actions,
		Bus:          a.bus,
		Messages:     messages,
		Logger:       logger,
		AllowedRoots: cfg.Dispatcher.AllowedProjectRoots,
		Send:         a.hub.SendResponse,
	})
	if err != nil {
		return nil, err
	}
	a.dispatcher = dispatcher

	channel, err := a.registerProjections(audit)
	if err != nil {
		return nil, err
	}

	if cfg.Scheduler.Enabled {
		if err := a.buildScheduler(channel); err != nil {
			return nil, err
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.hub.ServeHTTP)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	a.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// registerProjections attaches every event consumer to the bus and returns
// the external channel when one is configured.
func (a *App) registerProjections(audit storage.AuditLog) (external.Channel, error) {
	a.bus.Register(projection.NewStateProjection(a.states, a.logger))
	a.bus.Register(projection.NewStreamProjection(a.hub, a.logger))
	a.bus.Register(projection.NewAuditProjection(audit, a.logger))

	if dir := a.cfg.Transcripts.Dir; dir != "" {
		a.bus.Register(projection.NewMarkdownLogProjection(dir, a.logger))
	}

	if a.cfg.External.WebhookURL == "" {
		return nil, nil
	}
	channel, err := external.NewWebhookChannel(external.WebhookConfig{
		BaseURL: a.cfg.External.WebhookURL,
		Token:   a.cfg.External.WebhookToken,
		Logger:  a.logger,
	})
	if err != nil {
		return nil, err
	}
	fetcher := external.NewImageFetcher(external.FetcherConfig{
		AllowedHosts: a.cfg.External.AllowedImageHosts,
		Logger:       a.logger,
	})
	binding := external.StaticBinding(a.cfg.External.SessionChannels)
	a.bus.Register(projection.NewExternalOutputProjection(binding, channel, fetcher, a.logger))
	return channel, nil
}

// buildScheduler wires the job fabric: instructions run as synthetic turns
// in a per-job session, results go to the job's notification channel.
func (a *App) buildScheduler(channel external.Channel) error {
	store, err := scheduler.NewStore(a.backend, a.logger)
	if err != nil {
		return err
	}
	sched, err := scheduler.NewScheduler(scheduler.Config{
		Store:      store,
		Logger:     a.logger,
		RetryDelay: a.cfg.Scheduler.RetryDelay,
	})
	if err != nil {
		return err
	}

	sched.Configure(
		func(ctx context.Context, instruction, jobID string) (string, error) {
			outcome := a.engine.RunTurn(ctx, turn.Request{
				SessionID: "job:" + jobID,
				RequestID: uuid.NewString(),
				Message:   instruction,
				UserID:    "scheduler",
				Source:    "scheduler",
			})
			switch outcome.Status {
			case turn.StatusCompleted:
				return outcome.Answer, nil
			case turn.StatusFailed:
				return "", fmt.Errorf("%s", outcome.Error)
			default:
				return "", fmt.Errorf("job turn ended in state %s", outcome.Status)
			}
		},
		func(ctx context.Context, message, channelID string) {
			if channel != nil && channelID != "" {
				err := channel.SendText(ctx, channelID, message)
				if err == nil {
					return
				}
				a.logger.Warn("job notification delivery failed",
					zap.String("channel", channelID), zap.Error(err))
			}
			a.logger.Info("job notification", zap.String("message", message))
		},
	)
	a.scheduler = sched
	return nil
}

// Start brings up the scheduler and the HTTP listener. It blocks until the
// listener stops.
func (a *App) Start(ctx context.Context) error {
	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
	}
	a.logger.Info("listening", zap.String("addr", a.server.Addr))
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener, the scheduler and the storage backend.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if closeErr := a.backend.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Dispatcher exposes the command router, mainly for tests.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Hub exposes the gateway hub, mainly for tests.
func (a *App) Hub() *gateway.Hub { return a.hub }

func buildProvider(cfg *config.Config, logger *zap.Logger) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		client, err := anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.LLM.AnthropicAPIKey,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})
		if err != nil {
			return nil, err
		}
		return llm.NewRetryingProvider(client, llm.DefaultRetryConfig(), logger), nil
	default:
		return nil, fmt.Errorf("provider %s has no server implementation", cfg.LLM.Provider)
	}
}

func readFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}
