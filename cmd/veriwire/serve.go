package main

import (
	"context"
	"os"

	"github.com/go-go-golems/veriwire/pkg/agent"
	"github.com/go-go-golems/veriwire/pkg/audit"
	"github.com/go-go-golems/veriwire/pkg/bank"
	"github.com/go-go-golems/veriwire/pkg/config"
	"github.com/go-go-golems/veriwire/pkg/dispatch"
	"github.com/go-go-golems/veriwire/pkg/liveness"
	"github.com/go-go-golems/veriwire/pkg/redisstream"
	"github.com/go-go-golems/veriwire/pkg/relay"
	"github.com/go-go-golems/veriwire/pkg/risk"
	"github.com/go-go-golems/veriwire/pkg/session"
	"github.com/go-go-golems/veriwire/pkg/verify"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const sessionKeyPrefix = "veriwire:session:"

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept telephony media streams and relay them to the speech agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), map[string]string{
				"addr":           "addr",
				"bank.base_url":  "bank-url",
				"agent.settings": "agent-settings",
				"audit.db":       "audit-db",
			})
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.String("addr", ":8080", "listen address")
	f.String("bank-url", "http://localhost:8000", "banking API base URL")
	f.String("agent-settings", "", "speech-agent settings document (YAML or JSON)")
	f.String("audit-db", "veriwire.db", "sqlite audit log file, empty to disable")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	settings, err := agent.LoadSettings(cfg.Agent.Settings)
	if err != nil {
		return err
	}
	apiKey := os.Getenv("DEEPGRAM_API_KEY")
	if apiKey == "" {
		return errors.New("DEEPGRAM_API_KEY is not set")
	}

	bankClient, err := bank.NewHTTPClient(bank.HTTPClientOptions{
		BaseURL:        cfg.Bank.BaseURL,
		Timeout:        cfg.Bank.Timeout,
		SummaryRetries: cfg.Bank.SummaryRetries,
		RetryInitial:   cfg.Bank.RetryInitial,
	})
	if err != nil {
		return err
	}

	var (
		sessions session.Store[verify.CallState]
		memStore *session.MemoryStore[verify.CallState]
	)
	switch cfg.Session.Backend {
	case config.BackendRedis:
		rc := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer func() { _ = rc.Close() }()
		if err := rc.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "session store: redis ping")
		}
		sessions = session.NewRedisStore[verify.CallState](rc, sessionKeyPrefix, cfg.Session.TTL)
	default:
		memStore = session.NewMemoryStore[verify.CallState](cfg.Session.TTL)
		sessions = memStore
	}

	if cfg.Redis.Enabled {
		if err := redisstream.EnsureGroupAtTail(ctx, cfg.Redis.Addr, cfg.Audit.Topic, cfg.Redis.Group); err != nil {
			return errors.Wrap(err, "audit stream: ensure consumer group")
		}
	}
	ps, err := redisstream.Build(cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = ps.Close() }()
	sink := audit.NewPublisherSink(ps.Publisher, cfg.Audit.Topic)

	machine := verify.NewMachine(bankClient, risk.NewRandomGate(cfg.Risk.Threshold), liveness.NewGenerator())
	registry := dispatch.NewRegistry()
	verify.NewTools(machine, sessions, bankClient).Register(registry)

	r, err := relay.New(relay.Deps{
		Dialer:     relay.WebsocketDialer(&agent.Dialer{URL: cfg.Agent.URL, APIKey: apiKey}),
		Settings:   settings,
		Machine:    machine,
		Sessions:   sessions,
		Dispatcher: dispatch.NewDispatcher(registry, sink),
		Audit:      sink,
	}, cfg.Relay)
	if err != nil {
		return err
	}

	srv := relay.NewServer(cfg.Addr, r, sessions)
	if memStore != nil {
		srv.AddTask("session-sweeper", func(ctx context.Context) error {
			memStore.StartSweeper(ctx, cfg.Session.SweepInterval)
			<-ctx.Done()
			return nil
		})
	}
	if cfg.Audit.DB != "" {
		dsn, err := audit.SQLiteDSNForFile(cfg.Audit.DB)
		if err != nil {
			return err
		}
		store, err := audit.NewSQLiteStore(dsn)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		srv.AddTask("audit-recorder", audit.NewRecorder(ps.Subscriber, cfg.Audit.Topic, store).Run)
	}

	log.Info().
		Str("addr", cfg.Addr).
		Str("bank", cfg.Bank.BaseURL).
		Str("sessions", cfg.Session.Backend).
		Bool("redis_stream", cfg.Redis.Enabled).
		Strs("tools", registry.Names()).
		Msg("veriwire relay configured")
	return srv.Run(ctx)
}
