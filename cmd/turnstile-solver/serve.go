package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"turnstile-solver/config"
	"turnstile-solver/eventbus"
	"turnstile-solver/services/solverapi"
)

func serveCmd(a *app) *cobra.Command {
	var (
		cfgFile  string
		envFile  string
		addr     string
		workers  int
		redisURL string
		natsURL  string
		subject  string
		headless bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve solves over an HTTP task API",
		Long: `Serve accepts solve requests over HTTP, queues them for a pool of
browser workers and keeps results for later retrieval.

Settings come from --config (YAML), then --env-file, then the
environment; flags win over all of them.
Results are stored in Redis when a Redis URL is configured, in memory
otherwise. Outcome events are published on NATS when a NATS URL is set.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile, envFile)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.HTTPAddr = addr
			}
			if flags.Changed("workers") {
				cfg.Workers = workers
			}
			if flags.Changed("redis") {
				cfg.RedisURL = redisURL
			}
			if flags.Changed("nats") {
				cfg.NATSURL = natsURL
			}
			if flags.Changed("nats-subject") {
				cfg.NATSSubject = subject
			}
			if flags.Changed("headless") {
				cfg.Headless = headless
			}
			return serve(cmd.Context(), cfg, a)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfgFile, "config", "", "YAML config file")
	f.StringVar(&envFile, "env-file", "", "Load environment variables from this file first")
	f.StringVar(&addr, "addr", ":8085", "HTTP listen address (SOLVER_HTTP_ADDR)")
	f.IntVar(&workers, "workers", 2, "Number of browser workers (SOLVER_WORKERS)")
	f.StringVar(&redisURL, "redis", "", "Redis URL for task storage (REDIS_URL)")
	f.StringVar(&natsURL, "nats", "", "NATS URL for outcome events (NATS_URL)")
	f.StringVar(&subject, "nats-subject", eventbus.DefaultSubject, "NATS subject for outcome events (SOLVER_NATS_SUBJECT)")
	f.BoolVar(&headless, "headless", true, "Default headless mode for requests that omit it (SOLVER_HEADLESS)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, a *app) error {
	log := newLogger(os.Stderr, parseLevel(cfg.LogLevel))
	ctx = log.WithContext(ctx)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var events solverapi.Publisher
	if cfg.NATSURL != "" {
		bus, err := eventbus.NewNATSBus(eventbus.NATSConfig{URL: cfg.NATSURL, Subject: cfg.NATSSubject})
		if err != nil {
			return err
		}
		defer bus.Close()
		events = bus
		log.Info().Str("subject", bus.Subject()).Msg("Publishing events to NATS")
	}

	svc := solverapi.NewService(store, a.newSolver(cfg), events, solverapi.Options{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Headless:  cfg.Headless,
		MaxAge:    cfg.ResultTTL,
	}, log)
	svc.Start(ctx)
	defer svc.Stop()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Turnstile solver API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore picks Redis when configured, memory otherwise.
func openStore(ctx context.Context, cfg config.Config) (solverapi.Store, func(), error) {
	log := zerolog.Ctx(ctx)
	if cfg.RedisURL == "" {
		log.Info().Msg("Using in-memory task store")
		return solverapi.NewMemoryStore(), func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info().Str("addr", opt.Addr).Msg("Using Redis task store")
	return solverapi.NewRedisStore(rdb, cfg.ResultTTL), func() { _ = rdb.Close() }, nil
}
