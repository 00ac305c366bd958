package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/tradegate/pkg/config"
	"github.com/Mindburn-Labs/tradegate/pkg/console"
	"github.com/Mindburn-Labs/tradegate/pkg/identity"
	"github.com/Mindburn-Labs/tradegate/pkg/observability"
	"github.com/Mindburn-Labs/tradegate/pkg/reveal"
	"github.com/Mindburn-Labs/tradegate/pkg/session"
	"github.com/Mindburn-Labs/tradegate/pkg/store"
)

const (
	shutdownGrace = 15 * time.Second
	devEmail      = "dev@tradegate.local"
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web console",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, cleanup, err := c.buildServer(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			return c.listen(ctx, srv)
		},
	}
}

// buildServer wires the console from configuration. cleanup releases the
// stores and flushes telemetry.
func (c *cli) buildServer(ctx context.Context) (*http.Server, func(), error) {
	cfg := c.cfg
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*http.Server, func(), error) {
		cleanup()
		return nil, nil, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTelEnabled
	obsCfg.OTLPEndpoint = cfg.OTelEndpoint
	obsCfg.Insecure = cfg.OTelInsecure
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return fail(fmt.Errorf("observability: %w", err))
	}
	closers = append(closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(sctx)
	})

	sessions, closeSessions, err := c.sessionStore(ctx)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeSessions)

	facade := session.New(session.Options{
		Store:            sessions,
		NewProvider:      func() (identity.Provider, error) { return c.serverProvider(ctx) },
		PublicOrigin:     cfg.PublicOrigin,
		ExternalProvider: cfg.AuthExternalProvider,
		Logger:           c.logger,
	})

	calc, err := c.newCalculator(cfg, c.logger, obs)
	if err != nil {
		return fail(fmt.Errorf("calculator client: %w", err))
	}

	history, err := store.Open(cfg.HistoryDSN)
	if err != nil {
		return fail(fmt.Errorf("history store: %w", err))
	}
	closers = append(closers, func() { _ = history.Close() })

	con, err := console.New(ctx, console.Options{
		Sessions:      facade,
		Calculator:    calc,
		History:       history,
		Scheduler:     reveal.TimerScheduler{},
		Observability: obs,
		Logger:        c.logger,
		CORSOrigins:   cfg.CORSOrigins,
		SecureCookies: cfg.SecureCookies,
		AuthRateRPS:   cfg.AuthRateRPS,
		AuthRateBurst: cfg.AuthRateBurst,
	})
	if err != nil {
		return fail(err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           con.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.CalcTimeout + 30*time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return srv, cleanup, nil
}

// serverProvider falls back to the in-memory provider when no identity
// provider is configured, so the console runs standalone in development.
func (c *cli) serverProvider(ctx context.Context) (identity.Provider, error) {
	if !c.cfg.DevAuth() {
		return c.newProvider(c.cfg)
	}
	c.logger.WarnContext(ctx, "no identity provider configured, accounts are kept in memory",
		"external_email", devEmail)
	return identity.NewMemoryProvider(identity.MemoryConfig{
		ExternalProviders: []string{c.cfg.AuthExternalProvider},
		ExternalEmail:     devEmail,
	})
}

func (c *cli) sessionStore(ctx context.Context) (session.Store, func(), error) {
	cfg := c.cfg
	switch cfg.SessionStore {
	case config.StoreRedis:
		rs := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, nil, fmt.Errorf("redis session store: %w", err)
		}
		return rs, func() { _ = rs.Close() }, nil
	case config.StoreBolt:
		bs, err := session.OpenBoltStore(cfg.SessionBoltPath)
		if err != nil {
			return nil, nil, err
		}
		return bs, func() { _ = bs.Close() }, nil
	default:
		return session.NewMemoryStore(cfg.SessionTTL), func() {}, nil
	}
}

func (c *cli) listen(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		c.logger.InfoContext(ctx, "console listening", "addr", srv.Addr, "origin", c.cfg.PublicOrigin)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	c.logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
