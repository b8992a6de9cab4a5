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

	"github.com/DoyleJ11/oldmex-backend/internal/config"
	"github.com/DoyleJ11/oldmex-backend/internal/httpapi"
	"github.com/DoyleJ11/oldmex-backend/internal/hub"
	"github.com/DoyleJ11/oldmex-backend/internal/logging"
	"github.com/DoyleJ11/oldmex-backend/internal/room"
	"github.com/DoyleJ11/oldmex-backend/internal/store"
	"github.com/DoyleJ11/oldmex-backend/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := room.Options{
		MinRollDelay: cfg.RollDelayMin,
		MaxRollDelay: cfg.RollDelayMax,
		Logger:       log,
	}
	deps := httpapi.Deps{
		WS: ws.Config{
			AllowedOrigins:    cfg.AllowedOrigins,
			PingInterval:      cfg.PingInterval,
			MaxNameLength:     cfg.MaxNameLength,
			MessagesPerSecond: cfg.MessagesPerSecond,
			MessageBurst:      cfg.MessageBurst,
		},
		Logger: log,
	}

	if cfg.DatabaseURL != "" {
		st, openErr := store.Open(cfg.DatabaseURL)
		if openErr != nil {
			return openErr
		}
		defer func() { err = multierr.Append(err, st.Close()) }()

		opts.Recorder = st
		deps.History = st
		log.Info("round history enabled")
	} else {
		log.Info("DATABASE_URL not set, round history disabled")
	}

	h := hub.NewHub(ctx, opts)
	deps.Hub = h

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpapi.SetupRoutes(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Rooms stop first so connected players see their sockets close.
		h.Shutdown()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
