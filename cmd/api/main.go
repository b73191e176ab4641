package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/teammeng/foscion/internal/app"
	"github.com/teammeng/foscion/internal/auth"
	"github.com/teammeng/foscion/internal/config"
	httpx "github.com/teammeng/foscion/internal/http"
	"github.com/teammeng/foscion/internal/observability"
	"github.com/teammeng/foscion/internal/security"
	"github.com/teammeng/foscion/internal/store"
)

func main() {
	// Load the config set up
	cfg, err := config.Load(config.Path())
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.Telemetry, cfg.Env)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	keys, err := auth.ParseKeyPair(cfg.Auth.EK, cfg.Auth.DK)
	if err != nil {
		log.Error("auth keys invalid", "err", err)
		os.Exit(1)
	}
	log.Info("auth keys loaded", "fingerprint", keys.Fingerprint())

	openCtx, cancelOpen := config.WithTimeout(10 * time.Second)
	st, err := store.Open(openCtx, cfg.Server, prom, log)
	cancelOpen()
	if err != nil {
		log.Error("storage open failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	hasher := security.NewHasher(cfg.Auth.Hash.Params(), cfg.Auth.Hash.Workers, security.WithObserver(prom.ObserveHash))

	state := app.New(cfg, st.Users, hasher, app.WithLogger(log), app.WithMetrics(prom))

	// set up routers with the log
	router := httpx.NewRouter(log, cfg, httpx.Deps{
		Users: state,
		Ping:  st.Ping,
		Prom:  prom,
	})

	// server set up
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		log.Info("Server starting", "addr", srv.Addr, "env", cfg.Env, "driver", st.Driver)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-stop:
		log.Info("server shutting down")
	case err := <-serverErr:
		log.Error("server failed", "err", err)
		exitCode = 1
	}

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}

	if exitCode != 0 {
		st.Close()
		os.Exit(exitCode)
	}
}
