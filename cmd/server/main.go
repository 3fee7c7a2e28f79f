package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"lightcycle.ai/internal/config"
	"lightcycle.ai/internal/logging"
	persistlog "lightcycle.ai/internal/persistence/log"
	"lightcycle.ai/internal/persistence/prefs"
	"lightcycle.ai/internal/sim/tuning"
	"lightcycle.ai/internal/sim/world"
	"lightcycle.ai/internal/transport/ws"
)

func main() {
	configPath := flag.String("config", "", "server config file (yaml/json/toml); empty uses defaults and LIGHTCYCLE_* env")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout).With().Str("component", "server").Logger()

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	tuneLog := logger.With().Str("component", "tuning").Logger()
	tune := tuning.Load(cfg.TuningPath, tuneLog)

	store, err := prefs.Open(cfg.Prefs.Backend, cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("open prefs: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("close prefs")
		}
	}()

	opts := world.Options{
		Logger: logger,
		Prefs:  store,
		Reload: func() tuning.Tuning { return tuning.Load(cfg.TuningPath, tuneLog) },
	}
	var journal *persistlog.Journal
	if cfg.Journal.Enabled {
		journal = persistlog.NewJournal(cfg.DataDir, logger)
		opts.Journal = journal
		defer func() {
			if err := journal.Close(); err != nil {
				logger.Error().Err(err).Msg("close journal")
			}
		}()
	}

	wcfg := world.ConfigFromTuning(tune, cfg.Seed)
	wcfg.OperatorToken = cfg.OperatorToken
	w, err := world.New(wcfg, tune, opts)
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("world loop exited")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = rw.Write([]byte("ok\n"))
	})
	if cfg.Metrics.Enabled {
		mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
			writeMetrics(rw, w.Stats(), journal, store)
		})
	}
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(struct {
			Mode  string      `json:"render_mode"`
			Stats world.Stats `json:"stats"`
		}{
			Mode:  string(tune.Trail.RenderMode),
			Stats: w.Stats(),
		})
	})
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info().Str("addr", cfg.Addr).Str("render_mode", string(tune.Trail.RenderMode)).Msg("listening")
	err = srv.ListenAndServe()
	cancel()
	// Trails are restored by the world loop on the way out; persistence closes after.
	<-worldDone
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
