package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	persistlog "warfront.gg/internal/persistence/log"
	"warfront.gg/internal/persistence/snapshot"
	"warfront.gg/internal/persistence/store"
	"warfront.gg/internal/sim/clans"
	"warfront.gg/internal/sim/tuning"
	"warfront.gg/internal/sim/world"
	"warfront.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = pflag.String("addr", ":8080", "http listen address")
		worldID    = pflag.String("world", "overworld", "world id")
		configDir  = pflag.String("configs", "./configs", "config directory")
		dataDir    = pflag.String("data", "./data", "runtime data directory")
		tuningPath = pflag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		clansPath  = pflag.String("clans", "", "path to clans.yaml (default: <configs>/clans.yaml)")
		dbPath     = pflag.String("db", "", "sqlite path, or :memory: for a throwaway store (default: <data>/warfront.sqlite)")
		restore    = pflag.String("restore", "", "territory snapshot to import into an empty database before start")
		snapEvery  = pflag.Duration("snapshot-every", 10*time.Minute, "territory snapshot interval (0 disables)")
		jwtSecret  = pflag.String("jwt-secret", "", "HS256 secret for HELLO tokens (or WARFRONT_JWT_SECRET); empty trusts names")
		workers    = pflag.Int("db-workers", 2, "persistence worker goroutines")
		logLevel   = pflag.String("log-level", "info", "debug|info|warn|error")
		logFormat  = pflag.String("log-format", "console", "console|json")
	)
	pflag.Parse()

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatal("load tuning", zap.String("path", tp), zap.Error(err))
		}
		logger.Warn("tuning not found, using defaults", zap.String("path", tp))
		tune = tuning.Defaults()
	}

	cp := strings.TrimSpace(*clansPath)
	if cp == "" {
		cp = filepath.Join(*configDir, "clans.yaml")
	}
	registry, err := clans.LoadSeed(cp)
	if err != nil {
		logger.Fatal("load clans", zap.String("path", cp), zap.Error(err))
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatal("data dir", zap.Error(err))
	}
	auditLog := persistlog.NewAuditLogger(*dataDir, time.Now)
	defer auditLog.Close()

	w := world.New(world.ConfigFrom(*worldID, tune), world.Deps{
		Tuning: tune,
		Clans:  registry,
		Log:    logger,
		Audit:  auditLog,
	})

	ctx, cancel := signalContext()
	defer cancel()

	gw, sqliteStore, err := openStore(ctx, *dbPath, *dataDir, *restore, w, *workers, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer gw.Close()

	if err := w.Bootstrap(ctx, gw); err != nil {
		logger.Fatal("bootstrap world", zap.Error(err))
	}

	if *snapEvery > 0 {
		go snapshotLoop(ctx, gw, *worldID, filepath.Join(*dataDir, "snapshots"), *snapEvery, logger)
	}

	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("world stopped", zap.Error(err))
		}
	}()

	secret := strings.TrimSpace(*jwtSecret)
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("WARFRONT_JWT_SECRET"))
	}
	if secret == "" {
		logger.Warn("no jwt secret configured, HELLO names are trusted")
	}

	mux := http.NewServeMux()
	registerAdmin(mux, w, sqliteStore, logger)
	mux.HandleFunc("/v1/ws", ws.NewServer(w, registry, ws.Options{
		JWTSecret:         []byte(secret),
		CommandsPerSecond: tune.RateLimits.CommandsPerSecond,
		Burst:             tune.RateLimits.Burst,
	}, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
		w.Stop()
	}()

	logger.Info("listening", zap.String("addr", *addr), zap.String("world", *worldID))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("ListenAndServe", zap.Error(err))
	}
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	if format == "json" {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// openStore returns the gateway the world persists through, plus the SQLite handle
// when one backs it.
func openStore(ctx context.Context, path, dataDir, restorePath string, w *world.World, workers int, logger *zap.Logger) (store.Gateway, *store.SQLite, error) {
	if path == ":memory:" {
		if restorePath != "" {
			return nil, nil, fmt.Errorf("--restore needs a sqlite database")
		}
		logger.Warn("using in-memory store, state is lost on exit")
		return store.NewMemory(w), nil, nil
	}
	if path == "" {
		path = filepath.Join(dataDir, "warfront.sqlite")
	}
	s, err := store.OpenSQLite(path, w, store.Options{Workers: workers}, logger)
	if err != nil {
		return nil, nil, err
	}
	if restorePath != "" {
		snap, err := snapshot.ReadSnapshot(restorePath)
		if err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("read snapshot: %w", err)
		}
		if err := s.Import(ctx, snap.State()); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("import snapshot: %w", err)
		}
		logger.Info("restored snapshot", zap.String("path", restorePath), zap.Int("territories", snap.Header.Territories))
	}
	return s, s, nil
}

func snapshotLoop(ctx context.Context, gw store.Gateway, worldID, dir string, every time.Duration, logger *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			st, err := gw.Load(ctx)
			if err != nil {
				logger.Error("snapshot load", zap.Error(err))
				continue
			}
			path := filepath.Join(dir, fmt.Sprintf("%d.snap.zst", now.Unix()))
			if err := snapshot.WriteSnapshot(path, snapshot.FromState(worldID, st, now)); err != nil {
				logger.Error("snapshot write", zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Debug("snapshot written", zap.String("path", path))
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
