package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"pkgradar/search"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := run(log, os.Args[1:]); err != nil {
		log.Error("exit", "err", err)
		os.Exit(1)
	}
}

// parseFlags loads the config file named by --config and lets explicit
// flags override it.
func parseFlags(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("pkgradar-server", pflag.ContinueOnError)
	path := fs.StringP("config", "c", getenv("PKGRADAR_CONFIG", ""), "YAML config file")
	addr := fs.String("addr", "", "listen address")
	dsn := fs.String("database-url", "", "Postgres connection string")
	index := fs.String("search-index", "", "search index name(s), comma separated")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(*path)
	if err != nil {
		return nil, err
	}
	if fs.Changed("addr") {
		cfg.Addr = *addr
	}
	if fs.Changed("database-url") {
		cfg.DatabaseURL = *dsn
	}
	if fs.Changed("search-index") {
		cfg.Search.Index = *index
	}
	return cfg, nil
}

func run(log *slog.Logger, args []string) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}

	store := NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	a := newAPI(cfg, store, log)

	if sc, err := search.NewClient(cfg.Search); err == nil {
		a.search = sc
		log.Info("search enabled", "endpoint", cfg.Search.Endpoint, "index", cfg.Search.Index)
	} else if !errors.Is(err, search.ErrNotConfigured) {
		return fmt.Errorf("search: %w", err)
	} else {
		log.Warn("search disabled", "reason", err)
	}

	if cfg.S3.enabled() {
		client, err := NewS3Client(ctx, cfg.S3)
		if err != nil {
			return fmt.Errorf("s3: %w", err)
		}
		snaps := newS3Snapshots(client, cfg.S3)
		if err := snaps.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("s3: %w", err)
		}
		a.snaps = snaps
		log.Info("snapshots enabled", "bucket", cfg.S3.Bucket)
	}

	if !cfg.githubEnabled() {
		log.Warn("github oauth disabled", "reason", "OAUTH_GITHUB_CLIENT_SECRET not set")
	}

	mux := http.NewServeMux()
	a.routes(mux)

	srv := &http.Server{Addr: cfg.Addr, Handler: withLogging(log, mux),
		ReadTimeout: 15 * time.Second, ReadHeaderTimeout: 10 * time.Second,
		// no WriteTimeout: /api/me/events streams
		IdleTimeout: 120 * time.Second,
		// streams end when the signal context does
		BaseContext: func(net.Listener) context.Context { return ctx }}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		ctxSh, cancelSh := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelSh()
		return srv.Shutdown(ctxSh)
	})
	return g.Wait()
}
