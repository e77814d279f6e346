package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/sync/errgroup"

	"github.com/alimasry/go-badge-editor/autosave"
	"github.com/alimasry/go-badge-editor/config"
	"github.com/alimasry/go-badge-editor/editor"
	"github.com/alimasry/go-badge-editor/server"
	"github.com/alimasry/go-badge-editor/store"
	"github.com/alimasry/go-badge-editor/telemetry"
	"github.com/alimasry/go-badge-editor/template"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	cfgPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Listen = *addr
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitJaeger(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	slots, closeSlots, err := openSlots(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSlots()

	doc := editor.New(
		editor.WithLogger(logger),
		editor.WithHistoryLimit(cfg.History.Limit),
		editor.WithCanvasSize(cfg.Canvas.Width, cfg.Canvas.Height),
	)

	codec, err := template.NewCodec(cfg.Format())
	if err != nil {
		return err
	}
	recovered, err := autosave.Recover(ctx, slots, cfg.Autosave.Key, codec, doc)
	if err != nil {
		// A corrupt slot must not keep the editor from starting.
		logger.Warn("autosave recovery failed", "key", cfg.Autosave.Key, "error", err)
	} else if recovered {
		logger.Info("restored autosaved document", "key", cfg.Autosave.Key)
	}

	saver, err := autosave.New(doc, slots,
		autosave.WithKey(cfg.Autosave.Key),
		autosave.WithDebounce(cfg.Autosave.Debounce),
		autosave.WithInterval(cfg.Autosave.Interval),
		autosave.WithCodec(codec),
		autosave.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	saver.Start()
	defer func() {
		saver.Stop()
		fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := saver.Flush(fctx); err != nil {
			logger.Warn("final autosave failed", "error", err)
		}
	}()

	apiCodec, err := template.NewCodec(template.FormatJSON)
	if err != nil {
		return err
	}
	session := server.NewSession(doc, logger)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.NewHandler(session, apiCodec, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return session.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting server", "addr", cfg.Listen, "storage", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// openSlots builds the configured slot backend and its cleanup function.
func openSlots(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.SlotStore, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		s, err := store.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("close sqlite", "error", err)
			}
		}, nil
	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.Storage.FirestoreProject)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}
		backing := store.NewFirestoreStore(client, cfg.Storage.FirestoreCollection)
		cached := store.NewCachedStore(backing, cfg.Storage.FlushInterval, logger)
		return cached, func() {
			cached.Close()
			client.Close()
		}, nil
	default:
		return store.NewMemoryStore(), func() {}, nil
	}
}
