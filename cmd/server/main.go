package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/tabletop-backend/internal/catalog"
	"github.com/DoyleJ11/tabletop-backend/internal/config"
	"github.com/DoyleJ11/tabletop-backend/internal/dice"
	"github.com/DoyleJ11/tabletop-backend/internal/dispatch"
	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/httpapi"
	"github.com/DoyleJ11/tabletop-backend/internal/logging"
	"github.com/DoyleJ11/tabletop-backend/internal/narrator"
	"github.com/DoyleJ11/tabletop-backend/internal/registry"
	"github.com/DoyleJ11/tabletop-backend/internal/telemetry"
	"github.com/DoyleJ11/tabletop-backend/internal/ws"
)

const serviceName = "tabletop-backend"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) (err error) {
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}

	roller, err := dice.New()
	if err != nil {
		return err
	}

	// Rooms outlive ctx so that in-flight sessions can leave cleanly while
	// the HTTP server drains.
	reg := registry.New(context.Background(), roller, logger,
		registry.WithGrid(engine.Grid{Width: cfg.GridWidth, Height: cfg.GridHeight}))

	var store catalog.Store
	var db *catalog.DB
	if cfg.DatabaseURL != "" {
		db, err = catalog.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Error("catalog disabled", zap.Error(err))
		} else {
			store = db
		}
	}

	var completer narrator.Completer
	if cfg.NarratorAPIKey != "" {
		completer = narrator.NewOpenAI(cfg.NarratorAPIKey, cfg.NarratorModel, cfg.NarratorBaseURL)
	}
	narr := narrator.New(completer, cfg.NarratorTimeout, logger.Named("narrator"))

	handler := httpapi.SetupRoutes(httpapi.Deps{
		Rooms: reg,
		Socket: ws.Handler(ws.Options{
			Rooms:          reg,
			Dispatcher:     dispatch.New(reg),
			Logger:         logger.Named("ws"),
			OriginPatterns: cfg.AllowedOrigins,
		}),
		Narrator:       narr,
		Catalog:        store,
		Logger:         logger.Named("http"),
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.Bool("narrator", narr.Enabled()),
			zap.Bool("catalog", store != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		errs := srv.Shutdown(sctx)
		errs = multierr.Append(errs, reg.Shutdown(sctx))
		errs = multierr.Append(errs, shutdownTracing(sctx))
		if db != nil {
			errs = multierr.Append(errs, db.Close())
		}
		return errs
	})
	return g.Wait()
}
