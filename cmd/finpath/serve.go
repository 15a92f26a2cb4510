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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/finpath/api"
	"github.com/warp/finpath/auth"
	"github.com/warp/finpath/config"
	"github.com/warp/finpath/factory"
	"github.com/warp/finpath/game"
	"github.com/warp/finpath/logging"
	"github.com/warp/finpath/store/postgres"
	"github.com/warp/finpath/store/sqlite"
)

const shutdownTimeout = 30 * time.Second

// backend is a store the server can run on.
type backend interface {
	game.Store
	Ping(ctx context.Context) error
}

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "finpath.yaml", "YAML config file (missing is fine)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, closeDB, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()
	logger.Info("store ready", zap.String("driver", cfg.Database.Driver))

	presets := factory.DefaultPresets()
	if cfg.Game.PresetsFile != "" {
		if presets, err = factory.LoadPresets(cfg.Game.PresetsFile); err != nil {
			return err
		}
		logger.Info("presets loaded", zap.String("file", cfg.Game.PresetsFile))
	}

	games := game.NewService(db, presets, logger.Named("game"), game.Config{
		Holding: cfg.Game.HoldingMode,
		Seed:    cfg.Game.Seed,
	})
	authSvc := auth.NewService(db, logger.Named("auth"), auth.Config{
		SessionTTL: cfg.Auth.SessionTTL,
		BcryptCost: cfg.Auth.BcryptCost,
	})

	handler := api.NewHandler(games, authSvc, logger.Named("http"))
	handler.Ping = db.Ping
	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	sched, err := api.NewPruneScheduler(games, cfg.Retention.PruneSchedule, cfg.Retention.History, logger.Named("scheduler"))
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		sched.Stop()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// openStore connects the configured database and returns it with its
// closer.
func openStore(ctx context.Context, cfg *config.Config) (backend, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		s := postgres.New(pool)
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				fmt.Fprintln(os.Stderr, "close database:", err)
			}
		}, nil
	}
}
