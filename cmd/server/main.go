package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"chessroom/internal/ai"
	"chessroom/internal/api"
	"chessroom/internal/broadcast"
	"chessroom/internal/config"
	"chessroom/internal/engine"
	"chessroom/internal/game"
	"chessroom/internal/logging"
	"chessroom/internal/session"
	"chessroom/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Style)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	adapter, closeEngine, err := newEngine(sigCtx, cfg.Engine, logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	// Initialize layers
	gameService := game.NewService(game.WithLogger(logger.Named("game")))
	hub := broadcast.NewHub(logger.Named("hub"))
	bridges := ai.NewPool(adapter, ai.Config{
		Name:            cfg.AI.Name,
		DelayScale:      cfg.AI.DelayScale,
		MaxThinkingTime: cfg.Engine.MaxThinkingTime,
		Logger:          logger.Named("ai"),
	}, cfg.AI.SharedBridge)
	sessions := session.NewServer(gameService, hub, bridges, session.Config{
		AIStartDelay:  cfg.AI.StartDelay,
		AIMoveTimeout: cfg.AI.MoveTimeout,
		Logger:        logger.Named("session"),
	})
	defer sessions.Close()

	janitor := game.NewJanitor(gameService, cfg.Games.CleanupInterval, cfg.Games.MaxAge, sessions.Evict, logger.Named("janitor"))
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go janitor.Run(janitorCtx)

	// Setup routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(api.CORSMiddleware)

	api.NewHandler(gameService, sessions, logger.Named("api")).RegisterRoutes(r)
	ws.NewHandler(sessions, logger.Named("ws")).RegisterRoutes(r)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()

	logger.Info("server listening",
		zap.String("addr", server.Addr),
		zap.String("engine", cfg.Engine.Kind),
		zap.String("ai", bridges.Name()),
	)

	var runErr error
	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	case err, ok := <-serverErrCh:
		if ok {
			runErr = err
		}
	}

	stopJanitor()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil && !errors.Is(closeErr, http.ErrServerClosed) {
			logger.Warn("forced close failed", zap.Error(closeErr))
		}
	}
	return runErr
}

// newEngine builds the configured engine backend and its cleanup.
func newEngine(ctx context.Context, cfg config.EngineConfig, logger *zap.Logger) (engine.Adapter, func(), error) {
	switch cfg.Kind {
	case config.EngineUCI:
		uci, err := engine.NewUCIAdapter(ctx, engine.UCIConfig{
			Path:     cfg.UCIPath,
			MaxDepth: cfg.MaxDepth,
			Logger:   logger.Named("uci"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("starting %s: %w", cfg.UCIPath, err)
		}
		return uci, func() {
			if err := uci.Close(); err != nil {
				logger.Warn("closing engine", zap.Error(err))
			}
		}, nil
	default:
		remote := engine.NewRemoteAdapter(engine.RemoteConfig{
			URL:               cfg.URL,
			MaxDepth:          cfg.MaxDepth,
			MaxThinkingTime:   cfg.MaxThinkingTime,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Logger:            logger.Named("remote"),
		})
		return remote, func() {}, nil
	}
}
