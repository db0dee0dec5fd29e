package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/concentration-game/concentration-server-go/internal/config"
	"github.com/concentration-game/concentration-server-go/internal/game"
	"github.com/concentration-game/concentration-server-go/internal/game/concentration"
	"github.com/concentration-game/concentration-server-go/internal/game/replay"
	"github.com/concentration-game/concentration-server-go/internal/metrics"
	"github.com/concentration-game/concentration-server-go/internal/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting concentration server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	gameMetrics := metrics.New()

	opts := []game.ManagerOption{
		game.WithMetrics(gameMetrics),
		game.WithModelOptions(concentration.WithSize(cfg.Game.Rows, cfg.Game.Cols)),
	}
	if cfg.Game.Seed != 0 {
		logger.Warn("fixed seed configured; every game deals the same board", zap.Int64("seed", cfg.Game.Seed))
		opts = append(opts, game.WithModelOptions(concentration.WithSeed(cfg.Game.Seed)))
	}
	if cfg.Replay.Enabled {
		if err := os.MkdirAll(cfg.Replay.Directory, 0o755); err != nil {
			logger.Fatal("failed to create replay directory", zap.Error(err))
		}
		opts = append(opts, game.WithRecorder(replay.NewRecorder(logger, cfg.Replay.Directory)))
		logger.Info("replay recording enabled", zap.String("directory", cfg.Replay.Directory))
	}

	gameMgr := game.NewManager(logger, opts...)
	logger.Info("game manager initialized",
		zap.Int("rows", cfg.Game.Rows),
		zap.Int("cols", cfg.Game.Cols),
	)

	wsServer := server.NewServer(cfg.Server.WebSocket, gameMgr, logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", gameMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.Server.MetricsAddress,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start WebSocket server
	go func() {
		if wsErr := wsServer.ListenAndServe(); wsErr != nil {
			logger.Error("WebSocket server error", zap.Error(wsErr))
		}
	}()

	// Start metrics server
	go func() {
		logger.Info("starting metrics server", zap.String("address", cfg.Server.MetricsAddress))
		if mErr := metricsServer.ListenAndServe(); mErr != nil && !errors.Is(mErr, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(mErr))
		}
	}()

	logger.Info("concentration server initialized",
		zap.String("version", version),
		zap.String("websocket_address", cfg.Server.WebSocket.Address),
		zap.String("metrics_address", cfg.Server.MetricsAddress),
		zap.Int("max_connections", cfg.Server.WebSocket.MaxConnections),
	)

	// Wait for termination signal
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	logger.Info("shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := wsServer.Shutdown(ctx); err != nil {
		logger.Warn("websocket shutdown incomplete", zap.Error(err))
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Warn("metrics shutdown incomplete", zap.Error(err))
	}

	logger.Info("concentration server stopped", zap.Int("games_remaining", gameMgr.Count()))
}

// initLogger builds the zap logger from the logging section. Unknown levels
// fall back to info.
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
