package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rocketscienceinc/renju-backend/internal/channel"
	"github.com/rocketscienceinc/renju-backend/internal/config"
	"github.com/rocketscienceinc/renju-backend/internal/repository"
	"github.com/rocketscienceinc/renju-backend/internal/repository/storage"
	"github.com/rocketscienceinc/renju-backend/internal/telemetry"
	"github.com/rocketscienceinc/renju-backend/internal/usecase"
	"github.com/rocketscienceinc/renju-backend/transport/rest"
	"github.com/rocketscienceinc/renju-backend/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	shutdownTracing, err := telemetry.Setup(ctx, conf.Tracing.ServiceName, conf.Tracing.Endpoint)
	if err != nil {
		return fmt.Errorf("could not set up tracing: %w", err)
	}

	defer func() {
		if err = shutdownTracing(context.Background()); err != nil {
			log.Error("could not flush traces", "error", err)
		}
	}()

	ch, playerRepo, closeStorage, err := initStorage(ctx, log, conf)
	if err != nil {
		return err
	}

	defer closeStorage()

	gameUseCase := usecase.NewGameManager(logger, playerRepo, ch)

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(ctx, logger, conf.HTTPPort, gameUseCase); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, gameUseCase)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

// initStorage picks the channel and player store for the configured backend.
func initStorage(ctx context.Context, log *slog.Logger, conf *config.Config) (channel.Channel, repository.PlayerRepository, func(), error) {
	if conf.Storage == config.StorageMemory {
		log.Info("Using in-memory storage")

		ch := channel.NewMemory()

		return ch, repository.NewMemoryPlayerRepository(), func() { _ = ch.Close() }, nil
	}

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return nil, nil, nil, ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedisStorage(ctx, storage.RedisOptions{
		Addr:     redisAddrString,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
	}

	ch := channel.NewRedis(redisStorage.Connection, log)

	closeStorage := func() {
		if err = ch.Close(); err != nil {
			log.Error("could not close channel", "error", err)
		}

		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}

	return ch, repository.NewPlayerRepository(redisStorage.Connection), closeStorage, nil
}
