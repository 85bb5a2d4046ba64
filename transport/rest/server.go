package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const shutdownTimeout = 5 * time.Second

// NewRouter - registers the REST routes.
func NewRouter(logger *slog.Logger, rooms roomUseCase) http.Handler {
	ping := NewPingHandler()
	room := NewRoomHandler(logger.With("component", "rest"), rooms)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", ping.PingHandler)
	mux.HandleFunc("GET /rooms/{id}", room.GetRoom)
	mux.HandleFunc("GET /rooms/{id}/board", room.GetBoard)

	return mux
}

// Start - serves the REST API until ctx is done.
func Start(ctx context.Context, logger *slog.Logger, port string, rooms roomUseCase) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(logger, rooms),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down HTTP server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
