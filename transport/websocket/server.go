package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/renju-backend/internal/entity"
	"github.com/rocketscienceinc/renju-backend/internal/session"
	"github.com/rocketscienceinc/renju-backend/internal/usecase"
)

const (
	readLimit       = 4096
	shutdownTimeout = 5 * time.Second
)

type gameUseCase interface {
	GetOrCreatePlayer(ctx context.Context, id string) (*entity.Player, error)
	CreateRoom(ctx context.Context, playerID string) (*entity.Player, session.Snapshot, error)
	JoinRoom(ctx context.Context, roomID, playerID string) (*entity.Player, session.Snapshot, error)
	SubmitMove(ctx context.Context, playerID string, x, y int) (entity.Move, entity.Outcome, error)
	Snapshot(ctx context.Context, roomID string) (session.Snapshot, error)
	Watch(ctx context.Context, roomID string, notify func(usecase.MoveNotice)) (func(), error)
}

type Server struct {
	logger      *slog.Logger
	gameUseCase gameUseCase
	upgrader    websocket.Upgrader

	handlers map[string]func(ctx context.Context, message *Message, c *client) error

	connectionsMutex sync.RWMutex
	connections      map[string]*client
}

func New(logger *slog.Logger, gameUseCase gameUseCase) *Server {
	server := &Server{
		logger:      logger.With("component", "websocket"),
		gameUseCase: gameUseCase,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},

		handlers:    make(map[string]func(context.Context, *Message, *client) error),
		connections: make(map[string]*client),
	}

	server.handlers[actionConnect] = server.handleConnect
	server.handlers[actionRoomNew] = server.handleNewRoom
	server.handlers[actionRoomJoin] = server.handleJoinRoom
	server.handlers[actionGameTurn] = server.handleGameTurn

	return server
}

// Handler - returns the HTTP handler serving /ws. Connections live until ctx is done.
func (that *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.upgradeToWebSocket(ctx, w, r)
	})

	return mux
}

// Start - starts WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// upgradeToWebSocket - upgrades the connection to WebSocket.
func (that *Server) upgradeToWebSocket(ctx context.Context, writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	defer conn.Close()

	conn.SetReadLimit(readLimit)

	log.Info("WebSocket connection established")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &client{conn: conn}
	defer that.handleDisconnect(c)

	// hijacked connections are not closed by Shutdown
	stop := context.AfterFunc(connCtx, func() {
		_ = conn.Close()
	})
	defer stop()

	if err = that.handleMessages(connCtx, c); err != nil {
		log.Debug("connection closed", "error", err)
	}
}

// handleMessages - processes messages from the client.
func (that *Server) handleMessages(ctx context.Context, c *client) error {
	log := that.logger.With("method", "handleMessages")

	for {
		var message Message
		if err := c.conn.ReadJSON(&message); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				log.Error("failed to unmarshal message", "error", err)
				continue
			}

			return fmt.Errorf("failed to read message: %w", err)
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)

			if err := that.sendErrorResponse(c, message.Action, "unknown action"); err != nil {
				return err
			}

			continue
		}

		if err := handler(ctx, &message, c); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

func (that *Server) connection(playerID string) (*client, bool) {
	that.connectionsMutex.RLock()
	defer that.connectionsMutex.RUnlock()

	c, ok := that.connections[playerID]

	return c, ok
}
