package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/renju-backend/internal/entity"
	"github.com/rocketscienceinc/renju-backend/internal/repository"
)

// Redis keeps each room's log in a Redis list and fans moves out over Pub/Sub.
// Appends and publishes happen in one script, so every node sees one order.
type Redis struct {
	logger *slog.Logger
	client *redis.Client
	rooms  repository.RoomRepository

	mu   sync.Mutex
	subs map[*redis.PubSub]func()
}

func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{
		logger: logger.With("component", "channel.redis"),
		client: client,
		rooms:  repository.NewRoomRepository(client),
		subs:   make(map[*redis.PubSub]func()),
	}
}

func (that *Redis) CreateSession(ctx context.Context, roomID, playerID string) (entity.Cell, error) {
	room := entity.NewRoom(roomID, playerID, time.Now().UTC())
	if err := that.rooms.Create(ctx, room); err != nil {
		return entity.Empty, unavailable(fmt.Errorf("failed to create session: %w", err))
	}

	return entity.Black, nil
}

func (that *Redis) JoinSession(ctx context.Context, roomID, playerID string) (entity.Cell, error) {
	color, err := that.rooms.Join(ctx, roomID, playerID)
	if err != nil {
		return entity.Empty, unavailable(fmt.Errorf("failed to join session: %w", err))
	}

	return color, nil
}

func (that *Redis) PublishMove(ctx context.Context, roomID string, move entity.Move) error {
	if err := that.rooms.AppendMove(ctx, roomID, move); err != nil {
		return unavailable(fmt.Errorf("failed to publish move: %w", err))
	}

	return nil
}

func (that *Redis) Subscribe(ctx context.Context, roomID string, handler Handler) (func(), error) {
	log := that.logger.With("method", "Subscribe", "roomID", roomID)

	if _, err := that.rooms.GetByID(ctx, roomID); err != nil {
		return nil, unavailable(err)
	}

	pubsub := that.client.Subscribe(ctx, repository.FeedChannel(roomID))

	// wait for the subscription to be confirmed so no later publish is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, unavailable(fmt.Errorf("failed to subscribe: %w", err))
	}

	f := newFeed(handler)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			that.mu.Lock()
			delete(that.subs, pubsub)
			that.mu.Unlock()

			if err := pubsub.Close(); err != nil {
				log.Warn("failed to close subscription", "error", err)
			}

			f.stop()
		})
	}

	that.mu.Lock()
	that.subs[pubsub] = cancel
	that.mu.Unlock()

	go func() {
		for msg := range pubsub.Channel() {
			var move entity.Move
			if err := json.Unmarshal([]byte(msg.Payload), &move); err != nil {
				log.Error("failed to unmarshal move", "error", err)
				continue
			}

			f.push(move)
		}
	}()

	context.AfterFunc(ctx, cancel)

	return cancel, nil
}

func (that *Redis) LoadSession(ctx context.Context, roomID string) (*entity.Room, []entity.Move, error) {
	room, err := that.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, nil, unavailable(fmt.Errorf("failed to load session: %w", err))
	}

	moves, err := that.rooms.ListMoves(ctx, roomID)
	if err != nil {
		return nil, nil, unavailable(fmt.Errorf("failed to load session: %w", err))
	}

	return room, moves, nil
}

// Close ends every subscription. The Redis client stays open, it belongs to the caller.
func (that *Redis) Close() error {
	that.mu.Lock()
	cancels := make([]func(), 0, len(that.subs))
	for _, cancel := range that.subs {
		cancels = append(cancels, cancel)
	}
	that.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	return nil
}
