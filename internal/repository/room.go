package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/renju-backend/internal/apperror"
	"github.com/rocketscienceinc/renju-backend/internal/entity"
)

const maxJoinAttempts = 5

// appendMoveScript appends ARGV[2] to the move list only when it lands at seq ARGV[1],
// then publishes it on the room feed in the same atomic step.
// Returns 1 appended, 0 same placement already there (timestamp ignored), -1 seq taken, -2 room missing.
var appendMoveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -2
end
local seq = tonumber(ARGV[1])
local length = redis.call('LLEN', KEYS[2])
if length == seq - 1 then
	redis.call('RPUSH', KEYS[2], ARGV[2])
	redis.call('PUBLISH', KEYS[3], ARGV[2])
	return 1
end
if seq >= 1 and length >= seq then
	local stored = cjson.decode(redis.call('LINDEX', KEYS[2], seq - 1))
	local candidate = cjson.decode(ARGV[2])
	if stored.x == candidate.x and stored.y == candidate.y and stored.color == candidate.color and stored.seq == candidate.seq then
		return 0
	end
end
return -1
`)

type RoomRepository interface {
	Create(ctx context.Context, room *entity.Room) error
	GetByID(ctx context.Context, id string) (*entity.Room, error)
	Join(ctx context.Context, id, playerID string) (entity.Cell, error)
	AppendMove(ctx context.Context, id string, move entity.Move) error
	ListMoves(ctx context.Context, id string) ([]entity.Move, error)
}

type dbRoom struct {
	client *redis.Client
}

func NewRoomRepository(client *redis.Client) RoomRepository {
	return &dbRoom{
		client: client,
	}
}

func RoomKey(id string) string {
	return "room:" + id
}

func MovesKey(id string) string {
	return "room:" + id + ":moves"
}

// FeedChannel is the Pub/Sub channel every committed move of the room is published on.
func FeedChannel(id string) string {
	return "room:" + id + ":feed"
}

func (that *dbRoom) Create(ctx context.Context, room *entity.Room) error {
	roomJSON, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("could not marshal room: %w", err)
	}

	created, err := that.client.SetNX(ctx, RoomKey(room.ID), roomJSON, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to set room: %w", err)
	}

	if !created {
		return fmt.Errorf("%w: %s", apperror.ErrRoomAlreadyExists, room.ID)
	}

	return nil
}

func (that *dbRoom) GetByID(ctx context.Context, id string) (*entity.Room, error) {
	response, err := that.client.Get(ctx, RoomKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get room by id: %w", err)
	}

	var room entity.Room
	if err = json.Unmarshal([]byte(response), &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}

	return &room, nil
}

// Join claims a seat with optimistic locking on the room key.
func (that *dbRoom) Join(ctx context.Context, id, playerID string) (entity.Cell, error) {
	key := RoomKey(id)

	var color entity.Cell
	txf := func(tx *redis.Tx) error {
		response, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, id)
		}

		if err != nil {
			return fmt.Errorf("failed to get room: %w", err)
		}

		var room entity.Room
		if err = json.Unmarshal([]byte(response), &room); err != nil {
			return fmt.Errorf("failed to unmarshal room: %w", err)
		}

		if color, err = room.Join(playerID); err != nil {
			return err
		}

		roomJSON, err := json.Marshal(&room)
		if err != nil {
			return fmt.Errorf("could not marshal room: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, roomJSON, 0)
			return nil
		})

		return err
	}

	for range maxJoinAttempts {
		err := that.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		if err != nil {
			return entity.Empty, err
		}

		return color, nil
	}

	return entity.Empty, fmt.Errorf("failed to join room %s: too much contention", id)
}

func (that *dbRoom) AppendMove(ctx context.Context, id string, move entity.Move) error {
	moveJSON, err := json.Marshal(move)
	if err != nil {
		return fmt.Errorf("could not marshal move: %w", err)
	}

	keys := []string{RoomKey(id), MovesKey(id), FeedChannel(id)}

	result, err := appendMoveScript.Run(ctx, that.client, keys, strconv.FormatUint(move.Seq, 10), moveJSON).Int()
	if err != nil {
		return fmt.Errorf("failed to append move: %w", err)
	}

	switch result {
	case 1, 0:
		return nil
	case -2:
		return fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, id)
	default:
		return fmt.Errorf("%w: room %s seq %d", apperror.ErrSequenceConflict, id, move.Seq)
	}
}

// ListMoves returns the room's committed log in seq order.
func (that *dbRoom) ListMoves(ctx context.Context, id string) ([]entity.Move, error) {
	response, err := that.client.LRange(ctx, MovesKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list moves: %w", err)
	}

	moves := make([]entity.Move, 0, len(response))
	for _, raw := range response {
		var move entity.Move
		if err = json.Unmarshal([]byte(raw), &move); err != nil {
			return nil, fmt.Errorf("failed to unmarshal move: %w", err)
		}

		moves = append(moves, move)
	}

	return moves, nil
}
