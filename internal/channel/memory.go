package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rocketscienceinc/renju-backend/internal/apperror"
	"github.com/rocketscienceinc/renju-backend/internal/entity"
)

type memoryRoom struct {
	room   entity.Room
	moves  []entity.Move
	feeds  map[uint64]*feed
	nextID uint64
}

// Memory is a single-process Channel with the same append semantics as Redis.
type Memory struct {
	mu     sync.Mutex
	rooms  map[string]*memoryRoom
	closed bool
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[string]*memoryRoom),
		now:   time.Now,
	}
}

func (that *Memory) CreateSession(_ context.Context, roomID, playerID string) (entity.Cell, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return entity.Empty, apperror.ErrChannelUnavailable
	}

	if _, ok := that.rooms[roomID]; ok {
		return entity.Empty, fmt.Errorf("%w: %s", apperror.ErrRoomAlreadyExists, roomID)
	}

	that.rooms[roomID] = &memoryRoom{
		room:  *entity.NewRoom(roomID, playerID, that.now().UTC()),
		feeds: make(map[uint64]*feed),
	}

	return entity.Black, nil
}

func (that *Memory) JoinSession(_ context.Context, roomID, playerID string) (entity.Cell, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, err := that.lookup(roomID)
	if err != nil {
		return entity.Empty, err
	}

	return room.room.Join(playerID)
}

func (that *Memory) PublishMove(_ context.Context, roomID string, move entity.Move) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, err := that.lookup(roomID)
	if err != nil {
		return err
	}

	length := uint64(len(room.moves))
	switch {
	case move.Seq == length+1:
		room.moves = append(room.moves, move)
		for _, f := range room.feeds {
			f.push(move)
		}

		return nil
	case move.Seq >= 1 && move.Seq <= length && room.moves[move.Seq-1].SamePlacement(move):
		return nil
	default:
		return fmt.Errorf("%w: room %s seq %d", apperror.ErrSequenceConflict, roomID, move.Seq)
	}
}

func (that *Memory) Subscribe(ctx context.Context, roomID string, handler Handler) (func(), error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, err := that.lookup(roomID)
	if err != nil {
		return nil, err
	}

	id := room.nextID
	room.nextID++

	f := newFeed(handler)
	room.feeds[id] = f

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			that.mu.Lock()
			delete(room.feeds, id)
			that.mu.Unlock()

			f.stop()
		})
	}

	context.AfterFunc(ctx, cancel)

	return cancel, nil
}

func (that *Memory) LoadSession(_ context.Context, roomID string) (*entity.Room, []entity.Move, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, err := that.lookup(roomID)
	if err != nil {
		return nil, nil, err
	}

	record := room.room
	moves := make([]entity.Move, len(room.moves))
	copy(moves, room.moves)

	return &record, moves, nil
}

func (that *Memory) Close() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.closed = true
	for _, room := range that.rooms {
		for id, f := range room.feeds {
			f.stop()
			delete(room.feeds, id)
		}
	}

	return nil
}

func (that *Memory) lookup(roomID string) (*memoryRoom, error) {
	if that.closed {
		return nil, apperror.ErrChannelUnavailable
	}

	room, ok := that.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, roomID)
	}

	return room, nil
}
