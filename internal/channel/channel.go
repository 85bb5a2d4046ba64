// Package channel carries room records and committed moves between the
// arbiter and every participant of a room. A Channel is an ordered,
// append-only log per room: PublishMove appends only at the next free
// sequence number and subscribers see moves in commit order.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/renju-backend/internal/apperror"
	"github.com/rocketscienceinc/renju-backend/internal/entity"
)

// Handler receives committed moves. Calls for one subscription never overlap.
type Handler func(move entity.Move)

type Channel interface {
	// CreateSession stores a new room with the creator seated as Black.
	CreateSession(ctx context.Context, roomID, playerID string) (entity.Cell, error)
	// JoinSession claims the White seat, or returns the seat the player already holds.
	JoinSession(ctx context.Context, roomID, playerID string) (entity.Cell, error)
	// PublishMove appends move at move.Seq. Re-publishing an identical move is acknowledged.
	PublishMove(ctx context.Context, roomID string, move entity.Move) error
	// Subscribe delivers every move committed after the call until cancel is
	// called or ctx is done.
	Subscribe(ctx context.Context, roomID string, handler Handler) (func(), error)
	// LoadSession returns the room record and its full committed log.
	LoadSession(ctx context.Context, roomID string) (*entity.Room, []entity.Move, error)
	Close() error
}

// unavailable marks transport failures so callers can tell them from domain rejections.
func unavailable(err error) error {
	if err == nil {
		return nil
	}

	for _, domainErr := range []error{
		apperror.ErrRoomNotFound,
		apperror.ErrRoomAlreadyExists,
		apperror.ErrRoomFull,
		apperror.ErrSequenceConflict,
		apperror.ErrChannelUnavailable,
	} {
		if errors.Is(err, domainErr) {
			return err
		}
	}

	return fmt.Errorf("%w: %w", apperror.ErrChannelUnavailable, err)
}
