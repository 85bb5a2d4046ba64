package entity

import (
	"fmt"
	"time"

	"github.com/rocketscienceinc/renju-backend/internal/apperror"
)

// Move is a committed (or candidate) stone placement. Seq starts at 1 per room.
type Move struct {
	X        int       `json:"x"`
	Y        int       `json:"y"`
	Color    Cell      `json:"color"`
	Seq      uint64    `json:"seq"`
	PlayedAt time.Time `json:"played_at"`
}

func (that Move) Validate(size int) error {
	if that.X < 0 || that.Y < 0 || that.X >= size || that.Y >= size {
		return fmt.Errorf("%w: (%d,%d)", apperror.ErrInvalidCell, that.X, that.Y)
	}

	if !that.Color.IsStone() {
		return fmt.Errorf("%w: %d", apperror.ErrInvalidColor, that.Color)
	}

	if that.Seq == 0 {
		return fmt.Errorf("%w: sequence must start at 1", apperror.ErrSequenceGap)
	}

	return nil
}

// SamePlacement compares everything but the timestamp.
func (that Move) SamePlacement(other Move) bool {
	return that.X == other.X && that.Y == other.Y && that.Color == other.Color && that.Seq == other.Seq
}
