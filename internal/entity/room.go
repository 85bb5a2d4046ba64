package entity

import (
	"fmt"
	"time"

	"github.com/rocketscienceinc/renju-backend/internal/apperror"
)

type Status string

const (
	StatusWaiting    Status = "waiting_for_opponent"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

type Reason string

const (
	ReasonOngoing   Reason = "ongoing"
	ReasonFiveInRow Reason = "five_in_row"
	ReasonOverline  Reason = "overline_rejected"
	ReasonDraw      Reason = "draw"
)

type Outcome struct {
	Winner Cell   `json:"winner"`
	Reason Reason `json:"reason"`
}

func OngoingOutcome() Outcome {
	return Outcome{Winner: Empty, Reason: ReasonOngoing}
}

func (that Outcome) IsDecided() bool {
	return that.Reason == ReasonFiveInRow || that.Reason == ReasonDraw
}

// Room is the session record: who holds which color, whose turn it is and how it ended.
// The move log lives next to it; the board is always derived from the log.
type Room struct {
	ID        string    `json:"id"`
	BlackID   string    `json:"black_id,omitempty"`
	WhiteID   string    `json:"white_id,omitempty"`
	Turn      Cell      `json:"turn"`
	Status    Status    `json:"status"`
	Outcome   Outcome   `json:"outcome"`
	BoardSize int       `json:"board_size"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRoom creates a room waiting for an opponent; the creator plays Black.
func NewRoom(id, creatorID string, createdAt time.Time) *Room {
	return &Room{
		ID:        id,
		BlackID:   creatorID,
		Turn:      Black,
		Status:    StatusWaiting,
		Outcome:   OngoingOutcome(),
		BoardSize: BoardSize,
		CreatedAt: createdAt,
	}
}

func (that *Room) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Room) IsInProgress() bool {
	return that.Status == StatusInProgress
}

func (that *Room) IsFinished() bool {
	return that.Status == StatusFinished
}

// ColorOf returns the color held by the player, if any.
func (that *Room) ColorOf(playerID string) (Cell, bool) {
	switch {
	case playerID == "":
		return Empty, false
	case playerID == that.BlackID:
		return Black, true
	case playerID == that.WhiteID:
		return White, true
	default:
		return Empty, false
	}
}

// PlayerOf returns the id of the player holding the color.
func (that *Room) PlayerOf(color Cell) string {
	switch color {
	case Black:
		return that.BlackID
	case White:
		return that.WhiteID
	default:
		return ""
	}
}

// Join seats the player. A player already seated gets the same color back;
// the first newcomer takes White and starts the game.
func (that *Room) Join(playerID string) (Cell, error) {
	if color, ok := that.ColorOf(playerID); ok {
		return color, nil
	}

	if that.WhiteID != "" {
		return Empty, fmt.Errorf("%w: room %s", apperror.ErrRoomFull, that.ID)
	}

	that.WhiteID = playerID
	if that.IsWaiting() {
		that.Status = StatusInProgress
	}

	return White, nil
}

// ConfirmOngoingState reports why moves cannot be played yet. A waiting room
// has no turn to take, so its error matches both ErrNotYourTurn and ErrGameIsNotStarted.
func (that *Room) ConfirmOngoingState() error {
	switch {
	case that.IsWaiting():
		return fmt.Errorf("%w: %w", apperror.ErrNotYourTurn, apperror.ErrGameIsNotStarted)
	case that.IsFinished():
		return apperror.ErrGameOver
	case that.IsInProgress():
		return nil
	default:
		return fmt.Errorf("unknown room status: %s", that.Status)
	}
}

// Finish moves the room to its terminal state.
func (that *Room) Finish(outcome Outcome) {
	that.Status = StatusFinished
	that.Outcome = outcome
	that.Turn = Empty
}
