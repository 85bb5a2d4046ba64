// Package session is the per-room state machine: seating, turn order and the
// committed move log. A Session is the only writer of its room's state; every
// method is safe for concurrent use.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/rocketscienceinc/renju-backend/internal/apperror"
	"github.com/rocketscienceinc/renju-backend/internal/entity"
	"github.com/rocketscienceinc/renju-backend/internal/renju"
)

type Session struct {
	mu    sync.Mutex
	room  entity.Room
	moves []entity.Move
	board *entity.Board
	now   func() time.Time
}

// Snapshot is a read-only copy of a session for projections.
type Snapshot struct {
	Room  entity.Room   `json:"room"`
	Moves []entity.Move `json:"moves"`
	Board *entity.Board `json:"board"`
}

type Option func(*Session)

// WithClock overrides the time source used to stamp moves.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// New starts a room in WaitingForOpponent with the creator seated as Black.
func New(roomID, creatorID string, opts ...Option) *Session {
	that := &Session{now: time.Now}
	for _, opt := range opts {
		opt(that)
	}

	that.room = *entity.NewRoom(roomID, creatorID, that.now().UTC())
	that.board = entity.NewBoard(that.room.BoardSize)

	return that
}

// Restore rebuilds a session from a room record and its committed log. Turn,
// status and outcome are recomputed from the log, not trusted from the record.
func Restore(room entity.Room, moves []entity.Move, opts ...Option) (*Session, error) {
	if room.BoardSize == 0 {
		room.BoardSize = entity.BoardSize
	}

	room.Turn = entity.Black
	room.Outcome = entity.OngoingOutcome()
	room.Status = entity.StatusWaiting
	if room.WhiteID != "" {
		room.Status = entity.StatusInProgress
	}

	that := &Session{
		room:  room,
		board: entity.NewBoard(room.BoardSize),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(that)
	}

	for _, move := range moves {
		if _, err := that.commit(move); err != nil {
			return nil, fmt.Errorf("failed to restore room %s at move %d: %w", room.ID, move.Seq, err)
		}
	}

	return that, nil
}

func (that *Session) ID() string {
	return that.room.ID
}

// Join seats a player: White if free, the same color again for a seated player.
func (that *Session) Join(playerID string) (entity.Cell, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.room.IsFinished() {
		if color, ok := that.room.ColorOf(playerID); ok {
			return color, nil
		}

		return entity.Empty, apperror.ErrGameOver
	}

	color, err := that.room.Join(playerID)
	if err != nil {
		return entity.Empty, err
	}

	return color, nil
}

// SubmitMove validates and commits a move in one step.
func (that *Session) SubmitMove(playerID string, x, y int) (entity.Move, entity.Outcome, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	move, err := that.prepare(playerID, x, y)
	if err != nil {
		return entity.Move{}, that.room.Outcome, err
	}

	outcome, err := that.commit(move)
	if err != nil {
		return entity.Move{}, that.room.Outcome, err
	}

	return move, outcome, nil
}

// Prepare runs every check SubmitMove would and returns the candidate move
// with the next sequence number. Nothing is mutated.
func (that *Session) Prepare(playerID string, x, y int) (entity.Move, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.prepare(playerID, x, y)
}

// Commit applies a prepared move. It is re-validated, so a move prepared
// against an older state fails instead of corrupting the log.
func (that *Session) Commit(move entity.Move) (entity.Outcome, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.commit(move)
}

// Apply replays a move delivered by the channel. Moves at or below the last
// committed seq are duplicates and are ignored (applied == false).
func (that *Session) Apply(move entity.Move) (entity.Outcome, bool, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	last := uint64(len(that.moves))
	if move.Seq != 0 && move.Seq <= last {
		if !that.moves[move.Seq-1].SamePlacement(move) {
			return that.room.Outcome, false, fmt.Errorf("%w: seq %d", apperror.ErrSequenceConflict, move.Seq)
		}

		return that.room.Outcome, false, nil
	}

	outcome, err := that.commit(move)
	if err != nil {
		return that.room.Outcome, false, err
	}

	return outcome, true, nil
}

func (that *Session) Snapshot() Snapshot {
	that.mu.Lock()
	defer that.mu.Unlock()

	moves := make([]entity.Move, len(that.moves))
	copy(moves, that.moves)

	return Snapshot{
		Room:  that.room,
		Moves: moves,
		Board: that.board.Clone(),
	}
}

func (that *Session) LastSeq() uint64 {
	that.mu.Lock()
	defer that.mu.Unlock()

	return uint64(len(that.moves))
}

func (that *Session) prepare(playerID string, x, y int) (entity.Move, error) {
	color, _ := that.room.ColorOf(playerID)
	if _, err := that.check(color, x, y); err != nil {
		return entity.Move{}, err
	}

	return entity.Move{
		X:        x,
		Y:        y,
		Color:    color,
		Seq:      uint64(len(that.moves)) + 1,
		PlayedAt: that.now().UTC(),
	}, nil
}

// check - room state, turn and rules, in that order. Replayed moves go through
// it too, so a log can never start a game that has no White player.
func (that *Session) check(color entity.Cell, x, y int) (renju.Verdict, error) {
	if err := that.room.ConfirmOngoingState(); err != nil {
		return renju.Verdict{}, err
	}

	if color != that.room.Turn {
		return renju.Verdict{}, fmt.Errorf("%w: %s to move", apperror.ErrNotYourTurn, that.room.Turn)
	}

	verdict, err := renju.Evaluate(that.board, x, y, color)
	if err != nil {
		return verdict, fmt.Errorf("invalid move: %w", err)
	}

	return verdict, nil
}

func (that *Session) commit(move entity.Move) (entity.Outcome, error) {
	if err := move.Validate(that.board.Size()); err != nil {
		return that.room.Outcome, err
	}

	if expected := uint64(len(that.moves)) + 1; move.Seq != expected {
		if move.Seq < expected {
			return that.room.Outcome, fmt.Errorf("%w: seq %d already committed", apperror.ErrSequenceConflict, move.Seq)
		}

		return that.room.Outcome, fmt.Errorf("%w: expected %d got %d", apperror.ErrSequenceGap, expected, move.Seq)
	}

	verdict, err := that.check(move.Color, move.X, move.Y)
	if err != nil {
		return that.room.Outcome, err
	}

	if err = that.board.Place(move.X, move.Y, move.Color); err != nil {
		return that.room.Outcome, err
	}

	that.moves = append(that.moves, move)

	switch {
	case verdict.Win:
		that.room.Finish(entity.Outcome{Winner: move.Color, Reason: entity.ReasonFiveInRow})
	case that.board.IsFull():
		that.room.Finish(entity.Outcome{Winner: entity.Empty, Reason: entity.ReasonDraw})
	default:
		that.room.Turn = move.Color.Opposite()
	}

	return that.room.Outcome, nil
}
