package apperror

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomAlreadyExists  = errors.New("room already exists")
	ErrRoomFull           = errors.New("room already has two players")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrPlayerNotInRoom    = errors.New("player is not in a room")
	ErrGameIsNotStarted   = errors.New("game is not started")
	ErrGameOver           = errors.New("game is already finished")
	ErrNotYourTurn        = errors.New("it's not your turn")
	ErrInvalidCell        = errors.New("cell is outside the board")
	ErrInvalidColor       = errors.New("stone color must be black or white")
	ErrCellOccupied       = errors.New("cell is already occupied")
	ErrOverlineRejected   = errors.New("overline is forbidden")
	ErrSequenceGap        = errors.New("move sequence gap")
	ErrSequenceConflict   = errors.New("another move was committed at this sequence")
	ErrChannelUnavailable = errors.New("synchronization channel unavailable")
)
