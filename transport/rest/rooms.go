package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rocketscienceinc/renju-backend/internal/apperror"
	"github.com/rocketscienceinc/renju-backend/internal/entity"
	"github.com/rocketscienceinc/renju-backend/internal/session"
)

type roomUseCase interface {
	Snapshot(ctx context.Context, roomID string) (session.Snapshot, error)
}

type RoomHandler interface {
	GetRoom(w http.ResponseWriter, r *http.Request)
	GetBoard(w http.ResponseWriter, r *http.Request)
}

type roomHandler struct {
	logger *slog.Logger
	rooms  roomUseCase
}

func NewRoomHandler(logger *slog.Logger, rooms roomUseCase) RoomHandler {
	return &roomHandler{
		logger: logger,
		rooms:  rooms,
	}
}

// roomResponse is the public projection of a room. Player ids are not exposed.
type roomResponse struct {
	ID         string         `json:"id"`
	Status     entity.Status  `json:"status"`
	Turn       entity.Cell    `json:"turn"`
	Outcome    entity.Outcome `json:"outcome"`
	BlackTaken bool           `json:"black_taken"`
	WhiteTaken bool           `json:"white_taken"`
	Moves      []entity.Move  `json:"moves"`
	Stones     int            `json:"stones"`
	Board      *entity.Board  `json:"board"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (that *roomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := that.snapshot(w, r)
	if !ok {
		return
	}

	response := roomResponse{
		ID:         snapshot.Room.ID,
		Status:     snapshot.Room.Status,
		Turn:       snapshot.Room.Turn,
		Outcome:    snapshot.Room.Outcome,
		BlackTaken: snapshot.Room.BlackID != "",
		WhiteTaken: snapshot.Room.WhiteID != "",
		Moves:      snapshot.Moves,
		Stones:     snapshot.Board.Stones(),
		Board:      snapshot.Board,
		CreatedAt:  snapshot.Room.CreatedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		that.logger.Error("failed to encode room", "method", "GetRoom", "error", err)
	}
}

// GetBoard renders the board as text, one row per line.
func (that *roomHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := that.snapshot(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(snapshot.Board.String())); err != nil {
		that.logger.Error("failed to write board", "method", "GetBoard", "error", err)
	}
}

func (that *roomHandler) snapshot(w http.ResponseWriter, r *http.Request) (session.Snapshot, bool) {
	roomID := r.PathValue("id")

	snapshot, err := that.rooms.Snapshot(r.Context(), roomID)
	if errors.Is(err, apperror.ErrRoomNotFound) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return session.Snapshot{}, false
	}

	if err != nil {
		that.logger.Error("failed to get room", "roomID", roomID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return session.Snapshot{}, false
	}

	return snapshot, true
}
