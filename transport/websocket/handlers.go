package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/renju-backend/internal/apperror"
	"github.com/rocketscienceinc/renju-backend/internal/entity"
	"github.com/rocketscienceinc/renju-backend/internal/session"
	"github.com/rocketscienceinc/renju-backend/internal/usecase"
)

const (
	actionConnect    = "connect"
	actionRoomNew    = "room:new"
	actionRoomJoin   = "room:join"
	actionRoomStatus = "room:status"
	actionPresence   = "room:presence"
	actionGameTurn   = "game:turn"
	actionGameMove   = "game:move"
)

func (that *Server) handleConnect(ctx context.Context, msg *Message, c *client) error {
	log := that.logger.With("method", "handleConnect")

	var payloadReq Payload
	if err := decodePayload(msg, &payloadReq); err != nil {
		return that.sendErrorResponse(c, msg.Action, "invalid payload")
	}

	var playerID string
	if payloadReq.Player != nil {
		playerID = payloadReq.Player.ID
	}

	player, err := that.gameUseCase.GetOrCreatePlayer(ctx, playerID)
	if err != nil {
		log.Error("failed to create or get player", "error", err)
		return that.sendErrorResponse(c, msg.Action, "failed to create a new player")
	}

	that.register(player.ID, c)

	if player.InRoom() {
		return that.handleExistingRoom(ctx, msg, c, player)
	}

	if err = c.send(msg.Action, Payload{Player: player}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	log.Info("successfully connected player", "playerID", player.ID)

	return nil
}

// handleExistingRoom puts a returning player back into the room they were in.
func (that *Server) handleExistingRoom(ctx context.Context, msg *Message, c *client, player *entity.Player) error {
	log := that.logger.With("method", "handleExistingRoom", "roomID", player.RoomID)

	snapshot, err := that.watchRoom(ctx, c, player.RoomID)
	if err != nil {
		log.Error("failed to resume room", "error", err)
		return that.sendErrorResponse(c, msg.Action, "failed to get the room")
	}

	if err = c.send(msg.Action, Payload{Player: player, Room: maskRoom(snapshot, player.ID)}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	that.notifyOpponent(snapshot.Room, player.ID, actionPresence, Payload{Online: boolPtr(true)})

	return nil
}

func (that *Server) handleNewRoom(ctx context.Context, msg *Message, c *client) error {
	log := that.logger.With("method", "handleNewRoom")

	if c.playerID == "" {
		return that.sendErrorResponse(c, msg.Action, "connect first")
	}

	player, _, err := that.gameUseCase.CreateRoom(ctx, c.playerID)
	if err != nil {
		log.Error("failed to create room", "error", err)
		return that.sendErrorResponse(c, msg.Action, "failed to create a new room")
	}

	snapshot, err := that.watchRoom(ctx, c, player.RoomID)
	if err != nil {
		log.Error("failed to watch room", "error", err)
		return that.sendErrorResponse(c, msg.Action, "failed to create a new room")
	}

	log.Info("room created", "roomID", player.RoomID)

	return c.send(msg.Action, Payload{Player: player, Room: maskRoom(snapshot, player.ID)})
}

func (that *Server) handleJoinRoom(ctx context.Context, msg *Message, c *client) error {
	log := that.logger.With("method", "handleJoinRoom")

	if c.playerID == "" {
		return that.sendErrorResponse(c, msg.Action, "connect first")
	}

	var payloadReq Payload
	if err := decodePayload(msg, &payloadReq); err != nil || payloadReq.RoomID == "" {
		return that.sendErrorResponse(c, msg.Action, "room_id is required")
	}

	log = log.With("playerID", c.playerID, "roomID", payloadReq.RoomID)

	player, _, err := that.gameUseCase.JoinRoom(ctx, payloadReq.RoomID, c.playerID)
	if err != nil {
		log.Info("failed to join room", "error", err)
		return that.sendErrorResponse(c, msg.Action, fmt.Sprintf("room %s: %s", payloadReq.RoomID, clientError(err)))
	}

	snapshot, err := that.watchRoom(ctx, c, player.RoomID)
	if err != nil {
		log.Error("failed to watch room", "error", err)
		return that.sendErrorResponse(c, msg.Action, "failed to join the room")
	}

	if err = c.send(msg.Action, Payload{Player: player, Room: maskRoom(snapshot, player.ID)}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	opponentID := snapshot.Room.PlayerOf(player.Color.Opposite())
	that.notifyOpponent(snapshot.Room, player.ID, actionRoomStatus, Payload{Room: maskRoom(snapshot, opponentID)})

	log.Info("player joined room", "color", player.Color)

	return nil
}

func (that *Server) handleGameTurn(ctx context.Context, msg *Message, c *client) error {
	log := that.logger.With("method", "handleGameTurn")

	if c.playerID == "" {
		return that.sendErrorResponse(c, msg.Action, "connect first")
	}

	var payloadReq Payload
	if err := decodePayload(msg, &payloadReq); err != nil || payloadReq.X == nil || payloadReq.Y == nil {
		return that.sendErrorResponse(c, msg.Action, "x and y are required")
	}

	move, _, err := that.gameUseCase.SubmitMove(ctx, c.playerID, *payloadReq.X, *payloadReq.Y)
	if err != nil {
		log.Info("move rejected", "playerID", c.playerID, "x", *payloadReq.X, "y", *payloadReq.Y, "error", err)
		return that.sendErrorResponse(c, msg.Action, clientError(err))
	}

	// both players, the mover included, learn about the move from the room feed
	log.Debug("move accepted", "playerID", c.playerID, "seq", move.Seq)

	return nil
}

// watchRoom subscribes the connection to the room feed, replacing any earlier
// subscription, and returns the room state as of subscribing.
func (that *Server) watchRoom(ctx context.Context, c *client, roomID string) (session.Snapshot, error) {
	if c.roomID == roomID && c.unwatch != nil {
		return that.gameUseCase.Snapshot(ctx, roomID)
	}

	c.stopWatching()

	unwatch, err := that.gameUseCase.Watch(ctx, roomID, func(notice usecase.MoveNotice) {
		that.sendMove(c, notice)
	})
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("failed to watch room: %w", err)
	}

	c.roomID = roomID
	c.unwatch = unwatch

	snapshot, err := that.gameUseCase.Snapshot(ctx, roomID)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("failed to get room: %w", err)
	}

	return snapshot, nil
}

func (that *Server) sendMove(c *client, notice usecase.MoveNotice) {
	log := that.logger.With("method", "sendMove", "roomID", notice.Room.ID)

	move := notice.Move
	outcome := notice.Room.Outcome
	turn := notice.Room.Turn

	payload := Payload{
		Move:    &move,
		Outcome: &outcome,
		Turn:    &turn,
		Status:  notice.Room.Status,
	}

	if err := c.send(actionGameMove, payload); err != nil {
		log.Warn("failed to send move", "seq", move.Seq, "error", err)
	}
}

// register binds the connection to playerID. A connection that switches to
// another player drops the previous id and stops following its room.
func (that *Server) register(playerID string, c *client) {
	that.connectionsMutex.Lock()
	defer that.connectionsMutex.Unlock()

	if c.playerID != "" && c.playerID != playerID {
		if current, ok := that.connections[c.playerID]; ok && current == c {
			delete(that.connections, c.playerID)
		}

		c.stopWatching()
		c.roomID = ""
	}

	c.playerID = playerID
	that.connections[playerID] = c
}

func (that *Server) handleDisconnect(c *client) {
	log := that.logger.With("method", "handleDisconnect")

	c.stopWatching()

	if c.playerID == "" {
		return
	}

	that.connectionsMutex.Lock()
	current, ok := that.connections[c.playerID]
	if ok && current == c {
		delete(that.connections, c.playerID)
	}
	that.connectionsMutex.Unlock()

	log.Info("player disconnected", "playerID", c.playerID)

	if c.roomID == "" || !ok || current != c {
		return
	}

	snapshot, err := that.gameUseCase.Snapshot(context.Background(), c.roomID)
	if err != nil {
		log.Warn("failed to get room of disconnected player", "error", err)
		return
	}

	that.notifyOpponent(snapshot.Room, c.playerID, actionPresence, Payload{Online: boolPtr(false)})
}

// notifyOpponent sends a message to the other seated player, if connected.
func (that *Server) notifyOpponent(room entity.Room, playerID, action string, payload Payload) {
	log := that.logger.With("method", "notifyOpponent", "roomID", room.ID)

	color, ok := room.ColorOf(playerID)
	if !ok {
		return
	}

	opponentID := room.PlayerOf(color.Opposite())
	if opponentID == "" {
		return
	}

	conn, ok := that.connection(opponentID)
	if !ok {
		log.Debug("connection not found for opponent")
		return
	}

	if err := conn.send(action, payload); err != nil {
		log.Warn("failed to notify opponent", "error", err)
	}
}

func (that *Server) sendErrorResponse(c *client, action, errorMsg string) error {
	if err := c.send(action, Payload{Error: errorMsg}); err != nil {
		return fmt.Errorf("failed to send error response: %w", err)
	}

	return nil
}

func decodePayload(msg *Message, payload *Payload) error {
	if len(msg.Payload) == 0 {
		return nil
	}

	if err := json.Unmarshal(msg.Payload, payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return nil
}

// clientError turns a domain error into the text sent to players. Transport
// and storage details stay in the logs.
func clientError(err error) string {
	for _, known := range []error{
		apperror.ErrRoomNotFound,
		apperror.ErrRoomFull,
		apperror.ErrGameIsNotStarted,
		apperror.ErrGameOver,
		apperror.ErrNotYourTurn,
		apperror.ErrInvalidCell,
		apperror.ErrCellOccupied,
		apperror.ErrOverlineRejected,
		apperror.ErrPlayerNotInRoom,
		apperror.ErrPlayerNotFound,
		apperror.ErrChannelUnavailable,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}

	return "internal error"
}

func boolPtr(v bool) *bool {
	return &v
}
