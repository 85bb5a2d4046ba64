package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/renju-backend/internal/entity"
	"github.com/rocketscienceinc/renju-backend/internal/session"
)

const writeWait = 10 * time.Second

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Payload struct {
	Player *entity.Player    `json:"player,omitempty"`
	Room   *session.Snapshot `json:"room,omitempty"`
	RoomID string            `json:"room_id,omitempty"`

	X *int `json:"x,omitempty"`
	Y *int `json:"y,omitempty"`

	Move    *entity.Move    `json:"move,omitempty"`
	Outcome *entity.Outcome `json:"outcome,omitempty"`
	Turn    *entity.Cell    `json:"turn,omitempty"`
	Status  entity.Status   `json:"status,omitempty"`

	Online *bool  `json:"online,omitempty"`
	Error  string `json:"error,omitempty"`
}

// client is one live connection. Writes come from the reader goroutine and
// from room feeds, so they go through writeMutex.
type client struct {
	conn       *websocket.Conn
	writeMutex sync.Mutex

	playerID string
	roomID   string
	unwatch  func()
}

func (that *client) send(action string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	that.writeMutex.Lock()
	defer that.writeMutex.Unlock()

	if err = that.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err = that.conn.WriteJSON(Message{Action: action, Payload: body}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (that *client) stopWatching() {
	if that.unwatch != nil {
		that.unwatch()
		that.unwatch = nil
	}
}

// maskRoom hides the opponent's player id, it is what a client uses to resume a seat.
func maskRoom(snapshot session.Snapshot, viewerID string) *session.Snapshot {
	if snapshot.Room.BlackID != viewerID {
		snapshot.Room.BlackID = ""
	}

	if snapshot.Room.WhiteID != viewerID {
		snapshot.Room.WhiteID = ""
	}

	return &snapshot
}
