package pkg

import (
	"strings"

	"github.com/google/uuid"
)

const roomIDLength = 6

// GenerateNewSessionID - generates a new unique player id.
func GenerateNewSessionID() string {
	return uuid.NewString()
}

// GenerateRoomID - generates a short code players can share to join a room.
func GenerateRoomID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")

	return strings.ToUpper(raw[:roomIDLength])
}
