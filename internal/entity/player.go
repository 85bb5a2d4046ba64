package entity

type Player struct {
	ID     string `json:"id"`
	RoomID string `json:"room_id,omitempty"`
	Color  Cell   `json:"color,omitempty"`
}

func (that *Player) InRoom() bool {
	return that.RoomID != ""
}
