package models

// PlayerType distinguishes human seat holders from the AI opponent
type PlayerType string

const (
	PlayerHuman PlayerType = "human"
	PlayerAI    PlayerType = "ai"
)

// OpenSeatName is the display name of a seat nobody has taken yet.
const OpenSeatName = "Waiting..."

// Player represents a player in a game. For humans the ID is the id of
// the connection holding the seat.
type Player struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type PlayerType `json:"type"`
}

// NewHuman creates a human player bound to a connection.
func NewHuman(connID, name string) Player {
	return Player{ID: connID, Name: name, Type: PlayerHuman}
}

// OpenSeat creates a placeholder for a human seat not yet taken.
func OpenSeat() Player {
	return Player{Name: OpenSeatName, Type: PlayerHuman}
}

// IsOpen reports whether the seat is still waiting for a human.
func (p Player) IsOpen() bool {
	return p.Type == PlayerHuman && p.ID == ""
}

// AIPlayerID is the seat id of the AI opponent. It never collides with a
// connection id, which are uuids.
const AIPlayerID = "ai"

// NewAI creates the AI seat.
func NewAI(name string) Player {
	return Player{ID: AIPlayerID, Name: name, Type: PlayerAI}
}
