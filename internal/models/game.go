package models

import (
	"encoding/json"
	"strings"
	"time"
)

// StartFEN is the standard chess starting position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Color is a side of the board
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Title returns the color capitalized for result strings.
func (c Color) Title() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// Winner is the decided result of a finished game.
type Winner string

const (
	WinnerWhite Winner = "white"
	WinnerBlack Winner = "black"
	WinnerDraw  Winner = "draw"
)

// WinnerOf converts a color to the matching winner value.
func WinnerOf(c Color) Winner {
	if c == Black {
		return WinnerBlack
	}
	return WinnerWhite
}

// Status is the lifecycle state of a game. Transitions only move forward:
// waiting -> active -> finished | abandoned.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusFinished  Status = "finished"
	StatusAbandoned Status = "abandoned"
)

// Ended reports whether no further moves can be made.
func (s Status) Ended() bool {
	return s == StatusFinished || s == StatusAbandoned
}

// Difficulty labels the strength of the AI opponent.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty normalizes a difficulty label, defaulting to medium.
func ParseDifficulty(s string) Difficulty {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case DifficultyEasy:
		return DifficultyEasy
	case DifficultyHard:
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

// Game is a snapshot of one chess game. Values handed out by the game
// service are copies; mutating them has no effect on the authority.
type Game struct {
	ID         string        `json:"id"`
	White      Player        `json:"white"`
	Black      Player        `json:"black"`
	FEN        string        `json:"fen"`
	Moves      []string      `json:"moves"`
	Status     Status        `json:"status"`
	Winner     *Winner       `json:"winner"`
	Difficulty Difficulty    `json:"difficulty"`
	Chat       []ChatMessage `json:"-"`
	CreatedAt  time.Time     `json:"-"`
	EndedAt    time.Time     `json:"-"`
}

// Turn returns the side to move, read from the FEN active-color field.
func (g Game) Turn() Color {
	parts := strings.Fields(g.FEN)
	if len(parts) >= 2 && parts[1] == "b" {
		return Black
	}
	return White
}

// Seat returns the player sitting on the given color.
func (g Game) Seat(c Color) Player {
	if c == Black {
		return g.Black
	}
	return g.White
}

// ColorOf returns the seat color held by playerID.
func (g Game) ColorOf(playerID string) (Color, bool) {
	if playerID == "" {
		return "", false
	}
	switch playerID {
	case g.White.ID:
		return White, true
	case g.Black.ID:
		return Black, true
	}
	return "", false
}

// AIColor returns the color played by the AI seat, if any.
func (g Game) AIColor() (Color, bool) {
	if g.White.Type == PlayerAI {
		return White, true
	}
	if g.Black.Type == PlayerAI {
		return Black, true
	}
	return "", false
}

// IsAITurn reports whether the side to move is played by the AI.
func (g Game) IsAITurn() bool {
	return g.Seat(g.Turn()).Type == PlayerAI
}

// SeatHolders returns the connection ids of the human seat holders.
func (g Game) SeatHolders() []string {
	ids := make([]string, 0, 2)
	for _, p := range []Player{g.White, g.Black} {
		if p.Type == PlayerHuman && p.ID != "" {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Clone returns a deep copy of the game.
func (g Game) Clone() Game {
	out := g
	out.Moves = append([]string(nil), g.Moves...)
	out.Chat = append([]ChatMessage(nil), g.Chat...)
	if g.Winner != nil {
		w := *g.Winner
		out.Winner = &w
	}
	return out
}

// View is the shape sent to clients: the game plus whose turn it is.
func (g Game) View() GameView {
	moves := g.Moves
	if moves == nil {
		moves = []string{}
	}
	return GameView{
		ID:         g.ID,
		White:      g.White,
		Black:      g.Black,
		FEN:        g.FEN,
		Moves:      moves,
		Status:     g.Status,
		Winner:     g.Winner,
		Difficulty: g.Difficulty,
		Turn:       g.Turn(),
	}
}

// MarshalJSON encodes the game as its client view.
func (g Game) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.View())
}

// GameView is the wire representation of a game.
type GameView struct {
	ID         string     `json:"id"`
	White      Player     `json:"white"`
	Black      Player     `json:"black"`
	FEN        string     `json:"fen"`
	Moves      []string   `json:"moves"`
	Status     Status     `json:"status"`
	Winner     *Winner    `json:"winner"`
	Difficulty Difficulty `json:"difficulty"`
	Turn       Color      `json:"turn"`
}

// MoveOutcome is the result of applying a move to a game.
type MoveOutcome struct {
	Success  bool   `json:"success"`
	FEN      string `json:"fen,omitempty"`
	Move     string `json:"move,omitempty"`
	SAN      string `json:"san,omitempty"`
	Check    bool   `json:"check"`
	GameOver bool   `json:"game_over"`
	Result   string `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Outcome is the result of a non-move state change such as resignation.
type Outcome struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ChatMessage is one line of a game's chat log.
type ChatMessage struct {
	Sender     string  `json:"sender"`
	SenderName string  `json:"senderName"`
	Message    string  `json:"message"`
	Timestamp  float64 `json:"timestamp"`
}
