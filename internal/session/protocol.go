package session

import (
	"encoding/json"
	"fmt"

	"chessroom/internal/models"
)

// Inbound message types.
const (
	TypeCreateGame    = "create_game"
	TypeJoinGame      = "join_game"
	TypeMove          = "move"
	TypeResign        = "resign"
	TypeChat          = "chat"
	TypeGetGameState  = "get_game_state"
	TypeRequestAssist = "request_ana_move"
)

// Outbound message types.
const (
	TypeConnected          = "connected"
	TypeGameCreated        = "game_created"
	TypeGameJoined         = "game_joined"
	TypeGameState          = "game_state"
	TypeMoveError          = "move_error"
	TypeError              = "error"
	TypeAIThinking         = "ana_thinking"
	TypeAIThinkingLocal    = "ana_thinking_local"
	TypePlayerDisconnected = "player_disconnected"
	TypePing               = "ping"
)

// Message is a decoded client request.
type Message interface {
	messageType() string
}

type CreateGame struct {
	PlayerName   string `json:"playerName"`
	Color        string `json:"color"`
	OpponentType string `json:"opponentType"`
	Difficulty   string `json:"difficulty"`
}

type JoinGame struct {
	GameID     string `json:"gameId"`
	PlayerName string `json:"playerName"`
}

type MakeMove struct {
	Move string `json:"move"`
}

type Resign struct{}

type Chat struct {
	Message string `json:"message"`
}

type GetGameState struct {
	GameID string `json:"gameId"`
}

// RequestAssist asks the AI to play the caller's move for them.
type RequestAssist struct{}

func (CreateGame) messageType() string    { return TypeCreateGame }
func (JoinGame) messageType() string      { return TypeJoinGame }
func (MakeMove) messageType() string      { return TypeMove }
func (Resign) messageType() string        { return TypeResign }
func (Chat) messageType() string          { return TypeChat }
func (GetGameState) messageType() string  { return TypeGetGameState }
func (RequestAssist) messageType() string { return TypeRequestAssist }

// Decode parses one client frame into its typed message.
func Decode(data []byte) (Message, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case TypeCreateGame:
		return decodeAs[CreateGame](data)
	case TypeJoinGame:
		return decodeAs[JoinGame](data)
	case TypeMove:
		return decodeAs[MakeMove](data)
	case TypeResign:
		return Resign{}, nil
	case TypeChat:
		return decodeAs[Chat](data)
	case TypeGetGameState:
		return decodeAs[GetGameState](data)
	case TypeRequestAssist:
		return RequestAssist{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
}

func decodeAs[T Message](data []byte) (Message, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, m.messageType(), err)
	}
	return m, nil
}

// Connected greets a new connection with its id.
type Connected struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

// SeatAssigned answers create_game and join_game.
type SeatAssigned struct {
	Type      string       `json:"type"`
	Game      models.Game  `json:"game"`
	YourColor models.Color `json:"yourColor"`
}

// LastMove describes the move that produced a game_state.
type LastMove struct {
	Move  string `json:"move"`
	SAN   string `json:"san"`
	Check bool   `json:"check"`
}

// GameState carries the full game, plus the last move when one was just made.
type GameState struct {
	Type     string      `json:"type"`
	Game     models.Game `json:"game"`
	LastMove *LastMove   `json:"lastMove,omitempty"`
	GameOver bool        `json:"gameOver,omitempty"`
	Result   string      `json:"result,omitempty"`
}

type MoveError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ChatMessage struct {
	Type       string `json:"type"`
	GameID     string `json:"gameId,omitempty"`
	Sender     string `json:"sender"`
	SenderName string `json:"senderName"`
	Message    string `json:"message"`
}

type AIThinking struct {
	Type   string `json:"type"`
	GameID string `json:"gameId,omitempty"`
}

type PlayerDisconnected struct {
	Type     string `json:"type"`
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

// Ping is the idle heartbeat frame.
type Ping struct {
	Type string `json:"type"`
}

// PingMessage returns the heartbeat frame sent on idle connections.
func PingMessage() Ping {
	return Ping{Type: TypePing}
}

func gameState(g models.Game, outcome *models.MoveOutcome) GameState {
	msg := GameState{Type: TypeGameState, Game: g}
	if outcome != nil {
		msg.LastMove = &LastMove{Move: outcome.Move, SAN: outcome.SAN, Check: outcome.Check}
		if outcome.GameOver {
			msg.GameOver = true
			msg.Result = outcome.Result
		}
	}
	return msg
}

func errorMessage(err error) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: err.Error(), Code: ErrorCode(err)}
}

func moveError(err error) MoveError {
	return MoveError{Type: TypeMoveError, Error: err.Error(), Code: ErrorCode(err)}
}
