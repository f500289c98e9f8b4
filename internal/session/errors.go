package session

import (
	"errors"

	"chessroom/internal/ai"
	"chessroom/internal/engine"
	"chessroom/internal/game"
)

var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrNotInGame          = errors.New("not in a game")
	ErrAlreadyInGame      = errors.New("already in a game")
	ErrInvalidOption      = errors.New("invalid option")
	ErrWrongTurn          = errors.New("not your turn")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrMalformedMessage, "malformed_message"},
	{ErrUnknownMessageType, "unknown_message_type"},
	{ErrNotInGame, "not_in_game"},
	{ErrAlreadyInGame, "already_in_game"},
	{ErrInvalidOption, "invalid_option"},
	{ErrWrongTurn, "wrong_turn"},
	{game.ErrGameNotFound, "game_not_found"},
	{game.ErrGameNotActive, "game_not_active"},
	{game.ErrGameNotWaiting, "game_not_waiting"},
	{game.ErrInvalidMoveFormat, "invalid_move_format"},
	{game.ErrIllegalMove, "illegal_move"},
	{game.ErrPlayerNotInGame, "player_not_in_game"},
	{game.ErrStalePosition, "stale_position"},
	{ai.ErrAlreadyThinking, "already_thinking"},
	{ai.ErrNotAIGame, "not_ai_game"},
	{ai.ErrNoLegalMove, "engine_illegal_move"},
	{engine.ErrTimeout, "engine_timeout"},
	{engine.ErrUnavailable, "engine_unavailable"},
	{engine.ErrMalformedResponse, "engine_malformed_response"},
}

// ErrorCode maps an error to its stable wire code.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal_error"
}
