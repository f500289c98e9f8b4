package game

import (
	"chessroom/internal/models"
	"chessroom/internal/notation"

	"github.com/notnil/chess"
)

func validUCISyntax(s string) bool {
	return notation.ValidUCI(s)
}

func findLegalMove(pos *chess.Position, uci string) *chess.Move {
	return notation.FindUCI(pos, uci)
}

// terminalResult inspects the board after a move. Only outcomes the rules
// engine reaches on its own are reported; claimable draws (threefold, fifty
// moves) leave the game running.
func terminalResult(board *chess.Game) (string, models.Winner, bool) {
	switch board.Method() {
	case chess.Checkmate:
		winner := models.White
		if board.Outcome() == chess.BlackWon {
			winner = models.Black
		}
		return "Checkmate! " + winner.Title() + " wins!", models.WinnerOf(winner), true
	case chess.Stalemate:
		return "Stalemate - Draw!", models.WinnerDraw, true
	case chess.InsufficientMaterial:
		return "Draw by insufficient material", models.WinnerDraw, true
	case chess.FivefoldRepetition:
		return "Draw by fivefold repetition", models.WinnerDraw, true
	case chess.SeventyFiveMoveRule:
		return "Draw by the seventy-five move rule", models.WinnerDraw, true
	}
	return "", "", false
}
