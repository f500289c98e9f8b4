package game

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"chessroom/internal/models"

	"github.com/google/uuid"
	"github.com/notnil/chess"
	"go.uber.org/zap"
)

var (
	ErrGameNotFound      = errors.New("game not found")
	ErrGameNotActive     = errors.New("game is not active")
	ErrGameNotWaiting    = errors.New("game is not accepting players")
	ErrInvalidMoveFormat = errors.New("invalid move format")
	ErrIllegalMove       = errors.New("illegal move")
	ErrPlayerNotInGame   = errors.New("player not in this game")
	ErrStalePosition     = errors.New("position changed since the move was computed")
)

// entry pairs the public game snapshot with the rules-engine board that
// backs it. mu serializes every mutation of this one game.
type entry struct {
	mu    sync.Mutex
	game  models.Game
	board *chess.Game
}

// Service is the single authority over in-memory games. Lookups take the
// service lock briefly; moves lock only the game they touch.
type Service struct {
	games  map[string]*entry
	mu     sync.RWMutex
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for creation and end stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a new game service
func NewService(opts ...Option) *Service {
	s := &Service{
		games:  make(map[string]*entry),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateGame seats both players on a fresh board. The game starts active
// when both seats are filled and waiting when a human seat is still open.
func (s *Service) CreateGame(white, black models.Player, difficulty models.Difficulty) models.Game {
	status := models.StatusActive
	if white.IsOpen() || black.IsOpen() {
		status = models.StatusWaiting
	}
	if difficulty == "" {
		difficulty = models.DifficultyMedium
	}

	e := &entry{
		board: chess.NewGame(chess.UseNotation(chess.UCINotation{})),
		game: models.Game{
			ID:         uuid.New().String(),
			White:      white,
			Black:      black,
			FEN:        models.StartFEN,
			Moves:      []string{},
			Status:     status,
			Difficulty: difficulty,
			CreatedAt:  s.now(),
		},
	}
	e.game.FEN = e.board.Position().String()

	s.mu.Lock()
	s.games[e.game.ID] = e
	s.mu.Unlock()

	s.logger.Info("game created",
		zap.String("game_id", e.game.ID),
		zap.String("white", white.Name),
		zap.String("black", black.Name),
		zap.String("status", string(status)),
		zap.String("difficulty", string(difficulty)),
	)
	return e.game.Clone()
}

func (s *Service) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return e, nil
}

// GetGame retrieves a game by ID
func (s *Service) GetGame(id string) (models.Game, bool) {
	e, err := s.lookup(id)
	if err != nil {
		return models.Game{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.game.Clone(), true
}

// ListGames returns every game in memory, oldest first.
func (s *Service) ListGames() []models.Game {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.games))
	for _, e := range s.games {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	games := make([]models.Game, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		games = append(games, e.game.Clone())
		e.mu.Unlock()
	}
	sort.Slice(games, func(i, j int) bool {
		if games[i].CreatedAt.Equal(games[j].CreatedAt) {
			return games[i].ID < games[j].ID
		}
		return games[i].CreatedAt.Before(games[j].CreatedAt)
	})
	return games
}

// MakeMove validates a UCI move against the current position and applies it.
func (s *Service) MakeMove(id, notation string) (models.MoveOutcome, error) {
	return s.makeMove(id, notation, -1)
}

// MakeMoveAt applies a move only if the game still has exactly ply moves in
// its history, so a move computed for an older position is never played.
func (s *Service) MakeMoveAt(id, notation string, ply int) (models.MoveOutcome, error) {
	return s.makeMove(id, notation, ply)
}

func (s *Service) makeMove(id, notation string, ply int) (models.MoveOutcome, error) {
	e, err := s.lookup(id)
	if err != nil {
		return failed(err), err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.game.Status != models.StatusActive {
		return failed(ErrGameNotActive), ErrGameNotActive
	}
	if ply >= 0 && len(e.game.Moves) != ply {
		return failed(ErrStalePosition), ErrStalePosition
	}
	if !validUCISyntax(notation) {
		err := fmt.Errorf("%w: %q", ErrInvalidMoveFormat, notation)
		return failed(err), err
	}

	pos := e.board.Position()
	move := findLegalMove(pos, notation)
	if move == nil {
		err := fmt.Errorf("%w: %s", ErrIllegalMove, notation)
		return failed(err), err
	}

	san := chess.AlgebraicNotation{}.Encode(pos, move)
	if err := e.board.Move(move); err != nil {
		err = fmt.Errorf("%w: %s", ErrIllegalMove, notation)
		return failed(err), err
	}

	e.game.FEN = e.board.Position().String()
	e.game.Moves = append(e.game.Moves, notation)

	outcome := models.MoveOutcome{
		Success: true,
		FEN:     e.game.FEN,
		Move:    notation,
		SAN:     san,
	}

	if result, winner, over := terminalResult(e.board); over {
		s.finish(e, winner)
		outcome.GameOver = true
		outcome.Result = result
		s.logger.Info("game ended",
			zap.String("game_id", id),
			zap.String("result", result),
		)
	} else if move.HasTag(chess.Check) {
		outcome.Check = true
	}

	return outcome, nil
}

// Resign ends an active game in favor of the resigning player's opponent.
// Position and history are left untouched.
func (s *Service) Resign(id, playerID string) (models.Outcome, error) {
	e, err := s.lookup(id)
	if err != nil {
		return models.Outcome{Error: err.Error()}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	color, ok := e.game.ColorOf(playerID)
	if !ok {
		return models.Outcome{Error: ErrPlayerNotInGame.Error()}, ErrPlayerNotInGame
	}
	if e.game.Status != models.StatusActive {
		return models.Outcome{Error: ErrGameNotActive.Error()}, ErrGameNotActive
	}

	winner := color.Opponent()
	s.finish(e, models.WinnerOf(winner))
	result := fmt.Sprintf("%s wins by resignation!", winner.Title())
	s.logger.Info("player resigned",
		zap.String("game_id", id),
		zap.String("player_id", playerID),
		zap.String("color", string(color)),
	)
	return models.Outcome{Success: true, Result: result}, nil
}

// Abandon marks a live game as abandoned. It reports whether the status
// changed; calling it on an ended game is a no-op.
func (s *Service) Abandon(id string) (models.Game, bool, error) {
	e, err := s.lookup(id)
	if err != nil {
		return models.Game{}, false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.game.Status.Ended() {
		return e.game.Clone(), false, nil
	}
	e.game.Status = models.StatusAbandoned
	e.game.EndedAt = s.now()
	s.logger.Info("game abandoned", zap.String("game_id", id))
	return e.game.Clone(), true, nil
}

// Join seats a player in the open seat of a waiting game and starts it.
func (s *Service) Join(id string, player models.Player) (models.Game, models.Color, error) {
	e, err := s.lookup(id)
	if err != nil {
		return models.Game{}, "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.game.Status != models.StatusWaiting {
		return models.Game{}, "", ErrGameNotWaiting
	}

	var color models.Color
	switch {
	case e.game.White.IsOpen():
		e.game.White = player
		color = models.White
	case e.game.Black.IsOpen():
		e.game.Black = player
		color = models.Black
	default:
		return models.Game{}, "", ErrGameNotWaiting
	}
	e.game.Status = models.StatusActive
	s.logger.Info("player joined",
		zap.String("game_id", id),
		zap.String("player", player.Name),
		zap.String("color", string(color)),
	)
	return e.game.Clone(), color, nil
}

// AddChat appends a message to the game's chat log.
func (s *Service) AddChat(id, sender, senderName, message string) (models.ChatMessage, error) {
	e, err := s.lookup(id)
	if err != nil {
		return models.ChatMessage{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	msg := models.ChatMessage{
		Sender:     sender,
		SenderName: senderName,
		Message:    message,
		Timestamp:  float64(s.now().UnixNano()) / float64(time.Second),
	}
	e.game.Chat = append(e.game.Chat, msg)
	return msg, nil
}

// Cleanup evicts finished and abandoned games that ended at least maxAge
// ago. A non-positive maxAge evicts every ended game. It returns the ids
// removed.
func (s *Service) Cleanup(maxAge time.Duration) []string {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, e := range s.games {
		e.mu.Lock()
		expired := e.game.Status.Ended() && (maxAge <= 0 || now.Sub(e.game.EndedAt) >= maxAge)
		e.mu.Unlock()
		if expired {
			delete(s.games, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		s.logger.Info("cleaned up ended games", zap.Int("removed", len(removed)))
	}
	sort.Strings(removed)
	return removed
}

// finish records a decided result. Caller holds e.mu.
func (s *Service) finish(e *entry, winner models.Winner) {
	w := winner
	e.game.Winner = &w
	e.game.Status = models.StatusFinished
	e.game.EndedAt = s.now()
}

func failed(err error) models.MoveOutcome {
	return models.MoveOutcome{Error: err.Error()}
}
