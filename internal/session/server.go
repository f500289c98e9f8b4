// Package session implements the chess room protocol: it binds connections
// to games and seats, routes client messages to the game authority and
// drives AI turns in the background.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"chessroom/internal/ai"
	"chessroom/internal/broadcast"
	"chessroom/internal/game"
	"chessroom/internal/models"

	"go.uber.org/zap"
)

const (
	// GhostSender is the chat sender of assist explanations.
	GhostSender     = "ana_ghost"
	GhostSenderName = "Assistant"

	aiBusyMessage = "AI busy with another game, turn left open"

	defaultPlayerName = "Player"
	defaultJoinerName = "Player 2"
)

// Config tunes AI turn scheduling.
type Config struct {
	// AIStartDelay is waited before the AI starts thinking.
	AIStartDelay time.Duration
	// AIMoveTimeout bounds one AI move computation. Zero means no limit.
	AIMoveTimeout time.Duration
	Logger        *zap.Logger
}

// Server is the session layer shared by the websocket and HTTP surfaces.
type Server struct {
	games   *game.Service
	hub     *broadcast.Hub
	bridges *ai.Pool
	tasks   *taskRegistry

	mu       sync.RWMutex
	bindings map[string]string // connection id -> game id

	startDelay  time.Duration
	moveTimeout time.Duration
	coin        func() bool
	stop        context.CancelFunc
	logger      *zap.Logger
}

// NewServer creates a session server.
func NewServer(games *game.Service, hub *broadcast.Hub, bridges *ai.Pool, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Server{
		games:       games,
		hub:         hub,
		bridges:     bridges,
		tasks:       newTaskRegistry(ctx, cfg.Logger),
		bindings:    make(map[string]string),
		startDelay:  cfg.AIStartDelay,
		moveTimeout: cfg.AIMoveTimeout,
		coin:        func() bool { return rand.Intn(2) == 0 },
		stop:        stop,
		logger:      cfg.Logger,
	}
}

// Connect registers a client and greets it with its id.
func (s *Server) Connect(c *broadcast.Client) {
	s.hub.Register(c)
	s.hub.Send(c.ID, Connected{Type: TypeConnected, PlayerID: c.ID})
	s.logger.Info("connection opened", zap.String("conn_id", c.ID))
}

// Disconnect releases a connection. A live game it was seated in is
// abandoned and the remaining seat holder is told.
func (s *Server) Disconnect(connID string) {
	gameID, bound := s.unbind(connID)
	s.hub.Unregister(connID)
	s.logger.Info("connection closed", zap.String("conn_id", connID))
	if !bound {
		return
	}

	g, changed, err := s.games.Abandon(gameID)
	if err != nil || !changed {
		return
	}
	s.tasks.cancel(gameID)
	s.hub.Broadcast(g.SeatHolders(), PlayerDisconnected{
		Type:     TypePlayerDisconnected,
		GameID:   gameID,
		PlayerID: connID,
	})
}

// Stats is a point-in-time view of server load.
type Stats struct {
	Connections     int  `json:"connections"`
	AIBridges       int  `json:"ai_bridges"`
	AIThinking      int  `json:"ai_thinking"`
	EngineAvailable bool `json:"engine_available"`
}

// Stats reports connection and AI load and checks the engine.
func (s *Server) Stats(ctx context.Context) Stats {
	return Stats{
		Connections:     s.hub.Len(),
		AIBridges:       s.bridges.Len(),
		AIThinking:      s.bridges.Thinking(),
		EngineAvailable: s.bridges.EngineAvailable(ctx),
	}
}

// Handle decodes and dispatches one client frame. Failures are reported to
// the sender only.
func (s *Server) Handle(connID string, data []byte) {
	if !s.hub.Connected(connID) {
		s.logger.Debug("frame from unknown connection", zap.String("conn_id", connID))
		return
	}
	msg, err := Decode(data)
	if err != nil {
		s.logger.Debug("rejected frame", zap.String("conn_id", connID), zap.Error(err))
		s.hub.Send(connID, errorMessage(err))
		return
	}

	switch m := msg.(type) {
	case CreateGame:
		err = s.createGame(connID, m)
	case JoinGame:
		err = s.joinGame(connID, m)
	case MakeMove:
		err = s.move(connID, m)
	case Resign:
		err = s.resign(connID)
	case Chat:
		err = s.chat(connID, m)
	case GetGameState:
		err = s.sendGameState(connID, m)
	case RequestAssist:
		err = s.requestAssist(connID)
	}
	if err != nil {
		s.hub.Send(connID, errorMessage(err))
	}
}

// ExternalMove applies a move submitted outside any connection, such as an
// agent posting to the HTTP API. A non-empty explanation is added to the
// chat as the AI's message.
func (s *Server) ExternalMove(gameID, move, explanation string) (models.MoveOutcome, error) {
	outcome, err := s.games.MakeMove(gameID, move)
	if err != nil {
		return outcome, err
	}
	g, ok := s.games.GetGame(gameID)
	if !ok {
		return outcome, nil
	}
	if explanation = strings.TrimSpace(explanation); explanation != "" {
		s.postAIChat(g, explanation)
	}
	s.hub.Broadcast(g.SeatHolders(), gameState(g, &outcome))
	s.maybeScheduleAI(g, outcome)
	return outcome, nil
}

// Evict forgets games removed by the janitor.
func (s *Server) Evict(gameIDs []string) {
	if len(gameIDs) == 0 {
		return
	}
	s.tasks.cancel(gameIDs...)
	s.bridges.Release(gameIDs...)

	evicted := make(map[string]struct{}, len(gameIDs))
	for _, id := range gameIDs {
		evicted[id] = struct{}{}
	}
	s.mu.Lock()
	for conn, id := range s.bindings {
		if _, ok := evicted[id]; ok {
			delete(s.bindings, conn)
		}
	}
	s.mu.Unlock()
	s.logger.Info("evicted games", zap.Strings("game_ids", gameIDs))
}

// Close cancels every background task and waits for them to return.
func (s *Server) Close() {
	s.stop()
	s.tasks.cancelAll()
	s.tasks.wait()
}

// GameOf returns the game a connection is bound to.
func (s *Server) GameOf(connID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bindings[connID]
	return id, ok
}

func (s *Server) bind(connID, gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[connID] = gameID
}

func (s *Server) unbind(connID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bindings[connID]
	delete(s.bindings, connID)
	return id, ok
}

// requireUnseated fails when connID still sits in a game that has not ended.
func (s *Server) requireUnseated(connID string) error {
	gameID, ok := s.GameOf(connID)
	if !ok {
		return nil
	}
	if g, exists := s.games.GetGame(gameID); exists && !g.Status.Ended() {
		return fmt.Errorf("%w: %s", ErrAlreadyInGame, gameID)
	}
	return nil
}

// boundGame returns the live snapshot of the caller's game.
func (s *Server) boundGame(connID string) (models.Game, error) {
	gameID, ok := s.GameOf(connID)
	if !ok {
		return models.Game{}, ErrNotInGame
	}
	g, ok := s.games.GetGame(gameID)
	if !ok {
		return models.Game{}, game.ErrGameNotFound
	}
	return g, nil
}

func (s *Server) createGame(connID string, m CreateGame) error {
	if err := s.requireUnseated(connID); err != nil {
		return err
	}

	var color models.Color
	switch strings.ToLower(strings.TrimSpace(m.Color)) {
	case "", "white":
		color = models.White
	case "black":
		color = models.Black
	case "random":
		color = models.Black
		if s.coin() {
			color = models.White
		}
	default:
		return fmt.Errorf("%w: color %q", ErrInvalidOption, m.Color)
	}

	name := strings.TrimSpace(m.PlayerName)
	if name == "" {
		name = defaultPlayerName
	}
	human := models.NewHuman(connID, name)

	var opponent models.Player
	switch strings.ToLower(strings.TrimSpace(m.OpponentType)) {
	case "", "ai", "ana":
		opponent = models.NewAI(s.bridges.Name())
	case "human":
		opponent = models.OpenSeat()
	default:
		return fmt.Errorf("%w: opponentType %q", ErrInvalidOption, m.OpponentType)
	}

	white, black := human, opponent
	if color == models.Black {
		white, black = opponent, human
	}
	g := s.games.CreateGame(white, black, models.ParseDifficulty(m.Difficulty))
	s.bind(connID, g.ID)

	s.logger.Info("game created",
		zap.String("game_id", g.ID),
		zap.String("conn_id", connID),
		zap.String("color", string(color)),
		zap.String("opponent", string(opponent.Type)),
		zap.String("difficulty", string(g.Difficulty)),
	)
	s.hub.Send(connID, SeatAssigned{Type: TypeGameCreated, Game: g, YourColor: color})

	if g.Status == models.StatusActive && g.IsAITurn() {
		s.scheduleAI(g.ID)
	}
	return nil
}

func (s *Server) joinGame(connID string, m JoinGame) error {
	if err := s.requireUnseated(connID); err != nil {
		return err
	}
	name := strings.TrimSpace(m.PlayerName)
	if name == "" {
		name = defaultJoinerName
	}
	g, color, err := s.games.Join(m.GameID, models.NewHuman(connID, name))
	if err != nil {
		return err
	}
	s.bind(connID, g.ID)

	s.hub.Send(connID, SeatAssigned{Type: TypeGameJoined, Game: g, YourColor: color})
	s.hub.Broadcast(g.SeatHolders(), gameState(g, nil))
	return nil
}

func (s *Server) move(connID string, m MakeMove) error {
	g, err := s.boundGame(connID)
	if err != nil {
		return err
	}
	if color, ok := g.ColorOf(connID); !ok || color != g.Turn() {
		s.hub.Send(connID, moveError(ErrWrongTurn))
		return nil
	}

	// The turn check above holds only for this ply.
	outcome, err := s.games.MakeMoveAt(g.ID, strings.TrimSpace(m.Move), len(g.Moves))
	if errors.Is(err, game.ErrStalePosition) {
		err = ErrWrongTurn
	}
	if err != nil {
		s.hub.Send(connID, moveError(err))
		return nil
	}
	s.broadcastMove(g.ID, outcome)
	return nil
}

func (s *Server) resign(connID string) error {
	g, err := s.boundGame(connID)
	if err != nil {
		return err
	}
	outcome, err := s.games.Resign(g.ID, connID)
	if err != nil {
		return err
	}
	s.tasks.cancel(g.ID)

	g, ok := s.games.GetGame(g.ID)
	if !ok {
		return nil
	}
	msg := gameState(g, nil)
	msg.GameOver = true
	msg.Result = outcome.Result
	s.hub.Broadcast(g.SeatHolders(), msg)
	return nil
}

func (s *Server) chat(connID string, m Chat) error {
	g, err := s.boundGame(connID)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(m.Message)
	if text == "" {
		return nil
	}
	senderName := "Unknown"
	if color, ok := g.ColorOf(connID); ok {
		senderName = g.Seat(color).Name
	}
	if _, err := s.games.AddChat(g.ID, connID, senderName, text); err != nil {
		return err
	}
	s.hub.Broadcast(g.SeatHolders(), ChatMessage{
		Type:       TypeChat,
		GameID:     g.ID,
		Sender:     connID,
		SenderName: senderName,
		Message:    text,
	})
	return nil
}

func (s *Server) sendGameState(connID string, m GetGameState) error {
	gameID, ok := s.GameOf(connID)
	if !ok {
		gameID = strings.TrimSpace(m.GameID)
	}
	if gameID == "" {
		return ErrNotInGame
	}
	g, ok := s.games.GetGame(gameID)
	if !ok {
		return game.ErrGameNotFound
	}
	s.hub.Send(connID, gameState(g, nil))
	return nil
}

// requestAssist lets the AI play the caller's move. Only the caller learns
// that the move was not their own.
func (s *Server) requestAssist(connID string) error {
	g, err := s.boundGame(connID)
	if err != nil {
		return err
	}
	if g.Status != models.StatusActive {
		return game.ErrGameNotActive
	}
	color, ok := g.ColorOf(connID)
	if !ok || color != g.Turn() {
		return ErrWrongTurn
	}
	if s.tasks.running(g.ID) {
		return ai.ErrAlreadyThinking
	}

	s.hub.Send(connID, AIThinking{Type: TypeAIThinkingLocal})
	s.tasks.start(g.ID, func(ctx context.Context) {
		s.playAssist(ctx, connID, g, color)
	})
	return nil
}

func (s *Server) playAssist(ctx context.Context, connID string, g models.Game, color models.Color) {
	ctx, cancel := s.moveContext(ctx)
	defer cancel()

	d, err := s.bridges.For(g.ID).GetMove(ctx, g, &color)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("assist move failed", zap.String("game_id", g.ID), zap.Error(err))
		s.hub.Send(connID, errorMessage(err))
		return
	}

	outcome, err := s.games.MakeMoveAt(g.ID, d.Move, len(g.Moves))
	if err != nil {
		s.logger.Warn("assist move rejected", zap.String("game_id", g.ID), zap.String("move", d.Move), zap.Error(err))
		s.hub.Send(connID, errorMessage(err))
		return
	}
	s.broadcastMove(g.ID, outcome)
	s.hub.Send(connID, ChatMessage{
		Type:       TypeChat,
		Sender:     GhostSender,
		SenderName: GhostSenderName,
		Message:    d.Explanation,
	})
}

// broadcastMove sends the post-move state to the seat holders and hands the
// turn to the AI when it is next.
func (s *Server) broadcastMove(gameID string, outcome models.MoveOutcome) {
	g, ok := s.games.GetGame(gameID)
	if !ok {
		return
	}
	s.hub.Broadcast(g.SeatHolders(), gameState(g, &outcome))
	s.maybeScheduleAI(g, outcome)
}

func (s *Server) maybeScheduleAI(g models.Game, outcome models.MoveOutcome) {
	if outcome.GameOver || g.Status != models.StatusActive || !g.IsAITurn() {
		return
	}
	s.scheduleAI(g.ID)
}

func (s *Server) scheduleAI(gameID string) {
	s.tasks.start(gameID, func(ctx context.Context) {
		s.playAI(ctx, gameID)
	})
}

// playAI runs one AI turn. Engine failures are logged and leave the turn
// with the AI.
func (s *Server) playAI(ctx context.Context, gameID string) {
	if err := sleep(ctx, s.startDelay); err != nil {
		return
	}
	g, ok := s.games.GetGame(gameID)
	if !ok || g.Status != models.StatusActive || !g.IsAITurn() {
		return
	}
	holders := g.SeatHolders()
	s.hub.Broadcast(holders, AIThinking{Type: TypeAIThinking, GameID: gameID})

	moveCtx, cancel := s.moveContext(ctx)
	defer cancel()
	d, err := s.bridges.For(gameID).GetMove(moveCtx, g, nil)
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Debug("AI turn cancelled", zap.String("game_id", gameID))
			return
		}
		if errors.Is(err, ai.ErrAlreadyThinking) {
			// Only a shared persona is ever busy with another game.
			s.logger.Warn(aiBusyMessage, zap.String("game_id", gameID))
			return
		}
		s.logger.Error("AI move failed", zap.String("game_id", gameID), zap.Error(err))
		return
	}

	outcome, err := s.games.MakeMoveAt(gameID, d.Move, len(g.Moves))
	if err != nil {
		s.logger.Error("AI move rejected", zap.String("game_id", gameID), zap.String("move", d.Move), zap.Error(err))
		return
	}
	if g, ok = s.games.GetGame(gameID); !ok {
		return
	}
	s.hub.Broadcast(g.SeatHolders(), gameState(g, &outcome))
	s.postAIChat(g, d.Explanation)
}

func (s *Server) postAIChat(g models.Game, text string) {
	name := s.bridges.Name()
	if _, err := s.games.AddChat(g.ID, models.AIPlayerID, name, text); err != nil {
		return
	}
	s.hub.Broadcast(g.SeatHolders(), ChatMessage{
		Type:       TypeChat,
		GameID:     g.ID,
		Sender:     models.AIPlayerID,
		SenderName: name,
		Message:    text,
	})
}

func (s *Server) moveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.moveTimeout > 0 {
		return context.WithTimeout(ctx, s.moveTimeout)
	}
	return context.WithCancel(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
