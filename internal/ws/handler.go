package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"chessroom/internal/broadcast"
	"chessroom/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	idlePingInterval = 30 * time.Second
	maxFrameBytes    = 64 << 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler handles WebSocket connections for the game protocol.
type Handler struct {
	sessions     *session.Server
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(sessions *session.Server, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions:     sessions,
		pingInterval: idlePingInterval,
		logger:       logger,
	}
}

// RegisterRoutes sets up the WebSocket routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	client := broadcast.NewClient(uuid.NewString(), broadcast.DefaultQueueSize)
	h.sessions.Connect(client)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := h.writeWithHeartbeat(conn, client.Queue()); err != nil {
			h.logger.Debug("websocket write failed", zap.String("conn_id", client.ID), zap.Error(err))
			// Unblocks the read loop.
			conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		h.dispatch(client.ID, data)
	}

	h.sessions.Disconnect(client.ID)
	<-writerDone
}

// dispatch hands one frame to the session layer. A panic is contained to
// the frame that caused it.
func (h *Handler) dispatch(connID string, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic handling frame", zap.String("conn_id", connID), zap.Any("panic", rec))
		}
	}()
	h.sessions.Handle(connID, data)
}

// writeWithHeartbeat drains send onto the socket and pings when the
// connection has been idle for a full interval. It returns nil once send is
// closed.
func (h *Handler) writeWithHeartbeat(conn *websocket.Conn, send <-chan []byte) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	lastWrite := time.Now()
	pingPayload, err := json.Marshal(session.PingMessage())
	if err != nil {
		return err
	}

	for {
		select {
		case msg, ok := <-send:
			if !ok {
				return nil
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
			lastWrite = time.Now()
		case <-ticker.C:
			if time.Since(lastWrite) < h.pingInterval {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, pingPayload); err != nil {
				return err
			}
			lastWrite = time.Now()
		}
	}
}
