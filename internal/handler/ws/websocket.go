package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-council/backend/internal/handler/stream"
	councilsvc "github.com/zhouzirui/z-council/backend/internal/service/council"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler WebSocket实时讨论处理器
type Handler struct {
	discusser stream.Discusser
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
}

// New 创建WebSocket处理器
func New(discusser stream.Discusser, logger zerolog.Logger) *Handler {
	return &Handler{
		discusser: discusser,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With().Str("component", "websocket").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/council/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// connection serialises writes; gorilla allows one concurrent writer.
type connection struct {
	conn *websocket.Conn
	mu   sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	runID  string
}

func (c *connection) send(ev stream.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(ev)
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// begin reserves the connection for a run; false when one is active.
func (c *connection) begin(cancel context.CancelFunc) (string, bool) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		return c.runID, false
	}
	c.cancel = cancel
	c.runID = uuid.NewString()
	return c.runID, true
}

func (c *connection) end() {
	c.runMu.Lock()
	c.cancel = nil
	c.runID = ""
	c.runMu.Unlock()
}

func (c *connection) stop() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("[websocket] upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &connection{conn: conn}
	var runs sync.WaitGroup
	defer func() {
		c.stop()
		runs.Wait()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go h.pingLoop(ctx, c)

	_ = c.send(stream.Event{Type: "connected"})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("[websocket] read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Type {
		case "start":
			var req councilsvc.DiscussRequest
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				_ = c.send(stream.Event{Type: stream.EventError, Error: "invalid start payload"})
				continue
			}
			runCtx, runCancel := context.WithCancel(ctx)
			runID, ok := c.begin(runCancel)
			if !ok {
				runCancel()
				_ = c.send(stream.Event{Type: stream.EventError, RunID: runID, Error: "a deliberation is already running"})
				continue
			}
			runs.Add(1)
			go func() {
				defer runs.Done()
				defer runCancel()
				defer c.end()
				h.run(runCtx, c, runID, req)
			}()
		case "cancel":
			if !c.stop() {
				_ = c.send(stream.Event{Type: stream.EventError, Error: "no deliberation is running"})
			}
		default:
			_ = c.send(stream.Event{Type: stream.EventError, Error: "unsupported message type: " + msg.Type})
		}
	}
}

func (h *Handler) run(ctx context.Context, c *connection, runID string, req councilsvc.DiscussRequest) {
	logger := h.logger.With().Str("run_id", runID).Logger()
	emit := func(ev stream.Event) {
		if err := c.send(ev); err != nil {
			logger.Debug().Err(err).Str("event", ev.Type).Msg("[websocket] write failed")
		}
	}

	logger.Info().Str("topic", req.Topic).Msg("[websocket] deliberation started")
	emit(stream.Event{Type: stream.EventStart, RunID: runID})
	rec, err := h.discusser.Discuss(ctx, req, stream.Hooks(runID, emit))
	if err != nil {
		logger.Warn().Err(err).Msg("[websocket] deliberation failed")
	}
	stream.Finish(runID, rec, err, emit)
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
