package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-council/backend/internal/handler/stream"
	model "github.com/zhouzirui/z-council/backend/internal/model/council"
	councilsvc "github.com/zhouzirui/z-council/backend/internal/service/council"
	"github.com/zhouzirui/z-council/backend/internal/service/session"
)

type blockingDiscusser struct {
	release chan struct{}
}

func (b *blockingDiscusser) Discuss(ctx context.Context, req councilsvc.DiscussRequest, hooks councilsvc.Hooks) (session.Record, error) {
	hooks.OnRoundStart(ctx, 1)
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return session.Record{}, ctx.Err()
		}
	}
	return session.NewRecord(model.Session{Topic: req.Topic}, model.Majority, 1), nil
}

func dial(t *testing.T, d stream.Discusser) *websocket.Conn {
	t.Helper()
	r := chi.NewRouter()
	New(d, zerolog.Nop()).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/council/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello stream.Event
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "connected", hello.Type)
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, eventType string) []stream.Event {
	t.Helper()
	var seen []stream.Event
	for {
		var ev stream.Event
		require.NoError(t, conn.ReadJSON(&ev))
		seen = append(seen, ev)
		if ev.Type == eventType {
			return seen
		}
	}
}

func TestWebSocketRunsDeliberation(t *testing.T) {
	conn := dial(t, &blockingDiscusser{})

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "start", "data": map[string]any{"topic": "Caching"}}))
	events := readUntil(t, conn, stream.EventComplete)

	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, stream.EventStart, events[0].Type)
	assert.Equal(t, stream.EventRoundStart, events[1].Type)
	last := events[len(events)-1]
	require.NotNil(t, last.Record)
	assert.Equal(t, "Caching", last.Record.Session.Topic)
	assert.Equal(t, events[0].RunID, last.RunID)
}

func TestWebSocketCancel(t *testing.T) {
	d := &blockingDiscusser{release: make(chan struct{})}
	conn := dial(t, d)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "start", "data": map[string]any{"topic": "t"}}))
	readUntil(t, conn, stream.EventRoundStart)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "start", "data": map[string]any{"topic": "again"}}))
	busy := readUntil(t, conn, stream.EventError)
	assert.Contains(t, busy[len(busy)-1].Error, "already running")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "cancel"}))
	failed := readUntil(t, conn, stream.EventError)
	assert.Contains(t, failed[len(failed)-1].Error, "context canceled")
}

func TestWebSocketRejectsUnknownMessages(t *testing.T) {
	conn := dial(t, &blockingDiscusser{})

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "audio"}))
	events := readUntil(t, conn, stream.EventError)
	assert.Contains(t, events[len(events)-1].Error, "unsupported message type")
}
