package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/z-council/backend/internal/model/council"
	councilsvc "github.com/zhouzirui/z-council/backend/internal/service/council"
	"github.com/zhouzirui/z-council/backend/internal/service/session"
)

// scriptedDiscusser replays a tiny one-round deliberation through the hooks.
type scriptedDiscusser struct {
	err error
	got councilsvc.DiscussRequest
}

func (s *scriptedDiscusser) Discuss(ctx context.Context, req councilsvc.DiscussRequest, hooks councilsvc.Hooks) (session.Record, error) {
	s.got = req
	if s.err != nil {
		return session.Record{}, s.err
	}
	hooks.OnRoundStart(ctx, 1)
	hooks.OnMessage(ctx, model.Message{PersonaName: "Chair", Content: "Hello", Round: 1, Kind: model.KindDiscussion, IsMediator: true})
	hooks.OnConsensusCheck(ctx, councilsvc.ConsensusEvent{Round: 1, Reached: true, Position: "Ship", Summary: "All agree"})
	return session.NewRecord(model.Session{Topic: req.Topic, FinalConsensus: model.StringPtr("Ship"), ConsensusReached: true}, model.Majority, 1), nil
}

func stream(d Discusser, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	New(d, zerolog.Nop()).RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestStreamEmitsEventsInOrder(t *testing.T) {
	d := &scriptedDiscusser{}
	rec := stream(d, "/council/stream?topic=Caching&personas=Chair,%20Alpha&max_rounds=2&consensus_type=unanimous")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, []string{"Chair", "Alpha"}, d.got.PersonaNames)
	assert.Equal(t, 2, d.got.MaxRounds)
	assert.Equal(t, "unanimous", d.got.ConsensusType)

	body := rec.Body.String()
	order := []string{"event: start", "event: round_start", "event: message", "event: consensus_check", "event: complete"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(body, marker)
		require.NotEqual(t, -1, idx, marker)
		assert.Greater(t, idx, last, marker)
		last = idx
	}
	assert.Contains(t, body, `"persona_name":"Chair"`)
	assert.Contains(t, body, `"final_consensus":"Ship"`)
	assert.NotContains(t, body, "event: error")
}

func TestStreamReportsErrors(t *testing.T) {
	rec := stream(&scriptedDiscusser{err: errors.New("provider down")}, "/council/stream?topic=t")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: error")
	assert.Contains(t, rec.Body.String(), "provider down")
	assert.NotContains(t, rec.Body.String(), "event: complete")
}

func TestStreamValidatesQuery(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, stream(&scriptedDiscusser{}, "/council/stream").Code)
	assert.Equal(t, http.StatusBadRequest, stream(&scriptedDiscusser{}, "/council/stream?topic=t&count=many").Code)
	assert.Equal(t, http.StatusBadRequest, stream(&scriptedDiscusser{}, "/council/stream?topic=t&generate=maybe").Code)
}
