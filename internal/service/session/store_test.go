package session

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-council/backend/internal/config"
	model "github.com/zhouzirui/z-council/backend/internal/model/council"
	"github.com/zhouzirui/z-council/backend/internal/model/persona"
)

func sampleSession(topic string) model.Session {
	agree := model.Agree
	return model.Session{
		Topic:     topic,
		Objective: "Decide",
		Personas:  persona.Defaults(3),
		Rounds: []model.RoundResult{{
			Round: 1,
			Messages: []model.Message{
				{PersonaName: "The Diplomat", Content: "Let's frame it.", Round: 1, Kind: model.KindDiscussion, IsMediator: true},
				{PersonaName: "The Pragmatist", Content: "[PASS]", Round: 1, Kind: model.KindDiscussion, IsPass: true},
			},
			ConsensusReached:  true,
			ConsensusPosition: model.StringPtr("Ship it"),
			Proposal:          model.StringPtr("Ship it"),
			Votes: []model.Vote{
				{PersonaName: "The Pragmatist", Choice: model.Agree, Confidence: 0.9, Reasoning: "Cheap | fast", ParseSuccess: true},
				{PersonaName: "The Innovator", Choice: model.Abstain, Confidence: 0.5, Reasoning: "?"},
			},
			Tally: &model.VoteTally{Policy: model.Majority, AgreeCount: 1, AbstainCount: 1, TotalVoting: 2, AgreeRatio: 0.5, WinningChoice: &agree},
		}},
		FinalConsensus:   model.StringPtr("Ship it"),
		ConsensusReached: true,
	}
}

// exerciseStore runs the shared contract every backend must satisfy.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "missing"), ErrNotFound)
	assert.ErrorIs(t, store.Save(ctx, Record{}), ErrInvalidRecord)

	older := NewRecord(sampleSession("older"), model.Majority, 3)
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := NewRecord(sampleSession("newer"), model.Unanimous, 5)
	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	loaded, err := store.Load(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "older", loaded.Session.Topic)
	assert.Equal(t, model.Majority, loaded.ConsensusType)
	assert.Equal(t, 3, loaded.MaxRounds)
	require.NotNil(t, loaded.Session.FinalConsensus)
	assert.Equal(t, "Ship it", *loaded.Session.FinalConsensus)
	require.Len(t, loaded.Session.Rounds, 1)
	assert.Len(t, loaded.Session.Rounds[0].Votes, 2)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, "newer", list[0].Topic)
	assert.Equal(t, model.Unanimous, list[0].ConsensusType)
	assert.Equal(t, 1, list[0].Rounds)
	assert.True(t, list[0].ConsensusReached)

	require.NoError(t, store.Delete(ctx, older.ID))
	_, err = store.Load(ctx, older.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreAssignsID(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), Record{Session: sampleSession("t")}))
	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotEmpty(t, list[0].ID)
	assert.False(t, list[0].CreatedAt.IsZero())
}

func newMiniredisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	return NewRedisStoreFromClient(client, opts...), mr
}

func TestRedisStore(t *testing.T) {
	store, _ := newMiniredisStore(t)
	exerciseStore(t, store)
}

func TestRedisStoreKeysAndTTL(t *testing.T) {
	store, mr := newMiniredisStore(t, WithPrefix("test:"), WithTTL(time.Minute))
	ctx := context.Background()

	rec := NewRecord(sampleSession("ttl"), model.Majority, 2)
	require.NoError(t, store.Save(ctx, rec))
	assert.True(t, mr.Exists("test:"+rec.ID))
	assert.Equal(t, time.Minute, mr.TTL("test:"+rec.ID))

	raw, err := mr.Get("test:" + rec.ID)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Contains(t, decoded, "session")

	mr.FastForward(2 * time.Minute)
	_, err = store.Load(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore("not a url")
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "council.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)
}

func TestSQLiteStoreUpsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "council.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	rec := NewRecord(sampleSession("first"), model.Majority, 2)
	require.NoError(t, store.Save(ctx, rec))
	rec.Session.Topic = "renamed"
	require.NoError(t, store.Save(ctx, rec))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "renamed", list[0].Topic)
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := Open(ctx, config.StoreConfig{Kind: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	assert.NoError(t, closeFn())

	mr := miniredis.RunT(t)
	store, closeFn, err = Open(ctx, config.StoreConfig{Kind: "redis", RedisURL: "redis://" + mr.Addr() + "/0", TTL: time.Hour})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	assert.NoError(t, closeFn())

	store, closeFn, err = Open(ctx, config.StoreConfig{Kind: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	assert.NoError(t, closeFn())

	_, _, err = Open(ctx, config.StoreConfig{Kind: "etcd"})
	assert.Error(t, err)
}
