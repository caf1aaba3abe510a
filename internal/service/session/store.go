package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	model "github.com/zhouzirui/z-council/backend/internal/model/council"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrInvalidRecord = errors.New("session record is incomplete")
)

// Record wraps a finished deliberation with the metadata needed to list and replay it.
type Record struct {
	ID            string              `json:"id"`
	CreatedAt     time.Time           `json:"created_at"`
	ConsensusType model.ConsensusType `json:"consensus_type"`
	MaxRounds     int                 `json:"max_rounds"`
	Session       model.Session       `json:"session"`
}

// Summary is the lightweight listing form of a Record.
type Summary struct {
	ID               string              `json:"id"`
	CreatedAt        time.Time           `json:"created_at"`
	Topic            string              `json:"topic"`
	ConsensusType    model.ConsensusType `json:"consensus_type"`
	Rounds           int                 `json:"rounds"`
	ConsensusReached bool                `json:"consensus_reached"`
}

// Summarize projects a record onto its listing form.
func (r Record) Summarize() Summary {
	return Summary{
		ID:               r.ID,
		CreatedAt:        r.CreatedAt,
		Topic:            r.Session.Topic,
		ConsensusType:    r.ConsensusType,
		Rounds:           len(r.Session.Rounds),
		ConsensusReached: r.Session.ConsensusReached,
	}
}

// NewRecord stamps a fresh id and creation time on a finished session.
func NewRecord(s model.Session, policy model.ConsensusType, maxRounds int) Record {
	return Record{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		ConsensusType: policy,
		MaxRounds:     maxRounds,
		Session:       s,
	}
}

// Store persists finished sessions. List returns newest first.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, id string) (Record, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) error
}

func prepare(rec *Record) error {
	if rec.Session.Topic == "" {
		return ErrInvalidRecord
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return nil
}

func sortNewestFirst(items []Summary) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

// MemoryStore keeps records in process memory; contents vanish on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore bootstraps an empty in-memory archive.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	if err := prepare(&rec); err != nil {
		return err
	}
	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	items := make([]Summary, 0, len(s.records))
	for _, rec := range s.records {
		items = append(items, rec.Summarize())
	}
	s.mu.RUnlock()

	sortNewestFirst(items)
	return items, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}
