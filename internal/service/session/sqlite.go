package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	model "github.com/zhouzirui/z-council/backend/internal/model/council"
)

// SQLiteStore archives sessions in a single local database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS council_sessions (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			topic TEXT NOT NULL,
			consensus_type TEXT NOT NULL,
			max_rounds INTEGER NOT NULL,
			rounds INTEGER NOT NULL,
			consensus_reached INTEGER NOT NULL,
			payload TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_council_sessions_created ON council_sessions(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	defer observe("sqlite", "save", time.Now())
	if err := prepare(&rec); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO council_sessions
		(id, created_at, topic, consensus_type, max_rounds, rounds, consensus_reached, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			topic = excluded.topic,
			consensus_type = excluded.consensus_type,
			max_rounds = excluded.max_rounds,
			rounds = excluded.rounds,
			consensus_reached = excluded.consensus_reached,
			payload = excluded.payload`,
		rec.ID,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.Session.Topic,
		string(rec.ConsensusType),
		rec.MaxRounds,
		len(rec.Session.Rounds),
		boolToInt(rec.Session.ConsensusReached),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (Record, error) {
	defer observe("sqlite", "load", time.Now())
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM council_sessions WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("load session: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	defer observe("sqlite", "list", time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at, topic, consensus_type, rounds, consensus_reached
		FROM council_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	items := make([]Summary, 0)
	for rows.Next() {
		var (
			item      Summary
			createdAt string
			policy    string
			reached   int
		)
		if err := rows.Scan(&item.ID, &createdAt, &item.Topic, &policy, &item.Rounds, &reached); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		item.ConsensusType = model.ConsensusType(policy)
		item.ConsensusReached = reached != 0
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// RFC3339Nano trims trailing zeros, so text ordering is not exact.
	sortNewestFirst(items)
	return items, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	defer observe("sqlite", "delete", time.Now())
	res, err := s.db.ExecContext(ctx, `DELETE FROM council_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
