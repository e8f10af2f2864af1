package equity

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Snapshot is one account_history row written at the end of a tick.
type Snapshot struct {
	Time          time.Time `json:"time"`
	Equity        float64   `json:"equity"`
	DailyPnL      float64   `json:"daily_pnl"`
	RunState      string    `json:"run_state"`
	OpenPositions int       `json:"open_positions"`
}

// Store keeps account equity history in its own sqlite file.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("equity store path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("equity store is closed")
	}
	return s.db, nil
}

func (s *Store) Record(ctx context.Context, snap Snapshot) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	ts := snap.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO account_history(ts, equity, daily_pnl, run_state, open_positions)
		VALUES (?, ?, ?, ?, ?);
	`, ts.UnixMilli(), snap.Equity, snap.DailyPnL, snap.RunState, snap.OpenPositions)
	return err
}

// Recent returns the latest limit snapshots, oldest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Snapshot, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.QueryContext(ctx, `
		SELECT ts, equity, daily_pnl, run_state, open_positions
		FROM account_history
		ORDER BY ts DESC, id DESC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		var (
			ts    int64
			state sql.NullString
			snap  Snapshot
		)
		if err := rows.Scan(&ts, &snap.Equity, &snap.DailyPnL, &state, &snap.OpenPositions); err != nil {
			return nil, err
		}
		snap.Time = time.UnixMilli(ts).UTC()
		snap.RunState = state.String
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func ensureSchema(db *sql.DB) error {
	stmt := `
	CREATE TABLE IF NOT EXISTS account_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		equity REAL NOT NULL,
		daily_pnl REAL NOT NULL DEFAULT 0,
		run_state TEXT,
		open_positions INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_account_history_ts ON account_history(ts);
	`
	_, err := db.Exec(stmt)
	return err
}
