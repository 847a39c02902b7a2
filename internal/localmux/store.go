package localmux

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/muxpane/muxpane/internal/layout"
)

// ErrNoLayout reports a session with no stored layout.
var ErrNoLayout = errors.New("localmux: layout not found")

// Store persists session layouts in SQLite so a session survives client
// restarts.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and migrates) the layout database at path.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("localmux: create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("localmux: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("localmux: ping sqlite: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type migration struct {
	version int
	upSQL   string
}

var migrations = []migration{
	{
		version: 1,
		upSQL: `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS layout_nodes (
	session_id TEXT NOT NULL,
	node_id TEXT NOT NULL,
	parent_id TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL DEFAULT 0,
	x INTEGER NOT NULL,
	y INTEGER NOT NULL,
	w INTEGER NOT NULL,
	h INTEGER NOT NULL,
	process_id TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	PRIMARY KEY(session_id, node_id)
);

CREATE INDEX IF NOT EXISTS idx_layout_nodes_session ON layout_nodes(session_id);
`,
	},
}

func (s *Store) migrate(ctx context.Context) error {
	for _, m := range migrations {
		var applied int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.version).Scan(&applied)
		if err == nil && applied > 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.upSQL); err != nil {
			return fmt.Errorf("localmux: migration %d: %w", m.version, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO schema_migrations(version, applied_at) VALUES (?, ?)`,
			m.version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("localmux: record migration %d: %w", m.version, err)
		}
	}
	return nil
}

// SaveLayout replaces the stored tree for a session.
func (s *Store) SaveLayout(ctx context.Context, sessionID string, nodes []layout.NodeSpec) error {
	if s == nil || s.db == nil {
		return errors.New("localmux: store is closed")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("localmux: begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM layout_nodes WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("localmux: clear layout: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, node := range nodes {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO layout_nodes(session_id, node_id, parent_id, position, x, y, w, h, process_id, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, node.ID, node.ParentID, node.Position,
			node.Bounds.X, node.Bounds.Y, node.Bounds.W, node.Bounds.H,
			node.ProcessID, now); err != nil {
			return fmt.Errorf("localmux: insert node %q: %w", node.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("localmux: commit save: %w", err)
	}
	return nil
}

// LoadLayout returns the stored tree for a session, or ErrNoLayout.
func (s *Store) LoadLayout(ctx context.Context, sessionID string) ([]layout.NodeSpec, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("localmux: store is closed")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT node_id, parent_id, position, x, y, w, h, process_id
FROM layout_nodes WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("localmux: load layout: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []layout.NodeSpec
	for rows.Next() {
		var node layout.NodeSpec
		if err := rows.Scan(&node.ID, &node.ParentID, &node.Position,
			&node.Bounds.X, &node.Bounds.Y, &node.Bounds.W, &node.Bounds.H,
			&node.ProcessID); err != nil {
			return nil, fmt.Errorf("localmux: scan node: %w", err)
		}
		out = append(out, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("localmux: load layout: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNoLayout
	}
	return out, nil
}

// DeleteLayout removes a session's stored tree.
func (s *Store) DeleteLayout(ctx context.Context, sessionID string) error {
	if s == nil || s.db == nil {
		return errors.New("localmux: store is closed")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM layout_nodes WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("localmux: delete layout: %w", err)
	}
	return nil
}
