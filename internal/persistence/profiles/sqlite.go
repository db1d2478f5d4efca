// Package profiles persists avatar identity and last-known positions in a
// local sqlite database, so robots resume where they stood across restarts
// and a returning player gets the same avatar back.
package profiles

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"tiletown.ai/internal/sim/world"
)

// Avatar is one persisted identity, robot-driven unless a player holds it.
type Avatar struct {
	ID        string
	Name      string
	Color     string
	Bio       string
	Kind      string
	X         int
	Y         int
	FacingX   int
	FacingY   int
	UpdatedAt time.Time
}

type Store struct {
	db *sql.DB

	ch   chan []world.PositionRow
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db: db,
		// Position flushes are whole-world batches; a short queue suffices.
		ch: make(chan []world.PositionRow, 16),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS avatars (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'ROBOT',
			x INTEGER NOT NULL DEFAULT 0,
			y INTEGER NOT NULL DEFAULT 0,
			facing_x INTEGER NOT NULL DEFAULT 0,
			facing_y INTEGER NOT NULL DEFAULT 1,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_avatars_kind ON avatars(kind);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// PositionSink returns the channel the world loop flushes position batches
// into. The store drains it on its own goroutine.
func (s *Store) PositionSink() chan<- []world.PositionRow { return s.ch }

var errClosed = fmt.Errorf("profiles: store is closed")

// UpsertAvatar creates or updates one avatar record.
func (s *Store) UpsertAvatar(a Avatar) error {
	if s.closed.Load() {
		return errClosed
	}
	_, err := s.db.Exec(
		`INSERT INTO avatars(id,name,color,bio,kind,x,y,facing_x,facing_y,updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, color=excluded.color, bio=excluded.bio,
		   kind=excluded.kind, x=excluded.x, y=excluded.y,
		   facing_x=excluded.facing_x, facing_y=excluded.facing_y,
		   updated_at=excluded.updated_at`,
		a.ID, a.Name, a.Color, a.Bio, a.Kind,
		a.X, a.Y, a.FacingX, a.FacingY,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetAvatar loads one avatar by id.
func (s *Store) GetAvatar(id string) (Avatar, bool, error) {
	row := s.db.QueryRow(
		`SELECT id,name,color,bio,kind,x,y,facing_x,facing_y,updated_at FROM avatars WHERE id=?`, id)
	a, err := scanAvatar(row)
	if err == sql.ErrNoRows {
		return Avatar{}, false, nil
	}
	if err != nil {
		return Avatar{}, false, err
	}
	return a, true, nil
}

// ListAvatars returns every persisted avatar, ordered by id.
func (s *Store) ListAvatars() ([]Avatar, error) {
	rows, err := s.db.Query(
		`SELECT id,name,color,bio,kind,x,y,facing_x,facing_y,updated_at FROM avatars ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Avatar
	for rows.Next() {
		a, err := scanAvatar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAvatar removes one avatar record.
func (s *Store) DeleteAvatar(id string) error {
	if s.closed.Load() {
		return errClosed
	}
	_, err := s.db.Exec(`DELETE FROM avatars WHERE id=?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAvatar(r rowScanner) (Avatar, error) {
	var a Avatar
	var updated string
	if err := r.Scan(&a.ID, &a.Name, &a.Color, &a.Bio, &a.Kind,
		&a.X, &a.Y, &a.FacingX, &a.FacingY, &updated); err != nil {
		return Avatar{}, err
	}
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return a, nil
}

// loop drains position batches off the world loop. Each batch rewrites the
// kinematic columns for the avatars it covers; identity columns are left
// alone.
func (s *Store) loop() {
	update, err := s.db.Prepare(
		`INSERT INTO avatars(id,name,kind,x,y,facing_x,facing_y,updated_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, kind=excluded.kind,
		   x=excluded.x, y=excluded.y,
		   facing_x=excluded.facing_x, facing_y=excluded.facing_y,
		   updated_at=excluded.updated_at`)
	if err != nil {
		return
	}
	defer update.Close()

	for batch := range s.ch {
		tx, err := s.db.Begin()
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		ok := true
		for _, row := range batch {
			if row.Kind == string(world.KindWall) {
				continue
			}
			if _, err := tx.Stmt(update).Exec(
				row.EntityID, row.Name, row.Kind,
				row.X, row.Y, row.FacingX, row.FacingY, now,
			); err != nil {
				ok = false
				break
			}
		}
		if !ok {
			_ = tx.Rollback()
			continue
		}
		_ = tx.Commit()
	}
}
