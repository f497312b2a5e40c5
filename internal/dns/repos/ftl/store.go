// Package ftl reads the Pi-hole FTL query log. The database is owned and
// written by another process, so the store only ever opens it read-only and
// holds a connection for the duration of a single query.
package ftl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/haukened/blockwatch/internal/dns/domain"
)

var (
	// ErrEmptyStore is returned by MaxID when the query table has no rows.
	ErrEmptyStore = errors.New("query log is empty")
	// ErrStoreNotFound is returned by Check when the database file does not exist.
	ErrStoreNotFound = errors.New("query log database not found")
)

const (
	latestIDQuery = `
		SELECT id
		FROM queries
		ORDER BY id DESC
		LIMIT 1;`

	blockedSinceQuery = `
		SELECT id, timestamp, status, domain, client
		FROM queries
		WHERE id >= ?
		AND status = ?
		ORDER BY id DESC;`

	busyTimeoutMS = 3000
)

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("sqlite", dsn)
}

// Store is a read-only view of an FTL database file.
type Store struct {
	path string
	dsn  string
}

// New returns a Store for the database at path. The file is not opened here;
// use Check to verify it exists.
func New(path string) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", p, err)
	}
	return &Store{path: abs, dsn: readOnlyDSN(abs)}, nil
}

// readOnlyDSN builds a SQLite URI opening path read-only with a busy timeout.
func readOnlyDSN(path string) string {
	q := url.Values{}
	q.Set("mode", "ro")
	q.Set("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path), RawQuery: q.Encode()}
	return u.String()
}

// Path returns the absolute database path.
func (s *Store) Path() string { return s.path }

// Check verifies that the database file exists and is a regular file.
func (s *Store) Check() error {
	fi, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrStoreNotFound, s.path)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", s.path, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", s.path)
	}
	return nil
}

// withDB opens the database, runs fn and always closes the handle.
func (s *Store) withDB(fn func(db *sql.DB) error) error {
	db, err := openDB(s.dsn)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)
	return fn(db)
}

// MaxID returns the highest row id in the query log, or ErrEmptyStore.
func (s *Store) MaxID(ctx context.Context) (int64, error) {
	var id int64
	err := s.withDB(func(db *sql.DB) error {
		return db.QueryRowContext(ctx, latestIDQuery).Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrEmptyStore
	}
	if err != nil {
		return 0, fmt.Errorf("latest id: %w", err)
	}
	return id, nil
}

// BlockedSince returns every blocked-by-upstream row with id >= from, newest first.
func (s *Store) BlockedSince(ctx context.Context, from int64) ([]domain.BlockEvent, error) {
	var events []domain.BlockEvent
	err := s.withDB(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, blockedSinceQuery, from, int(domain.StatusBlockedUpstream))
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		events, err = scanEvents(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("blocked since %d: %w", from, err)
	}
	return events, nil
}

func scanEvents(rows *sql.Rows) ([]domain.BlockEvent, error) {
	var out []domain.BlockEvent
	for rows.Next() {
		var (
			ev     domain.BlockEvent
			status int
			dom    sql.NullString
			client sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &status, &dom, &client); err != nil {
			return nil, err
		}
		ev.Status = domain.QueryStatus(status)
		ev.Domain = dom.String
		ev.Client = client.String
		out = append(out, ev)
	}
	return out, rows.Err()
}
