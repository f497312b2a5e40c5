package monitor

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haukened/blockwatch/internal/dns/common/clock"
	"github.com/haukened/blockwatch/internal/dns/domain"
	"github.com/haukened/blockwatch/internal/dns/repos/ftl"
)

type entry struct {
	level  string
	fields map[string]any
	msg    string
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []entry
}

func (l *recordingLogger) add(level string, f map[string]any, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry{level: level, fields: f, msg: msg})
}

func (l *recordingLogger) Info(f map[string]any, msg string)  { l.add("info", f, msg) }
func (l *recordingLogger) Error(f map[string]any, msg string) { l.add("error", f, msg) }
func (l *recordingLogger) Debug(f map[string]any, msg string) { l.add("debug", f, msg) }
func (l *recordingLogger) Warn(f map[string]any, msg string)  { l.add("warn", f, msg) }
func (l *recordingLogger) Panic(f map[string]any, msg string) { l.add("panic", f, msg) }
func (l *recordingLogger) Fatal(f map[string]any, msg string) { l.add("fatal", f, msg) }

func (l *recordingLogger) byMsg(msg string) []entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []entry
	for _, e := range l.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

type recordingSink struct {
	batches [][]domain.BlockEvent
	panics  bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Notify(_ context.Context, events []domain.BlockEvent) {
	s.batches = append(s.batches, events)
	if s.panics {
		panic("sink exploded")
	}
}

func (s *recordingSink) ids() []int64 {
	var out []int64
	for _, b := range s.batches {
		for _, ev := range b {
			out = append(out, ev.ID)
		}
	}
	return out
}

type fakeSource struct {
	maxID  int64
	maxErr error
	// MaxID calls that succeed before maxErr or panics take effect
	maxErrAfter int
	maxCalls    int

	events     []domain.BlockEvent
	blockedErr error
	checkErr   error
	froms      []int64
	panics     bool
}

func (s *fakeSource) MaxID(context.Context) (int64, error) {
	s.maxCalls++
	if s.maxCalls <= s.maxErrAfter {
		return s.maxID, nil
	}
	if s.panics {
		panic("source exploded")
	}
	return s.maxID, s.maxErr
}

func (s *fakeSource) BlockedSince(_ context.Context, from int64) ([]domain.BlockEvent, error) {
	s.froms = append(s.froms, from)
	return s.events, s.blockedErr
}

func (s *fakeSource) Check() error { return s.checkErr }

// queryLog is a writable FTL database used to simulate the resolver
// appending rows while the monitor reads it.
type queryLog struct {
	t    *testing.T
	path string
	db   *sql.DB
}

func newQueryLog(t *testing.T) *queryLog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pihole-FTL.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE queries(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		status INTEGER NOT NULL,
		domain TEXT NOT NULL,
		client TEXT NOT NULL
	);`)
	require.NoError(t, err)
	return &queryLog{t: t, path: path, db: db}
}

func (q *queryLog) insert(id int64, status int, dom string) {
	q.t.Helper()
	_, err := q.db.Exec(`INSERT INTO queries(id, timestamp, status, domain, client) VALUES(?, ?, ?, ?, ?)`,
		id, 1700000000+id, status, dom, "10.0.0.5")
	require.NoError(q.t, err)
}

func (q *queryLog) store() *ftl.Store {
	q.t.Helper()
	st, err := ftl.New(q.path)
	require.NoError(q.t, err)
	return st
}

func newMockClock() *clock.MockClock {
	return &clock.MockClock{CurrentTime: time.Unix(1700000000, 0)}
}
