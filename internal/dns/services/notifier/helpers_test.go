package notifier

import (
	"context"
	"errors"
	"sync"

	"github.com/haukened/blockwatch/internal/dns/domain"
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

func (l *recordingLogger) byLevel(level string) []entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []entry
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}

type recordingSink struct {
	name    string
	batches [][]domain.BlockEvent
	panics  bool
}

func (s *recordingSink) Name() string {
	if s.name == "" {
		return "recording"
	}
	return s.name
}

func (s *recordingSink) Notify(_ context.Context, events []domain.BlockEvent) {
	s.batches = append(s.batches, events)
	if s.panics {
		panic("sink exploded")
	}
}

type sentMail struct {
	recipients      []string
	sender, subject string
	body            string
}

type fakeTransport struct {
	sent []sentMail
	err  error
}

func (t *fakeTransport) Send(_ context.Context, recipients []string, sender, subject, body string) error {
	t.sent = append(t.sent, sentMail{recipients: recipients, sender: sender, subject: subject, body: body})
	return t.err
}

type fakeEnricher struct {
	cats   map[string][]string
	fail   map[string]bool
	panics map[string]bool
	calls  []string
}

func (e *fakeEnricher) Categories(_ context.Context, name string) ([]string, error) {
	e.calls = append(e.calls, name)
	if e.panics[name] {
		panic("enricher exploded")
	}
	if e.fail[name] {
		return nil, errors.New("lookup failed")
	}
	return e.cats[name], nil
}

type fakeAllowlist map[string]bool

func (a fakeAllowlist) Decide(name string) domain.AllowDecision {
	if a[name] {
		return domain.AllowDecision{Allowed: true, MatchedRule: name, Source: "config", Kind: domain.AllowRuleExact}
	}
	return domain.EmptyDecision()
}

func ev(id int64, d string) domain.BlockEvent {
	return domain.BlockEvent{ID: id, Timestamp: 1700000000 + id, Status: domain.StatusBlockedUpstream, Domain: d, Client: "10.0.0.5"}
}
