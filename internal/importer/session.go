package importer

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("import session not found")

// Session carries the state of one spreadsheet import from upload through
// commit. All of it lives in memory; dropping the session discards the work.
type Session struct {
	ID       string
	FileName string

	mu          sync.Mutex
	groups      *GroupTable
	records     []Record
	rows        []ParsedRow
	warnings    []Warning
	reconciled  *ReconcileResult
	failed      []FailedUpdate
	committing  bool
	lastTouched time.Time
	subscribers map[chan ProgressEvent]struct{}
}

func NewSession(fileName string) *Session {
	return &Session{
		ID:          uuid.NewString(),
		FileName:    fileName,
		groups:      NewGroupTable(),
		lastTouched: time.Now(),
		subscribers: map[chan ProgressEvent]struct{}{},
	}
}

func (s *Session) touch() { s.lastTouched = time.Now() }

func (s *Session) IdleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouched.Before(cutoff)
}

func (s *Session) Groups() *GroupTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.groups
}

// SetParsed stores the decoded grid alongside the parse output. The grid is
// kept so a later group-mapping paste can re-run parsing without another
// upload. Any earlier dry-run is invalidated, since the classification no
// longer reflects the rows.
func (s *Session) SetParsed(records []Record, rows []ParsedRow, warnings []Warning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.records = records
	s.rows = rows
	s.warnings = warnings
	s.reconciled = nil
	s.failed = nil
}

func (s *Session) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.records
}

// Reparse re-runs row parsing over the stored grid with the current group
// table, replacing rows and warnings and invalidating any dry-run.
func (s *Session) Reparse() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.rows, s.warnings = ParseRows(s.records, s.groups)
	s.reconciled = nil
	s.failed = nil
}

func (s *Session) Rows() ([]ParsedRow, []Warning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.rows, s.warnings
}

func (s *Session) SetReconciled(result *ReconcileResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.reconciled = result
	s.failed = nil
}

func (s *Session) Reconciled() *ReconcileResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.reconciled
}

// BeginCommit marks the session busy so two overlapping commits cannot write
// the same rows twice. Returns false when a commit is already running.
func (s *Session) BeginCommit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.committing {
		return false
	}
	s.committing = true
	return true
}

func (s *Session) EndCommit(failed []FailedUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.committing = false
	s.failed = failed
}

func (s *Session) FailedUpdates() []FailedUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	out := make([]FailedUpdate, len(s.failed))
	copy(out, s.failed)
	return out
}

// Subscribe registers a progress listener. The returned cancel func must be
// called when the listener goes away.
func (s *Session) Subscribe() (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 16)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subscribers, ch)
		s.mu.Unlock()
	}
}

// Publish fans a progress event out to subscribers. Slow listeners drop
// events rather than stall the commit.
func (s *Session) Publish(ev ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, ch)
	}
	s.records = nil
	s.rows = nil
	s.reconciled = nil
	s.failed = nil
}
