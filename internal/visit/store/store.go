// Package store persists the terminal's single visit session to durable
// local storage. Losing the persisted copy must never block clinical work:
// persistence failures are logged and swallowed, and the session keeps
// working in memory for the rest of the process lifetime.
package store

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"clinic-sync/backend/internal/visit/domain"
)

// SessionFile is the fixed file name holding the serialized session.
const SessionFile = "current_session.json"

// Fragment is a partial session to merge into the current one. Nil fields are
// left unchanged; a stage payload replaces the whole record for that stage.
type Fragment struct {
	Patient     *domain.Patient
	Stages      map[domain.Stage]domain.StagePayload
	Services    []domain.ServiceItem
	Medications []domain.MedicationItem
}

// Store is the terminal-local session store. It owns the in-memory handle and
// the persisted copy; construct one per terminal and inject it where needed.
type Store struct {
	mu      sync.Mutex
	fs      afero.Fs
	path    string
	current *domain.VisitSession
	nowF    func() time.Time
}

// New returns a Store persisting to SessionFile under dir on fs.
func New(fs afero.Fs, dir string) *Store {
	return &Store{
		fs:      fs,
		path:    filepath.Join(dir, SessionFile),
		current: domain.Empty(),
		nowF:    time.Now,
	}
}

// Save shallow-merges frag into the session, stamps LastModifiedAt, marks the
// session active, and persists. It never fails: a persistence error (full
// disk, read-only profile) is logged and the in-memory session carries on.
//
// Selecting a new patient does not clear stage payloads from a previous
// patient; only Clear discards them.
func (s *Store) Save(frag Fragment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if frag.Patient != nil {
		p := *frag.Patient
		s.current.Patient = &p
	}
	if s.current.Stages == nil {
		s.current.Stages = make(map[domain.Stage]domain.StagePayload)
	}
	for stage, payload := range frag.Stages {
		s.current.Stages[stage] = payload
	}
	if frag.Services != nil {
		s.current.Services = append([]domain.ServiceItem(nil), frag.Services...)
	}
	if frag.Medications != nil {
		s.current.Medications = append([]domain.MedicationItem(nil), frag.Medications...)
	}
	s.current.SchemaVersion = domain.SchemaVersion
	s.current.LastModifiedAt = s.nowF()
	s.current.Active = true

	s.persistLocked()
}

// Load returns the persisted session, or nil when none exists, it cannot be
// parsed, or it was written by a different schema version. It never returns
// an error: a corrupt session is the same as no session.
func (s *Store) Load() *domain.VisitSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil
	}
	var sess domain.VisitSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		log.Printf("session store: discarding unparsable session: %v", err)
		return nil
	}
	if sess.SchemaVersion != domain.SchemaVersion {
		log.Printf("session store: discarding session with schema version %d (current %d)", sess.SchemaVersion, domain.SchemaVersion)
		return nil
	}
	if sess.Stages == nil {
		sess.Stages = make(map[domain.Stage]domain.StagePayload)
	}
	s.current = &sess
	return sess.Clone()
}

// Clear removes the persisted session and resets the in-memory handle to the
// empty inactive shape. Idempotent: clearing an already-clear store is a
// no-op.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(s.path); err != nil && !isNotExist(err) {
		log.Printf("session store: clear failed: %v", err)
	}
	s.current = domain.Empty()
}

// HasActive reports whether a persisted session exists, is active, and has a
// patient attached.
func (s *Store) HasActive() bool {
	sess := s.Load()
	return sess != nil && sess.Active && sess.Patient != nil
}

// Current returns a copy of the in-memory session handle. Unlike Load it does
// not touch the filesystem, so it reflects saves that failed to persist.
func (s *Store) Current() *domain.VisitSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// persistLocked writes the current session to the session file. Callers hold
// s.mu. Failure is logged only.
func (s *Store) persistLocked() {
	raw, err := json.Marshal(s.current)
	if err != nil {
		log.Printf("session store: marshal failed: %v", err)
		return
	}
	if dir := filepath.Dir(s.path); dir != "." {
		_ = s.fs.MkdirAll(dir, 0o700)
	}
	if err := afero.WriteFile(s.fs, s.path, raw, 0o600); err != nil {
		log.Printf("session store: persist failed, continuing in memory: %v", err)
	}
}

func isNotExist(err error) bool {
	// Both the os and memmap backends wrap os.ErrNotExist in *os.PathError.
	return errors.Is(err, os.ErrNotExist)
}
