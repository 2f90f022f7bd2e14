package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"

	"clinic-sync/backend/internal/visit/domain"
	"clinic-sync/backend/internal/visit/store"
)

// writeSession drops a persisted session straight onto the fs, bypassing the
// store, so tests control LastModifiedAt exactly.
func writeSession(t *testing.T, fs afero.Fs, sess *domain.VisitSession) {
	t.Helper()
	raw, err := json.Marshal(sess)
	if err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "sessions/"+store.SessionFile, raw, 0o600); err != nil {
		t.Fatal(err)
	}
}

func sessionAt(lastModified time.Time) *domain.VisitSession {
	sess := domain.Empty()
	sess.Active = true
	sess.Patient = &domain.Patient{ID: "p1", Name: "Siti"}
	sess.Stages[domain.StageAnamnesa] = domain.StagePayload{"complaint": "headache"}
	sess.LastModifiedAt = lastModified
	return sess
}

func TestRecover_FreshSessionResumedUnchanged(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	writeSession(t, fs, sessionAt(now.Add(-23*time.Hour)))

	st := store.New(fs, "sessions")
	guard := NewRecoveryGuard(st)
	guard.nowF = func() time.Time { return now }

	sess := guard.Recover()
	if sess == nil {
		t.Fatal("a 23h-old session should be resumed")
	}
	if sess.Patient.ID != "p1" {
		t.Errorf("patient = %s, want p1", sess.Patient.ID)
	}
	if got := sess.Stages[domain.StageAnamnesa]["complaint"]; got != "headache" {
		t.Errorf("anamnesa payload = %v, resume must not alter the session", got)
	}
	if !st.HasActive() {
		t.Error("resumed session should still be persisted")
	}
}

func TestRecover_StaleSessionClearedSilently(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	writeSession(t, fs, sessionAt(now.Add(-25*time.Hour)))

	st := store.New(fs, "sessions")
	guard := NewRecoveryGuard(st)
	guard.nowF = func() time.Time { return now }

	if sess := guard.Recover(); sess != nil {
		t.Fatalf("Recover = %+v, a 25h-old session must be discarded", sess)
	}
	if st.Load() != nil {
		t.Error("stale session should be cleared from disk, not left behind")
	}
}

func TestRecover_ExactBoundaryResumed(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	writeSession(t, fs, sessionAt(now.Add(-domain.StaleAfter)))

	st := store.New(fs, "sessions")
	guard := NewRecoveryGuard(st)
	guard.nowF = func() time.Time { return now }

	if guard.Recover() == nil {
		t.Error("a session exactly at the staleness boundary should resume")
	}
}

func TestRecover_NoSessionReturnsNil(t *testing.T) {
	st := store.New(afero.NewMemMapFs(), "sessions")
	guard := NewRecoveryGuard(st)

	if sess := guard.Recover(); sess != nil {
		t.Errorf("Recover = %+v, want nil on a fresh terminal", sess)
	}
}

func TestRecover_InactiveSessionReturnsNil(t *testing.T) {
	fs := afero.NewMemMapFs()
	sess := sessionAt(time.Now())
	sess.Active = false
	writeSession(t, fs, sess)

	st := store.New(fs, "sessions")
	guard := NewRecoveryGuard(st)

	if got := guard.Recover(); got != nil {
		t.Errorf("Recover = %+v, want nil for an inactive session", got)
	}
}

func TestRecover_SessionWithoutPatientReturnsNil(t *testing.T) {
	fs := afero.NewMemMapFs()
	sess := sessionAt(time.Now())
	sess.Patient = nil
	writeSession(t, fs, sess)

	st := store.New(fs, "sessions")
	guard := NewRecoveryGuard(st)

	if got := guard.Recover(); got != nil {
		t.Errorf("Recover = %+v, want nil for a session with no patient", got)
	}
}
