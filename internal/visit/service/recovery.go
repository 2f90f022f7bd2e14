package service

import (
	"log"
	"time"

	"clinic-sync/backend/internal/visit/domain"
	"clinic-sync/backend/internal/visit/store"
)

// RecoveryGuard decides, once per terminal boot, whether a persisted session
// is resumed or discarded.
type RecoveryGuard struct {
	store *store.Store
	nowF  func() time.Time
}

// NewRecoveryGuard returns a guard over the given store.
func NewRecoveryGuard(st *store.Store) *RecoveryGuard {
	return &RecoveryGuard{store: st, nowF: time.Now}
}

// Recover returns the session to resume, or nil when the terminal should
// start at patient selection. A session older than 24 hours is cleared and
// not resumed; expiry is silent, resume is silent — the operator is never
// prompted either way.
func (g *RecoveryGuard) Recover() *domain.VisitSession {
	sess := g.store.Load()
	if sess == nil || !sess.Active || sess.Patient == nil {
		return nil
	}
	if sess.Stale(g.nowF()) {
		log.Printf("recovery: discarding stale session for patient %s (last modified %s)",
			sess.Patient.ID, sess.LastModifiedAt.Format(time.RFC3339))
		g.store.Clear()
		return nil
	}
	return sess
}
