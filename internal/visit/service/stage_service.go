// Package service holds the stage mergers and the recovery guard: the pieces
// that sit between the stage screens and the local session store.
package service

import (
	"log"

	"clinic-sync/backend/internal/presence/broadcaster"
	presencedomain "clinic-sync/backend/internal/presence/domain"
	"clinic-sync/backend/internal/visit/domain"
	"clinic-sync/backend/internal/visit/store"
)

// Publisher is the slice of the event broadcaster the mergers need.
type Publisher interface {
	Broadcast(t presencedomain.EventType, subjectID string, payload map[string]any) broadcaster.Delivery
}

// StageService merges stage payloads into the session store and announces
// changes other terminals care about. Business validation of payload contents
// belongs to the calling screen, not here.
type StageService struct {
	store *store.Store
	pub   Publisher
}

// NewStageService returns a StageService over the given store. pub may be nil
// when the terminal is offline; saves still work, nothing is announced.
func NewStageService(st *store.Store, pub Publisher) *StageService {
	return &StageService{store: st, pub: pub}
}

// SelectPatient attaches a patient to the session and announces the
// selection. It is the only update allowed without an active session: it is
// what activates one.
func (s *StageService) SelectPatient(p domain.Patient) {
	s.store.Save(store.Fragment{Patient: &p})
	s.publish(presencedomain.EventPatientSelected, p.ID, map[string]any{
		"patientName": p.Name,
	})
}

// UpdateAnamnesa saves the history-intake payload.
func (s *StageService) UpdateAnamnesa(payload domain.StagePayload) {
	s.updateStage(domain.StageAnamnesa, payload)
}

// UpdatePhysical saves the physical-exam payload.
func (s *StageService) UpdatePhysical(payload domain.StagePayload) {
	s.updateStage(domain.StagePhysical, payload)
}

// UpdateUSG saves the imaging payload.
func (s *StageService) UpdateUSG(payload domain.StagePayload) {
	s.updateStage(domain.StageUSG, payload)
}

// UpdateLab saves the lab payload.
func (s *StageService) UpdateLab(payload domain.StagePayload) {
	s.updateStage(domain.StageLab, payload)
}

// UpdateServices replaces the services accumulated for the bill. Local to
// this terminal; nothing is announced.
func (s *StageService) UpdateServices(items []domain.ServiceItem) {
	if !s.requireActive("services") {
		return
	}
	s.store.Save(store.Fragment{Services: items})
}

// UpdateMedications replaces the medications accumulated for the bill. Local
// to this terminal; nothing is announced.
func (s *StageService) UpdateMedications(items []domain.MedicationItem) {
	if !s.requireActive("medications") {
		return
	}
	s.store.Save(store.Fragment{Medications: items})
}

// Finalize ends the visit: announces completion and clears the session so the
// terminal returns to patient selection.
func (s *StageService) Finalize() {
	sess := s.store.Current()
	if !sess.Active || sess.Patient == nil {
		log.Printf("stage service: finalize with no active session; ignoring")
		return
	}
	s.publish(presencedomain.EventVisitCompleted, sess.Patient.ID, map[string]any{
		"patientName": sess.Patient.Name,
	})
	s.store.Clear()
}

// updateStage replaces the whole payload record for one stage. A save with no
// active session is a logged no-op: a stage payload with no attached patient
// is meaningless and must not create a phantom session. Screens legitimately
// race with a just-cleared session during page transitions, so this is not an
// error.
func (s *StageService) updateStage(stage domain.Stage, payload domain.StagePayload) {
	if !s.requireActive(string(stage)) {
		return
	}
	s.store.Save(store.Fragment{
		Stages: map[domain.Stage]domain.StagePayload{stage: payload},
	})
	sess := s.store.Current()
	if sess.Patient == nil {
		return
	}
	s.publish(presencedomain.EventStageUpdated, sess.Patient.ID, map[string]any{
		"stage":       string(stage),
		"patientName": sess.Patient.Name,
	})
}

func (s *StageService) requireActive(what string) bool {
	if s.store.HasActive() {
		return true
	}
	log.Printf("stage service: dropping %s save, no active session", what)
	return false
}

func (s *StageService) publish(t presencedomain.EventType, subjectID string, payload map[string]any) {
	if s.pub == nil {
		return
	}
	s.pub.Broadcast(t, subjectID, payload)
}
