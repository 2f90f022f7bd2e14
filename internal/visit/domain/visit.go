// Package domain defines the visit session owned by a single terminal.
package domain

import "time"

// SchemaVersion is the current persisted-session schema version. A persisted
// session with a different version is discarded on load rather than partially
// trusted.
const SchemaVersion = 1

// StaleAfter is how old a persisted session may be before the recovery guard
// discards it instead of resuming.
const StaleAfter = 24 * time.Hour

// Stage is one step of the visit workflow.
type Stage string

const (
	StageAnamnesa Stage = "anamnesa"
	StagePhysical Stage = "physical"
	StageUSG      Stage = "usg"
	StageLab      Stage = "lab"
)

// Stages lists the fixed stage keys in workflow order.
var Stages = []Stage{StageAnamnesa, StagePhysical, StageUSG, StageLab}

// Valid reports whether s is one of the fixed stage keys.
func (s Stage) Valid() bool {
	switch s {
	case StageAnamnesa, StagePhysical, StageUSG, StageLab:
		return true
	}
	return false
}

// StagePayload is the opaque, stage-defined record saved by a stage screen.
// Values are replaced whole on each save; there is no field-level merge
// within a stage.
type StagePayload map[string]any

// Patient identifies the patient currently being handled by the terminal.
type Patient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// MedicalRecordNo is the clinic's record number; empty for walk-ins not
	// yet registered.
	MedicalRecordNo string `json:"medicalRecordNo,omitempty"`
}

// ServiceItem is one service accumulated for the eventual bill.
type ServiceItem struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// MedicationItem is one medication accumulated for the eventual bill.
type MedicationItem struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Dose     string `json:"dose,omitempty"`
}

// VisitSession is the visit currently being handled by this terminal.
// It is exclusively owned and mutated by the local terminal; remote events
// inform other terminals but never write it. At most one session exists per
// terminal.
type VisitSession struct {
	SchemaVersion  int                    `json:"schemaVersion"`
	Patient        *Patient               `json:"patient"`
	Stages         map[Stage]StagePayload `json:"stages"`
	Services       []ServiceItem          `json:"services"`
	Medications    []MedicationItem       `json:"medications"`
	LastModifiedAt time.Time              `json:"lastModifiedAt"`
	Active         bool                   `json:"active"`
}

// Empty returns the inactive zero-shape session.
func Empty() *VisitSession {
	return &VisitSession{
		SchemaVersion: SchemaVersion,
		Stages:        make(map[Stage]StagePayload),
	}
}

// Stale reports whether the session's last modification is older than
// StaleAfter relative to now.
func (s *VisitSession) Stale(now time.Time) bool {
	return now.Sub(s.LastModifiedAt) > StaleAfter
}

// Clone returns a deep copy so callers cannot alias the store's handle.
func (s *VisitSession) Clone() *VisitSession {
	if s == nil {
		return nil
	}
	out := *s
	if s.Patient != nil {
		p := *s.Patient
		out.Patient = &p
	}
	out.Stages = make(map[Stage]StagePayload, len(s.Stages))
	for k, v := range s.Stages {
		payload := make(StagePayload, len(v))
		for pk, pv := range v {
			payload[pk] = pv
		}
		out.Stages[k] = payload
	}
	out.Services = append([]ServiceItem(nil), s.Services...)
	out.Medications = append([]MedicationItem(nil), s.Medications...)
	return &out
}
