// Package emergency tracks patients through the department: registration,
// triage records and the clinical status state machine.
package emergency

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/edops/internal/domain/triage"
)

// Status is a patient's clinical status.
type Status string

const (
	StatusTriage     Status = "Triage"
	StatusCritical   Status = "Critical"
	StatusStable     Status = "Stable"
	StatusRecovered  Status = "Recovered"
	StatusDeceased   Status = "Deceased"
	StatusDischarged Status = "Discharged"
)

var statuses = []Status{StatusTriage, StatusCritical, StatusStable, StatusRecovered, StatusDeceased, StatusDischarged}

// transitions is the adjacency set of the status machine. Terminal states
// have no outgoing edges.
var transitions = map[Status]map[Status]bool{
	StatusTriage:     {StatusCritical: true, StatusStable: true, StatusDeceased: true},
	StatusCritical:   {StatusStable: true, StatusRecovered: true, StatusDeceased: true},
	StatusStable:     {StatusCritical: true, StatusRecovered: true, StatusDischarged: true, StatusDeceased: true},
	StatusRecovered:  {StatusDischarged: true, StatusDeceased: true},
	StatusDeceased:   {},
	StatusDischarged: {},
}

// ParseStatus resolves a status case-insensitively.
func ParseStatus(s string) (Status, bool) {
	s = strings.TrimSpace(s)
	for _, st := range statuses {
		if strings.EqualFold(string(st), s) {
			return st, true
		}
	}
	return Status(s), false
}

func (s Status) Terminal() bool {
	return s == StatusDeceased || s == StatusDischarged
}

// CanTransition reports whether from -> to is an edge of the status machine.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// statusForLevel maps the classifier's status onto the patient machine.
func statusForLevel(level int) Status {
	if triage.StatusForLevel(level) == triage.StatusCritical {
		return StatusCritical
	}
	return StatusStable
}

type Patient struct {
	ID                uuid.UUID      `json:"id"`
	FirstName         string         `json:"first_name"`
	LastName          string         `json:"last_name"`
	BirthDate         *time.Time     `json:"birth_date,omitempty"`
	Sex               *string        `json:"sex,omitempty"`
	Phone             *string        `json:"phone,omitempty"`
	ArrivalTime       time.Time      `json:"arrival_time"`
	ReportedComplaint *string        `json:"reported_complaint,omitempty"`
	Status            Status         `json:"status"`
	Version           int            `json:"version"`
	TriageRecords     []TriageRecord `json:"triage_records,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Latest returns the most recent triage record, or nil.
func (p *Patient) Latest() *TriageRecord {
	if len(p.TriageRecords) == 0 {
		return nil
	}
	return &p.TriageRecords[len(p.TriageRecords)-1]
}

// TriageRecord is one classified observation. Records are append-only.
type TriageRecord struct {
	ID               uuid.UUID `json:"id"`
	PatientID        uuid.UUID `json:"patient_id"`
	Seq              int       `json:"seq"`
	RecordedAt       time.Time `json:"recorded_at"`
	Level            int       `json:"level"`
	Status           Status    `json:"status"`
	AcuityScore      int       `json:"acuity_score"`
	PrimaryComplaint string    `json:"primary_complaint"`
	RecordedBy       string    `json:"recorded_by,omitempty"`
	triage.Observation
}

// StatusChange is one entry of a patient's status audit trail.
type StatusChange struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	From           Status     `json:"from"`
	To             Status     `json:"to"`
	At             time.Time  `json:"at"`
	TriageRecordID *uuid.UUID `json:"triage_record_id,omitempty"`
	ChangedBy      string     `json:"changed_by,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

// Change is one atomic patient mutation: the new status, plus optionally an
// appended triage record and a history entry.
type Change struct {
	PatientID uuid.UUID
	Expected  int
	Status    Status
	Record    *TriageRecord
	History   *StatusChange
}

type Filter struct {
	Status Status
	Name   string
}
