// Package scheduling owns the lifecycle of department shifts: proposal,
// roster edits, conflict detection and version-checked persistence.
package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/edops/internal/domain/staffing"
	"github.com/ehr/edops/internal/platform/apperr"
)

// ShiftType is the part of the day a shift covers. A shift occupies one
// date x type slot; an employee holds at most one shift per slot.
type ShiftType string

const (
	ShiftDay     ShiftType = "Day"
	ShiftEvening ShiftType = "Evening"
	ShiftNight   ShiftType = "Night"
)

var shiftTypes = []ShiftType{ShiftDay, ShiftEvening, ShiftNight}

// ParseShiftType resolves a shift type case-insensitively.
func ParseShiftType(s string) (ShiftType, bool) {
	s = strings.TrimSpace(s)
	for _, t := range shiftTypes {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return ShiftType(s), false
}

// State is the shift's position in its lifecycle.
type State string

const (
	StateDraft     State = "Draft"
	StateValidated State = "Validated"
	StatePersisted State = "Persisted"
)

// transitions lists every legal state change. Roster edits always return a
// shift to Draft, including a persisted one.
var transitions = map[State]map[State]bool{
	StateDraft:     {StateDraft: true, StateValidated: true},
	StateValidated: {StateDraft: true, StatePersisted: true},
	StatePersisted: {StateDraft: true},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	return transitions[from][to]
}

type Shift struct {
	ID         uuid.UUID              `json:"id"`
	Date       time.Time              `json:"date"`
	Type       ShiftType              `json:"type"`
	Area       staffing.CareArea      `json:"area"`
	Roster     []staffing.RosterEntry `json:"roster"`
	State      State                  `json:"state"`
	Validation *staffing.Result       `json:"validation,omitempty"`
	Version    int                    `json:"version"`
	CreatedAt  time.Time              `json:"created_at,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at,omitempty"`
}

// Stored reports whether the shift has been written at least once.
func (s *Shift) Stored() bool { return s.ID != uuid.Nil }

func (s *Shift) setState(to State) error {
	if !CanTransition(s.State, to) {
		return apperr.New(apperr.CodeInvalidShift, "shift cannot move from %s to %s", s.State, to).WithField("state")
	}
	s.State = to
	return nil
}

// indexOf returns the roster position of employeeID, or -1.
func (s *Shift) indexOf(employeeID uuid.UUID) int {
	for i, e := range s.Roster {
		if e.EmployeeID == employeeID {
			return i
		}
	}
	return -1
}

// Has reports whether employeeID is on the roster.
func (s *Shift) Has(employeeID uuid.UUID) bool { return s.indexOf(employeeID) >= 0 }

// EmployeeIDs returns the roster's employee ids in roster order.
func (s *Shift) EmployeeIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(s.Roster))
	for i, e := range s.Roster {
		ids[i] = e.EmployeeID
	}
	return ids
}

// clone copies the shift deeply enough that roster edits on the copy leave
// the original untouched.
func (s *Shift) clone() *Shift {
	cp := *s
	cp.Roster = append([]staffing.RosterEntry(nil), s.Roster...)
	if s.Validation != nil {
		v := *s.Validation
		v.Deficiencies = append([]staffing.Deficiency(nil), s.Validation.Deficiencies...)
		cp.Validation = &v
	}
	return &cp
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Week returns the Monday starting the ISO week containing day, and the
// following Monday.
func Week(day time.Time) (time.Time, time.Time) {
	day = Day(day)
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}

// Filter narrows shift searches. Zero fields match everything.
type Filter struct {
	Date       *time.Time
	From       *time.Time
	To         *time.Time
	Type       ShiftType
	Area       staffing.CareArea
	EmployeeID *uuid.UUID
}

// Proposal is an unsaved shift as submitted by a client.
type Proposal struct {
	Date   time.Time              `json:"date"`
	Type   ShiftType              `json:"type"`
	Area   staffing.CareArea      `json:"area"`
	Roster []staffing.RosterEntry `json:"roster"`
}
