// Package staffing evaluates shift rosters against per-area minimum staffing
// rules. The engine holds an immutable copy of its policy and is safe for
// concurrent use.
package staffing

import (
	"github.com/google/uuid"

	"github.com/ehr/edops/internal/platform/apperr"
)

type Engine struct {
	policy Policy
}

// NewEngine validates p and returns an engine bound to a private copy of it.
func NewEngine(p Policy) (*Engine, error) {
	if err := p.Check(); err != nil {
		return nil, err
	}
	return &Engine{policy: p.clone()}, nil
}

// Policy returns a copy of the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy.clone()
}

// MaxShiftsPerWeek is zero when unlimited.
func (e *Engine) MaxShiftsPerWeek() int {
	return e.policy.MaxShiftsPerWeek
}

// Validate counts active, distinct employees per role and reports every
// required role whose count falls short. The roster is never modified.
func (e *Engine) Validate(area CareArea, roster []RosterEntry) (Result, error) {
	required, err := e.table(area)
	if err != nil {
		return Result{}, err
	}

	assigned := make(map[Role]int, len(required))
	seen := make(map[uuid.UUID]bool, len(roster))
	for _, entry := range roster {
		if seen[entry.EmployeeID] {
			continue
		}
		seen[entry.EmployeeID] = true
		if entry.Status != StatusActive {
			continue
		}
		assigned[entry.Role]++
	}

	res := Result{Deficiencies: []Deficiency{}}
	for _, role := range Roles {
		need, ok := required[role]
		if !ok || need == 0 {
			continue
		}
		if got := assigned[role]; got < need {
			res.Deficiencies = append(res.Deficiencies, Deficiency{Role: role, Required: need, Assigned: got})
		}
	}
	res.OK = len(res.Deficiencies) == 0
	return res, nil
}

// Requirements lists the area's nonzero minimums in role order.
func (e *Engine) Requirements(area CareArea) ([]Requirement, error) {
	required, err := e.table(area)
	if err != nil {
		return nil, err
	}
	out := make([]Requirement, 0, len(required))
	for _, role := range Roles {
		if n := required[role]; n > 0 {
			out = append(out, Requirement{Role: role, Required: n})
		}
	}
	return out, nil
}

func (e *Engine) table(area CareArea) (map[Role]int, error) {
	canonical, ok := ParseArea(string(area))
	if !ok {
		return nil, apperr.New(apperr.CodeUnknownArea, "unknown care area %q", area).WithField("area")
	}
	required, ok := e.policy.Areas[canonical]
	if !ok {
		return nil, apperr.New(apperr.CodeUnknownArea, "care area %s has no staffing rules", canonical).WithField("area")
	}
	return required, nil
}
