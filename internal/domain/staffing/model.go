package staffing

import (
	"strings"

	"github.com/google/uuid"
)

// Role is the job an employee performs on a shift.
type Role string

const (
	RoleDoctor          Role = "doctor"
	RoleNurse           Role = "nurse"
	RoleTriageNurse     Role = "triage_nurse"
	RoleReceptionist    Role = "receptionist"
	RoleAmbulanceDriver Role = "ambulance_driver"
	RoleAdmin           Role = "admin"
)

// Roles lists every role in the order deficiencies are reported.
var Roles = []Role{
	RoleDoctor,
	RoleNurse,
	RoleTriageNurse,
	RoleReceptionist,
	RoleAmbulanceDriver,
	RoleAdmin,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole accepts any letter case.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// CareArea is a functional zone of the department.
type CareArea string

const (
	AreaTriage        CareArea = "Triage"
	AreaResuscitation CareArea = "Resuscitation"
	AreaMajorTrauma   CareArea = "Major_Trauma"
	AreaGeneralED     CareArea = "General_ED"
)

var Areas = []CareArea{AreaTriage, AreaResuscitation, AreaMajorTrauma, AreaGeneralED}

// ParseArea resolves an area name case-insensitively to its canonical form.
func ParseArea(s string) (CareArea, bool) {
	s = strings.TrimSpace(s)
	for _, a := range Areas {
		if strings.EqualFold(string(a), s) {
			return a, true
		}
	}
	return CareArea(s), false
}

// EmploymentStatus is the employee's current standing. Only active employees
// count toward staffing.
type EmploymentStatus string

const (
	StatusActive  EmploymentStatus = "active"
	StatusOnLeave EmploymentStatus = "on_leave"
	StatusRetired EmploymentStatus = "retired"
)

func (s EmploymentStatus) Valid() bool {
	switch s {
	case StatusActive, StatusOnLeave, StatusRetired:
		return true
	}
	return false
}

// RosterEntry is one employee assigned to a shift. Status is hydrated from the
// employee record at validation time and is not stored with the shift.
type RosterEntry struct {
	EmployeeID uuid.UUID        `json:"employee_id"`
	Role       Role             `json:"role"`
	Status     EmploymentStatus `json:"status,omitempty"`
}

// Deficiency is a role whose assigned count falls short of the requirement.
type Deficiency struct {
	Role     Role `json:"role"`
	Required int  `json:"required"`
	Assigned int  `json:"assigned"`
}

// Result is the outcome of validating a roster against an area.
type Result struct {
	OK           bool         `json:"ok"`
	Deficiencies []Deficiency `json:"deficiencies"`
}

// Requirement is a single minimum-count rule.
type Requirement struct {
	Role     Role `json:"role"`
	Required int  `json:"required"`
}
