package staffing

import (
	"fmt"
)

// Policy is the staffing rule table: for each care area, the minimum number
// of active staff per role. Roles absent from an area's table carry no
// requirement.
type Policy struct {
	Areas map[CareArea]map[Role]int `json:"areas"`
	// MaxShiftsPerWeek bounds how many shifts one employee may hold in an ISO
	// week. Zero disables the limit.
	MaxShiftsPerWeek int `json:"max_shifts_per_week"`
}

// DefaultPolicy returns the built-in thresholds. They are a starting point
// and are expected to be overridden by a policy file.
func DefaultPolicy() Policy {
	return Policy{
		Areas: map[CareArea]map[Role]int{
			AreaTriage:        {RoleTriageNurse: 2},
			AreaResuscitation: {RoleDoctor: 2, RoleNurse: 6},
			AreaMajorTrauma:   {RoleDoctor: 1, RoleNurse: 2},
			AreaGeneralED:     {RoleReceptionist: 1, RoleAmbulanceDriver: 2},
		},
	}
}

// Check rejects unknown areas or roles and negative counts.
func (p Policy) Check() error {
	if len(p.Areas) == 0 {
		return fmt.Errorf("staffing policy defines no care areas")
	}
	if p.MaxShiftsPerWeek < 0 {
		return fmt.Errorf("max_shifts_per_week must not be negative, got %d", p.MaxShiftsPerWeek)
	}
	for area, roles := range p.Areas {
		if _, ok := ParseArea(string(area)); !ok {
			return fmt.Errorf("unknown care area %q", area)
		}
		for role, n := range roles {
			if !role.Valid() {
				return fmt.Errorf("area %s: unknown role %q", area, role)
			}
			if n < 0 {
				return fmt.Errorf("area %s: role %s has negative minimum %d", area, role, n)
			}
		}
	}
	return nil
}

// PolicyFromMap builds a policy from loosely typed keys, as produced by a
// config decoder that may have changed key case.
func PolicyFromMap(areas map[string]map[string]int, maxShiftsPerWeek int) (Policy, error) {
	p := Policy{
		Areas:            make(map[CareArea]map[Role]int, len(areas)),
		MaxShiftsPerWeek: maxShiftsPerWeek,
	}
	for rawArea, roles := range areas {
		area, ok := ParseArea(rawArea)
		if !ok {
			return Policy{}, fmt.Errorf("unknown care area %q", rawArea)
		}
		table := make(map[Role]int, len(roles))
		for rawRole, n := range roles {
			role, ok := ParseRole(rawRole)
			if !ok {
				return Policy{}, fmt.Errorf("area %s: unknown role %q", area, rawRole)
			}
			table[role] = n
		}
		p.Areas[area] = table
	}
	if err := p.Check(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) clone() Policy {
	out := Policy{
		Areas:            make(map[CareArea]map[Role]int, len(p.Areas)),
		MaxShiftsPerWeek: p.MaxShiftsPerWeek,
	}
	for area, roles := range p.Areas {
		table := make(map[Role]int, len(roles))
		for r, n := range roles {
			table[r] = n
		}
		out.Areas[area] = table
	}
	return out
}
