// Package workforce keeps the employee records that rosters are built from.
package workforce

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/edops/internal/domain/staffing"
)

type Employee struct {
	ID         uuid.UUID                 `json:"id"`
	FirstName  string                    `json:"first_name"`
	LastName   string                    `json:"last_name"`
	Email      *string                   `json:"email,omitempty"`
	Phone      *string                   `json:"phone,omitempty"`
	Role       staffing.Role             `json:"role"`
	Status     staffing.EmploymentStatus `json:"status"`
	JoinDate   *time.Time                `json:"join_date,omitempty"`
	// LeaveQuota is the days of leave left; approving a request draws on it.
	LeaveQuota int                       `json:"leave_quota"`
	Version    int                       `json:"version"`
	CreatedAt  time.Time                 `json:"created_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

func (e *Employee) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

func (e *Employee) Active() bool {
	return e.Status == staffing.StatusActive
}

// Entry is the employee as the staffing engine sees it.
func (e *Employee) Entry() staffing.RosterEntry {
	return staffing.RosterEntry{EmployeeID: e.ID, Role: e.Role, Status: e.Status}
}

// Contact returns the address to reach the employee on channel ("sms" or
// "email"), falling back to the other channel when that one is missing.
func (e *Employee) Contact(channel string) (string, string, bool) {
	phone, email := deref(e.Phone), deref(e.Email)
	switch {
	case channel == "email" && email != "":
		return "email", email, true
	case channel == "sms" && phone != "":
		return "sms", phone, true
	case phone != "":
		return "sms", phone, true
	case email != "":
		return "email", email, true
	}
	return "", "", false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// Filter narrows Search. Zero values match everything.
type Filter struct {
	Role   staffing.Role
	Status staffing.EmploymentStatus
	Name   string
}
