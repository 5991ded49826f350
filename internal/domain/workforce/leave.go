package workforce

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultLeaveQuota is the yearly allowance, in days, given to new employees.
const DefaultLeaveQuota = 25

type LeaveType string

const (
	LeaveSick      LeaveType = "sick"
	LeaveVacation  LeaveType = "vacation"
	LeavePersonal  LeaveType = "personal"
	LeaveMaternity LeaveType = "maternity"
	LeaveOther     LeaveType = "other"
)

func ParseLeaveType(s string) (LeaveType, bool) {
	t := LeaveType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case LeaveSick, LeaveVacation, LeavePersonal, LeaveMaternity, LeaveOther:
		return t, true
	}
	return t, false
}

type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

func (s LeaveStatus) Valid() bool {
	switch s {
	case LeavePending, LeaveApproved, LeaveRejected:
		return true
	}
	return false
}

// LeaveRequest is a span of whole days, both ends inclusive. Only approved
// requests make the employee unavailable for shifts.
type LeaveRequest struct {
	ID         uuid.UUID   `json:"id"`
	EmployeeID uuid.UUID   `json:"employee_id"`
	StartDate  time.Time   `json:"start_date"`
	EndDate    time.Time   `json:"end_date"`
	Type       LeaveType   `json:"leave_type"`
	Reason     string      `json:"reason"`
	Status     LeaveStatus `json:"status"`
	DecidedBy  *string     `json:"decided_by,omitempty"`
	DecidedAt  *time.Time  `json:"decided_at,omitempty"`
	Version    int         `json:"version"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Days is the number of calendar days the request spans.
func (l *LeaveRequest) Days() int {
	return int(day(l.EndDate).Sub(day(l.StartDate)).Hours()/24) + 1
}

// Covers reports whether d falls within the request.
func (l *LeaveRequest) Covers(d time.Time) bool {
	d = day(d)
	return !d.Before(day(l.StartDate)) && !d.After(day(l.EndDate))
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LeaveFilter narrows SearchLeave. On matches requests covering that day.
type LeaveFilter struct {
	EmployeeID *uuid.UUID
	Status     LeaveStatus
	On         *time.Time
}
