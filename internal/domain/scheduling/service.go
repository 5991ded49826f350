package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/edops/internal/domain/staffing"
	"github.com/ehr/edops/internal/domain/workforce"
	"github.com/ehr/edops/internal/platform/apperr"
	"github.com/ehr/edops/internal/platform/notification"
)

// EmployeeDirectory resolves roster members to their current records.
type EmployeeDirectory interface {
	Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*workforce.Employee, error)
	// OnLeave reports which of ids hold approved leave covering day.
	OnLeave(ctx context.Context, ids []uuid.UUID, day time.Time) (map[uuid.UUID]bool, error)
}

// Notifier delivers rendered templates. *notification.Manager satisfies it.
type Notifier interface {
	SendTemplate(ctx context.Context, templateID string, channel notification.Channel, address string, data map[string]string) (string, error)
}

const defaultBatchLimit = 4

type Service struct {
	shifts     ShiftRepository
	employees  EmployeeDirectory
	engine     *staffing.Engine
	notifier   Notifier
	channel    notification.Channel
	batchLimit int
	logger     zerolog.Logger
}

func NewService(shifts ShiftRepository, employees EmployeeDirectory, engine *staffing.Engine) *Service {
	return &Service{
		shifts:     shifts,
		employees:  employees,
		engine:     engine,
		channel:    notification.ChannelSMS,
		batchLimit: defaultBatchLimit,
		logger:     zerolog.Nop(),
	}
}

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

// SetNotifier enables assignment notices, sent on the preferred channel when
// the employee has an address for it.
func (s *Service) SetNotifier(n Notifier, preferred notification.Channel) {
	s.notifier = n
	if preferred.Valid() {
		s.channel = preferred
	}
}

// SetBatchLimit bounds how many shifts CommitBatch writes at once.
func (s *Service) SetBatchLimit(n int) {
	if n > 0 {
		s.batchLimit = n
	}
}

// Requirements lists the minimum staffing for area.
func (s *Service) Requirements(area staffing.CareArea) ([]staffing.Requirement, error) {
	return s.engine.Requirements(area)
}

// Policy returns the staffing policy in force.
func (s *Service) Policy() staffing.Policy {
	return s.engine.Policy()
}

// Propose builds a Draft shift from p and validates it. Roster members must
// exist, be active, be free of approved leave on the date and hold the role
// they are listed under. Nothing is written; the result is Validated only if
// the roster meets the area's minimums.
func (s *Service) Propose(ctx context.Context, p Proposal) (*Shift, error) {
	t, ok := ParseShiftType(string(p.Type))
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidShift, "unknown shift type %q", p.Type).WithField("type")
	}
	if p.Date.IsZero() {
		return nil, apperr.New(apperr.CodeInvalidShift, "date is required").WithField("date")
	}
	area, ok := staffing.ParseArea(string(p.Area))
	if !ok {
		return nil, apperr.New(apperr.CodeUnknownArea, "unknown care area %q", p.Area).WithField("area")
	}

	shift := &Shift{
		Date:   Day(p.Date),
		Type:   t,
		Area:   area,
		Roster: append([]staffing.RosterEntry{}, p.Roster...),
		State:  StateDraft,
	}
	if err := s.hydrate(ctx, shift, nil); err != nil {
		return nil, err
	}
	if err := s.revalidate(shift); err != nil {
		return nil, err
	}
	return shift, nil
}

// hydrate replaces each roster entry with the employee's current role and
// status. Members not in existing are being added by this edit and must be
// assignable; existing members are only refreshed, so one who has since gone
// on leave stays listed and simply stops counting.
func (s *Service) hydrate(ctx context.Context, shift *Shift, existing map[uuid.UUID]bool) error {
	ids := shift.EmployeeIDs()
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return apperr.New(apperr.CodeDuplicateAssignment, "employee %s appears twice on the roster", id).
				WithField("roster")
		}
		seen[id] = true
	}
	emps, away, err := s.lookup(ctx, ids, shift.Date)
	if err != nil {
		return err
	}
	for i, e := range shift.Roster {
		emp := emps[e.EmployeeID]
		if existing[e.EmployeeID] {
			if emp == nil {
				return apperr.New(apperr.CodeUnknownEmployee, "employee %s does not exist", e.EmployeeID).
					WithField("employee_id")
			}
			shift.Roster[i] = availability(emp, away[e.EmployeeID])
			continue
		}
		entry, err := admit(e, emp, away[e.EmployeeID], shift.Date)
		if err != nil {
			return err
		}
		shift.Roster[i] = entry
	}
	return nil
}

func (s *Service) lookup(ctx context.Context, ids []uuid.UUID, day time.Time) (map[uuid.UUID]*workforce.Employee, map[uuid.UUID]bool, error) {
	emps, err := s.employees.Lookup(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	away, err := s.employees.OnLeave(ctx, ids, day)
	if err != nil {
		return nil, nil, err
	}
	return emps, away, nil
}

// availability is the entry for emp on a day it may have approved leave.
func availability(emp *workforce.Employee, onLeave bool) staffing.RosterEntry {
	entry := emp.Entry()
	if onLeave && entry.Status == staffing.StatusActive {
		entry.Status = staffing.StatusOnLeave
	}
	return entry
}

func admit(e staffing.RosterEntry, emp *workforce.Employee, onLeave bool, day time.Time) (staffing.RosterEntry, error) {
	if emp == nil {
		return e, apperr.New(apperr.CodeUnknownEmployee, "employee %s does not exist", e.EmployeeID).WithField("employee_id")
	}
	if !emp.Active() {
		return e, apperr.New(apperr.CodeInactiveEmployee, "employee %s is %s", emp.ID, emp.Status).WithField("employee_id")
	}
	if onLeave {
		return e, apperr.New(apperr.CodeInactiveEmployee, "employee %s has approved leave on %s",
			emp.ID, day.Format(time.DateOnly)).WithField("employee_id")
	}
	if e.Role != "" {
		role, ok := staffing.ParseRole(string(e.Role))
		if !ok || role != emp.Role {
			return e, apperr.New(apperr.CodeRoleMismatch, "employee %s is a %s, not %s", emp.ID, emp.Role, e.Role).
				WithField("role")
		}
	}
	return emp.Entry(), nil
}

// revalidate runs the staffing rules over a Draft shift, moving it to
// Validated when they pass.
func (s *Service) revalidate(shift *Shift) error {
	res, err := s.engine.Validate(shift.Area, shift.Roster)
	if err != nil {
		return err
	}
	shift.Validation = &res
	if res.OK {
		return shift.setState(StateValidated)
	}
	return nil
}

// AddEmployee appends employeeID to the roster and re-validates. On any
// failure the shift is left exactly as it was.
func (s *Service) AddEmployee(ctx context.Context, shift *Shift, employeeID uuid.UUID, role staffing.Role) error {
	if shift.Has(employeeID) {
		return apperr.New(apperr.CodeDuplicateAssignment, "employee %s is already on this shift", employeeID).
			WithField("employee_id")
	}
	ids := []uuid.UUID{employeeID}
	emps, away, err := s.lookup(ctx, ids, shift.Date)
	if err != nil {
		return err
	}
	entry, err := admit(staffing.RosterEntry{EmployeeID: employeeID, Role: role}, emps[employeeID], away[employeeID], shift.Date)
	if err != nil {
		return err
	}
	if err := s.checkSlot(ctx, shift, ids); err != nil {
		return err
	}
	if err := s.checkWeeklyLimit(ctx, shift, ids); err != nil {
		return err
	}

	next := shift.clone()
	next.Roster = append(next.Roster, entry)
	if err := next.setState(StateDraft); err != nil {
		return err
	}
	if err := s.revalidate(next); err != nil {
		return err
	}
	*shift = *next
	return nil
}

// RemoveEmployee drops employeeID from the roster and re-validates.
func (s *Service) RemoveEmployee(shift *Shift, employeeID uuid.UUID) error {
	i := shift.indexOf(employeeID)
	if i < 0 {
		return apperr.NotFound("roster entry", employeeID)
	}
	next := shift.clone()
	next.Roster = append(next.Roster[:i], next.Roster[i+1:]...)
	if err := next.setState(StateDraft); err != nil {
		return err
	}
	if err := s.revalidate(next); err != nil {
		return err
	}
	*shift = *next
	return nil
}

// checkSlot rejects employees holding another stored shift in the same slot.
func (s *Service) checkSlot(ctx context.Context, shift *Shift, ids []uuid.UUID) error {
	holders, err := s.shifts.SlotHolders(ctx, ids, shift.Date, shift.Type)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if other, ok := holders[id]; ok && other != shift.ID {
			return apperr.New(apperr.CodeOverlappingShift,
				"employee %s already holds the %s shift on %s", id, shift.Type, shift.Date.Format(time.DateOnly)).
				WithField("employee_id").
				WithDetails(map[string]uuid.UUID{"employee_id": id, "shift_id": other})
		}
	}
	return nil
}

func (s *Service) checkWeeklyLimit(ctx context.Context, shift *Shift, ids []uuid.UUID) error {
	limit := s.engine.MaxShiftsPerWeek()
	if limit == 0 {
		return nil
	}
	from, to := Week(shift.Date)
	for _, id := range ids {
		n, err := s.shifts.CountBetween(ctx, id, from, to, shift.ID)
		if err != nil {
			return err
		}
		if n >= limit {
			return apperr.New(apperr.CodeWeeklyLimitExceeded,
				"employee %s already holds %d shifts in the week of %s", id, n, from.Format(time.DateOnly)).
				WithField("employee_id")
		}
	}
	return nil
}

// Commit re-hydrates and re-validates the roster, then writes the shift. A
// stored shift is written only if its version still equals expected, and only
// the members this edit adds are checked for assignability; members already
// on the stored roster are refreshed and counted by their current status.
// When the roster falls short the shift is left in Draft with the
// deficiencies attached and nothing is written.
func (s *Service) Commit(ctx context.Context, shift *Shift, expected int) error {
	next := shift.clone()
	if next.State != StateDraft {
		if err := next.setState(StateDraft); err != nil {
			return err
		}
	}

	var previous *Shift
	var existing map[uuid.UUID]bool
	if next.Stored() {
		stored, err := s.shifts.GetByID(ctx, next.ID)
		if err != nil {
			return err
		}
		if stored.Version != expected {
			return apperr.StaleWrite("shift", next.ID, expected)
		}
		previous = stored
		existing = make(map[uuid.UUID]bool, len(stored.Roster))
		for _, id := range stored.EmployeeIDs() {
			existing[id] = true
		}
	}

	if err := s.hydrate(ctx, next, existing); err != nil {
		return err
	}
	if err := s.revalidate(next); err != nil {
		return err
	}
	if !next.Validation.OK {
		shift.State = StateDraft
		shift.Validation = next.Validation
		return apperr.New(apperr.CodeStaffingInsufficient, "%s %s shift on %s is understaffed",
			next.Area, next.Type, next.Date.Format(time.DateOnly)).
			WithDetails(next.Validation.Deficiencies)
	}

	ids := next.EmployeeIDs()
	if err := s.checkSlot(ctx, next, ids); err != nil {
		return err
	}
	if err := s.checkWeeklyLimit(ctx, next, ids); err != nil {
		return err
	}

	if err := next.setState(StatePersisted); err != nil {
		return err
	}
	var err error
	if next.Stored() {
		err = s.shifts.UpdateIfVersion(ctx, next, expected)
	} else {
		err = s.shifts.Create(ctx, next)
	}
	if err != nil {
		return err
	}
	*shift = *next

	s.logger.Info().
		Str("shift_id", shift.ID.String()).
		Str("area", string(shift.Area)).
		Str("type", string(shift.Type)).
		Str("date", shift.Date.Format(time.DateOnly)).
		Int("roster_size", len(shift.Roster)).
		Int("version", shift.Version).
		Msg("shift committed")

	s.notifyAssigned(ctx, shift, previous)
	return nil
}

func (s *Service) notifyAssigned(ctx context.Context, shift, previous *Shift) {
	if s.notifier == nil {
		return
	}
	var added []uuid.UUID
	for _, id := range shift.EmployeeIDs() {
		if previous == nil || !previous.Has(id) {
			added = append(added, id)
		}
	}
	if len(added) == 0 {
		return
	}
	emps, err := s.employees.Lookup(ctx, added)
	if err != nil {
		s.logger.Warn().Err(err).Str("shift_id", shift.ID.String()).Msg("assignment notices skipped")
		return
	}
	for _, id := range added {
		emp, ok := emps[id]
		if !ok {
			continue
		}
		ch, addr, ok := emp.Contact(string(s.channel))
		if !ok {
			s.logger.Debug().Str("employee_id", id.String()).Msg("no contact address for assignment notice")
			continue
		}
		_, err := s.notifier.SendTemplate(ctx, notification.TemplateShiftAssignment, notification.Channel(ch), addr,
			map[string]string{
				"employee_name": emp.FullName(),
				"role":          string(emp.Role),
				"area":          string(shift.Area),
				"shift_type":    string(shift.Type),
				"date":          shift.Date.Format(time.DateOnly),
			})
		if err != nil {
			s.logger.Warn().Err(err).
				Str("shift_id", shift.ID.String()).
				Str("employee_id", id.String()).
				Msg("assignment notice failed")
		}
	}
}

// GetShift returns the stored shift with its validation recomputed against
// the employees' current status and leave.
func (s *Service) GetShift(ctx context.Context, id uuid.UUID) (*Shift, error) {
	shift, err := s.shifts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.refresh(ctx, []*Shift{shift}); err != nil {
		return nil, err
	}
	return shift, nil
}

func (s *Service) ListShifts(ctx context.Context, f Filter, limit, offset int) ([]*Shift, int, error) {
	items, total, err := s.shifts.Search(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if err := s.refresh(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// refresh re-hydrates stored shifts and replaces their validation. The state
// is left as stored.
func (s *Service) refresh(ctx context.Context, shifts []*Shift) error {
	if len(shifts) == 0 {
		return nil
	}
	var ids []uuid.UUID
	days := make(map[string]time.Time)
	byDay := make(map[string][]uuid.UUID)
	for _, sh := range shifts {
		key := sh.Date.Format(time.DateOnly)
		days[key] = sh.Date
		ids = append(ids, sh.EmployeeIDs()...)
		byDay[key] = append(byDay[key], sh.EmployeeIDs()...)
	}
	emps, err := s.employees.Lookup(ctx, ids)
	if err != nil {
		return err
	}
	away := make(map[string]map[uuid.UUID]bool, len(byDay))
	for key, dayIDs := range byDay {
		if away[key], err = s.employees.OnLeave(ctx, dayIDs, days[key]); err != nil {
			return err
		}
	}

	for _, sh := range shifts {
		for i, e := range sh.Roster {
			if emp := emps[e.EmployeeID]; emp != nil {
				sh.Roster[i] = availability(emp, away[sh.Date.Format(time.DateOnly)][e.EmployeeID])
			}
		}
		res, err := s.engine.Validate(sh.Area, sh.Roster)
		if err != nil {
			return err
		}
		sh.Validation = &res
	}
	return nil
}

// DeleteShift removes the shift and its roster. Employees are untouched.
func (s *Service) DeleteShift(ctx context.Context, id uuid.UUID) error {
	if err := s.shifts.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("shift_id", id.String()).Msg("shift deleted")
	return nil
}

// BatchResult is the outcome of one proposal in CommitBatch. Exactly one of
// Shift, Error and Failure is set.
type BatchResult struct {
	Index   int           `json:"index"`
	Shift   *Shift        `json:"shift,omitempty"`
	Error   *apperr.Error `json:"error,omitempty"`
	Failure string        `json:"failure,omitempty"`
}

// CommitBatch proposes and commits each proposal independently. One failure
// does not affect the others; results are in input order.
func (s *Service) CommitBatch(ctx context.Context, proposals []Proposal) []BatchResult {
	results := make([]BatchResult, len(proposals))
	var g errgroup.Group
	g.SetLimit(s.batchLimit)
	for i, p := range proposals {
		g.Go(func() error {
			res := BatchResult{Index: i}
			shift, err := s.Propose(ctx, p)
			if err == nil {
				err = s.Commit(ctx, shift, 0)
			}
			switch ae, ok := apperr.As(err); {
			case err == nil:
				res.Shift = shift
			case ok:
				res.Error = ae
			default:
				s.logger.Error().Err(err).Int("index", i).Msg("batch shift commit failed")
				res.Failure = "internal error"
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}
