package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/edops/internal/domain/staffing"
	"github.com/ehr/edops/internal/platform/apperr"
	"github.com/ehr/edops/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const slotConstraint = "shift_assignment_employee_slot_key"

type shiftRepoPG struct{ pool *pgxpool.Pool }

func NewShiftRepoPG(pool *pgxpool.Pool) ShiftRepository { return &shiftRepoPG{pool: pool} }

func (r *shiftRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const shiftCols = `id, shift_date, shift_type, area, state, validation, version, created_at, updated_at`

func (r *shiftRepoPG) scanShift(row pgx.Row) (*Shift, error) {
	var s Shift
	var validation []byte
	err := row.Scan(&s.ID, &s.Date, &s.Type, &s.Area, &s.State, &validation, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.CreatedAt, s.UpdatedAt = s.CreatedAt.UTC(), s.UpdatedAt.UTC()
	if len(validation) > 0 && string(validation) != "{}" {
		var res staffing.Result
		if err := json.Unmarshal(validation, &res); err != nil {
			return nil, fmt.Errorf("decode shift validation: %w", err)
		}
		s.Validation = &res
	}
	s.Roster = []staffing.RosterEntry{}
	return &s, nil
}

func encodeValidation(res *staffing.Result) ([]byte, error) {
	if res == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(res)
}

func (r *shiftRepoPG) Create(ctx context.Context, s *Shift) error {
	validation, err := encodeValidation(s.Validation)
	if err != nil {
		return err
	}
	id := uuid.New()
	err = db.InTx(ctx, r.pool, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO shift (id, shift_date, shift_type, area, state, validation, version)
			VALUES ($1, $2, $3, $4, $5, $6, 1)
			RETURNING created_at, updated_at`,
			id, Day(s.Date), s.Type, s.Area, s.State, validation,
		).Scan(&s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert shift: %w", err)
		}
		return r.insertRoster(ctx, id, s)
	})
	if err != nil {
		return mapSlotConflict(err, s)
	}
	s.ID = id
	s.Version = 1
	return nil
}

func (r *shiftRepoPG) insertRoster(ctx context.Context, shiftID uuid.UUID, s *Shift) error {
	for i, e := range s.Roster {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO shift_assignment (shift_id, employee_id, position, role, shift_date, shift_type)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			shiftID, e.EmployeeID, i, e.Role, Day(s.Date), s.Type)
		if err != nil {
			return fmt.Errorf("insert roster entry %s: %w", e.EmployeeID, err)
		}
	}
	return nil
}

func mapSlotConflict(err error, s *Shift) error {
	if db.IsUniqueViolation(err, slotConstraint) {
		return apperr.New(apperr.CodeOverlappingShift,
			"a roster member already holds a %s shift on %s", s.Type, Day(s.Date).Format(time.DateOnly))
	}
	return err
}

func (r *shiftRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Shift, error) {
	s, err := r.scanShift(r.conn(ctx).QueryRow(ctx, `SELECT `+shiftCols+` FROM shift WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("shift", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get shift: %w", err)
	}
	if err := r.loadRosters(ctx, map[uuid.UUID]*Shift{s.ID: s}); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *shiftRepoPG) loadRosters(ctx context.Context, shifts map[uuid.UUID]*Shift) error {
	if len(shifts) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(shifts))
	for id := range shifts {
		ids = append(ids, id)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT shift_id, employee_id, role FROM shift_assignment
		WHERE shift_id = ANY($1) ORDER BY shift_id, position`, ids)
	if err != nil {
		return fmt.Errorf("load rosters: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var shiftID uuid.UUID
		var e staffing.RosterEntry
		if err := rows.Scan(&shiftID, &e.EmployeeID, &e.Role); err != nil {
			return err
		}
		s := shifts[shiftID]
		s.Roster = append(s.Roster, e)
	}
	return rows.Err()
}

func (r *shiftRepoPG) UpdateIfVersion(ctx context.Context, s *Shift, expected int) error {
	validation, err := encodeValidation(s.Validation)
	if err != nil {
		return err
	}
	err = db.InTx(ctx, r.pool, func(ctx context.Context) error {
		var version int
		var updatedAt time.Time
		err := r.conn(ctx).QueryRow(ctx, `
			UPDATE shift SET shift_date=$3, shift_type=$4, area=$5, state=$6, validation=$7,
				version = version + 1, updated_at = NOW()
			WHERE id = $1 AND version = $2
			RETURNING version, updated_at`,
			s.ID, expected, Day(s.Date), s.Type, s.Area, s.State, validation,
		).Scan(&version, &updatedAt)
		if db.IsNoRows(err) {
			if _, getErr := r.GetByID(ctx, s.ID); getErr != nil {
				return getErr
			}
			return apperr.StaleWrite("shift", s.ID, expected)
		}
		if err != nil {
			return fmt.Errorf("update shift: %w", err)
		}
		if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM shift_assignment WHERE shift_id = $1`, s.ID); err != nil {
			return fmt.Errorf("clear roster: %w", err)
		}
		if err := r.insertRoster(ctx, s.ID, s); err != nil {
			return err
		}
		s.Version = version
		s.UpdatedAt = updatedAt
		return nil
	})
	return mapSlotConflict(err, s)
}

func (r *shiftRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM shift WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete shift: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("shift", id)
	}
	return nil
}

func (r *shiftRepoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Shift, int, error) {
	where := " WHERE 1=1"
	var args []interface{}
	idx := 1

	if f.Date != nil {
		where += fmt.Sprintf(" AND shift_date = $%d", idx)
		args = append(args, Day(*f.Date))
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(" AND shift_date >= $%d", idx)
		args = append(args, Day(*f.From))
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(" AND shift_date < $%d", idx)
		args = append(args, Day(*f.To))
		idx++
	}
	if f.Type != "" {
		where += fmt.Sprintf(" AND shift_type = $%d", idx)
		args = append(args, f.Type)
		idx++
	}
	if f.Area != "" {
		where += fmt.Sprintf(" AND area = $%d", idx)
		args = append(args, f.Area)
		idx++
	}
	if f.EmployeeID != nil {
		where += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM shift_assignment a WHERE a.shift_id = shift.id AND a.employee_id = $%d)", idx)
		args = append(args, *f.EmployeeID)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM shift"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count shifts: %w", err)
	}

	query := "SELECT " + shiftCols + " FROM shift" + where +
		fmt.Sprintf(" ORDER BY shift_date DESC, shift_type, area LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search shifts: %w", err)
	}
	var items []*Shift
	byID := make(map[uuid.UUID]*Shift)
	for rows.Next() {
		s, err := r.scanShift(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		items = append(items, s)
		byID[s.ID] = s
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.loadRosters(ctx, byID); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *shiftRepoPG) SlotHolders(ctx context.Context, employeeIDs []uuid.UUID, date time.Time, t ShiftType) (map[uuid.UUID]uuid.UUID, error) {
	out := make(map[uuid.UUID]uuid.UUID)
	if len(employeeIDs) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT employee_id, shift_id FROM shift_assignment
		WHERE employee_id = ANY($1) AND shift_date = $2 AND shift_type = $3`,
		employeeIDs, Day(date), t)
	if err != nil {
		return nil, fmt.Errorf("find slot holders: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var emp, shiftID uuid.UUID
		if err := rows.Scan(&emp, &shiftID); err != nil {
			return nil, err
		}
		out[emp] = shiftID
	}
	return out, rows.Err()
}

func (r *shiftRepoPG) CountBetween(ctx context.Context, employeeID uuid.UUID, from, to time.Time, exclude uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM shift_assignment
		WHERE employee_id = $1 AND shift_date >= $2 AND shift_date < $3 AND shift_id <> $4`,
		employeeID, Day(from), Day(to), exclude).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count shifts for %s: %w", employeeID, err)
	}
	return n, nil
}
