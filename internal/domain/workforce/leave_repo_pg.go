package workforce

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/edops/internal/platform/apperr"
	"github.com/ehr/edops/internal/platform/db"
)

type leaveRepoPG struct{ pool *pgxpool.Pool }

func NewLeaveRepoPG(pool *pgxpool.Pool) LeaveRepository { return &leaveRepoPG{pool: pool} }

func (r *leaveRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const leaveCols = `id, employee_id, start_date, end_date, leave_type, reason, status,
	decided_by, decided_at, version, created_at, updated_at`

func (r *leaveRepoPG) scanLeave(row pgx.Row) (*LeaveRequest, error) {
	var l LeaveRequest
	err := row.Scan(&l.ID, &l.EmployeeID, &l.StartDate, &l.EndDate, &l.Type, &l.Reason, &l.Status,
		&l.DecidedBy, &l.DecidedAt, &l.Version, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.CreatedAt, l.UpdatedAt = l.CreatedAt.UTC(), l.UpdatedAt.UTC()
	if l.DecidedAt != nil {
		at := l.DecidedAt.UTC()
		l.DecidedAt = &at
	}
	return &l, nil
}

func (r *leaveRepoPG) Create(ctx context.Context, l *LeaveRequest) error {
	l.ID = uuid.New()
	l.Version = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO leave_request (id, employee_id, start_date, end_date, leave_type, reason, status, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		l.ID, l.EmployeeID, day(l.StartDate), day(l.EndDate), l.Type, l.Reason, l.Status, l.Version,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.New(apperr.CodeUnknownEmployee, "employee %s does not exist", l.EmployeeID).WithField("employee_id")
	}
	if err != nil {
		return fmt.Errorf("insert leave request: %w", err)
	}
	l.CreatedAt, l.UpdatedAt = l.CreatedAt.UTC(), l.UpdatedAt.UTC()
	return nil
}

func (r *leaveRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LeaveRequest, error) {
	l, err := r.scanLeave(r.conn(ctx).QueryRow(ctx, `SELECT `+leaveCols+` FROM leave_request WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("leave request", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get leave request: %w", err)
	}
	return l, nil
}

func (r *leaveRepoPG) Decide(ctx context.Context, l *LeaveRequest, expected int) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			UPDATE leave_request SET status = $3, decided_by = $4, decided_at = $5,
				version = version + 1, updated_at = NOW()
			WHERE id = $1 AND version = $2 AND status = 'pending'
			RETURNING version, updated_at`,
			l.ID, expected, l.Status, l.DecidedBy, l.DecidedAt,
		).Scan(&l.Version, &l.UpdatedAt)
		if db.IsNoRows(err) {
			cur, getErr := r.GetByID(ctx, l.ID)
			if getErr != nil {
				return getErr
			}
			if cur.Status != LeavePending {
				return apperr.New(apperr.CodeLeaveNotPending, "leave request %s is already %s", l.ID, cur.Status)
			}
			return apperr.StaleWrite("leave request", l.ID, expected)
		}
		if err != nil {
			return fmt.Errorf("decide leave request: %w", err)
		}
		l.UpdatedAt = l.UpdatedAt.UTC()
		if l.Status != LeaveApproved {
			return nil
		}

		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE employee SET leave_quota = leave_quota - $2, updated_at = NOW()
			WHERE id = $1 AND leave_quota >= $2`,
			l.EmployeeID, l.Days())
		if err != nil {
			return fmt.Errorf("deduct leave quota: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.New(apperr.CodeLeaveQuotaExceeded,
				"employee %s has fewer than %d days of leave left", l.EmployeeID, l.Days())
		}
		return nil
	})
}

func (r *leaveRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		var l LeaveRequest
		err := r.conn(ctx).QueryRow(ctx, `
			DELETE FROM leave_request WHERE id = $1
			RETURNING employee_id, start_date, end_date, status`, id,
		).Scan(&l.EmployeeID, &l.StartDate, &l.EndDate, &l.Status)
		if db.IsNoRows(err) {
			return apperr.NotFound("leave request", id)
		}
		if err != nil {
			return fmt.Errorf("delete leave request: %w", err)
		}
		if l.Status != LeaveApproved {
			return nil
		}
		if _, err := r.conn(ctx).Exec(ctx, `
			UPDATE employee SET leave_quota = leave_quota + $2, updated_at = NOW() WHERE id = $1`,
			l.EmployeeID, l.Days()); err != nil {
			return fmt.Errorf("refund leave quota: %w", err)
		}
		return nil
	})
}

func (r *leaveRepoPG) Search(ctx context.Context, f LeaveFilter, limit, offset int) ([]*LeaveRequest, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.EmployeeID != nil {
		where += fmt.Sprintf(` AND employee_id = $%d`, idx)
		args = append(args, *f.EmployeeID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.On != nil {
		where += fmt.Sprintf(` AND start_date <= $%d AND end_date >= $%d`, idx, idx)
		args = append(args, day(*f.On))
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM leave_request`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leave requests: %w", err)
	}

	query := `SELECT ` + leaveCols + ` FROM leave_request` + where +
		fmt.Sprintf(` ORDER BY start_date DESC, id LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search leave requests: %w", err)
	}
	defer rows.Close()
	var items []*LeaveRequest
	for rows.Next() {
		l, err := r.scanLeave(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, rows.Err()
}

func (r *leaveRepoPG) Covering(ctx context.Context, ids []uuid.UUID, d time.Time) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT employee_id FROM leave_request
		WHERE status = 'approved' AND employee_id = ANY($1) AND start_date <= $2 AND end_date >= $2`,
		ids, day(d))
	if err != nil {
		return nil, fmt.Errorf("leave covering %s: %w", d.Format(time.DateOnly), err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
