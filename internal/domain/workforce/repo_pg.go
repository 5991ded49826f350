package workforce

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/edops/internal/platform/apperr"
	"github.com/ehr/edops/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type employeeRepoPG struct{ pool *pgxpool.Pool }

func NewEmployeeRepoPG(pool *pgxpool.Pool) EmployeeRepository { return &employeeRepoPG{pool: pool} }

func (r *employeeRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const employeeCols = `id, first_name, last_name, email, phone, role, status, join_date,
	leave_quota, version, created_at, updated_at`

func (r *employeeRepoPG) scanEmployee(row pgx.Row) (*Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.FirstName, &e.LastName, &e.Email, &e.Phone, &e.Role, &e.Status,
		&e.JoinDate, &e.LeaveQuota, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	e.CreatedAt, e.UpdatedAt = e.CreatedAt.UTC(), e.UpdatedAt.UTC()
	return &e, err
}

func (r *employeeRepoPG) Create(ctx context.Context, e *Employee) error {
	e.ID = uuid.New()
	e.Version = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO employee (id, first_name, last_name, email, phone, role, status, join_date, leave_quota, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		e.ID, e.FirstName, e.LastName, e.Email, e.Phone, e.Role, e.Status, e.JoinDate, e.LeaveQuota, e.Version,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	e.CreatedAt, e.UpdatedAt = e.CreatedAt.UTC(), e.UpdatedAt.UTC()
	if db.IsUniqueViolation(err, "employee_email_key") {
		return apperr.New(apperr.CodeInvalidInput, "email %s is already in use", deref(e.Email)).WithField("email")
	}
	return err
}

func (r *employeeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Employee, error) {
	e, err := r.scanEmployee(r.conn(ctx).QueryRow(ctx, `SELECT `+employeeCols+` FROM employee WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("employee", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return e, nil
}

func (r *employeeRepoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Employee, error) {
	out := make(map[uuid.UUID]*Employee, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+employeeCols+` FROM employee WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup employees: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := r.scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out[e.ID] = e
	}
	return out, rows.Err()
}

func (r *employeeRepoPG) UpdateIfVersion(ctx context.Context, e *Employee, expected int) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE employee SET first_name=$3, last_name=$4, email=$5, phone=$6, role=$7, status=$8,
			join_date=$9, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING leave_quota, version, created_at, updated_at`,
		e.ID, expected, e.FirstName, e.LastName, e.Email, e.Phone, e.Role, e.Status, e.JoinDate,
	).Scan(&e.LeaveQuota, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsNoRows(err):
		if _, getErr := r.GetByID(ctx, e.ID); getErr != nil {
			return getErr
		}
		return apperr.StaleWrite("employee", e.ID, expected)
	case db.IsUniqueViolation(err, "employee_email_key"):
		return apperr.New(apperr.CodeInvalidInput, "email %s is already in use", deref(e.Email)).WithField("email")
	}
	return fmt.Errorf("update employee: %w", err)
}

func (r *employeeRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM employee WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return apperr.New(apperr.CodeInvalidInput, "employee %s is assigned to shifts", id)
	}
	if err != nil {
		return fmt.Errorf("delete employee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("employee", id)
	}
	return nil
}

func (r *employeeRepoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Employee, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Role != "" {
		where += fmt.Sprintf(` AND role = $%d`, idx)
		args = append(args, f.Role)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Name != "" {
		where += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d)`, idx, idx)
		args = append(args, "%"+f.Name+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM employee`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count employees: %w", err)
	}

	query := `SELECT ` + employeeCols + ` FROM employee` + where +
		fmt.Sprintf(` ORDER BY last_name, first_name, id LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search employees: %w", err)
	}
	defer rows.Close()
	var items []*Employee
	for rows.Next() {
		e, err := r.scanEmployee(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
