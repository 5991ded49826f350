package emergency

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

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientCols = `id, first_name, last_name, birth_date, sex, phone, arrival_time, reported_complaint,
	status, version, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.BirthDate, &p.Sex, &p.Phone, &p.ArrivalTime,
		&p.ReportedComplaint, &p.Status, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	// pgx decodes timestamptz in the local zone; the service works in UTC.
	p.ArrivalTime, p.CreatedAt, p.UpdatedAt = p.ArrivalTime.UTC(), p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	return &p, err
}

const triageCols = `id, patient_id, seq, recorded_at, level, status, acuity_score, primary_complaint,
	reported_complaint, arrival_mode, airway, breathing, circulation, disability, exposure,
	systolic_bp, o2_saturation, temperature, pain_scale, recorded_by`

func (r *patientRepoPG) scanTriage(row pgx.Row) (TriageRecord, error) {
	var t TriageRecord
	var reported, recordedBy *string
	err := row.Scan(&t.ID, &t.PatientID, &t.Seq, &t.RecordedAt, &t.Level, &t.Status, &t.AcuityScore,
		&t.PrimaryComplaint, &reported, &t.ArrivalMode, &t.Airway, &t.Breathing, &t.Circulation,
		&t.Disability, &t.Exposure, &t.SystolicBP, &t.O2Saturation, &t.Temperature, &t.PainScale, &recordedBy)
	if reported != nil {
		t.ReportedComplaint = *reported
	}
	if recordedBy != nil {
		t.RecordedBy = *recordedBy
	}
	t.RecordedAt = t.RecordedAt.UTC()
	return t, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.Version = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, first_name, last_name, birth_date, sex, phone, arrival_time,
			reported_complaint, status, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.BirthDate, p.Sex, p.Phone, p.ArrivalTime,
		p.ReportedComplaint, p.Status, p.Version,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("patient", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+triageCols+` FROM triage_record WHERE patient_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load triage records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		t, err := r.scanTriage(rows)
		if err != nil {
			return nil, err
		}
		p.TriageRecords = append(p.TriageRecords, t)
	}
	return p, rows.Err()
}

func (r *patientRepoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	where := " WHERE 1=1"
	var args []interface{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Name != "" {
		where += fmt.Sprintf(" AND (first_name ILIKE $%d OR last_name ILIKE $%d)", idx, idx)
		args = append(args, "%"+f.Name+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM patient"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	query := "SELECT " + patientCols + " FROM patient" + where +
		fmt.Sprintf(" ORDER BY arrival_time DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) ApplyChange(ctx context.Context, c Change) (int, error) {
	var version int
	err := db.InTx(ctx, r.pool, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			UPDATE patient SET status = $3, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND version = $2
			RETURNING version`,
			c.PatientID, c.Expected, c.Status,
		).Scan(&version)
		if db.IsNoRows(err) {
			if _, getErr := r.GetByID(ctx, c.PatientID); getErr != nil {
				return getErr
			}
			return apperr.StaleWrite("patient", c.PatientID, c.Expected)
		}
		if err != nil {
			return fmt.Errorf("update patient status: %w", err)
		}

		if t := c.Record; t != nil {
			_, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO triage_record (`+triageCols+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
				t.ID, t.PatientID, t.Seq, t.RecordedAt, t.Level, t.Status, t.AcuityScore, t.PrimaryComplaint,
				nullable(t.ReportedComplaint), t.ArrivalMode, t.Airway, t.Breathing, t.Circulation,
				t.Disability, t.Exposure, t.SystolicBP, t.O2Saturation, t.Temperature, t.PainScale,
				nullable(t.RecordedBy))
			if err != nil {
				return fmt.Errorf("insert triage record: %w", err)
			}
		}

		if h := c.History; h != nil {
			_, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO patient_status_history (id, patient_id, from_status, to_status, changed_at,
					triage_record_id, changed_by, reason)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				h.ID, h.PatientID, h.From, h.To, h.At, h.TriageRecordID, nullable(h.ChangedBy), nullable(h.Reason))
			if err != nil {
				return fmt.Errorf("insert status history: %w", err)
			}
		}
		return nil
	})
	return version, err
}

func (r *patientRepoPG) StatusHistory(ctx context.Context, patientID uuid.UUID) ([]*StatusChange, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, from_status, to_status, changed_at, triage_record_id, changed_by, reason
		FROM patient_status_history WHERE patient_id = $1 ORDER BY changed_at, id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("load status history: %w", err)
	}
	defer rows.Close()
	var out []*StatusChange
	for rows.Next() {
		var h StatusChange
		var by, reason *string
		if err := rows.Scan(&h.ID, &h.PatientID, &h.From, &h.To, &h.At, &h.TriageRecordID, &by, &reason); err != nil {
			return nil, err
		}
		h.At = h.At.UTC()
		if by != nil {
			h.ChangedBy = *by
		}
		if reason != nil {
			h.Reason = *reason
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}
