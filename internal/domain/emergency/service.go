package emergency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/edops/internal/domain/triage"
	"github.com/ehr/edops/internal/platform/apperr"
	"github.com/ehr/edops/internal/platform/notification"
)

// Notifier delivers rendered templates. *notification.Manager satisfies it.
type Notifier interface {
	SendTemplate(ctx context.Context, templateID string, channel notification.Channel, address string, data map[string]string) (string, error)
}

type Service struct {
	patients     PatientRepository
	notifier     Notifier
	alertChannel notification.Channel
	alertAddress string
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(patients PatientRepository) *Service {
	return &Service{
		patients: patients,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
}

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

// SetAlerts sends a critical-patient alert to address whenever a patient
// enters Critical.
func (s *Service) SetAlerts(n Notifier, channel notification.Channel, address string) {
	s.notifier = n
	s.alertChannel = channel
	s.alertAddress = address
}

// timestamp is stored at the database's precision so re-read records compare
// equal to the ones returned here.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) RegisterPatient(ctx context.Context, p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" {
		return apperr.New(apperr.CodeInvalidInput, "first_name is required").WithField("first_name")
	}
	if p.LastName == "" {
		return apperr.New(apperr.CodeInvalidInput, "last_name is required").WithField("last_name")
	}
	if p.ArrivalTime.IsZero() {
		p.ArrivalTime = s.timestamp()
	} else {
		p.ArrivalTime = p.ArrivalTime.UTC().Truncate(time.Microsecond)
	}
	p.Status = StatusTriage
	p.TriageRecords = nil
	if err := s.patients.Create(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient registered")
	return nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, f, limit, offset)
}

func (s *Service) StatusHistory(ctx context.Context, id uuid.UUID) ([]*StatusChange, error) {
	if _, err := s.patients.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.patients.StatusHistory(ctx, id)
}

func (s *Service) load(ctx context.Context, id uuid.UUID, expected int) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Version != expected {
		return nil, apperr.StaleWrite("patient", id, expected)
	}
	return p, nil
}

// RecordTriage classifies obs, appends the record and sets the status the
// level implies. Any non-terminal patient may be re-triaged, whatever the
// status edge. The returned record is exactly what was stored.
func (s *Service) RecordTriage(ctx context.Context, id uuid.UUID, obs triage.Observation, expected int, by string) (*Patient, *TriageRecord, error) {
	p, err := s.load(ctx, id, expected)
	if err != nil {
		return nil, nil, err
	}
	if p.Status.Terminal() {
		return nil, nil, apperr.New(apperr.CodePatientInTerminalState, "patient %s is %s", id, p.Status)
	}
	cls, err := triage.Classify(obs)
	if err != nil {
		return nil, nil, err
	}

	at := s.timestamp()
	rec := TriageRecord{
		ID:               uuid.New(),
		PatientID:        id,
		Seq:              len(p.TriageRecords) + 1,
		RecordedAt:       at,
		Level:            cls.Level,
		Status:           statusForLevel(cls.Level),
		AcuityScore:      cls.AcuityScore,
		PrimaryComplaint: cls.PrimaryComplaint,
		RecordedBy:       by,
		Observation:      obs,
	}
	change := Change{PatientID: id, Expected: expected, Status: rec.Status, Record: &rec}
	from := p.Status
	if rec.Status != from {
		change.History = &StatusChange{
			ID:             uuid.New(),
			PatientID:      id,
			From:           from,
			To:             rec.Status,
			At:             at,
			TriageRecordID: &rec.ID,
			ChangedBy:      by,
			Reason:         fmt.Sprintf("triage level %d", rec.Level),
		}
	}

	version, err := s.patients.ApplyChange(ctx, change)
	if err != nil {
		return nil, nil, err
	}
	p.Status = rec.Status
	p.Version = version
	p.UpdatedAt = at
	p.TriageRecords = append(p.TriageRecords, rec)

	s.logger.Info().
		Str("patient_id", id.String()).
		Int("level", rec.Level).
		Str("from", string(from)).
		Str("to", string(rec.Status)).
		Msg("triage recorded")
	if from != StatusCritical && rec.Status == StatusCritical {
		s.alertCritical(ctx, p)
	}
	return p, &rec, nil
}

// Transition moves the patient along one edge of the status machine.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status, expected int, by, reason string) (*Patient, error) {
	target, ok := ParseStatus(string(to))
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidInput, "unknown status %q", to).WithField("status")
	}
	p, err := s.load(ctx, id, expected)
	if err != nil {
		return nil, err
	}
	from := p.Status
	if !CanTransition(from, target) {
		return nil, apperr.New(apperr.CodeIllegalTransition, "%s -> %s is not allowed", from, target).
			WithDetails(map[string]Status{"from": from, "to": target})
	}

	h := &StatusChange{
		ID:        uuid.New(),
		PatientID: id,
		From:      from,
		To:        target,
		At:        s.timestamp(),
		ChangedBy: by,
		Reason:    reason,
	}
	if latest := p.Latest(); latest != nil {
		recID := latest.ID
		h.TriageRecordID = &recID
	}
	version, err := s.patients.ApplyChange(ctx, Change{PatientID: id, Expected: expected, Status: target, History: h})
	if err != nil {
		return nil, err
	}
	p.Status = target
	p.Version = version
	p.UpdatedAt = h.At

	s.logger.Info().
		Str("patient_id", id.String()).
		Str("from", string(from)).
		Str("to", string(target)).
		Str("by", by).
		Msg("patient transitioned")
	if target == StatusCritical {
		s.alertCritical(ctx, p)
	}
	return p, nil
}

// alertCritical never fails the mutation that triggered it.
func (s *Service) alertCritical(ctx context.Context, p *Patient) {
	if s.notifier == nil || s.alertAddress == "" {
		return
	}
	data := map[string]string{
		"patient_name": p.FullName(),
		"patient_id":   p.ID.String(),
		"level":        "unknown",
		"complaint":    "",
	}
	if p.ReportedComplaint != nil {
		data["complaint"] = *p.ReportedComplaint
	}
	if latest := p.Latest(); latest != nil {
		data["level"] = fmt.Sprint(latest.Level)
		data["complaint"] = latest.PrimaryComplaint
	}
	if _, err := s.notifier.SendTemplate(ctx, notification.TemplatePatientCritical, s.alertChannel, s.alertAddress, data); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("critical alert failed")
	}
}
