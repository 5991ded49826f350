package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/edops/internal/domain/staffing"
	"github.com/ehr/edops/internal/domain/workforce"
	"github.com/ehr/edops/internal/platform/apperr"
)

func TestEmployeeRepo(t *testing.T) {
	ctx := context.Background()
	pool := newSchema(t, "workforce")
	svc := workforce.NewService(workforce.NewEmployeeRepoPG(pool), workforce.NewLeaveRepoPG(pool))

	e := &workforce.Employee{
		FirstName: "Ada",
		LastName:  "Okafor",
		Email:     ptrStr("ada@hospital.example"),
		Role:      "Doctor",
	}

	t.Run("Create", func(t *testing.T) {
		if err := svc.CreateEmployee(ctx, e); err != nil {
			t.Fatalf("CreateEmployee: %v", err)
		}
		if e.ID == uuid.Nil || e.Version != 1 || e.Role != staffing.RoleDoctor {
			t.Fatalf("unexpected employee %+v", e)
		}
	})

	t.Run("Create_DuplicateEmail", func(t *testing.T) {
		dup := &workforce.Employee{FirstName: "B", LastName: "C", Email: ptrStr("ADA@hospital.example"), Role: staffing.RoleNurse}
		err := svc.CreateEmployee(ctx, dup)
		if !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("expected InvalidInput for duplicate email, got %v", err)
		}
	})

	t.Run("GetByID", func(t *testing.T) {
		got, err := svc.GetEmployee(ctx, e.ID)
		if err != nil {
			t.Fatalf("GetEmployee: %v", err)
		}
		if got.FullName() != "Ada Okafor" || got.Status != staffing.StatusActive {
			t.Errorf("unexpected employee %+v", got)
		}
	})

	t.Run("GetByID_NotFound", func(t *testing.T) {
		_, err := svc.GetEmployee(ctx, uuid.New())
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})

	t.Run("SetStatus_VersionChecked", func(t *testing.T) {
		updated, err := svc.SetStatus(ctx, e.ID, staffing.StatusOnLeave, 1)
		if err != nil {
			t.Fatalf("SetStatus: %v", err)
		}
		if updated.Version != 2 {
			t.Errorf("expected version 2, got %d", updated.Version)
		}
		if _, err := svc.SetStatus(ctx, e.ID, staffing.StatusActive, 1); !errors.Is(err, apperr.ErrStaleWrite) {
			t.Fatalf("expected StaleWrite, got %v", err)
		}
	})

	t.Run("UpdateIfVersion_Stale", func(t *testing.T) {
		repo := workforce.NewEmployeeRepoPG(pool)
		stale := *e
		stale.FirstName = "Changed"
		if err := repo.UpdateIfVersion(ctx, &stale, 1); !errors.Is(err, apperr.ErrStaleWrite) {
			t.Fatalf("expected StaleWrite, got %v", err)
		}
		got, _ := svc.GetEmployee(ctx, e.ID)
		if got.FirstName != "Ada" {
			t.Error("stale update must not be written")
		}
	})

	t.Run("Search", func(t *testing.T) {
		createEmployees(t, ctx, svc, staffing.RoleNurse, 3)
		items, total, err := svc.SearchEmployees(ctx, workforce.Filter{Role: staffing.RoleNurse}, 2, 0)
		if err != nil {
			t.Fatalf("SearchEmployees: %v", err)
		}
		if total != 3 || len(items) != 2 {
			t.Errorf("expected 2 of 3 nurses, got %d of %d", len(items), total)
		}

		items, total, err = svc.SearchEmployees(ctx, workforce.Filter{Name: "okaf"}, 10, 0)
		if err != nil {
			t.Fatalf("SearchEmployees by name: %v", err)
		}
		if total != 1 || items[0].ID != e.ID {
			t.Errorf("expected name match on Okafor, got %d", total)
		}
	})

	t.Run("Lookup", func(t *testing.T) {
		missing := uuid.New()
		found, err := svc.Lookup(ctx, []uuid.UUID{e.ID, missing})
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if _, ok := found[missing]; ok || found[e.ID] == nil {
			t.Errorf("unexpected lookup result %v", found)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := svc.DeleteEmployee(ctx, e.ID); err != nil {
			t.Fatalf("DeleteEmployee: %v", err)
		}
		if err := svc.DeleteEmployee(ctx, e.ID); !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("expected NotFound on second delete, got %v", err)
		}
	})
}

func TestLeaveRepo(t *testing.T) {
	ctx := context.Background()
	pool := newSchema(t, "leave")
	svc := workforce.NewService(workforce.NewEmployeeRepoPG(pool), workforce.NewLeaveRepoPG(pool))
	nurse := createEmployees(t, ctx, svc, staffing.RoleNurse, 1)[0]
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	l := &workforce.LeaveRequest{
		EmployeeID: nurse,
		StartDate:  start,
		EndDate:    start.AddDate(0, 0, 2),
		Type:       workforce.LeaveSick,
		Reason:     "flu",
	}

	t.Run("Request", func(t *testing.T) {
		if err := svc.RequestLeave(ctx, l); err != nil {
			t.Fatalf("RequestLeave: %v", err)
		}
		got, err := svc.GetLeave(ctx, l.ID)
		if err != nil {
			t.Fatalf("GetLeave: %v", err)
		}
		if got.Status != workforce.LeavePending || !got.StartDate.Equal(start) || got.Days() != 3 {
			t.Errorf("unexpected leave %+v", got)
		}
	})

	t.Run("Approve", func(t *testing.T) {
		approved, err := svc.ApproveLeave(ctx, l.ID, "sched-1", 1)
		if err != nil {
			t.Fatalf("ApproveLeave: %v", err)
		}
		if approved.Version != 2 {
			t.Errorf("expected version 2, got %d", approved.Version)
		}
		emp, _ := svc.GetEmployee(ctx, nurse)
		if emp.LeaveQuota != workforce.DefaultLeaveQuota-3 {
			t.Errorf("expected quota %d, got %d", workforce.DefaultLeaveQuota-3, emp.LeaveQuota)
		}
		if _, err := svc.RejectLeave(ctx, l.ID, "", 2); !errors.Is(err, apperr.ErrLeaveNotPending) {
			t.Errorf("expected LeaveNotPending, got %v", err)
		}
	})

	t.Run("QuotaExhausted", func(t *testing.T) {
		big := &workforce.LeaveRequest{EmployeeID: nurse, StartDate: start.AddDate(0, 1, 0),
			EndDate: start.AddDate(0, 1, workforce.DefaultLeaveQuota-3), Type: workforce.LeaveVacation, Reason: "trip"}
		if err := svc.RequestLeave(ctx, big); !errors.Is(err, apperr.ErrLeaveQuotaExceeded) {
			t.Fatalf("expected LeaveQuotaExceeded, got %v", err)
		}
	})

	t.Run("Covering", func(t *testing.T) {
		away, err := svc.OnLeave(ctx, []uuid.UUID{nurse, uuid.New()}, start.AddDate(0, 0, 2))
		if err != nil {
			t.Fatalf("OnLeave: %v", err)
		}
		if !away[nurse] || len(away) != 1 {
			t.Errorf("unexpected covering result %v", away)
		}
		away, _ = svc.OnLeave(ctx, []uuid.UUID{nurse}, start.AddDate(0, 0, 3))
		if away[nurse] {
			t.Error("leave must end on its end date")
		}
	})

	t.Run("Search", func(t *testing.T) {
		on := start.AddDate(0, 0, 1)
		items, total, err := svc.SearchLeave(ctx, workforce.LeaveFilter{EmployeeID: &nurse, Status: workforce.LeaveApproved, On: &on}, 10, 0)
		if err != nil {
			t.Fatalf("SearchLeave: %v", err)
		}
		if total != 1 || items[0].ID != l.ID {
			t.Errorf("expected the approved leave, got %d", total)
		}
	})

	t.Run("DeleteRefunds", func(t *testing.T) {
		if err := svc.DeleteLeave(ctx, l.ID); err != nil {
			t.Fatalf("DeleteLeave: %v", err)
		}
		emp, _ := svc.GetEmployee(ctx, nurse)
		if emp.LeaveQuota != workforce.DefaultLeaveQuota {
			t.Errorf("expected quota refunded, got %d", emp.LeaveQuota)
		}
		if err := svc.DeleteLeave(ctx, l.ID); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected NotFound, got %v", err)
		}
	})
}
