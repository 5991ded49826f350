package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNew_DerivesKindFromCode(t *testing.T) {
	tests := []struct {
		code Code
		kind Kind
	}{
		{CodeInvalidObservation, KindValidation},
		{CodeUnknownArea, KindValidation},
		{CodeStaffingInsufficient, KindValidation},
		{CodeDuplicateAssignment, KindConflict},
		{CodeOverlappingShift, KindConflict},
		{CodeStaleWrite, KindConflict},
		{CodePatientInTerminalState, KindState},
		{CodeIllegalTransition, KindState},
		{CodeLeaveQuotaExceeded, KindValidation},
		{CodeLeaveNotPending, KindState},
		{CodeNotFound, KindNotFound},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "boom")
			if err.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, err.Kind)
			}
		})
	}
}

func TestIs_MatchesByCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("commit shift: %w", StaleWrite("shift", "abc", 3))
	if !errors.Is(err, ErrStaleWrite) {
		t.Fatal("expected errors.Is to match ErrStaleWrite")
	}
	if errors.Is(err, ErrOverlappingShift) {
		t.Fatal("did not expect a match on a different code")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New(CodeDuplicateAssignment, "dup")) {
		t.Error("conflict errors should be retryable")
	}
	if Retryable(New(CodeIllegalTransition, "nope")) {
		t.Error("state errors should not be retryable")
	}
	if Retryable(errors.New("plain")) {
		t.Error("plain errors should not be retryable")
	}
}

func TestWithFieldAndDetails_DoNotMutateOriginal(t *testing.T) {
	base := New(CodeInvalidObservation, "bad value")
	withField := base.WithField("airway").WithDetails([]string{"CLEAR"})
	if base.Field != "" || base.Details != nil {
		t.Fatal("original error was mutated")
	}
	if withField.Field != "airway" {
		t.Errorf("expected field airway, got %q", withField.Field)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{New(CodeInvalidObservation, "x"), http.StatusBadRequest},
		{New(CodeStaffingInsufficient, "x"), http.StatusUnprocessableEntity},
		{New(CodeDuplicateAssignment, "x"), http.StatusConflict},
		{New(CodeStaleWrite, "x"), http.StatusPreconditionFailed},
		{New(CodeIllegalTransition, "x"), http.StatusUnprocessableEntity},
		{NotFound("patient", 1), http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.status {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.status, got)
		}
	}
}

func TestToHTTP_HidesInternalErrors(t *testing.T) {
	he := ToHTTP(errors.New("password=secret"))
	body, ok := he.Message.(map[string]string)
	if !ok {
		t.Fatalf("expected map body, got %T", he.Message)
	}
	if body["message"] != http.StatusText(http.StatusInternalServerError) {
		t.Errorf("unexpected message %q", body["message"])
	}
}
