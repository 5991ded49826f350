package emergency

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/edops/internal/platform/auth"
)

func newTestHandler() (*Handler, *mockPatientRepo, *echo.Echo) {
	svc, repo := newTestService()
	return NewHandler(svc), repo, echo.New()
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func expectStatus(t *testing.T, err error, status int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != status {
		t.Errorf("expected %d, got %v", status, err)
	}
}

const criticalBody = `{"arrival_mode":"AMBULANCE","airway":"FULLY_OBSTRUCTED","breathing":"NORMAL",
	"circulation":"NORMAL","disability":"ALERT","exposure":"NO_TRAUMA","pain_scale":8`

func TestHandler_RegisterPatient(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	body := `{"first_name":"Jane","last_name":"Roe","birth_date":"1980-02-29","reported_complaint":"chest pain"}`
	if err := h.RegisterPatient(e.NewContext(jsonRequest(http.MethodPost, body), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated || rec.Header().Get("ETag") != `W/"1"` {
		t.Errorf("expected 201 with ETag, got %d %q", rec.Code, rec.Header().Get("ETag"))
	}
	var p Patient
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Status != StatusTriage {
		t.Errorf("expected Triage, got %s", p.Status)
	}

	err := h.RegisterPatient(e.NewContext(jsonRequest(http.MethodPost, `{"first_name":"A","last_name":"B","birth_date":"29/02/1980"}`), httptest.NewRecorder()))
	expectStatus(t, err, http.StatusBadRequest)
}

func TestHandler_RecordTriage(t *testing.T) {
	h, repo, e := newTestHandler()
	p := register(t, h.svc)

	req := jsonRequest(http.MethodPost, criticalBody+`,"version":1}`)
	ctx := auth.WithIdentity(req.Context(), "nurse-7", []string{auth.RoleClinician})
	rec := httptest.NewRecorder()
	c := e.NewContext(req.WithContext(ctx), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.RecordTriage(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp triageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Patient.Status != StatusCritical || resp.Record.Level != 1 || resp.Record.RecordedBy != "nurse-7" {
		t.Errorf("unexpected response %+v %+v", resp.Patient, resp.Record)
	}
	if *resp.Record.PainScale != 8 || repo.patients[p.ID].Version != 2 {
		t.Error("record not stored as submitted")
	}
}

func TestHandler_RecordTriage_Errors(t *testing.T) {
	h, _, e := newTestHandler()
	p := register(t, h.svc)

	tests := []struct {
		name    string
		body    string
		ifMatch string
		status  int
	}{
		{"missing version", criticalBody + `}`, "", http.StatusBadRequest},
		{"stale", criticalBody + `}`, `W/"9"`, http.StatusPreconditionFailed},
		{"invalid observation", `{"arrival_mode":"TELEPORT","version":1}`, "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(http.MethodPost, tt.body)
			if tt.ifMatch != "" {
				req.Header.Set("If-Match", tt.ifMatch)
			}
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues(p.ID.String())
			expectStatus(t, h.RecordTriage(c), tt.status)
		})
	}
}

func TestHandler_Transition(t *testing.T) {
	h, _, e := newTestHandler()
	p := register(t, h.svc)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"illegal edge", `{"status":"Discharged","version":1}`, http.StatusUnprocessableEntity},
		{"ok", `{"status":"stable","version":1,"reason":"vitals normal"}`, http.StatusOK},
		{"stale", `{"status":"Recovered","version":1}`, http.StatusPreconditionFailed},
		{"ok again", `{"status":"Discharged","version":2}`, http.StatusOK},
		{"terminal", `{"status":"Stable","version":3}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(jsonRequest(http.MethodPost, tt.body), rec)
			c.SetParamNames("id")
			c.SetParamValues(p.ID.String())
			err := h.Transition(c)
			if tt.status == http.StatusOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			expectStatus(t, err, tt.status)
		})
	}
}

func TestHandler_StatusHistoryAndList(t *testing.T) {
	h, _, e := newTestHandler()
	p := register(t, h.svc)
	h.svc.Transition(context.Background(), p.ID, StatusCritical, 1, "", "")

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.GetStatusHistory(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var history []StatusChange
	json.Unmarshal(rec.Body.Bytes(), &history)
	if len(history) != 1 || history[0].To != StatusCritical {
		t.Errorf("unexpected history %+v", history)
	}

	rec = httptest.NewRecorder()
	if err := h.ListPatients(e.NewContext(httptest.NewRequest(http.MethodGet, "/?status=critical", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	expectStatus(t, h.ListPatients(e.NewContext(httptest.NewRequest(http.MethodGet, "/?status=asleep", nil), httptest.NewRecorder())),
		http.StatusBadRequest)
}

func TestHandler_Classify(t *testing.T) {
	h, repo, e := newTestHandler()
	rec := httptest.NewRecorder()
	if err := h.Classify(e.NewContext(jsonRequest(http.MethodPost, criticalBody+`}`), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"level":1`) || !strings.Contains(rec.Body.String(), `"status":"Critical"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if len(repo.patients) != 0 {
		t.Error("classify must not store anything")
	}

	err := h.Classify(e.NewContext(jsonRequest(http.MethodPost, `{"airway":"CLEAR"}`), httptest.NewRecorder()))
	expectStatus(t, err, http.StatusBadRequest)
}
