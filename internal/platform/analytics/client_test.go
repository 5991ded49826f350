package analytics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

type fakeService struct {
	hits      atomic.Int32
	status    int
	anomalies string
	forecast  string
}

func (f *fakeService) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/anomalies":
			_, _ = w.Write([]byte(f.anomalies))
		case "/forecast":
			_, _ = w.Write([]byte(f.forecast))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOptions(url string) Options {
	return Options{BaseURL: url, Timeout: time.Second, RetryWait: time.Millisecond, CacheTTL: time.Minute}
}

func TestClient_GetAnomalies(t *testing.T) {
	f := &fakeService{anomalies: `[{"employee":"E1","days":21,"anomaly":-1}]`}
	srv := f.start(t)

	got, err := NewClient(testOptions(srv.URL)).GetAnomalies(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0]["employee"] != "E1" {
		t.Errorf("unexpected anomalies %v", got)
	}
}

func TestClient_GetForecastOrdered(t *testing.T) {
	f := &fakeService{forecast: `{"2025-12": 4, "2025-2": 7, "2024-11": 1}`}
	srv := f.start(t)

	got, err := NewClient(testOptions(srv.URL)).GetForecast(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []ForecastPoint{{2024, 11, 1}, {2025, 2, 7}, {2025, 12, 4}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestParseForecast_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"insufficient", `{"error": "not enough data"}`, ErrInsufficientData},
		{"bad period", `{"soon": 3}`, ErrUnavailable},
		{"bad month", `{"2024-13": 3}`, ErrUnavailable},
		{"bad value", `{"2024-1": "many"}`, ErrUnavailable},
		{"not an object", `[1,2]`, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseForecast([]byte(tt.body)); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	f := &fakeService{status: http.StatusInternalServerError}
	srv := f.start(t)

	opts := testOptions(srv.URL)
	opts.RetryCount = 2
	_, err := NewClient(opts).GetAnomalies(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if hits := f.hits.Load(); hits != 3 {
		t.Errorf("expected 3 attempts, got %d", hits)
	}
}

func TestClient_Cache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fakeService{anomalies: `[{"employee":"E1"}]`}
	srv := f.start(t)
	c := NewClient(testOptions(srv.URL)).WithCache(rdb)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.GetAnomalies(ctx); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if hits := f.hits.Load(); hits != 1 {
		t.Errorf("expected 1 upstream call, got %d", hits)
	}
	if !mr.Exists("analytics:anomalies") {
		t.Error("expected cache entry")
	}

	mr.FastForward(2 * time.Minute)
	if _, err := c.GetAnomalies(ctx); err != nil {
		t.Fatalf("after expiry: %v", err)
	}
	if hits := f.hits.Load(); hits != 2 {
		t.Errorf("expected refetch after TTL, got %d calls", hits)
	}
}

func TestClient_CacheDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	f := &fakeService{anomalies: `[]`}
	srv := f.start(t)

	got, err := NewClient(testOptions(srv.URL)).WithCache(rdb).GetAnomalies(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty list, got %v", got)
	}
}

type stubSource struct {
	anomalies []Anomaly
	forecast  []ForecastPoint
	err       error
}

func (s stubSource) GetAnomalies(context.Context) ([]Anomaly, error)       { return s.anomalies, s.err }
func (s stubSource) GetForecast(context.Context) ([]ForecastPoint, error) { return s.forecast, s.err }

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		src        stubSource
		call       func(*Handler, echo.Context) error
		wantStatus int
		wantBody   string
	}{
		{"anomalies", stubSource{anomalies: []Anomaly{{"employee": "E1"}}}, (*Handler).Anomalies, http.StatusOK, `"total":1`},
		{"forecast", stubSource{forecast: []ForecastPoint{{2025, 1, 3}}}, (*Handler).Forecast, http.StatusOK, `"count":3`},
		{"upstream down", stubSource{err: ErrUnavailable}, (*Handler).Anomalies, http.StatusBadGateway, ""},
		{"insufficient data", stubSource{err: ErrInsufficientData}, (*Handler).Forecast, http.StatusUnprocessableEntity, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			err := tt.call(NewHandler(tt.src), c)
			if tt.wantStatus != http.StatusOK {
				httpErr, ok := err.(*echo.HTTPError)
				if !ok || httpErr.Code != tt.wantStatus {
					t.Fatalf("expected %d, got %v", tt.wantStatus, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %s missing %s", rec.Body.String(), tt.wantBody)
			}
		})
	}
}
