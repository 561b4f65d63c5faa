package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carevisit/internal/attendance"
	"carevisit/internal/model"
	"carevisit/internal/reconcile"
	"carevisit/internal/store"
)

type testServer struct {
	*httptest.Server
	Handler http.Handler
}

func setupTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := store.Open(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.SyncFacilities(context.Background(), []model.Facility{
		{ID: "a", Name: "Facility A", Active: true},
		{ID: "b", Name: "Facility B", Active: true},
	}))

	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	svc := reconcile.NewService(db, reconcile.Options{
		Location: time.UTC,
		Now:      func() time.Time { return now },
	}, &logger)

	opts.Location = time.UTC
	server := NewHTTPServer(svc, opts, &logger)
	srv := &testServer{Server: httptest.NewServer(server.Handler()), Handler: server.Handler()}
	t.Cleanup(srv.Close)
	return srv
}

func (s *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestToggleKeep_Conflict(t *testing.T) {
	srv := setupTestServer(t, Options{})

	resp := srv.do(t, http.MethodPost, "/api/facilities/a/keeps/2024-04-05", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode[map[string]any](t, resp)["held"])

	resp = srv.do(t, http.MethodPost, "/api/facilities/b/keeps/2024-04-05", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "date_unavailable", decode[errorResponse](t, resp).Code)

	resp = srv.do(t, http.MethodGet, "/api/calendar?facility=a", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cal := decode[CalendarResponse](t, resp)
	assert.Equal(t, model.Date("2024-03-20"), cal.Today)
	require.Len(t, cal.Slots, 1)
	assert.Equal(t, model.Date("2024-04-05"), cal.Slots[0].Date)
}

func TestValidationErrors(t *testing.T) {
	srv := setupTestServer(t, Options{})

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"invalid date", http.MethodPost, "/api/facilities/a/keeps/2024-13-40", nil, http.StatusBadRequest, "invalid_input"},
		{"past date", http.MethodPost, "/api/facilities/a/keeps/2024-03-01", nil, http.StatusUnprocessableEntity, "past_date"},
		{"unknown facility", http.MethodPost, "/api/facilities/zzz/keeps/2024-04-05", nil, http.StatusNotFound, "not_found"},
		{"invalid month", http.MethodPost, "/api/facilities/a/months/april/finalize", nil, http.StatusBadRequest, "invalid_input"},
		{"nothing to confirm", http.MethodPost, "/api/facilities/a/confirm", nil, http.StatusConflict, "nothing_to_confirm"},
		{"unknown action", http.MethodPost, "/api/bookings/a_2024-04-05/members/m1/explode", nil, http.StatusNotFound, "not_found"},
		{"complete without menu", http.MethodPost, "/api/bookings/a_2024-04-05/members/m1/complete", map[string]any{"price": 100}, http.StatusBadRequest, "invalid_input"},
		{"unknown field", http.MethodPut, "/api/facilities/a/residents", []map[string]any{{"nickname": "x"}}, http.StatusBadRequest, "invalid_input"},
		{"unknown progress facility", http.MethodGet, "/api/facilities/zzz/progress", nil, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := srv.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decode[errorResponse](t, resp).Code)
		})
	}
}

func TestVisitLifecycle(t *testing.T) {
	srv := setupTestServer(t, Options{})

	resp := srv.do(t, http.MethodPut, "/api/facilities/a/residents", []model.Resident{
		{ID: "r1", Name: "Sato", Room: "101", Active: true, Selected: true},
		{ID: "r2", Name: "Suzuki", Room: "102", Active: true, Selected: true},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/facilities/a/keeps/2024-04-05", nil).StatusCode)

	resp = srv.do(t, http.MethodPost, "/api/facilities/a/confirm", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	confirmed := decode[struct {
		Bookings []model.Booking `json:"bookings"`
	}](t, resp)
	require.Len(t, confirmed.Bookings, 1)
	b := confirmed.Bookings[0]
	require.Len(t, b.Members, 2)

	resp = srv.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/members/r1/complete", ServiceRequest{Menu: "cut", Price: 2000})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, "/api/facilities/a/dates/2024-04-05/walk-ins", WalkInRequest{Name: "Guest", Menu: "shampoo", Price: 800})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/api/facilities/a/dates/2024-04-05", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[attendance.Detail](t, resp)
	assert.Len(t, detail.CompletedToday, 1)
	assert.Len(t, detail.WalkIns, 1)
	assert.Len(t, detail.Pending, 1)

	resp = srv.do(t, http.MethodGet, "/api/tasks?date=2024-04-05", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.do(t, http.MethodDelete, "/api/facilities/a/bookings/2024-04-05", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "history_exists", decode[errorResponse](t, resp).Code)

	resp = srv.do(t, http.MethodPost, "/api/facilities/a/months/2024-04/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), decode[map[string]any](t, resp)["cancelled"])

	resp = srv.do(t, http.MethodPost, "/api/facilities/a/months/2024-04/finalize", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_finalized", decode[errorResponse](t, resp).Code)

	resp = srv.do(t, http.MethodGet, "/api/facilities/a/progress?month=2024-04", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	progress := decode[attendance.Progress](t, resp)
	assert.True(t, progress.Finished)
	assert.Equal(t, 3, progress.Planned)

	resp = srv.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/members/r1/undo", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "date_locked", decode[errorResponse](t, resp).Code)
}

func TestNgDates(t *testing.T) {
	srv := setupTestServer(t, Options{})

	resp := srv.do(t, http.MethodPut, "/api/ng-dates/2024-04-29", map[string]string{"reason": "holiday"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, "/api/facilities/a/keeps/2024-04-29", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	require.Equal(t, http.StatusNoContent, srv.do(t, http.MethodDelete, "/api/ng-dates/2024-04-29", nil).StatusCode)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/facilities/a/keeps/2024-04-29", nil).StatusCode)
}

func TestCalendarICS(t *testing.T) {
	srv := setupTestServer(t, Options{})
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/facilities/a/keeps/2024-04-05", nil).StatusCode)
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/facilities/b/keeps/2024-04-12", nil).StatusCode)

	resp := srv.do(t, http.MethodGet, "/api/facilities/a/calendar.ics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))

	cal, err := ics.ParseCalendar(resp.Body)
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "a_2024-04-05@carevisit", events[0].Id())
	assert.Equal(t, "Hold: Facility A", events[0].GetProperty(ics.ComponentPropertySummary).Value)

	resp = srv.do(t, http.MethodGet, "/api/facilities/zzz/calendar.ics", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCalendarICS_RuleStartTime(t *testing.T) {
	rules := []model.RecurringRule{{Facility: "a", Weekday: time.Tuesday, Ordinal: 2, Time: "10:30"}}
	srv := setupTestServer(t, Options{Rules: func() []model.RecurringRule { return rules }})
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/facilities/a/keeps/2024-04-09", nil).StatusCode)
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/facilities/a/keeps/2024-04-10", nil).StatusCode)

	resp := srv.do(t, http.MethodGet, "/api/facilities/a/calendar.ics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cal, err := ics.ParseCalendar(resp.Body)
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 2)

	byID := make(map[string]*ics.VEvent, len(events))
	for _, e := range events {
		byID[e.Id()] = e
	}

	start, err := byID["a_2024-04-09@carevisit"].GetStartAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2024, 4, 9, 10, 30, 0, 0, time.UTC)), "start %s", start)
	end, err := byID["a_2024-04-09@carevisit"].GetEndAt()
	require.NoError(t, err)
	assert.Equal(t, visitLength, end.Sub(start))

	// No rule produces the 10th, so it stays an all-day event.
	dtstart := byID["a_2024-04-10@carevisit"].GetProperty(ics.ComponentPropertyDtStart)
	require.NotNil(t, dtstart)
	assert.Equal(t, "20240410", dtstart.Value)
}

func TestMiddleware(t *testing.T) {
	srv := setupTestServer(t, Options{RateLimit: 1, RateBurst: 2})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrInvalidInput, http.StatusBadRequest},
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrOutsideWindow, http.StatusUnprocessableEntity},
		{model.ErrEmptyRoster, http.StatusConflict},
		{model.ErrInvalidTransition, http.StatusConflict},
		{model.ErrNetworkFailure, http.StatusServiceUnavailable},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
