package api

import (
	"fmt"
	"net/http"
	"time"

	"carevisit/internal/model"
	"carevisit/internal/slots"
)

func parseDate(raw string) (model.Date, error) {
	d, err := model.ParseDate(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrInvalidInput, err)
	}
	return d, nil
}

func parseMonth(raw string) (model.Month, error) {
	m, err := model.ParseMonth(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrInvalidInput, err)
	}
	return m, nil
}

// CalendarResponse is the merged calendar.
type CalendarResponse struct {
	Today model.Date   `json:"today"`
	Slots []slots.Slot `json:"slots"`
}

// handleCalendar returns every occupied date, optionally for one facility.
// GET /api/calendar?facility=a&from=2024-04-01
func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	cal, err := s.svc.Calendar(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var from model.Date
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = parseDate(raw); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	all := cal.Slots()
	if facility := r.URL.Query().Get("facility"); facility != "" {
		all = cal.ForFacility(facility)
	}
	out := make([]slots.Slot, 0, len(all))
	for _, slot := range all {
		if from != "" && slot.Date.Before(from) {
			continue
		}
		out = append(out, slot)
	}
	writeJSON(w, http.StatusOK, CalendarResponse{Today: s.svc.Today(), Slots: out})
}

// handleProgress returns the facility's month progress.
// GET /api/facilities/{facility}/progress?month=2024-04
func (s *HTTPServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	month := s.svc.Today().Month()
	if raw := r.URL.Query().Get("month"); raw != "" {
		var err error
		if month, err = parseMonth(raw); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	p, err := s.svc.Progress(r.Context(), r.PathValue("facility"), month)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleDetail returns the member buckets of one visit.
// GET /api/facilities/{facility}/dates/{date}
func (s *HTTPServer) handleDetail(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.PathValue("date"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	d, err := s.svc.Detail(r.Context(), r.PathValue("facility"), date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleTasks returns the visits of a day.
// GET /api/tasks?date=2024-04-05
func (s *HTTPServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	date := s.svc.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		var err error
		if date, err = parseDate(raw); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}
	tasks, err := s.svc.Tasks(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "tasks": tasks})
}

// handleICS serves the facility's holds and visits as an iCalendar feed.
// GET /api/facilities/{facility}/calendar.ics
func (s *HTTPServer) handleICS(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	facility, ok := snap.Facility(r.PathValue("facility"))
	if !ok {
		s.writeServiceError(w, r, fmt.Errorf("facility %q: %w", r.PathValue("facility"), model.ErrNotFound))
		return
	}
	cal, err := s.svc.Calendar(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var rules []model.RecurringRule
	if s.rules != nil {
		rules = s.rules()
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", facility.ID+".ics"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(buildICS(facility, cal.ForFacility(facility.ID), rules, time.Now(), s.loc)))
}
