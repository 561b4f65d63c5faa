package api

import (
	"fmt"
	"net/http"

	"carevisit/internal/model"
)

// handleToggleKeep places or releases the facility's hold on a date.
// POST /api/facilities/{facility}/keeps/{date}
func (s *HTTPServer) handleToggleKeep(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.PathValue("date"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	held, err := s.svc.ToggleKeep(r.Context(), r.PathValue("facility"), date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "held": held})
}

// handleConfirmMonth turns the facility's earliest held month into bookings.
// POST /api/facilities/{facility}/confirm
func (s *HTTPServer) handleConfirmMonth(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.svc.ConfirmMonth(r.Context(), r.PathValue("facility"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"bookings": bookings})
}

// DELETE /api/facilities/{facility}/bookings/{date}
func (s *HTTPServer) handleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.PathValue("date"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.DeleteBooking(r.Context(), r.PathValue("facility"), date); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/facilities/{facility}/months/{month}/finalize
func (s *HTTPServer) handleFinalizeMonth(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r.PathValue("month"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	cancelled, err := s.svc.FinalizeMonth(r.Context(), r.PathValue("facility"), month)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": month, "cancelled": cancelled})
}

// ServiceRequest is the body of complete and walk-in requests.
type ServiceRequest struct {
	Menu  string `json:"menu"`
	Price int    `json:"price"`
}

// WalkInRequest adds an unplanned resident to a visit.
type WalkInRequest struct {
	Name  string `json:"name"`
	Room  string `json:"room,omitempty"`
	Kana  string `json:"kana,omitempty"`
	Menu  string `json:"menu"`
	Price int    `json:"price"`
}

// handleMemberAction completes, cancels or undoes one booking line.
// POST /api/bookings/{booking}/members/{member}/{action}
func (s *HTTPServer) handleMemberAction(w http.ResponseWriter, r *http.Request) {
	bookingID, memberID := r.PathValue("booking"), r.PathValue("member")

	var err error
	switch action := r.PathValue("action"); action {
	case "complete":
		var req ServiceRequest
		if derr := decodeBody(r, &req); derr != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "invalid JSON body")
			return
		}
		if req.Menu == "" || req.Price < 0 {
			writeError(w, http.StatusBadRequest, "invalid_input", "menu is required and price must not be negative")
			return
		}
		err = s.svc.CompleteMember(r.Context(), bookingID, memberID, req.Menu, req.Price)
	case "cancel":
		err = s.svc.CancelMember(r.Context(), bookingID, memberID)
	case "undo":
		err = s.svc.UndoMember(r.Context(), bookingID, memberID)
	default:
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("unknown action %q", action))
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/facilities/{facility}/dates/{date}/walk-ins
func (s *HTTPServer) handleAddWalkIn(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.PathValue("date"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req WalkInRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid JSON body")
		return
	}
	if req.Name == "" || req.Menu == "" || req.Price < 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "name and menu are required and price must not be negative")
		return
	}

	member := model.Member{Name: req.Name, Room: req.Room, Kana: req.Kana}
	b, err := s.svc.AddWalkIn(r.Context(), r.PathValue("facility"), date, member, req.Menu, req.Price)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// handleSetRoster replaces the facility's residents.
// PUT /api/facilities/{facility}/residents
func (s *HTTPServer) handleSetRoster(w http.ResponseWriter, r *http.Request) {
	var residents []model.Resident
	if err := decodeBody(r, &residents); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid JSON body")
		return
	}
	if err := s.svc.SetRoster(r.Context(), r.PathValue("facility"), residents); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"residents": len(residents)})
}

// PUT /api/ng-dates/{date}
func (s *HTTPServer) handleSetNgDate(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.PathValue("date"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "invalid JSON body")
			return
		}
	}
	ng := model.NgDate{Date: date, Reason: req.Reason}
	if err := s.svc.SetNgDate(r.Context(), ng); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ng)
}

// DELETE /api/ng-dates/{date}
func (s *HTTPServer) handleClearNgDate(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.PathValue("date"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.ClearNgDate(r.Context(), date); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
