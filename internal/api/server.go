// Package api exposes the booking service over JSON/HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"carevisit/internal/attendance"
	"carevisit/internal/model"
	"carevisit/internal/slots"
)

// Service is the booking service behind the handlers.
type Service interface {
	Today() model.Date
	Snapshot(ctx context.Context) (*model.Snapshot, error)
	Calendar(ctx context.Context) (*slots.Calendar, error)
	Progress(ctx context.Context, facility string, month model.Month) (attendance.Progress, error)
	Detail(ctx context.Context, facility string, date model.Date) (attendance.Detail, error)
	Tasks(ctx context.Context, date model.Date) ([]attendance.Task, error)

	ToggleKeep(ctx context.Context, facility string, date model.Date) (bool, error)
	ConfirmMonth(ctx context.Context, facility string) ([]model.Booking, error)
	DeleteBooking(ctx context.Context, facility string, date model.Date) error
	FinalizeMonth(ctx context.Context, facility string, month model.Month) (int, error)
	CompleteMember(ctx context.Context, bookingID, memberID, menu string, price int) error
	CancelMember(ctx context.Context, bookingID, memberID string) error
	UndoMember(ctx context.Context, bookingID, memberID string) error
	AddWalkIn(ctx context.Context, facility string, date model.Date, member model.Member, menu string, price int) (model.Booking, error)
	SetRoster(ctx context.Context, facility string, residents []model.Resident) error
	SetNgDate(ctx context.Context, ng model.NgDate) error
	ClearNgDate(ctx context.Context, date model.Date) error
}

// Options configures the HTTP server.
type Options struct {
	Port      int
	RateLimit float64 // requests per second per client
	RateBurst int
	Location  *time.Location
	// Rules returns the current recurring rules; it gives calendar feed
	// events their start time. May be nil.
	Rules func() []model.RecurringRule
}

// HTTPServer serves the JSON API.
type HTTPServer struct {
	svc     Service
	server  *http.Server
	limiter *clientLimiter
	loc     *time.Location
	rules   func() []model.RecurringRule
	logger  *zerolog.Logger
}

func NewHTTPServer(svc Service, opts Options, logger *zerolog.Logger) *HTTPServer {
	l := logger.With().Str("component", "api").Logger()
	if opts.Location == nil {
		opts.Location = time.Local
	}
	s := &HTTPServer{
		svc:     svc,
		limiter: newClientLimiter(opts.RateLimit, opts.RateBurst),
		loc:     opts.Location,
		rules:   opts.Rules,
		logger:  &l,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.withRequestID(s.withLogging(s.withRateLimit(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/facilities/{facility}/calendar.ics", s.handleICS)
	mux.HandleFunc("GET /api/facilities/{facility}/progress", s.handleProgress)
	mux.HandleFunc("GET /api/facilities/{facility}/dates/{date}", s.handleDetail)

	mux.HandleFunc("POST /api/facilities/{facility}/keeps/{date}", s.handleToggleKeep)
	mux.HandleFunc("POST /api/facilities/{facility}/confirm", s.handleConfirmMonth)
	mux.HandleFunc("DELETE /api/facilities/{facility}/bookings/{date}", s.handleDeleteBooking)
	mux.HandleFunc("POST /api/facilities/{facility}/months/{month}/finalize", s.handleFinalizeMonth)
	mux.HandleFunc("POST /api/facilities/{facility}/dates/{date}/walk-ins", s.handleAddWalkIn)
	mux.HandleFunc("PUT /api/facilities/{facility}/residents", s.handleSetRoster)

	mux.HandleFunc("POST /api/bookings/{booking}/members/{member}/{action}", s.handleMemberAction)

	mux.HandleFunc("PUT /api/ng-dates/{date}", s.handleSetNgDate)
	mux.HandleFunc("DELETE /api/ng-dates/{date}", s.handleClearNgDate)
}

// Handler returns the root handler with middleware applied.
func (s *HTTPServer) Handler() http.Handler { return s.server.Handler }

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
