// Package audit runs the month-end close and the operator reports: it
// finalizes the previous month for every facility, exports the month's
// bookings and ledger to a workbook, and sends the daily task list.
package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"carevisit/internal/attendance"
	"carevisit/internal/model"
)

// Config holds configuration for the audit service.
type Config struct {
	// ExportDir receives workbooks when no notifier is configured.
	ExportDir string

	// DailyTasksHour is the local hour the task list is sent. Negative disables it.
	DailyTasksHour int

	Location *time.Location
}

// Service handles the month-end close and the operator reports.
type Service struct {
	config   Config
	ops      Operations
	writer   func() ExcelWriter
	notifier Notifier
	logger   *zerolog.Logger
	now      func() time.Time
}

// NewService creates a new audit service. notifier may be nil.
func NewService(cfg Config, ops Operations, writerFactory func() ExcelWriter, notifier Notifier, logger *zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if writerFactory == nil {
		writerFactory = NewExcelizeWriter
	}
	l := logger.With().Str("component", "audit").Logger()
	return &Service{
		config:   cfg,
		ops:      ops,
		writer:   writerFactory,
		notifier: notifier,
		logger:   &l,
		now:      time.Now,
	}
}

// Start runs the monthly close and the daily report until ctx is done.
func (s *Service) Start(ctx context.Context) {
	monthly := time.NewTimer(time.Until(s.nextFirstOfMonth()))
	defer monthly.Stop()

	daily := time.NewTimer(time.Until(s.nextDailyRun()))
	defer daily.Stop()
	if s.config.DailyTasksHour < 0 {
		daily.Stop()
	}

	s.logger.Info().Time("next_close", s.nextFirstOfMonth()).Msg("Audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Audit service stopped")
			return
		case <-monthly.C:
			prev := model.MonthOf(s.now().In(s.config.Location)).Prev()
			if _, err := s.CloseMonth(ctx, prev); err != nil {
				s.logger.Error().Err(err).Str("month", string(prev)).Msg("Month close failed")
			}
			monthly.Reset(time.Until(s.nextFirstOfMonth()))
		case <-daily.C:
			if err := s.SendDailyTasks(ctx, s.ops.Today()); err != nil {
				s.logger.Error().Err(err).Msg("Failed to send daily tasks")
			}
			daily.Reset(time.Until(s.nextDailyRun()))
		}
	}
}

func (s *Service) nextFirstOfMonth() time.Time {
	now := s.now().In(s.config.Location)
	// First day of next month at 00:01
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, s.config.Location)
}

func (s *Service) nextDailyRun() time.Time {
	now := s.now().In(s.config.Location)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.config.DailyTasksHour, 0, 0, 0, s.config.Location)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// CloseResult reports a month close.
type CloseResult struct {
	Month     model.Month    `json:"month"`
	Cancelled map[string]int `json:"cancelled"`
	Filename  string         `json:"filename"`
}

// CloseMonth finalizes month for every active facility and exports it.
// Facilities already finalized are skipped; a failure on one facility does
// not stop the others.
func (s *Service) CloseMonth(ctx context.Context, month model.Month) (CloseResult, error) {
	res := CloseResult{Month: month, Cancelled: make(map[string]int)}

	snap, err := s.ops.Snapshot(ctx)
	if err != nil {
		return res, fmt.Errorf("load snapshot: %w", err)
	}

	var errs []error
	for _, f := range snap.Facilities {
		if !f.Active {
			continue
		}
		n, err := s.ops.FinalizeMonth(ctx, f.ID, month)
		switch {
		case errors.Is(err, model.ErrAlreadyFinalized):
			s.logger.Debug().Str("facility", f.ID).Str("month", string(month)).Msg("Month already finalized")
		case err != nil:
			s.logger.Error().Err(err).Str("facility", f.ID).Msg("Failed to finalize month")
			errs = append(errs, fmt.Errorf("finalize %s: %w", f.ID, err))
		default:
			res.Cancelled[f.ID] = n
		}
	}

	filename, err := s.Export(ctx, month)
	if err != nil {
		errs = append(errs, err)
	}
	res.Filename = filename

	s.logger.Info().Str("month", string(month)).Interface("cancelled", res.Cancelled).Msg("Month closed")
	return res, errors.Join(errs...)
}

// Export builds the month's workbook and delivers it. It returns the file name.
func (s *Service) Export(ctx context.Context, month model.Month) (string, error) {
	snap, err := s.ops.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("load snapshot: %w", err)
	}

	var buf bytes.Buffer
	if err := s.WriteWorkbook(&buf, snap, month); err != nil {
		return "", err
	}

	filename := GenerateFilename(month)
	if s.notifier != nil {
		caption := fmt.Sprintf("Monthly visit report %s", month)
		if err := s.notifier.SendDocument(ctx, filename, &buf, caption); err != nil {
			return filename, fmt.Errorf("send document: %w", err)
		}
		s.logger.Info().Str("filename", filename).Msg("Audit report sent")
		return filename, nil
	}

	if s.config.ExportDir == "" {
		return filename, fmt.Errorf("no notifier and no export directory configured")
	}
	if err := os.MkdirAll(s.config.ExportDir, 0o755); err != nil {
		return filename, fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(s.config.ExportDir, filename)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return filename, fmt.Errorf("write %s: %w", path, err)
	}
	s.logger.Info().Str("path", path).Msg("Audit report written")
	return filename, nil
}

var (
	summaryColumns = []string{"Facility", "Visits", "Planned", "Processed", "Served", "Cancelled", "Revenue", "Finalized"}
	bookingColumns = []string{"Date", "Facility", "Room", "Name", "Kana", "Status", "Walk-in"}
	historyColumns = []string{"Date", "Facility", "Room", "Name", "Kana", "Menu", "Price"}
)

// WriteWorkbook writes the Summary, Bookings and History sheets for month.
func (s *Service) WriteWorkbook(w io.Writer, snap *model.Snapshot, month model.Month) error {
	excel := s.writer()
	if excel == nil {
		return fmt.Errorf("failed to create excel writer")
	}
	defer excel.Close()

	bookings := monthBookings(snap, month)
	history := monthHistory(snap, month)
	ledger := attendance.NewLedger(snap.History)

	if err := writeSheet(excel, "Summary", summaryColumns, func(emit func([]any) error) error {
		for _, f := range snap.Facilities {
			p := attendance.ComputeProgress(month, f.ID, snap.Bookings, snap.History, snap.Roster(f.ID), snap.NgDates)
			visits, served, cancelled, revenue := 0, 0, 0, 0
			for _, b := range bookings {
				if b.Facility != f.ID {
					continue
				}
				visits++
				for _, m := range b.Members {
					if attendance.Resolve(b, m, ledger).Kind == attendance.Cancelled {
						cancelled++
					}
				}
			}
			for _, h := range history {
				if h.Facility == f.ID {
					served++
					revenue += h.Price
				}
			}
			if visits == 0 && served == 0 {
				continue
			}
			row := []any{f.Name, visits, p.Planned, p.Processed, served, cancelled, revenue, snap.IsFinalized(f.ID, month)}
			if err := emit(row); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := writeSheet(excel, "Bookings", bookingColumns, func(emit func([]any) error) error {
		for _, b := range bookings {
			for _, m := range b.Members {
				st := attendance.Resolve(b, m, ledger)
				row := []any{string(b.Date), facilityName(snap, b.Facility), m.Room, m.Name, m.Kana, st.Kind.String(), m.IsExtra}
				if err := emit(row); err != nil {
					return err
				}
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := writeSheet(excel, "History", historyColumns, func(emit func([]any) error) error {
		for _, h := range history {
			row := []any{string(h.Date), facilityName(snap, h.Facility), h.Room, h.Name, h.Kana, h.Menu, h.Price}
			if err := emit(row); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := excel.Save(w); err != nil {
		return fmt.Errorf("save excel: %w", err)
	}
	return nil
}

func writeSheet(excel ExcelWriter, name string, columns []string, rows func(emit func([]any) error) error) error {
	if err := excel.AddSheet(name); err != nil {
		return err
	}
	if err := excel.WriteHeader(columns); err != nil {
		return fmt.Errorf("sheet %s: %w", name, err)
	}
	if err := rows(excel.WriteRow); err != nil {
		return fmt.Errorf("sheet %s: %w", name, err)
	}
	return nil
}

func monthBookings(snap *model.Snapshot, month model.Month) []model.Booking {
	var out []model.Booking
	for _, b := range snap.Bookings {
		if month.Contains(b.Date) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func monthHistory(snap *model.Snapshot, month model.Month) []model.HistoryEntry {
	var out []model.HistoryEntry
	for _, h := range snap.History {
		if month.Contains(h.Date) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Facility != out[j].Facility {
			return out[i].Facility < out[j].Facility
		}
		return out[i].Room < out[j].Room
	})
	return out
}

func facilityName(snap *model.Snapshot, id string) string {
	if f, ok := snap.Facility(id); ok && f.Name != "" {
		return f.Name
	}
	return id
}

// SendDailyTasks sends the visits of date with their open member counts.
func (s *Service) SendDailyTasks(ctx context.Context, date model.Date) error {
	if s.notifier == nil {
		return nil
	}
	tasks, err := s.ops.Tasks(ctx, date)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	if len(tasks) == 0 {
		s.logger.Debug().Str("date", string(date)).Msg("No visits today")
		return nil
	}

	snap, err := s.ops.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if err := s.notifier.SendMessage(ctx, FormatTasks(snap, date, tasks)); err != nil {
		return fmt.Errorf("send tasks: %w", err)
	}
	s.logger.Info().Str("date", string(date)).Int("visits", len(tasks)).Msg("Daily tasks sent")
	return nil
}

// FormatTasks renders the task list as a plain text message.
func FormatTasks(snap *model.Snapshot, date model.Date, tasks []attendance.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Visits on %s\n", date)
	for _, t := range tasks {
		mark := "•"
		if t.Finished() {
			mark = "✓"
		}
		fmt.Fprintf(&sb, "%s %s: %d/%d done, %d cancelled, %d pending\n",
			mark, facilityName(snap, t.Facility), t.Done, t.Total, t.Cancelled, t.Pending)
	}
	return sb.String()
}
