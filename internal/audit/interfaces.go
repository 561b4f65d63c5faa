package audit

import (
	"context"
	"fmt"
	"io"

	"carevisit/internal/attendance"
	"carevisit/internal/model"
)

// Operations is the part of the booking service the audit jobs drive.
type Operations interface {
	Snapshot(ctx context.Context) (*model.Snapshot, error)
	FinalizeMonth(ctx context.Context, facility string, month model.Month) (int, error)
	Tasks(ctx context.Context, date model.Date) ([]attendance.Task, error)
	Today() model.Date
}

// ExcelWriter writes data to Excel format.
type ExcelWriter interface {
	// AddSheet adds a new sheet with the given name.
	AddSheet(name string) error

	// WriteHeader writes column headers to current sheet.
	WriteHeader(columns []string) error

	// WriteRow writes a data row to current sheet.
	WriteRow(row []any) error

	// Save writes the Excel file to the writer.
	Save(w io.Writer) error

	Close() error
}

// Notifier delivers reports to the operators.
type Notifier interface {
	SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error
	SendMessage(ctx context.Context, text string) error
}

// GenerateFilename creates a filename like "carevisit_2024-04.xlsx".
func GenerateFilename(month model.Month) string {
	return fmt.Sprintf("carevisit_%s.xlsx", month)
}
