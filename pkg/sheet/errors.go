package sheet

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySheet is returned when the sheet has no data rows.
	ErrEmptySheet = errors.New("sheet: sheet is empty")

	// ErrInvalidEmail is returned when a data row has a missing or malformed email.
	ErrInvalidEmail = errors.New("sheet: invalid email")

	// ErrMissingPlaceholder is returned when a required placeholder has no column.
	ErrMissingPlaceholder = errors.New("sheet: missing placeholder")

	// ErrUnreadable is returned when the input is neither XLSX nor CSV.
	ErrUnreadable = errors.New("sheet: failed to read spreadsheet")
)

// RowError reports the first invalid row. Row is the spreadsheet row
// number a user sees, counting the header as row 1.
type RowError struct {
	Row         int
	Value       string // offending email, empty when missing
	Placeholder string // set for missing placeholder errors
	err         error
}

func (e *RowError) Error() string {
	if e.Placeholder != "" {
		return fmt.Sprintf("missing placeholder %q in row %d", e.Placeholder, e.Row)
	}
	value := e.Value
	if value == "" {
		value = "missing"
	}
	return fmt.Sprintf("invalid email in row %d: %s", e.Row, value)
}

// Unwrap returns ErrInvalidEmail or ErrMissingPlaceholder.
func (e *RowError) Unwrap() error { return e.err }
