// Package sheet reads recipient lists from spreadsheets and produces the
// matching blank template.
//
// The first sheet of an XLSX workbook is read with row 1 as the header.
// Plain CSV input follows the same rules. The email column is matched
// case-insensitively; every other header becomes a placeholder value.
// Parsing is all or nothing: the first invalid row fails the whole sheet.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Recipient is one data row: the address plus every column value keyed by
// its trimmed header name.
type Recipient struct {
	Email  string
	Values map[string]string
}

const (
	emailColumn = "email"
	sheetName   = "Recipients"
	sampleEmail = "example@email.com"
	sampleValue = "Sample Value"
)

var (
	emailRe  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	zipMagic = []byte("PK\x03\x04")
)

// IsEmail reports whether s looks like an email address.
func IsEmail(s string) bool {
	return emailRe.MatchString(s)
}

// row is a raw sheet row with its visible row number.
type row struct {
	num   int
	cells []string
}

// Parse reads recipients from r. Each name in required must be a header
// column; an empty cell in that column still counts as present.
func Parse(r io.Reader, required []string) ([]Recipient, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Join(ErrUnreadable, err)
	}

	var rows []row
	if bytes.HasPrefix(data, zipMagic) {
		rows, err = readXLSX(data)
	} else {
		rows, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}

	header := rows[0].cells
	columns := make(map[string]int, len(header))
	emailIdx := -1
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, dup := columns[h]; !dup {
			columns[h] = i
		}
		if emailIdx < 0 && strings.EqualFold(h, emailColumn) {
			emailIdx = i
		}
	}

	var out []Recipient
	for _, rw := range rows[1:] {
		if blank(rw.cells) {
			continue
		}

		email := strings.TrimSpace(cell(rw.cells, emailIdx))
		if email == "" || !IsEmail(email) {
			return nil, &RowError{Row: rw.num, Value: email, err: ErrInvalidEmail}
		}
		for _, p := range required {
			if _, ok := columns[p]; !ok {
				return nil, &RowError{Row: rw.num, Placeholder: p, err: ErrMissingPlaceholder}
			}
		}

		values := make(map[string]string, len(columns))
		for name, idx := range columns {
			values[name] = strings.TrimSpace(cell(rw.cells, idx))
		}
		out = append(out, Recipient{Email: email, Values: values})
	}

	if len(out) == 0 {
		return nil, ErrEmptySheet
	}
	return out, nil
}

// Template builds an XLSX workbook with a "Recipients" sheet whose header
// is email followed by placeholders, plus one sample row.
func Template(placeholders []string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("sheet: rename sheet: %w", err)
	}

	header := make([]any, 0, len(placeholders)+1)
	sample := make([]any, 0, len(placeholders)+1)
	header = append(header, emailColumn)
	sample = append(sample, sampleEmail)
	for _, p := range placeholders {
		header = append(header, p)
		sample = append(sample, sampleValue)
	}

	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("sheet: write header: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A2", &sample); err != nil {
		return nil, fmt.Errorf("sheet: write sample: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("sheet: encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func readXLSX(data []byte) ([]row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Join(ErrUnreadable, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}
	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Join(ErrUnreadable, err)
	}

	rows := make([]row, len(cells))
	for i, c := range cells {
		rows[i] = row{num: i + 1, cells: c}
	}
	return rows, nil
}

func readCSV(data []byte) ([]row, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: not an XLSX workbook or UTF-8 CSV", ErrUnreadable)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows []row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Join(ErrUnreadable, err)
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, row{num: line, cells: rec})
	}
	return rows, nil
}

func cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
