// api/loader/loader.go
package loader

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shoplens/api/models"
)

// FormatError reports an archive that cannot be opened or holds no
// recognizable data file.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string { return "archive format error: " + e.Err.Error() }
func (e *FormatError) Unwrap() error { return e.Err }

// DataError reports a data file that is present but cannot be deserialized
// into a valid event table. Loading is all-or-nothing: a single bad row
// fails the whole load.
type DataError struct {
	Err error
}

func (e *DataError) Error() string { return "dataset error: " + e.Err.Error() }
func (e *DataError) Unwrap() error { return e.Err }

var requiredColumns = []string{
	"event_time", "product_id", "category_code", "brand",
	"price", "user_id", "view", "purchase",
}

// Accepted event_time layouts, tried in order. Whatever the source zone,
// every timestamp is converted to UTC before it enters the table.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LoadBytes loads an event table from in-memory zip archive bytes.
func LoadBytes(data []byte) ([]models.Event, error) {
	return Load(bytes.NewReader(data), int64(len(data)))
}

// Load reads a zip archive holding exactly one CSV data file and returns the
// fully derived, immutable event table. Loading the same byte source twice
// yields identical tables.
func Load(r io.ReaderAt, size int64) ([]models.Event, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &FormatError{Err: fmt.Errorf("opening archive: %w", err)}
	}

	member := findDataFile(zr)
	if member == nil {
		return nil, &FormatError{Err: errors.New("no .csv data file found in archive")}
	}

	f, err := member.Open()
	if err != nil {
		return nil, &FormatError{Err: fmt.Errorf("opening archive member %q: %w", member.Name, err)}
	}
	defer f.Close()

	events, err := readCSV(f)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// findDataFile picks the first regular .csv member, skipping directories and
// macOS resource-fork junk.
func findDataFile(zr *zip.Reader) *zip.File {
	for _, f := range zr.File {
		name := f.Name
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(baseName(name), ".") {
			continue
		}
		if strings.HasSuffix(strings.ToLower(name), ".csv") {
			return f
		}
	}
	return nil
}

// baseName returns the last segment of a zip member path.
func baseName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func readCSV(r io.Reader) ([]models.Event, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, &DataError{Err: fmt.Errorf("reading header: %w", err)}
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &DataError{Err: fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))}
	}

	var events []models.Event
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &DataError{Err: fmt.Errorf("line %d: %w", line, err)}
		}

		ev, err := parseRow(record, cols)
		if err != nil {
			return nil, &DataError{Err: fmt.Errorf("line %d: %w", line, err)}
		}
		events = append(events, ev)
	}

	return events, nil
}

func parseRow(record []string, cols map[string]int) (models.Event, error) {
	var ev models.Event

	ts, err := parseEventTime(record[cols["event_time"]])
	if err != nil {
		return ev, err
	}
	ev.EventTime = ts

	ev.ProductID = strings.TrimSpace(record[cols["product_id"]])
	if ev.ProductID == "" {
		return ev, errors.New("empty product_id")
	}
	ev.UserID = strings.TrimSpace(record[cols["user_id"]])
	if ev.UserID == "" {
		return ev, errors.New("empty user_id")
	}
	ev.CategoryCode = strings.TrimSpace(record[cols["category_code"]])
	ev.Brand = strings.TrimSpace(record[cols["brand"]])

	price, err := parsePrice(record[cols["price"]])
	if err != nil {
		return ev, err
	}
	ev.Price = price

	ev.View, err = parseCount("view", record[cols["view"]])
	if err != nil {
		return ev, err
	}
	ev.Purchase, err = parseCount("purchase", record[cols["purchase"]])
	if err != nil {
		return ev, err
	}

	ev.MainCategory = models.DeriveMainCategory(ev.CategoryCode)
	ev.YearMonth = models.DeriveYearMonth(ev.EventTime)
	return ev, nil
}

func parseEventTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable event_time %q", s)
}

func parsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparsable price %q", s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %q", s)
	}
	return d, nil
}

func parseCount(column, s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable %s count %q", column, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative %s count %q", column, s)
	}
	return n, nil
}
