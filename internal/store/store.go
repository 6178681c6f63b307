// Package store loads the pump dataset from its CSV export.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/pump-status-service/internal/domain"
)

// LoadFile reads the dataset at path. The file is closed before returning.
func LoadFile(path string) (domain.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := Load(f)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("load dataset %s: %w", path, err)
	}
	return ds, nil
}

// Load parses a CSV stream with a header row into a Dataset. Columns not known
// to the pump schema are ignored; known columns absent from the header leave
// their field zero and are reported by Dataset.HasColumn.
func Load(r io.Reader) (domain.Dataset, error) {
	cr := newReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Dataset{}, errors.New("empty dataset: missing header row")
		}
		return domain.Dataset{}, fmt.Errorf("read header: %w", err)
	}
	header = normalizeHeader(header)
	index := indexHeader(header)

	var records []domain.PumpRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Dataset{}, fmt.Errorf("read row %d: %w", line, err)
		}
		rec, err := parseRecord(row, index)
		if err != nil {
			return domain.Dataset{}, fmt.Errorf("parse row %d: %w", line, err)
		}
		records = append(records, rec)
	}

	return domain.NewDataset(header, records), nil
}

// ReadInputs parses a CSV stream into raw prediction inputs, one per row, with
// every cell kept as a string. The header is returned so callers can check
// required columns before predicting.
func ReadInputs(r io.Reader) ([]domain.RawInput, []string, error) {
	cr := newReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("empty input: missing header row")
		}
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	header = normalizeHeader(header)

	var inputs []domain.RawInput
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", line, err)
		}
		in := make(domain.RawInput, len(header))
		for i, col := range header {
			if i < len(row) {
				in[col] = row[i]
			}
		}
		inputs = append(inputs, in)
	}
	return inputs, header, nil
}

// RequireColumns fails with a SchemaError listing every required column
// missing from header.
func RequireColumns(header, required []string) error {
	present := indexHeader(header)
	var missing []string
	for _, c := range required {
		if _, ok := present[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &domain.SchemaError{
		Column: strings.Join(missing, ","),
		Reason: "required columns missing from input",
	}
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false
	return cr
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = h
	}
	return out
}

func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	return idx
}

// parseRecord maps one CSV row onto a PumpRecord using the header index.
func parseRecord(row []string, index map[string]int) (domain.PumpRecord, error) {
	cell := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		rec domain.PumpRecord
		err error
	)
	rec.ID = cell(domain.ColumnID)
	rec.Region = cell(domain.ColumnRegion)
	rec.Source = cell(domain.ColumnSource)
	rec.QualityGroup = cell(domain.ColumnQualityGroup)
	rec.StatusGroup = domain.StatusGroup(cell(domain.ColumnStatusGroup))
	rec.ExtractionType = cell(domain.ColumnExtractionType)
	rec.Management = cell(domain.ColumnManagement)
	rec.PaymentType = cell(domain.ColumnPaymentType)
	rec.QuantityGroup = cell(domain.ColumnQuantityGroup)
	rec.WaterpointType = cell(domain.ColumnWaterpointType)
	rec.SchemeManagement = cell(domain.ColumnSchemeManagement)

	if rec.Longitude, err = parseFloat(domain.ColumnLongitude, cell(domain.ColumnLongitude)); err != nil {
		return rec, err
	}
	if rec.Latitude, err = parseFloat(domain.ColumnLatitude, cell(domain.ColumnLatitude)); err != nil {
		return rec, err
	}
	if rec.Altitude, err = parseFloat(domain.ColumnAltitude, cell(domain.ColumnAltitude)); err != nil {
		return rec, err
	}
	if rec.ConstructionYear, err = parseInt(domain.ColumnConstructionYear, cell(domain.ColumnConstructionYear)); err != nil {
		return rec, err
	}
	if rec.Population, err = parseInt(domain.ColumnPopulation, cell(domain.ColumnPopulation)); err != nil {
		return rec, err
	}
	if rec.Permit, err = parsePermit(cell(domain.ColumnPermit)); err != nil {
		return rec, err
	}
	return rec, nil
}

// parseFloat treats empty and NaN cells as missing (zero).
func parseFloat(field, s string) (float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &domain.ValidationError{Field: field, Value: s, Reason: "not a number"}
	}
	return v, nil
}

// parseInt accepts the float formatting pandas uses for integer columns ("1999.0").
func parseInt(field, s string) (int, error) {
	v, err := parseFloat(field, s)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, &domain.ValidationError{Field: field, Value: s, Reason: "not an integer"}
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, &domain.ValidationError{Field: field, Value: s, Reason: "out of range"}
	}
	return int(v), nil
}

func parsePermit(s string) (*bool, error) {
	switch s {
	case "":
		return nil, nil
	case "True", "true", "1":
		v := true
		return &v, nil
	case "False", "false", "0":
		v := false
		return &v, nil
	default:
		return nil, &domain.ValidationError{Field: domain.ColumnPermit, Value: s, Reason: "not a boolean"}
	}
}
