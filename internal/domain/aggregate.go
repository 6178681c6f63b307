package domain

import (
	"slices"
	"strconv"
)

// MinPlausibleConstructionYear is the lowest construction year counted by
// WellsByYear. Smaller values are imputation sentinels, not real years.
const MinPlausibleConstructionYear = 60

// StatusCounts holds the number of records in each valid status group.
type StatusCounts struct {
	Functional    int `json:"functional"`
	NeedsRepair   int `json:"needs_repair"`
	NonFunctional int `json:"non_functional"`
}

// Total returns the sum of the three groups.
func (s StatusCounts) Total() int {
	return s.Functional + s.NeedsRepair + s.NonFunctional
}

func (s *StatusCounts) add(status StatusGroup) {
	switch status {
	case StatusFunctional:
		s.Functional++
	case StatusNeedsRepair:
		s.NeedsRepair++
	case StatusNonFunctional:
		s.NonFunctional++
	}
}

// CountByStatus counts records per status group. Records with an invalid
// status are not counted.
func CountByStatus(ds Dataset) (StatusCounts, error) {
	if err := ds.requireColumns(ColumnStatusGroup); err != nil {
		return StatusCounts{}, err
	}
	var counts StatusCounts
	for _, r := range ds.records {
		counts.add(r.StatusGroup)
	}
	return counts, nil
}

// CountStatusGroups counts records per status group, restricted to a single
// construction year when year is non-nil. As in Criteria.Matches, an unknown
// construction year (0) never matches a requested year.
func CountStatusGroups(ds Dataset, year *int) (StatusCounts, error) {
	if err := ds.requireColumns(ColumnStatusGroup, ColumnConstructionYear); err != nil {
		return StatusCounts{}, err
	}
	var counts StatusCounts
	for _, r := range ds.records {
		if year != nil && (r.ConstructionYear == 0 || r.ConstructionYear != *year) {
			continue
		}
		counts.add(r.StatusGroup)
	}
	return counts, nil
}

// YearCounts maps construction year to record count for the functional and
// non-functional groups. Maps are sparse: a year with no records is absent.
type YearCounts struct {
	Functional    map[int]int `json:"functional"`
	NonFunctional map[int]int `json:"non_functional"`
}

// YearPoint is one point of a by-year series.
type YearPoint struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// WellsByYear groups functional and non-functional records by construction
// year, dropping years below MinPlausibleConstructionYear.
func WellsByYear(ds Dataset) (YearCounts, error) {
	if err := ds.requireColumns(ColumnStatusGroup, ColumnConstructionYear); err != nil {
		return YearCounts{}, err
	}
	out := YearCounts{
		Functional:    make(map[int]int),
		NonFunctional: make(map[int]int),
	}
	for _, r := range ds.records {
		if r.ConstructionYear < MinPlausibleConstructionYear {
			continue
		}
		switch r.StatusGroup {
		case StatusFunctional:
			out.Functional[r.ConstructionYear]++
		case StatusNonFunctional:
			out.NonFunctional[r.ConstructionYear]++
		}
	}
	return out, nil
}

// Series returns the counts for one status as points sorted by year. With
// dense set, missing years between the smallest and largest year present in
// either status are filled with zero so both series share the same x axis.
func (y YearCounts) Series(status StatusGroup, dense bool) []YearPoint {
	var m map[int]int
	switch status {
	case StatusFunctional:
		m = y.Functional
	case StatusNonFunctional:
		m = y.NonFunctional
	default:
		return nil
	}

	if !dense {
		years := make([]int, 0, len(m))
		for yr := range m {
			years = append(years, yr)
		}
		slices.Sort(years)
		points := make([]YearPoint, len(years))
		for i, yr := range years {
			points[i] = YearPoint{Year: yr, Count: m[yr]}
		}
		return points
	}

	lo, hi, ok := y.span()
	if !ok {
		return []YearPoint{}
	}
	points := make([]YearPoint, 0, hi-lo+1)
	for yr := lo; yr <= hi; yr++ {
		points = append(points, YearPoint{Year: yr, Count: m[yr]})
	}
	return points
}

func (y YearCounts) span() (lo, hi int, ok bool) {
	for _, m := range []map[int]int{y.Functional, y.NonFunctional} {
		for yr := range m {
			if !ok || yr < lo {
				lo = yr
			}
			if !ok || yr > hi {
				hi = yr
			}
			ok = true
		}
	}
	return lo, hi, ok
}

// DistinctValues returns the sorted non-empty values of a categorical column.
func DistinctValues(ds Dataset, column string) ([]string, error) {
	get, ok := categoricalGetters[column]
	if !ok {
		return nil, &SchemaError{Column: column, Reason: "not a categorical column"}
	}
	if err := ds.requireColumns(column); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, r := range ds.records {
		if v := get(r); v != "" {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	slices.Sort(out)
	return out, nil
}

// DistinctYears returns the sorted known construction years.
func DistinctYears(ds Dataset) ([]int, error) {
	if err := ds.requireColumns(ColumnConstructionYear); err != nil {
		return nil, err
	}
	seen := make(map[int]struct{})
	for _, r := range ds.records {
		if r.ConstructionYear != 0 {
			seen[r.ConstructionYear] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for yr := range seen {
		out = append(out, yr)
	}
	slices.Sort(out)
	return out, nil
}

var categoricalGetters = map[string]func(PumpRecord) string{
	ColumnRegion:           func(r PumpRecord) string { return r.Region },
	ColumnSource:           func(r PumpRecord) string { return r.Source },
	ColumnQualityGroup:     func(r PumpRecord) string { return r.QualityGroup },
	ColumnStatusGroup:      func(r PumpRecord) string { return string(r.StatusGroup) },
	ColumnExtractionType:   func(r PumpRecord) string { return r.ExtractionType },
	ColumnManagement:       func(r PumpRecord) string { return r.Management },
	ColumnPaymentType:      func(r PumpRecord) string { return r.PaymentType },
	ColumnQuantityGroup:    func(r PumpRecord) string { return r.QuantityGroup },
	ColumnWaterpointType:   func(r PumpRecord) string { return r.WaterpointType },
	ColumnSchemeManagement: func(r PumpRecord) string { return r.SchemeManagement },
	ColumnPermit: func(r PumpRecord) string {
		if r.Permit == nil {
			return ""
		}
		return strconv.FormatBool(*r.Permit)
	},
}
