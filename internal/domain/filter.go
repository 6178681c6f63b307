package domain

// DefaultReferenceYear anchors well-age computation. It is fixed on purpose
// so results are reproducible; see the package documentation.
const DefaultReferenceYear = 2024

// AgeRange is an inclusive well-age range in years.
type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether age falls inside the inclusive range.
func (a AgeRange) Contains(age int) bool {
	return age >= a.Min && age <= a.Max
}

// Criteria is a conjunction of optional constraints. A zero-valued field
// (empty string or nil pointer) does not constrain its dimension.
type Criteria struct {
	WaterQuality     string      `json:"water_quality,omitempty"`
	Region           string      `json:"region,omitempty"`
	StatusGroup      StatusGroup `json:"status_group,omitempty"`
	Source           string      `json:"source,omitempty"`
	ConstructionYear *int        `json:"construction_year,omitempty"`
	WellAge          *AgeRange   `json:"well_age,omitempty"`

	// ReferenceYear overrides DefaultReferenceYear when non-zero.
	ReferenceYear int `json:"-"`
}

// IsEmpty reports whether no constraint is set.
func (c Criteria) IsEmpty() bool {
	return c.WaterQuality == "" && c.Region == "" && c.StatusGroup == "" &&
		c.Source == "" && c.ConstructionYear == nil && c.WellAge == nil
}

func (c Criteria) referenceYear() int {
	if c.ReferenceYear != 0 {
		return c.ReferenceYear
	}
	return DefaultReferenceYear
}

// columns lists the dataset columns the active constraints read.
func (c Criteria) columns() []string {
	cols := []string{ColumnConstructionYear}
	if c.WaterQuality != "" {
		cols = append(cols, ColumnQualityGroup)
	}
	if c.Region != "" {
		cols = append(cols, ColumnRegion)
	}
	if c.StatusGroup != "" {
		cols = append(cols, ColumnStatusGroup)
	}
	if c.Source != "" {
		cols = append(cols, ColumnSource)
	}
	return cols
}

// Matches reports whether a single record satisfies every active constraint.
// An unknown construction year (0) never satisfies a year or age constraint.
func (c Criteria) Matches(r PumpRecord) bool {
	if c.WaterQuality != "" && r.QualityGroup != c.WaterQuality {
		return false
	}
	if c.Region != "" && r.Region != c.Region {
		return false
	}
	if c.StatusGroup != "" && r.StatusGroup != c.StatusGroup {
		return false
	}
	if c.Source != "" && r.Source != c.Source {
		return false
	}
	if c.ConstructionYear != nil {
		if r.ConstructionYear == 0 || r.ConstructionYear != *c.ConstructionYear {
			return false
		}
	}
	if c.WellAge != nil {
		if r.ConstructionYear == 0 || !c.WellAge.Contains(c.referenceYear()-r.ConstructionYear) {
			return false
		}
	}
	return true
}

// FilterWells returns the records of ds that satisfy c, in their original order.
// The construction year column is always required; other columns are required
// only when their constraint is set.
func FilterWells(ds Dataset, c Criteria) (Dataset, error) {
	if err := ds.requireColumns(c.columns()...); err != nil {
		return Dataset{}, err
	}
	if c.IsEmpty() {
		return ds, nil
	}

	out := make([]PumpRecord, 0, len(ds.records))
	for _, r := range ds.records {
		if c.Matches(r) {
			out = append(out, r)
		}
	}
	return ds.derive(out), nil
}
