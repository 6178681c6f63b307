package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullHeader = []string{
	ColumnID, ColumnLongitude, ColumnLatitude, ColumnRegion, ColumnSource,
	ColumnQualityGroup, ColumnStatusGroup, ColumnConstructionYear,
}

func intPtr(v int) *int { return &v }

func testDataset() Dataset {
	return NewDataset(fullHeader, []PumpRecord{
		{ID: "1", Region: "Iringa", Source: "spring", QualityGroup: "good", StatusGroup: StatusFunctional, ConstructionYear: 1999, Longitude: 34.9, Latitude: -9.8},
		{ID: "2", Region: "Mara", Source: "rainwater harvesting", QualityGroup: "good", StatusGroup: StatusFunctional, ConstructionYear: 2010, Longitude: 34.7, Latitude: -2.1},
		{ID: "3", Region: "Manyara", Source: "dam", QualityGroup: "good", StatusGroup: StatusNonFunctional, ConstructionYear: 2009},
		{ID: "4", Region: "Iringa", Source: "spring", QualityGroup: "salty", StatusGroup: StatusNeedsRepair, ConstructionYear: 1986, Longitude: 35.1, Latitude: -7.9},
		{ID: "5", Region: "Mtwara", Source: "", QualityGroup: "", StatusGroup: StatusNonFunctional, ConstructionYear: 0},
	})
}

func ids(ds Dataset) []string {
	out := make([]string, 0, ds.Len())
	ds.Each(func(r PumpRecord) { out = append(out, r.ID) })
	return out
}

func TestFilterWells_StatusScenario(t *testing.T) {
	ds := NewDataset([]string{ColumnID, ColumnStatusGroup, ColumnConstructionYear}, []PumpRecord{
		{ID: "1", StatusGroup: StatusFunctional, ConstructionYear: 1990},
		{ID: "2", StatusGroup: StatusNonFunctional, ConstructionYear: 1990},
	})

	out, err := FilterWells(ds, Criteria{StatusGroup: StatusFunctional})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(out))
}

func TestFilterWells_EmptyCriteriaIsIdentity(t *testing.T) {
	ds := testDataset()
	out, err := FilterWells(ds, Criteria{})
	require.NoError(t, err)
	assert.Equal(t, ds.Records(), out.Records())
}

func TestFilterWells(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		expected []string
	}{
		{"water quality", Criteria{WaterQuality: "good"}, []string{"1", "2", "3"}},
		{"region", Criteria{Region: "Iringa"}, []string{"1", "4"}},
		{"source", Criteria{Source: "spring"}, []string{"1", "4"}},
		{"status", Criteria{StatusGroup: StatusNonFunctional}, []string{"3", "5"}},
		{"construction year", Criteria{ConstructionYear: intPtr(2010)}, []string{"2"}},
		{"age range inclusive bounds", Criteria{WellAge: &AgeRange{Min: 14, Max: 25}}, []string{"1", "2", "3"}},
		{"age range excludes unknown year", Criteria{WellAge: &AgeRange{Min: 0, Max: 5000}}, []string{"1", "2", "3", "4"}},
		{"custom reference year", Criteria{WellAge: &AgeRange{Min: 0, Max: 0}, ReferenceYear: 2010}, []string{"2"}},
		{"conjunction", Criteria{Region: "Iringa", WaterQuality: "good"}, []string{"1"}},
		{"no match", Criteria{Region: "Dodoma"}, []string{}},
		{"year zero criterion matches nothing", Criteria{ConstructionYear: intPtr(0)}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := FilterWells(testDataset(), tt.criteria)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids(out))
		})
	}
}

func TestFilterWells_SubsetAndSatisfiesCriteria(t *testing.T) {
	ds := testDataset()
	all := ds.Index()
	criteria := []Criteria{
		{Region: "Iringa"},
		{WaterQuality: "good", WellAge: &AgeRange{Min: 10, Max: 20}},
		{StatusGroup: StatusFunctional, Source: "spring"},
	}
	for _, c := range criteria {
		out, err := FilterWells(ds, c)
		require.NoError(t, err)
		out.Each(func(r PumpRecord) {
			orig, ok := all[r.ID]
			require.True(t, ok, "record %s not in source dataset", r.ID)
			assert.Equal(t, orig, r)
			assert.True(t, c.Matches(r), "record %s does not satisfy %+v", r.ID, c)
		})
	}
}

func TestFilterWells_Idempotent(t *testing.T) {
	c := Criteria{WaterQuality: "good", WellAge: &AgeRange{Min: 0, Max: 30}}
	once, err := FilterWells(testDataset(), c)
	require.NoError(t, err)
	twice, err := FilterWells(once, c)
	require.NoError(t, err)
	assert.Equal(t, once.Records(), twice.Records())
}

func TestFilterWells_OrderIndependent(t *testing.T) {
	ds := testDataset()
	a, err := FilterWells(ds, Criteria{Region: "Iringa"})
	require.NoError(t, err)
	a, err = FilterWells(a, Criteria{Source: "spring"})
	require.NoError(t, err)

	b, err := FilterWells(ds, Criteria{Source: "spring"})
	require.NoError(t, err)
	b, err = FilterWells(b, Criteria{Region: "Iringa"})
	require.NoError(t, err)

	assert.Equal(t, a.Records(), b.Records())
}

func TestFilterWells_DoesNotMutateInput(t *testing.T) {
	ds := testDataset()
	before := ds.Records()
	_, err := FilterWells(ds, Criteria{Region: "Mara"})
	require.NoError(t, err)
	assert.Equal(t, before, ds.Records())
}

func TestFilterWells_SchemaErrors(t *testing.T) {
	t.Run("missing construction year column", func(t *testing.T) {
		ds := NewDataset([]string{ColumnID, ColumnStatusGroup}, nil)
		_, err := FilterWells(ds, Criteria{})

		var schemaErr *SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Equal(t, ColumnConstructionYear, schemaErr.Column)
	})

	t.Run("missing column for active criterion", func(t *testing.T) {
		ds := NewDataset([]string{ColumnID, ColumnConstructionYear}, nil)
		_, err := FilterWells(ds, Criteria{Region: "Mara"})

		var schemaErr *SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Equal(t, ColumnRegion, schemaErr.Column)
	})

	t.Run("inactive criterion does not need its column", func(t *testing.T) {
		ds := NewDataset([]string{ColumnID, ColumnConstructionYear}, nil)
		_, err := FilterWells(ds, Criteria{ConstructionYear: intPtr(2000)})
		require.NoError(t, err)
	})
}

func TestMapPoints_SkipsMissingCoordinates(t *testing.T) {
	points := MapPoints(testDataset())

	got := make([]string, 0, len(points))
	for _, p := range points {
		got = append(got, p.ID)
	}
	assert.Equal(t, []string{"1", "2", "4"}, got)
	assert.Equal(t, StatusFunctional, points[0].StatusGroup)
}

func TestPumpRecord_HasCoordinates(t *testing.T) {
	assert.True(t, PumpRecord{Longitude: 34.9, Latitude: -9.8}.HasCoordinates())
	assert.False(t, PumpRecord{}.HasCoordinates())
	assert.False(t, PumpRecord{Longitude: 200, Latitude: -9.8}.HasCoordinates())
}
