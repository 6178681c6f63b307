package domain

import "math"

// Column names of the pump dataset header.
const (
	ColumnID               = "id"
	ColumnLongitude        = "longitude"
	ColumnLatitude         = "latitude"
	ColumnRegion           = "region"
	ColumnSource           = "source"
	ColumnQualityGroup     = "quality_group"
	ColumnStatusGroup      = "status_group"
	ColumnExtractionType   = "extraction_type"
	ColumnManagement       = "management"
	ColumnPaymentType      = "payment_type"
	ColumnQuantityGroup    = "quantity_group"
	ColumnWaterpointType   = "waterpoint_type"
	ColumnSchemeManagement = "imputed_scheme__management"
	ColumnConstructionYear = "construction_year_imputed"
	ColumnPopulation       = "population_imputed"
	ColumnAltitude         = "altitud"
	ColumnPermit           = "imputed_permit"
)

// PredictionInputColumns lists the columns a batch prediction upload must carry.
var PredictionInputColumns = []string{
	ColumnID,
	ColumnLongitude,
	ColumnLatitude,
	ColumnRegion,
	ColumnExtractionType,
	ColumnManagement,
	ColumnPaymentType,
	ColumnQualityGroup,
	ColumnQuantityGroup,
	ColumnSource,
	ColumnWaterpointType,
	ColumnPopulation,
	ColumnAltitude,
	ColumnConstructionYear,
	ColumnSchemeManagement,
	ColumnPermit,
}

// StatusGroup is the operational state of a water point.
type StatusGroup string

const (
	StatusFunctional    StatusGroup = "functional"
	StatusNeedsRepair   StatusGroup = "functional needs repair"
	StatusNonFunctional StatusGroup = "non functional"
)

// StatusLabels is the canonical label order. Classifier output columns follow it.
var StatusLabels = []StatusGroup{StatusFunctional, StatusNeedsRepair, StatusNonFunctional}

// Valid reports whether s is one of the three known status groups.
func (s StatusGroup) Valid() bool {
	switch s {
	case StatusFunctional, StatusNeedsRepair, StatusNonFunctional:
		return true
	default:
		return false
	}
}

// PumpRecord is one row of the dataset.
type PumpRecord struct {
	ID               string      `json:"id"`
	Longitude        float64     `json:"longitude"`
	Latitude         float64     `json:"latitude"`
	Region           string      `json:"region,omitempty"`
	Source           string      `json:"source,omitempty"`
	QualityGroup     string      `json:"quality_group,omitempty"`
	StatusGroup      StatusGroup `json:"status_group,omitempty"`
	ExtractionType   string      `json:"extraction_type,omitempty"`
	Management       string      `json:"management,omitempty"`
	PaymentType      string      `json:"payment_type,omitempty"`
	QuantityGroup    string      `json:"quantity_group,omitempty"`
	WaterpointType   string      `json:"waterpoint_type,omitempty"`
	SchemeManagement string      `json:"imputed_scheme__management,omitempty"`
	ConstructionYear int         `json:"construction_year_imputed"`
	Population       int         `json:"population_imputed"`
	Altitude         float64     `json:"altitud"`
	Permit           *bool       `json:"imputed_permit,omitempty"`
}

// HasCoordinates reports whether the record can be placed on a map.
// Zero/zero (give or take float noise such as -2e-08) is the export's
// placeholder for a missing location.
func (r PumpRecord) HasCoordinates() bool {
	if math.Abs(r.Longitude) < 1e-6 && math.Abs(r.Latitude) < 1e-6 {
		return false
	}
	return r.Longitude >= -180 && r.Longitude <= 180 && r.Latitude >= -90 && r.Latitude <= 90
}

// FeatureInput converts the record into a raw input row with the columns a
// classifier was trained on. The status group is the training target and is
// not included.
func (r PumpRecord) FeatureInput() RawInput {
	in := RawInput{
		ColumnID:               r.ID,
		ColumnLongitude:        r.Longitude,
		ColumnLatitude:         r.Latitude,
		ColumnRegion:           r.Region,
		ColumnExtractionType:   r.ExtractionType,
		ColumnManagement:       r.Management,
		ColumnPaymentType:      r.PaymentType,
		ColumnQualityGroup:     r.QualityGroup,
		ColumnQuantityGroup:    r.QuantityGroup,
		ColumnSource:           r.Source,
		ColumnWaterpointType:   r.WaterpointType,
		ColumnPopulation:       float64(r.Population),
		ColumnAltitude:         r.Altitude,
		ColumnConstructionYear: float64(r.ConstructionYear),
		ColumnSchemeManagement: r.SchemeManagement,
	}
	if r.Permit != nil {
		in[ColumnPermit] = *r.Permit
	}
	return in
}

// RawInput is an unvalidated prediction input: field name to raw value as it
// arrived from JSON, CSV, or a Kafka message.
type RawInput map[string]any

// MapPoint is the projection of a record used by map consumers.
type MapPoint struct {
	ID          string      `json:"id"`
	Longitude   float64     `json:"longitude"`
	Latitude    float64     `json:"latitude"`
	StatusGroup StatusGroup `json:"status_group"`
}

// MapPoints projects records to map points, skipping those without coordinates.
func MapPoints(ds Dataset) []MapPoint {
	points := make([]MapPoint, 0, ds.Len())
	for _, r := range ds.records {
		if !r.HasCoordinates() {
			continue
		}
		points = append(points, MapPoint{
			ID:          r.ID,
			Longitude:   r.Longitude,
			Latitude:    r.Latitude,
			StatusGroup: r.StatusGroup,
		})
	}
	return points
}
