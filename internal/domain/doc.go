// Package domain models the Tanzania water-point dataset and the read-only
// derivations served from it.
//
// # Data Source
//
// Records come from the cleaned "Pump it Up" water-point table, exported as a
// single CSV file (pumps_cleaned.csv). Columns suffixed with "_imputed" were
// filled by an upstream cleaning step; this service never imputes values.
//
// # Dataset Conventions
//
// Status groups:
//
//	Exactly three values are valid, in this canonical order:
//	  functional | functional needs repair | non functional
//	Any other value is a data-quality defect. Counting functions ignore it,
//	and the validate command reports it.
//
// Construction year ("construction_year_imputed"):
//
//	Integer year, 0 when unknown. The CSV export may write it as a float
//	("1999.0"), which the store truncates. Years below 60 are sentinel values
//	left behind by imputation and are dropped from by-year aggregation; see
//	[MinPlausibleConstructionYear].
//
// Well age:
//
//	Derived as ReferenceYear - construction year. The reference year is a
//	fixed constant ([DefaultReferenceYear]); it is not advanced with the wall
//	clock, so age filters drift as the dataset gets older.
//
// Coordinates:
//
//	WGS-84 longitude/latitude. Missing coordinates are exported as 0. Rows
//	without coordinates stay in the dataset and in filter results but are
//	skipped by [MapPoints].
//
// Permit flag ("imputed_permit"):
//
//	Written as "True"/"False" by the export. Empty means unknown.
//
// # Derivations
//
// All derivations ([FilterWells], [CountByStatus], [CountStatusGroups],
// [WellsByYear], [DistinctValues]) are pure functions of a [Dataset]. They
// fail with a [*SchemaError] when a column they depend on is absent from the
// dataset header instead of returning an empty result.
package domain
