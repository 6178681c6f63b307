package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/pump-status-service/internal/adapter/model"
	"github.com/couchcryptid/pump-status-service/internal/domain"
	"github.com/couchcryptid/pump-status-service/internal/features"
	"github.com/couchcryptid/pump-status-service/internal/store"
)

// Tanzania's bounding box, with a small margin.
const (
	minLongitude = 29.0
	maxLongitude = 41.0
	minLatitude  = -12.0
	maxLatitude  = 0.0
)

// maxReportedErrors caps the per-phase error listing.
const maxReportedErrors = 20

var (
	validateModelPath string

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Check a pump record export for data quality problems",
		Long: `Runs integrity checks over the record export: identifiers, status
labels, coordinates, construction years and, when --model is set, whether every
record can be encoded with the model's feature schema.`,
		Args: cobra.NoArgs,
		RunE: runValidate,
	}
)

func init() {
	validateCmd.Flags().StringVar(&validateModelPath, "model", "", "model artifact to check feature alignment against")
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// summary holds counts reported alongside the phases. These are expected in
// real exports and are not failures.
type summary struct {
	records        int
	noCoordinates  int
	unknownYear    int
	unknownPermits int
}

func runValidate(cmd *cobra.Command, _ []string) error {
	ds, err := store.LoadFile(dataPath)
	if err != nil {
		return err
	}

	phases := []*phase{
		validateIdentity(ds),
		validateStatusGroups(ds),
		validateCoordinates(ds),
		validateConstructionYears(ds, referenceYear),
	}
	if validateModelPath != "" {
		artifact, err := model.LoadArtifact(validateModelPath)
		if err != nil {
			return err
		}
		p, err := validateFeatureAlignment(ds, artifact.Schema)
		if err != nil {
			return err
		}
		phases = append(phases, p)
	}

	if !report(cmd.OutOrStdout(), phases, summarize(ds)) {
		return errors.New("validation failed")
	}
	return nil
}

func validateIdentity(ds domain.Dataset) *phase {
	p := &phase{name: "Record identifiers"}
	seen := make(map[string]int, ds.Len())
	for i, r := range ds.Records() {
		row := i + 2
		if r.ID == "" {
			p.errorf("row %d: empty id", row)
			continue
		}
		if first, dup := seen[r.ID]; dup {
			p.errorf("row %d: id %s duplicates row %d", row, r.ID, first)
			continue
		}
		seen[r.ID] = row
	}
	return p
}

func validateStatusGroups(ds domain.Dataset) *phase {
	p := &phase{name: "Status labels"}
	ds.Each(func(r domain.PumpRecord) {
		if !r.StatusGroup.Valid() {
			p.errorf("id %s: status group %q is not one of %v", r.ID, r.StatusGroup, domain.StatusLabels)
		}
	})
	return p
}

func validateCoordinates(ds domain.Dataset) *phase {
	p := &phase{name: "Coordinates within Tanzania"}
	ds.Each(func(r domain.PumpRecord) {
		if !r.HasCoordinates() {
			return
		}
		if r.Longitude < minLongitude || r.Longitude > maxLongitude ||
			r.Latitude < minLatitude || r.Latitude > maxLatitude {
			p.errorf("id %s: (%.5f, %.5f) outside the country", r.ID, r.Longitude, r.Latitude)
		}
	})
	return p
}

func validateConstructionYears(ds domain.Dataset, refYear int) *phase {
	p := &phase{name: "Construction years"}
	ds.Each(func(r domain.PumpRecord) {
		y := r.ConstructionYear
		switch {
		case y == 0:
		case y < domain.MinPlausibleConstructionYear:
			p.errorf("id %s: construction year %d is a sentinel other than 0", r.ID, y)
		case y > refYear:
			p.errorf("id %s: construction year %d is after reference year %d", r.ID, y, refYear)
		}
	})
	return p
}

func validateFeatureAlignment(ds domain.Dataset, schema features.Schema) (*phase, error) {
	aligner, err := features.NewAligner(schema)
	if err != nil {
		return nil, err
	}
	p := &phase{name: fmt.Sprintf("Feature alignment (schema %s)", schema.Version)}
	ds.Each(func(r domain.PumpRecord) {
		if _, err := aligner.Align(r.FeatureInput()); err != nil {
			p.errorf("id %s: %v", r.ID, err)
		}
	})
	return p, nil
}

func summarize(ds domain.Dataset) summary {
	s := summary{records: ds.Len()}
	ds.Each(func(r domain.PumpRecord) {
		if !r.HasCoordinates() {
			s.noCoordinates++
		}
		if r.ConstructionYear == 0 {
			s.unknownYear++
		}
		if r.Permit == nil {
			s.unknownPermits++
		}
	})
	return s
}

// report prints the phase table and any errors. It returns whether every
// phase passed.
func report(w io.Writer, phases []*phase, s summary) bool {
	fmt.Fprintln(w, "=== Pump Record Validation ===")
	fmt.Fprintln(w)

	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Records: %d, without coordinates: %d, unknown construction year: %d, unknown permit: %d\n",
		s.records, s.noCoordinates, s.unknownYear, s.unknownPermits)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i == maxReportedErrors {
				fmt.Fprintf(w, "  ... %d more\n", len(p.errors)-maxReportedErrors)
				break
			}
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
	} else {
		fmt.Fprintln(w, "\nValidation FAILED.")
	}
	return allPassed
}
