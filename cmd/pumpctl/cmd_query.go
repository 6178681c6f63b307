package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/pump-status-service/internal/domain"
	"github.com/couchcryptid/pump-status-service/internal/store"
)

// Filter flags, shared by the query commands.
var (
	filterRegion       string
	filterSource       string
	filterWaterQuality string
	filterStatus       string
	filterYear         int
	filterMinAge       int
	filterMaxAge       int
	denseSeries        bool

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Count records per status group",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
	byYearCmd = &cobra.Command{
		Use:   "by-year",
		Short: "Count functional and non-functional records per construction year",
		Args:  cobra.NoArgs,
		RunE:  runByYear,
	}
	filterCmd = &cobra.Command{
		Use:   "filter",
		Short: "List map points for the records matching the filter flags",
		Args:  cobra.NoArgs,
		RunE:  runFilter,
	}
	optionsCmd = &cobra.Command{
		Use:   "options",
		Short: "List the distinct values available for each filter",
		Args:  cobra.NoArgs,
		RunE:  runOptions,
	}
)

func init() {
	for _, cmd := range []*cobra.Command{statsCmd, byYearCmd, filterCmd} {
		f := cmd.Flags()
		f.StringVar(&filterRegion, "region", "", "only records in this region")
		f.StringVar(&filterSource, "source", "", "only records with this water source")
		f.StringVar(&filterWaterQuality, "water-quality", "", "only records with this quality group")
		f.StringVar(&filterStatus, "status", "", "only records with this status group")
		f.IntVar(&filterYear, "year", 0, "only records built in this year")
		f.IntVar(&filterMinAge, "min-age", 0, "minimum well age in years")
		f.IntVar(&filterMaxAge, "max-age", 0, "maximum well age in years")
	}
	byYearCmd.Flags().BoolVar(&denseSeries, "dense", false, "fill missing years with zero counts")
}

// criteriaFromFlags builds filter criteria from the flags the user set.
func criteriaFromFlags(cmd *cobra.Command) (domain.Criteria, error) {
	f := cmd.Flags()
	c := domain.Criteria{
		Region:        filterRegion,
		Source:        filterSource,
		WaterQuality:  filterWaterQuality,
		StatusGroup:   domain.StatusGroup(filterStatus),
		ReferenceYear: referenceYear,
	}
	if c.StatusGroup != "" && !c.StatusGroup.Valid() {
		return domain.Criteria{}, &domain.ValidationError{Field: "status", Value: filterStatus, Reason: "unknown status group"}
	}
	if f.Changed("year") {
		year := filterYear
		c.ConstructionYear = &year
	}
	if f.Changed("min-age") || f.Changed("max-age") {
		age := domain.AgeRange{Min: 0, Max: math.MaxInt}
		if f.Changed("min-age") {
			age.Min = filterMinAge
		}
		if f.Changed("max-age") {
			age.Max = filterMaxAge
		}
		if age.Min < 0 || age.Min > age.Max {
			return domain.Criteria{}, &domain.ValidationError{Field: "min-age", Value: age.Min, Reason: "invalid age range"}
		}
		c.WellAge = &age
	}
	return c, nil
}

// loadFiltered loads the dataset and applies the filter flags.
func loadFiltered(cmd *cobra.Command) (domain.Dataset, error) {
	c, err := criteriaFromFlags(cmd)
	if err != nil {
		return domain.Dataset{}, err
	}
	ds, err := store.LoadFile(dataPath)
	if err != nil {
		return domain.Dataset{}, err
	}
	return domain.FilterWells(ds, c)
}

func runStats(cmd *cobra.Command, _ []string) error {
	ds, err := loadFiltered(cmd)
	if err != nil {
		return err
	}
	counts, err := domain.CountByStatus(ds)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-26s %d\n", domain.StatusFunctional, counts.Functional)
	fmt.Fprintf(out, "%-26s %d\n", domain.StatusNeedsRepair, counts.NeedsRepair)
	fmt.Fprintf(out, "%-26s %d\n", domain.StatusNonFunctional, counts.NonFunctional)
	fmt.Fprintf(out, "%-26s %d\n", "total", counts.Total())
	return nil
}

func runByYear(cmd *cobra.Command, _ []string) error {
	ds, err := loadFiltered(cmd)
	if err != nil {
		return err
	}
	counts, err := domain.WellsByYear(ds)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string][]domain.YearPoint{
		"functional":     counts.Series(domain.StatusFunctional, denseSeries),
		"non_functional": counts.Series(domain.StatusNonFunctional, denseSeries),
	})
}

func runFilter(cmd *cobra.Command, _ []string) error {
	ds, err := loadFiltered(cmd)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), struct {
		Count  int               `json:"count"`
		Points []domain.MapPoint `json:"points"`
	}{Count: ds.Len(), Points: domain.MapPoints(ds)})
}

func runOptions(cmd *cobra.Command, _ []string) error {
	ds, err := store.LoadFile(dataPath)
	if err != nil {
		return err
	}
	years, err := domain.DistinctYears(ds)
	if err != nil {
		return err
	}
	options := map[string]any{"construction_years": years}
	for _, col := range []string{domain.ColumnRegion, domain.ColumnSource, domain.ColumnQualityGroup, domain.ColumnStatusGroup} {
		values, err := domain.DistinctValues(ds, col)
		if err != nil {
			return err
		}
		options[col] = values
	}
	return printJSON(cmd.OutOrStdout(), options)
}
