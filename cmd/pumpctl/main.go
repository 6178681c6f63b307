// Command pumpctl queries a pump record export and scores pump status offline,
// without running the service.
package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/pump-status-service/internal/domain"
)

var (
	dataPath      string
	referenceYear int

	rootCmd = &cobra.Command{
		Use:          "pumpctl",
		Short:        "Explore water pump records and predict pump status",
		SilenceUsage: true,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataPath, "data", "data/pumps.csv", "pump record CSV export")
	rootCmd.PersistentFlags().IntVar(&referenceYear, "reference-year", domain.DefaultReferenceYear, "year well ages are computed against")

	rootCmd.AddCommand(statsCmd, byYearCmd, filterCmd, optionsCmd, predictCmd, validateCmd)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
