package main

import (
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/pump-status-service/internal/adapter/model"
	"github.com/couchcryptid/pump-status-service/internal/domain"
	"github.com/couchcryptid/pump-status-service/internal/features"
	"github.com/couchcryptid/pump-status-service/internal/inference"
	"github.com/couchcryptid/pump-status-service/internal/observability"
	"github.com/couchcryptid/pump-status-service/internal/store"
)

var (
	predictInput    string
	modelPath       string
	predictLogLevel string

	predictCmd = &cobra.Command{
		Use:   "predict",
		Short: "Predict pump status for every row of a CSV file",
		Long: `Reads pump records from a CSV file with the prediction input columns
and prints one prediction per row as JSON. Rows that cannot be encoded are
reported with an error instead of a prediction.`,
		Args: cobra.NoArgs,
		RunE: runPredict,
	}
)

func init() {
	predictCmd.Flags().StringVarP(&predictInput, "input", "i", "", "CSV file of pump records to score")
	predictCmd.Flags().StringVar(&modelPath, "model", "models/pump_classifier.json", "model artifact")
	predictCmd.Flags().StringVar(&predictLogLevel, "log-level", "warn", "log level for diagnostics on stderr")
	_ = predictCmd.MarkFlagRequired("input")
}

func runPredict(cmd *cobra.Command, _ []string) error {
	f, err := os.Open(predictInput)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	inputs, header, err := store.ReadInputs(f)
	if err != nil {
		return err
	}
	if err := store.RequireColumns(header, domain.PredictionInputColumns); err != nil {
		return err
	}

	artifact, err := model.LoadArtifact(modelPath)
	if err != nil {
		return err
	}
	classifier, err := model.NewSoftmax(artifact)
	if err != nil {
		return err
	}
	aligner, err := features.NewAligner(artifact.Schema)
	if err != nil {
		return err
	}

	logger := observability.NewLoggerTo(cmd.ErrOrStderr(), predictLogLevel, "text")
	svc := inference.NewService(aligner, inference.NewPredictor(classifier), domain.Dataset{},
		clockwork.NewRealClock(), logger, observability.NewUnregisteredMetrics())

	batch, err := svc.PredictPumpStatus(cmd.Context(), inputs)
	if err != nil {
		return err
	}
	if failed := batch.Failed(); failed > 0 {
		logger.Warn("rows not predicted", "failed", failed, "total", len(batch.Results))
	}
	return printJSON(cmd.OutOrStdout(), batch)
}
