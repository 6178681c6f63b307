package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"

	"github.com/couchcryptid/pump-status-service/internal/domain"
	"github.com/couchcryptid/pump-status-service/internal/observability"
)

const maxBodyBytes = 10 << 20

// Predictor is the prediction capability the API exposes.
type Predictor interface {
	PredictPumpStatus(ctx context.Context, inputs []domain.RawInput) (domain.PredictionBatch, error)
	PredictByIDs(ctx context.Context, ids []string) (domain.PredictionBatch, error)
}

// APIConfig holds the API's tunables.
type APIConfig struct {
	ReferenceYear   int
	MaxPredictBatch int
	StatsCacheTTL   time.Duration
}

// API serves exploration queries over the record store and prediction requests.
type API struct {
	dataset   domain.Dataset
	predictor Predictor
	cfg       APIConfig
	stats     *cache.Cache
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewAPI creates the API handler. Aggregate responses are cached for
// cfg.StatsCacheTTL; the dataset never changes after load.
func NewAPI(ds domain.Dataset, p Predictor, cfg APIConfig, logger *slog.Logger, metrics *observability.Metrics) *API {
	return &API{
		dataset:   ds,
		predictor: p,
		cfg:       cfg,
		stats:     cache.New(cfg.StatsCacheTTL, 2*cfg.StatsCacheTTL),
		logger:    logger,
		metrics:   metrics,
	}
}

// Register mounts the API routes under /api/v1.
func (a *API) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/wells", a.handleWells)
		r.Get("/stats/status", a.handleStatusCounts)
		r.Get("/stats/by-year", a.handleByYear)
		r.Get("/options", a.handleOptions)
		r.Post("/predict", a.handlePredict)
		r.Post("/predict/by-id", a.handlePredictByID)
	})
}

type wellsResponse struct {
	Count  int               `json:"count"`
	Points []domain.MapPoint `json:"points"`
}

func (a *API) handleWells(w http.ResponseWriter, r *http.Request) {
	a.metrics.Queries.WithLabelValues("wells").Inc()

	ds, err := a.filter(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wellsResponse{Count: ds.Len(), Points: domain.MapPoints(ds)})
}

type statusCountsResponse struct {
	domain.StatusCounts
	Total int `json:"total"`
}

func (a *API) handleStatusCounts(w http.ResponseWriter, r *http.Request) {
	a.metrics.Queries.WithLabelValues("status").Inc()

	a.cached(w, r, "status", func() (any, error) {
		c, err := parseCriteria(r.URL.Query(), a.cfg.ReferenceYear)
		if err != nil {
			return nil, err
		}
		// The year is applied by CountStatusGroups so the status and year
		// columns are checked together.
		year := c.ConstructionYear
		c.ConstructionYear = nil

		ds, err := domain.FilterWells(a.dataset, c)
		if err != nil {
			return nil, err
		}
		counts, err := domain.CountStatusGroups(ds, year)
		if err != nil {
			return nil, err
		}
		return statusCountsResponse{StatusCounts: counts, Total: counts.Total()}, nil
	})
}

type byYearResponse struct {
	Functional    []domain.YearPoint `json:"functional"`
	NonFunctional []domain.YearPoint `json:"non_functional"`
}

func (a *API) handleByYear(w http.ResponseWriter, r *http.Request) {
	a.metrics.Queries.WithLabelValues("by_year").Inc()

	a.cached(w, r, "by_year", func() (any, error) {
		dense := r.URL.Query().Get("dense") == "true"
		ds, err := a.filter(r)
		if err != nil {
			return nil, err
		}
		counts, err := domain.WellsByYear(ds)
		if err != nil {
			return nil, err
		}
		return byYearResponse{
			Functional:    counts.Series(domain.StatusFunctional, dense),
			NonFunctional: counts.Series(domain.StatusNonFunctional, dense),
		}, nil
	})
}

type optionsResponse struct {
	ConstructionYears []int    `json:"construction_years"`
	StatusGroups      []string `json:"status_groups"`
	QualityGroups     []string `json:"quality_groups"`
	Sources           []string `json:"sources"`
	Regions           []string `json:"regions"`
}

func (a *API) handleOptions(w http.ResponseWriter, r *http.Request) {
	a.metrics.Queries.WithLabelValues("options").Inc()

	a.cached(w, r, "options", func() (any, error) {
		var (
			resp optionsResponse
			err  error
		)
		if resp.ConstructionYears, err = domain.DistinctYears(a.dataset); err != nil {
			return nil, err
		}
		for col, dst := range map[string]*[]string{
			domain.ColumnStatusGroup:  &resp.StatusGroups,
			domain.ColumnQualityGroup: &resp.QualityGroups,
			domain.ColumnSource:       &resp.Sources,
			domain.ColumnRegion:       &resp.Regions,
		} {
			if *dst, err = domain.DistinctValues(a.dataset, col); err != nil {
				return nil, err
			}
		}
		return resp, nil
	})
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := checkBatchSize(len(req.Records), a.cfg.MaxPredictBatch); err != nil {
		a.writeError(w, r, err)
		return
	}

	batch, err := a.predictor.PredictPumpStatus(r.Context(), req.Records)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (a *API) handlePredictByID(w http.ResponseWriter, r *http.Request) {
	var req predictByIDRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := checkBatchSize(len(req.PumpIDs), a.cfg.MaxPredictBatch); err != nil {
		a.writeError(w, r, err)
		return
	}

	batch, err := a.predictor.PredictByIDs(r.Context(), req.PumpIDs)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (a *API) filter(r *http.Request) (domain.Dataset, error) {
	c, err := parseCriteria(r.URL.Query(), a.cfg.ReferenceYear)
	if err != nil {
		return domain.Dataset{}, err
	}
	return domain.FilterWells(a.dataset, c)
}

// cached serves an aggregate from the stats cache, computing and storing it
// on a miss. Errors are not cached.
func (a *API) cached(w http.ResponseWriter, r *http.Request, endpoint string, compute func() (any, error)) {
	key := endpoint + "?" + r.URL.Query().Encode()
	if v, ok := a.stats.Get(key); ok {
		a.metrics.StatsCache.WithLabelValues("hit").Inc()
		writeJSON(w, http.StatusOK, v)
		return
	}
	a.metrics.StatsCache.WithLabelValues("miss").Inc()

	v, err := compute()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.stats.SetDefault(key, v)
	writeJSON(w, http.StatusOK, v)
}

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classifyError(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "error", err, "path", r.URL.Path, "status", status)
	} else {
		a.logger.Debug("request rejected", "error", err, "path", r.URL.Path, "status", status)
	}
	writeJSON(w, status, errorResponse{Error: code, Description: msg})
}

func classifyError(err error) (status int, code, msg string) {
	var (
		schemaErr  *domain.SchemaError
		valErr     *domain.ValidationError
		predErr    *domain.PredictionError
		fieldErrs  validator.ValidationErrors
		maxBodyErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &schemaErr):
		return http.StatusUnprocessableEntity, "schema_error", schemaErr.Error()
	case errors.As(err, &valErr):
		return http.StatusBadRequest, "validation_error", valErr.Error()
	case errors.As(err, &fieldErrs):
		return http.StatusBadRequest, "invalid_request", fieldErrs.Error()
	case errors.As(err, &maxBodyErr):
		return http.StatusRequestEntityTooLarge, "invalid_request", "request body too large"
	case errors.Is(err, errInvalidBody):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.As(err, &predErr):
		return http.StatusBadGateway, "prediction_failed", predErr.Error()
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

var errInvalidBody = errors.New("invalid request body")

// decodeBody reads a JSON request body, keeping numbers as json.Number.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	err := dec.Decode(dst)
	var maxBodyErr *http.MaxBytesError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &maxBodyErr):
		return err
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: body is empty", errInvalidBody)
	default:
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}
