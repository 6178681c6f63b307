package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/pump-status-service/internal/features"
	"github.com/couchcryptid/pump-status-service/internal/observability"
)

// Client implements inference.Classifier against a remote model server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a model server client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		metrics: metrics,
	}
}

// FetchSchema downloads the feature schema the served model was trained on.
func (c *Client) FetchSchema(ctx context.Context) (features.Schema, error) {
	var s features.Schema
	if err := c.doRequest(ctx, http.MethodGet, "/schema", nil, &s); err != nil {
		return features.Schema{}, err
	}
	if err := s.Validate(); err != nil {
		return features.Schema{}, err
	}
	return s, nil
}

// PredictProbabilities sends the matrix to the server and returns its
// probability rows unchanged; the predictor validates them.
func (c *Client) PredictProbabilities(ctx context.Context, matrix [][]float64) ([][]float64, error) {
	var resp predictResponse
	if err := c.doRequest(ctx, http.MethodPost, "/predict_proba", predictRequest{Instances: matrix}, &resp); err != nil {
		return nil, err
	}
	return resp.Probabilities, nil
}

// CheckHealth reports whether the model server answers its health endpoint.
func (c *Client) CheckHealth(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) doRequest(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	endpoint := strings.TrimPrefix(path, "/")
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ModelAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("model server error", "endpoint", endpoint, "status", resp.StatusCode)
		return fmt.Errorf("model server error: %s: status %d: %s", endpoint, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// Model server wire types.

type predictRequest struct {
	Instances [][]float64 `json:"instances"`
}

type predictResponse struct {
	Probabilities [][]float64 `json:"probabilities"`
}
