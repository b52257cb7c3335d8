package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lysyi3m/product-comb/app/metrics"
)

const defaultTimeout = 10 * time.Second

// Client talks to the prediction service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// Predict runs the model on every product.
func (c *Client) Predict(ctx context.Context, products []Features) ([]Prediction, error) {
	var out []Prediction
	if err := c.do(ctx, http.MethodPost, "/", products, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PredictWithThresholds runs the model and the service's thresholds.
func (c *Client) PredictWithThresholds(ctx context.Context, products []Features) ([]ThresholdedPrediction, error) {
	var out []ThresholdedPrediction
	if err := c.do(ctx, http.MethodPost, "/with_thresholds", products, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyThresholds thresholds earlier predictions without running the model.
func (c *Client) ApplyThresholds(ctx context.Context, req ApplyRequest) ([]ThresholdedPrediction, error) {
	var out []ThresholdedPrediction
	if err := c.do(ctx, http.MethodPost, "/apply_thresholds", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping checks that the service is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/test", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.PredictionRequests.WithLabelValues(path, "error").Inc()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	metrics.PredictionRequests.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s returned %d", ErrUnavailable, path, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("prediction service rejected %s with %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
