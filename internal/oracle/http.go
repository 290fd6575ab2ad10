package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"blockproof/internal/apperr"
	"blockproof/internal/model"
)

// maxResponseSize caps how much of an oracle reply is read.
const maxResponseSize = 1 << 20

type httpClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger

	mu      sync.RWMutex
	lastErr error
}

// NewHTTPClient scores certificates by POSTing a ScoreRequest to endpoint.
func NewHTTPClient(endpoint, apiKey string, timeout time.Duration, logger *zap.Logger) Client {
	return &httpClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (c *httpClient) Score(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error) {
	assessment, err := c.score(ctx, fields)
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	return assessment, err
}

func (c *httpClient) score(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error) {
	body, err := json.Marshal(ScoreRequest{Certificate: fields})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("oracle request failed", zap.Error(err), zap.String("endpoint", c.endpoint))
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "oracle request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "failed to read oracle response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("oracle returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("endpoint", c.endpoint))
		return nil, apperr.New(apperr.KindUnavailable, "oracle returned status %d", resp.StatusCode)
	}

	assessment, err := decodeAssessment(data)
	if err != nil {
		c.logger.Warn("malformed oracle response", zap.Error(err))
		return nil, err
	}

	c.logger.Debug("oracle scored certificate",
		zap.Int("confidence", assessment.Confidence),
		zap.Bool("is_authentic", assessment.IsAuthentic))
	return assessment, nil
}

// Status reflects the outcome of the most recent Score call. The oracle
// counts as healthy until it has been tried.
func (c *httpClient) Status(ctx context.Context) model.ServiceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := model.ServiceStatus{Driver: "http", Mode: model.ModeReal, Healthy: true}
	if c.lastErr != nil {
		status.Healthy = false
		status.Error = c.lastErr.Error()
	}
	return status
}
