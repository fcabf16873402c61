package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/correlator-io/kafka-lineage/internal/lineage"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBodyBytes  = 4096

	correlationIDHeader = "X-Correlation-ID"
	apiKeyHeader        = "X-Api-Key"
)

// ErrCollectorRejected indicates the lineage endpoint refused an event.
var ErrCollectorRejected = errors.New("lineage collector rejected event")

type (
	// HTTPError describes a non-2xx response of a lineage endpoint.
	HTTPError struct {
		StatusCode    int
		CorrelationID string
		Detail        string
		Retriable     bool
	}

	// problemDetail is an RFC 7807 error body.
	problemDetail struct {
		Title  string `json:"title"`
		Status int    `json:"status"`
		Detail string `json:"detail"`
	}

	// batchResponse is the OpenLineage batch response body.
	batchResponse struct {
		Status       string `json:"status"`
		FailedEvents []struct {
			Index     int    `json:"index"`
			Reason    string `json:"reason"`
			Retriable bool   `json:"retriable"`
		} `json:"failed_events"` //nolint:tagliatelle // OpenLineage batch response field
	}
)

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: status %d: %s (correlation_id=%s)", ErrCollectorRejected, e.StatusCode, e.Detail, e.CorrelationID)
}

func (e *HTTPError) Unwrap() error {
	return ErrCollectorRejected
}

// HTTPTransport posts events to an OpenLineage HTTP endpoint, one event per
// request, as a single-element JSON array.
type HTTPTransport struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPTransport returns a transport posting to url. apiKey is sent in the
// X-Api-Key header when set. client may be nil.
func NewHTTPTransport(url, apiKey string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &HTTPTransport{url: url, apiKey: apiKey, client: client}
}

func (t *HTTPTransport) Emit(ctx context.Context, event *lineage.RunEvent) error {
	body, err := lineage.Marshal(event)
	if err != nil {
		return err
	}

	batch := make([]byte, 0, len(body)+2)
	batch = append(batch, '[')
	batch = append(batch, body...)
	batch = append(batch, ']')

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(batch))
	if err != nil {
		return fmt.Errorf("failed to build lineage request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(correlationIDHeader, uuid.NewString())

	if t.apiKey != "" {
		req.Header.Set(apiKeyHeader, t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post lineage event: %w", err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	if readErr != nil {
		return unreadableResponseError(resp, readErr)
	}

	return responseError(resp, respBody)
}

// unreadableResponseError reports a non-200 response whose body could not be
// read. A 2xx outcome is unknown, so it is marked retriable.
func unreadableResponseError(resp *http.Response, readErr error) error {
	httpErr := newHTTPError(resp)
	httpErr.Detail = fmt.Sprintf("%s: failed to read response body: %v", httpErr.Detail, readErr)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		httpErr.Retriable = true
	}

	return httpErr
}

func newHTTPError(resp *http.Response) *HTTPError {
	return &HTTPError{
		StatusCode:    resp.StatusCode,
		CorrelationID: resp.Header.Get(correlationIDHeader),
		Detail:        http.StatusText(resp.StatusCode),
		Retriable:     resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError,
	}
}

// responseError converts a non-200 response into an *HTTPError. A 207 or 422
// batch response carries the per-event failure reason.
func responseError(resp *http.Response, body []byte) error {
	httpErr := newHTTPError(resp)

	var batch batchResponse
	if err := json.Unmarshal(body, &batch); err == nil && len(batch.FailedEvents) > 0 {
		httpErr.Detail = batch.FailedEvents[0].Reason
		httpErr.Retriable = batch.FailedEvents[0].Retriable

		return httpErr
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var problem problemDetail
	if err := json.Unmarshal(body, &problem); err == nil && problem.Detail != "" {
		httpErr.Detail = problem.Detail
	}

	return httpErr
}

func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()

	return nil
}
