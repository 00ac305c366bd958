// Package calculator is the client of the remote tariff calculation service.
package calculator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/tradegate/pkg/observability"
)

// ConnectivityMessage is shown when the service cannot be reached at all.
const ConnectivityMessage = "Could not reach the calculation service. Please check your connection and try again."

const (
	unexpectedResponse = "Unexpected response from calculation service."
	maxBody            = 1 << 20
)

// Request is the calculation request body. All fields are integer codes.
type Request struct {
	Exporter      int   `json:"exporter"`
	Importer      int   `json:"importer"`
	Category      int   `json:"category"`
	DeclaredValue int64 `json:"declared_value"`
	Condition     int   `json:"condition"`
}

// Result is the service's answer. The tariff strings are pre-formatted by the
// service and are displayed verbatim.
type Result struct {
	BaseTariff      string  `json:"base_tariff"`
	EffectiveTariff string  `json:"effective_tariff"`
	DutyPayable     float64 `json:"duty_payable"`
	AIAssisted      bool    `json:"ai_assisted"`
}

// EndpointError is a non-success answer from the service.
type EndpointError struct {
	Status  int
	Message string
}

func (e *EndpointError) Error() string { return e.Message }

// TransportError means no usable answer was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "calculation service unreachable: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// UserMessage returns the text to show for a failed calculation.
func UserMessage(err error) string {
	var ee *EndpointError
	if errors.As(err, &ee) {
		return ee.Message
	}
	return ConnectivityMessage
}

// Calculator computes tariffs.
type Calculator interface {
	Calculate(ctx context.Context, req Request) (*Result, error)
}

const resultSchemaURL = "https://tradegate.dev/schemas/calculation-result.json"

const resultSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["base_tariff", "effective_tariff", "duty_payable", "ai_assisted"],
  "properties": {
    "base_tariff":      {"type": "string"},
    "effective_tariff": {"type": "string"},
    "duty_payable":     {"type": "number", "minimum": 0},
    "ai_assisted":      {"type": "boolean"}
  }
}`

// Client posts to {BaseURL}/calculate.
type Client struct {
	baseURL string
	http    *http.Client
	schema  *jsonschema.Schema
	obs     *observability.Provider
	logger  *slog.Logger
}

// Option configures the client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithObservability(p *observability.Provider) Option {
	return func(c *Client) { c.obs = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	comp := jsonschema.NewCompiler()
	comp.Draft = jsonschema.Draft2020
	if err := comp.AddResource(resultSchemaURL, strings.NewReader(resultSchema)); err != nil {
		return nil, fmt.Errorf("result schema load failed: %w", err)
	}
	schema, err := comp.Compile(resultSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("result schema compile failed: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		schema:  schema,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("component", "calculator")
	return c, nil
}

// Calculate sends req and returns the decoded result. Failures are an
// *EndpointError when the service answered, otherwise a *TransportError.
func (c *Client) Calculate(ctx context.Context, req Request) (res *Result, err error) {
	ctx, done := c.obs.TrackOperation(ctx, "calculator.calculate",
		attribute.Int("exporter", req.Exporter),
		attribute.Int("importer", req.Importer),
	)
	defer func() { done(err) }()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/calculate", bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.WarnContext(ctx, "calculation request failed", "error", err)
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ee := &EndpointError{Status: resp.StatusCode, Message: fmt.Sprintf("Server error %d", resp.StatusCode)}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			ee.Message = payload.Error
		}
		c.logger.WarnContext(ctx, "calculation rejected", "status", resp.StatusCode, "message", ee.Message)
		return nil, ee
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.logger.WarnContext(ctx, "calculation response undecodable", "error", err)
		return nil, &TransportError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if err := c.schema.Validate(doc); err != nil {
		c.logger.WarnContext(ctx, "calculation response failed schema", "error", err)
		return nil, &EndpointError{Status: resp.StatusCode, Message: unexpectedResponse}
	}
	res = &Result{}
	if err := json.Unmarshal(raw, res); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return res, nil
}
