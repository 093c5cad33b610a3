// internal/simclient/client.go
package simclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/simclient/api/schemas"
	"github.com/xkilldash9x/simclient/internal/config"
	"github.com/xkilldash9x/simclient/internal/network"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// maxResponseBody bounds how much of a response is read into memory.
const maxResponseBody = 8 << 20

// Options configures a Client.
type Options struct {
	Simulation config.SimulationConfig
	Network    config.NetworkConfig
	// HTTPClient replaces the client normally built from Network.
	HTTPClient *http.Client
}

// Client talks to the remote simulation service. It holds no simulation state;
// every call re-fetches from the service. A Client is safe for concurrent use,
// though the orchestration built on it is strictly sequential.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	headers    map[string]string
	logger     *zap.Logger
}

// Client implements the leaf calls.
var _ schemas.SimulationAPI = (*Client)(nil)

// New builds a Client. A missing or malformed host is reported here rather than
// on the first request.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := opts.Simulation.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation endpoint: %w", err)
	}
	if err := opts.Network.Validate(); err != nil {
		return nil, fmt.Errorf("invalid network configuration: %w", err)
	}
	baseURL, err := opts.Simulation.BaseURL()
	if err != nil {
		return nil, err
	}

	log := logger.Named("simclient")

	httpClient := opts.HTTPClient
	if httpClient == nil {
		netCfg, err := transportConfig(opts.Network, log.Named("httpclient"))
		if err != nil {
			return nil, fmt.Errorf("invalid network configuration: %w", err)
		}
		httpClient = network.NewClient(netCfg).Client
	}
	if opts.Network.IgnoreTLSErrors {
		log.Warn("TLS certificate verification is disabled for this client", zap.String("host", baseURL.Host))
	}

	var limiter *rate.Limiter
	if opts.Network.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Network.RateLimit), opts.Network.RateBurst)
	}

	headers := make(map[string]string, len(opts.Network.Headers))
	for k, v := range opts.Network.Headers {
		headers[k] = v
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    limiter,
		headers:    headers,
		logger:     log,
	}, nil
}

// transportConfig maps the network settings onto the HTTP layer. network.timeout
// bounds the whole exchange, so the transport gets no separate header deadline
// that could fire first; zero leaves both unbounded.
func transportConfig(cfg config.NetworkConfig, logger *zap.Logger) (*network.ClientConfig, error) {
	netCfg := network.NewDefaultClientConfig()
	netCfg.IgnoreTLSErrors = cfg.IgnoreTLSErrors
	netCfg.RequestTimeout = cfg.Timeout
	netCfg.ResponseHeaderTimeout = cfg.Timeout
	netCfg.ForceHTTP2 = cfg.ForceHTTP2
	netCfg.MaxResponseBytes = maxResponseBody
	netCfg.Logger = logger

	proxyURL, err := cfg.ProxyURL()
	if err != nil {
		return nil, err
	}
	netCfg.ProxyURL = proxyURL
	return netCfg, nil
}

// NewFromConfig builds a Client from the application configuration.
func NewFromConfig(cfg config.Interface, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	return New(Options{Simulation: cfg.Simulation(), Network: cfg.Network()}, logger)
}

// BaseURL returns the root every resource path is appended to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// response is a completed exchange with a success status.
type response struct {
	status int
	body   []byte
}

// do performs one request and returns the normalized body when the status is in
// success. Any other status is an *UnexpectedStatusError.
func (c *Client) do(ctx context.Context, op, method string, path []string, payload any, success ...int) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Op: op, Err: err}
		}
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to encode request body: %w", op, err)
		}
		body = bytes.NewReader(encoded)
	}

	target := c.baseURL.JoinPath(path...)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create HTTP request: %w", op, err)
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log := c.logger.With(
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", target.Path),
		zap.String("request_id", requestID),
	)

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug("Request failed before a response was received", zap.Error(err))
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	// One byte past the cap tells an oversized body apart from one that fits,
	// for clients built without the network layer's own cap.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if errors.Is(err, network.ErrBodyTooLarge) || (err == nil && len(raw) > maxResponseBody) {
		log.Warn("Response body exceeds size limit", zap.Int("status", resp.StatusCode), zap.Int("limit", maxResponseBody))
		return nil, fmt.Errorf("%s: %w: response body exceeds %d bytes", op, ErrMalformedResponse, maxResponseBody)
	}
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	log.Debug("Request complete",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("bytes", len(raw)),
	)

	if !statusIn(resp.StatusCode, success) {
		return nil, &UnexpectedStatusError{Op: op, StatusCode: resp.StatusCode, Body: truncateBody(raw)}
	}
	return &response{status: resp.StatusCode, body: normalizeBody(raw)}, nil
}

func statusIn(code int, set []int) bool {
	for _, s := range set {
		if code == s {
			return true
		}
	}
	return false
}

// payloadOf turns a normalized body into a JSON document. Non-JSON text is
// kept as a JSON string so the result always marshals.
func payloadOf(body []byte) []byte {
	if len(body) == 0 {
		return nil
	}
	if isJSON(body) {
		return body
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return quoted
}
