package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	cerrors "github.com/c360/blockflow/errors"
	"github.com/c360/blockflow/pkg/retry"
)

// SendDataPath is the endpoint HTTPCommander posts commands to
const SendDataPath = "/send_data"

// HTTPCommander posts commands as JSON to <base>/send_data. Transient
// failures are retried with backoff and requests are rate limited.
type HTTPCommander struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	retry    cerrors.RetryConfig
	logger   *slog.Logger
}

// HTTPOption configures an HTTPCommander
type HTTPOption func(*HTTPCommander)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPCommander) { h.client = c }
}

// WithRateLimit caps the request rate. A zero limit disables limiting.
func WithRateLimit(limit rate.Limit, burst int) HTTPOption {
	return func(h *HTTPCommander) {
		if limit <= 0 {
			h.limiter = nil
			return
		}
		h.limiter = rate.NewLimiter(limit, max(burst, 1))
	}
}

func WithRetry(rc cerrors.RetryConfig) HTTPOption {
	return func(h *HTTPCommander) { h.retry = rc }
}

func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTPCommander) { h.logger = l }
}

// NewHTTPCommander validates baseURL and builds a commander for it
func NewHTTPCommander(baseURL string, opts ...HTTPOption) (*HTTPCommander, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, cerrors.WrapInvalid(fmt.Errorf("device url %q: %w", baseURL, cerrors.ErrInvalidConfig),
			"HTTPCommander", "New", "parse url")
	}

	h := &HTTPCommander{
		endpoint: strings.TrimRight(u.String(), "/") + SendDataPath,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(20), 5),
		retry:    cerrors.DefaultRetryConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Endpoint returns the full URL commands are posted to
func (h *HTTPCommander) Endpoint() string { return h.endpoint }

func (h *HTTPCommander) SendCommand(ctx context.Context, cmd Command) (Result, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return Result{}, cerrors.WrapInvalid(err, "HTTPCommander", "SendCommand", "encode command")
	}

	cfg := h.retry.ToRetryConfig()
	cfg.Retryable = cerrors.IsTransient

	attempt := 0
	return retry.DoWithResult(ctx, cfg, func() (Result, error) {
		attempt++
		if attempt > 1 {
			h.logger.Debug("retrying device command", "command", cmd.Name, "attempt", attempt)
		}
		return h.post(ctx, body)
	})
}

func (h *HTTPCommander) post(ctx context.Context, body []byte) (Result, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return Result{}, retry.NonRetryable(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, cerrors.WrapInvalid(err, "HTTPCommander", "SendCommand", "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, retry.NonRetryable(ctx.Err())
		}
		return Result{}, cerrors.WrapTransient(fmt.Errorf("%v: %w", err, cerrors.ErrDeviceFailure),
			"HTTPCommander", "SendCommand", "post command")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, cerrors.WrapTransient(fmt.Errorf("%v: %w", err, cerrors.ErrDeviceFailure),
			"HTTPCommander", "SendCommand", "read reply")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Result{}, cerrors.WrapTransient(fmt.Errorf("status %d: %w", resp.StatusCode, cerrors.ErrDeviceFailure),
			"HTTPCommander", "SendCommand", "device reply")
	case resp.StatusCode >= 400:
		return Result{}, cerrors.WrapInvalid(fmt.Errorf("status %d: %w", resp.StatusCode, cerrors.ErrInvalidData),
			"HTTPCommander", "SendCommand", "device reply")
	}

	return decodeResult(data)
}
