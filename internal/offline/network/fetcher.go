package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/poolkeeper/internal/offline"
)

// ErrUpstream wraps every failure to get a response from the upstream.
var ErrUpstream = errors.New("network: upstream unavailable")

// userAgent identifies precache and forwarded requests to the upstream.
const userAgent = "poolkeeper/1.0"

// Config configures a Fetcher.
type Config struct {
	// Upstream is the origin every request is forwarded to.
	Upstream string
	// Timeout bounds a whole request. Zero means no bound.
	Timeout time.Duration
}

// Fetcher forwards requests to the upstream origin through resty. It never
// retries; an open circuit fails immediately.
type Fetcher struct {
	upstream *url.URL
	client   *resty.Client
	breaker  *resilience.Breaker
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// statusError marks a 5xx answer so the breaker counts it as a failure
// while the response still reaches the worker.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return "upstream status " + strconv.Itoa(e.status)
}

// BreakerSettings returns breaker settings suited to the upstream: client
// cancellations are not held against it.
func BreakerSettings(failures uint32, timeout time.Duration) resilience.Settings {
	return resilience.Settings{
		Timeout:     timeout,
		ReadyToTrip: resilience.ConsecutiveFailures(failures),
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
}

// New creates a fetcher for cfg. breaker may be nil.
func New(cfg Config, breaker *resilience.Breaker, logger *zap.Logger, metrics *monitoring.Metrics) (*Fetcher, error) {
	upstream, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("upstream %q must be absolute", cfg.Upstream)
	}

	// Pooled transport only; retries are disabled.
	pooled := retryablehttp.NewClient()
	pooled.RetryMax = 0
	pooled.Logger = nil

	client := resty.New().
		SetTransport(pooled.HTTPClient.Transport).
		SetRetryCount(0).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		})).
		SetHeader("User-Agent", userAgent)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &Fetcher{
		upstream: upstream,
		client:   client,
		breaker:  breaker,
		logger:   logging.OrNop(logger).Named("network"),
		metrics:  metrics,
	}, nil
}

// Upstream returns the origin requests are forwarded to.
func (f *Fetcher) Upstream() *url.URL {
	u := *f.upstream
	return &u
}

// Target maps req onto the upstream origin.
func (f *Fetcher) Target(req *http.Request) string {
	u := *f.upstream
	u.Path = strings.TrimSuffix(u.Path, "/") + req.URL.Path
	u.RawPath = ""
	u.RawQuery = req.URL.RawQuery
	return u.String()
}

// Fetch forwards req and buffers the answer.
func (f *Fetcher) Fetch(ctx context.Context, req *http.Request) (*offline.Response, error) {
	target := f.Target(req)
	publicURL := offline.RequestURL(req).String()

	r, err := f.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := resilience.Call(f.breaker, func() (*offline.Response, error) {
		return f.execute(r, req.Method, target, publicURL)
	})
	f.report(err, resp, time.Since(start))

	var se *statusError
	switch {
	case err == nil, errors.As(err, &se):
		return resp, nil
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	default:
		return nil, err
	}
}

func (f *Fetcher) prepare(ctx context.Context, req *http.Request) (*resty.Request, error) {
	r := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)

	for key, values := range req.Header {
		for _, value := range values {
			r.Header.Add(key, value)
		}
	}
	offline.StripHopHeaders(r.Header)
	r.Header.Del("Host")
	if req.Host != "" {
		r.Header.Set("X-Forwarded-Host", req.Host)
	}
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", userAgent)
	}

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		// Leave the body readable for whoever handles the request next.
		req.Body = io.NopCloser(bytes.NewReader(body))
		r.SetBody(body)
	}
	return r, nil
}

func (f *Fetcher) execute(r *resty.Request, method, target, publicURL string) (*offline.Response, error) {
	raw, err := r.Execute(method, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUpstream, method, target, err)
	}

	resp, err := offline.ReadResponse(publicURL, raw.RawResponse)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if resp.Header.Get("Content-Type") == "" && len(resp.Body) > 0 {
		resp.Header.Set("Content-Type", mimetype.Detect(resp.Body).String())
	}
	if resp.Status >= http.StatusInternalServerError {
		return resp, &statusError{status: resp.Status}
	}
	return resp, nil
}

func (f *Fetcher) report(err error, resp *offline.Response, elapsed time.Duration) {
	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.Status)
	}
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		status = "circuit_open"
	}
	f.metrics.RecordUpstream(status, elapsed)
	if f.breaker != nil {
		f.metrics.SetBreakerState(f.breaker.Name(), int(f.breaker.State()))
	}

	var se *statusError
	if err != nil && !errors.As(err, &se) {
		f.logger.Debug("Upstream fetch failed", zap.String("status", status), zap.Error(err))
	}
}
