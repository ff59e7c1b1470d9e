package reader

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/DIY-6/web3-script/logger"
)

// Options configures the shared outbound HTTP client.
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Retries           int
	MaxIdleConns      int
	MaxConnsPerHost   int
	IdleConnTimeout   time.Duration
	LocalIP           string
}

const (
	defaultTimeout = 8 * time.Second
	defaultRPS     = 10
	defaultBurst   = 1
	maxRetries     = 1
)

// NewHTTPClient builds the pooled, rate limited client every fetcher shares.
// Idempotent requests are retried at most once on transport errors, whatever
// Retries asks for; HTTP status codes are never retried.
func NewHTTPClient(opts Options) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRPS
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	if opts.Retries > maxRetries {
		opts.Retries = maxRetries
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        opts.MaxIdleConns,
		MaxIdleConnsPerHost: opts.MaxIdleConns,
		MaxConnsPerHost:     opts.MaxConnsPerHost,
		IdleConnTimeout:     opts.IdleConnTimeout,
	}
	if opts.LocalIP != "" {
		if ip := net.ParseIP(opts.LocalIP); ip != nil {
			dialer := &net.Dialer{LocalAddr: &net.TCPAddr{IP: ip}}
			transport.DialContext = dialer.DialContext
		}
	}

	logger.GetLogger().WithComponent("http_client").WithFields(logger.Fields{
		"timeout":             opts.Timeout.String(),
		"requests_per_second": opts.RequestsPerSecond,
		"burst":               opts.Burst,
		"retries":             opts.Retries,
	}).Info("http client initialized")

	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &limitedTransport{
			next:    transport,
			limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
			retries: opts.Retries,
		},
	}
}

// limitedTransport throttles requests through a token bucket and retries
// idempotent requests on transport errors.
type limitedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
	retries int
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	for attempt := 0; ; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := t.next.RoundTrip(req)
		if err == nil {
			return resp, nil
		}
		if attempt >= t.retries || !retryable(req) || ctx.Err() != nil {
			return nil, err
		}
		if req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, err
			}
			req.Body = body
		}
		logger.GetLogger().WithComponent("http_client").WithFields(logger.Fields{
			"url":     req.URL.Redacted(),
			"attempt": attempt + 1,
		}).WithError(err).Debug("retrying request")
	}
}

func retryable(req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}
