package provider

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single provider round trip.
const DefaultTimeout = 60 * time.Second

// ClientOptions configures the HTTP client used for one provider.
type ClientOptions struct {
	Timeout time.Duration
	// RateLimit is the maximum requests per second (0 = unlimited).
	RateLimit float64
	// Base is the underlying transport (nil = http.DefaultTransport).
	Base http.RoundTripper
}

// NewHTTPClient builds the client every adapter talks through. The timeout
// is applied per request, so a refresh and the retried call are timed
// independently.
func NewHTTPClient(opts ClientOptions) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	var rt http.RoundTripper = base
	if opts.RateLimit > 0 {
		rt = &pacedTransport{
			base:    base,
			limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		}
	}
	return &http.Client{Timeout: opts.Timeout, Transport: rt}
}

// pacedTransport waits on a shared limiter before each request.
type pacedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
