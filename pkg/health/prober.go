// Package health answers one question: is the relay reachable right now?
// Probers are bounded by a timeout and never return an error; any network
// failure, timeout or non-success status is simply unhealthy. Watch polls a
// prober while the relay is down and reports recovery or an extended outage.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/codeready-toolchain/relaylink/pkg/version"
)

// Result is the outcome of a single probe.
type Result struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
	Error     string        `json:"error,omitempty"`
	// Detail carries prober-specific diagnostics (status code, gRPC status).
	Detail string `json:"detail,omitempty"`
}

// Prober probes a liveness endpoint within timeout.
type Prober interface {
	Probe(ctx context.Context, timeout time.Duration) Result
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, timeout time.Duration) Result

func (f ProberFunc) Probe(ctx context.Context, timeout time.Duration) Result {
	return f(ctx, timeout)
}

// HTTPProber issues a GET against a plain liveness URL. Any 2xx is healthy;
// the body is ignored.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates a prober for url. A nil client uses a dedicated
// client without keep-alives so a dead relay is never masked by a pooled
// connection.
func NewHTTPProber(url string, client *http.Client) *HTTPProber {
	if client == nil {
		client = &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	}
	return &HTTPProber{url: url, client: client}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, timeout time.Duration) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := Result{CheckedAt: start}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	req.Header.Set("User-Agent", version.Full())
	resp, err := p.client.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	res.Detail = resp.Status
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return res
	}
	res.Healthy = true
	return res
}

// Multi is healthy only when every prober is healthy. Probes run
// concurrently under the same timeout.
type Multi []Prober

// Probe implements Prober.
func (m Multi) Probe(ctx context.Context, timeout time.Duration) Result {
	start := time.Now()
	if len(m) == 0 {
		return Result{CheckedAt: start, Error: "no probers configured"}
	}

	results := make([]Result, len(m))
	var wg sync.WaitGroup
	for i, p := range m {
		wg.Add(1)
		go func(i int, p Prober) {
			defer wg.Done()
			results[i] = p.Probe(ctx, timeout)
		}(i, p)
	}
	wg.Wait()

	out := Result{Healthy: true, CheckedAt: start, Latency: time.Since(start)}
	var errs []error
	for _, r := range results {
		if !r.Healthy {
			out.Healthy = false
			errs = append(errs, errors.New(r.Error))
		}
		if r.Detail != "" {
			if out.Detail != "" {
				out.Detail += "; "
			}
			out.Detail += r.Detail
		}
	}
	if err := errors.Join(errs...); err != nil {
		out.Error = err.Error()
	}
	return out
}
