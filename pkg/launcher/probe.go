package launcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// HealthURL returns the loopback health-check URL for a port
func HealthURL(port uint16, path string) string {
	return "http://" + net.JoinHostPort(loopbackAddr, strconv.Itoa(int(port))) + path
}

// ReadinessProbe polls a health endpoint until it answers 2xx or Timeout elapses
type ReadinessProbe struct {
	URL            string
	Interval       time.Duration
	Timeout        time.Duration
	RequestTimeout time.Duration

	Client *http.Client
	Logger *slog.Logger
}

// NewReadinessProbe creates a probe for the backend on port using the
// configured health path and timings.
func NewReadinessProbe(port uint16, config *Config, logger *slog.Logger) *ReadinessProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadinessProbe{
		URL:            HealthURL(port, config.HealthPath),
		Interval:       config.PollInterval,
		Timeout:        config.ReadinessTimeout,
		RequestTimeout: config.RequestTimeout,
		Client: &http.Client{
			Transport: &http.Transport{
				Proxy:             nil,
				DisableKeepAlives: true,
			},
		},
		Logger: logger.With("component", "readiness"),
	}
}

// Wait polls until the endpoint reports success.
//
// Connection errors and non-2xx answers mean "not ready yet" and are never
// returned. The probe only gives up once Timeout has fully elapsed, so a
// backend that answers on poll K is seen after roughly (K-1)*Interval.
// Returns the number of polls issued.
func (rp *ReadinessProbe) Wait(ctx context.Context) (int, error) {
	start := time.Now()
	deadline := start.Add(rp.Timeout)

	attempts := 0
	for {
		attempts++
		if rp.Check(ctx) {
			rp.logger().Info("backend is ready",
				"url", rp.URL,
				"attempts", attempts,
				"elapsed", time.Since(start))
			return attempts, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			rp.logger().Error("backend readiness timeout",
				"url", rp.URL,
				"attempts", attempts,
				"timeout", rp.Timeout)
			return attempts, ErrReadinessTimeout(rp.URL, attempts,
				fmt.Errorf("no successful response within %v", rp.Timeout))
		}

		wait := rp.Interval
		if wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, ErrCancelled("readiness probe", ctx.Err())
		case <-timer.C:
		}
	}
}

// Check performs a single health request and reports whether it returned 2xx
func (rp *ReadinessProbe) Check(ctx context.Context) bool {
	reqCtx := ctx
	if rp.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, rp.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rp.URL, nil)
	if err != nil {
		rp.logger().Debug("invalid health request", "url", rp.URL, "error", err)
		return false
	}

	client := rp.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		rp.logger().Debug("backend not ready", "url", rp.URL, "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (rp *ReadinessProbe) logger() *slog.Logger {
	if rp.Logger == nil {
		return slog.Default()
	}
	return rp.Logger
}
