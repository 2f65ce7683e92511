// Package adapters contains the provider clients that normalize external
// weather and air-quality APIs into telemetry readings. Adapters perform a
// single attempt per call behind a circuit breaker; retry policy lives in
// the scheduler, never here.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/telemetry"
)

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
)

// doRequest executes one HTTP attempt through the provider's circuit breaker
// and maps transport and status failures onto the typed fetch-error taxonomy.
func doRequest(
	ctx context.Context,
	client *http.Client,
	cb *gobreaker.CircuitBreaker,
	provider string,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, telemetry.NewFetchError(telemetry.FetchTimeout, provider, err)
	}

	req, err := buildRequest()
	if err != nil {
		return nil, telemetry.NewFetchError(telemetry.FetchMalformedResponse, provider, err)
	}
	req = req.WithContext(ctx)

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return nil, errRateLimited
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, errServerError
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return nil, classify(provider, err)
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, telemetry.NewFetchError(telemetry.FetchMalformedResponse, provider,
			fmt.Errorf("unexpected result type from circuit breaker"))
	}
	return resp, nil
}

// classify maps a transport-level failure to its FetchError kind. Unexpected
// 4xx statuses (bad API key, bad query) are permanent and land on the
// malformed-response kind so the scheduler will not retry them within a tick.
func classify(provider string, err error) *telemetry.FetchError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return telemetry.NewFetchError(telemetry.FetchTimeout, provider, err)
	case errors.Is(err, errRateLimited):
		return telemetry.NewFetchError(telemetry.FetchRateLimited, provider, err)
	case errors.Is(err, errServerError),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return telemetry.NewFetchError(telemetry.FetchUpstreamUnavailable, provider, err)
	case errors.Is(err, errUnexpected):
		return telemetry.NewFetchError(telemetry.FetchMalformedResponse, provider, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return telemetry.NewFetchError(telemetry.FetchTimeout, provider, err)
	}
	return telemetry.NewFetchError(telemetry.FetchUpstreamUnavailable, provider, err)
}

// malformed wraps a decode failure.
func malformed(provider string, err error) *telemetry.FetchError {
	return telemetry.NewFetchError(telemetry.FetchMalformedResponse, provider, err)
}
