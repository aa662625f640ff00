package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const requestTimeout = 30 * time.Second

// Policy is a bounded-retry policy: MaxAttempts total attempts with a fixed
// Delay between them. No backoff.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// SleepFunc waits out a retry delay. Tests substitute one that records the
// delay instead of sleeping.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fetcher retrieves JSON payloads from a single endpoint per call, retrying
// transport-level failures according to its policy.
type Fetcher struct {
	client *http.Client
	policy Policy
	sleep  SleepFunc
	log    *slog.Logger
}

// New builds a Fetcher. A policy with MaxAttempts below 1 is clamped to 1.
func New(policy Policy, log *slog.Logger) *Fetcher {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if log == nil {
		log = slog.Default()
	}

	return &Fetcher{
		client: &http.Client{Timeout: requestTimeout},
		policy: policy,
		sleep:  sleep,
		log:    log,
	}
}

// Fetch issues a GET against url and returns the response body once it has
// been verified to be valid JSON. Transport failures and non-2xx statuses are
// retried up to the policy's MaxAttempts; a malformed body fails immediately.
func (f *Fetcher) Fetch(ctx context.Context, url string) (json.RawMessage, error) {
	if strings.TrimSpace(url) == "" {
		return nil, UnexpectedError{Err: fmt.Errorf("url is required")}
	}

	var last error

	for attempt := 1; attempt <= f.policy.MaxAttempts; attempt++ {
		f.log.Info("fetching data from API",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", f.policy.MaxAttempts),
		)

		raw, err := f.attempt(ctx, url)
		if err == nil {
			return raw, nil
		}

		switch err.(type) {
		case MalformedResponseError, UnexpectedError:
			return nil, err
		}

		last = err
		f.log.Warn("API request failed",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)

		if attempt < f.policy.MaxAttempts {
			f.log.Info("retrying", slog.Duration("delay", f.policy.Delay))
			if err := f.sleep(ctx, f.policy.Delay); err != nil {
				return nil, UnexpectedError{Err: err}
			}
		}
	}

	return nil, ExhaustedError{Attempts: f.policy.MaxAttempts, Err: last}
}

func (f *Fetcher) attempt(ctx context.Context, url string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, UnexpectedError{Err: err}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, UnexpectedError{Err: err}
	}

	request.Header.Set("Accept", "application/json")

	response, err := f.client.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return nil, UnexpectedError{Err: ctx.Err()}
		}
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		io.Copy(io.Discard, response.Body)
		return nil, fmt.Errorf("http status %d", response.StatusCode)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, MalformedResponseError{Err: err}
	}

	return json.RawMessage(body), nil
}
