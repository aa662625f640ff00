package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
)

const testURL = "https://api.example.com/question/inventory.json"

func newTestFetcher(policy Policy) (*Fetcher, *[]time.Duration) {
	f := New(policy, slog.New(slog.NewTextHandler(io.Discard, nil)))

	slept := &[]time.Duration{}
	f.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}

	return f, slept
}

func TestFetch(t *testing.T) {
	f, _ := newTestFetcher(Policy{MaxAttempts: 3, Delay: 2 * time.Second})

	httpmock.ActivateNonDefault(f.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", testURL,
		httpmock.NewStringResponder(200, `[{"store_id": "1", "quantity": "10"}]`))

	payload, err := f.Fetch(context.Background(), testURL)
	if err != nil {
		t.Fatalf("Unexpected error returned from Fetch (%v)", err)
	}

	if string(payload) != `[{"store_id": "1", "quantity": "10"}]` {
		t.Errorf("Incorrect payload: %s", payload)
	}

	if count := httpmock.GetTotalCallCount(); count != 1 {
		t.Errorf("Expected 1 request, got %d", count)
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	f, slept := newTestFetcher(Policy{MaxAttempts: 3, Delay: 2 * time.Second})

	httpmock.ActivateNonDefault(f.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", testURL,
		httpmock.NewStringResponder(500, "internal server error"))

	_, err := f.Fetch(context.Background(), testURL)

	var exhausted ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected ExhaustedError, got %v", err)
	}

	if exhausted.Attempts != 3 {
		t.Errorf("Expected 3 attempts recorded, got %d", exhausted.Attempts)
	}

	if count := httpmock.GetTotalCallCount(); count != 3 {
		t.Errorf("Expected exactly 3 requests, got %d", count)
	}

	// ... fixed delay between attempts, none after the last
	if len(*slept) != 2 {
		t.Fatalf("Expected 2 retry delays, got %d", len(*slept))
	}
	for _, d := range *slept {
		if d != 2*time.Second {
			t.Errorf("Expected fixed 2s delay, got %v", d)
		}
	}
}

func TestFetchSingleAttempt(t *testing.T) {
	f, _ := newTestFetcher(Policy{MaxAttempts: 1, Delay: time.Second})

	httpmock.ActivateNonDefault(f.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", testURL,
		httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err := f.Fetch(context.Background(), testURL)

	var exhausted ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected ExhaustedError, got %v", err)
	}

	if count := httpmock.GetTotalCallCount(); count != 1 {
		t.Errorf("Expected exactly 1 request, got %d", count)
	}
}

func TestFetchMalformedResponseIsNotRetried(t *testing.T) {
	f, slept := newTestFetcher(Policy{MaxAttempts: 3, Delay: time.Second})

	httpmock.ActivateNonDefault(f.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", testURL,
		httpmock.NewStringResponder(200, `{"store_id": `))

	_, err := f.Fetch(context.Background(), testURL)

	var malformed MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("Expected MalformedResponseError, got %v", err)
	}

	if count := httpmock.GetTotalCallCount(); count != 1 {
		t.Errorf("Expected exactly 1 request, got %d", count)
	}

	if len(*slept) != 0 {
		t.Errorf("Expected no retry delays, got %v", *slept)
	}
}

func TestFetchRecoversAfterTransportFailure(t *testing.T) {
	f, slept := newTestFetcher(Policy{MaxAttempts: 3, Delay: time.Second})

	httpmock.ActivateNonDefault(f.client)
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder("GET", testURL,
		func(request *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(503, "unavailable"), nil
			}
			return httpmock.NewStringResponse(200, `[{"store_id": "1"}]`), nil
		})

	payload, err := f.Fetch(context.Background(), testURL)
	if err != nil {
		t.Fatalf("Unexpected error returned from Fetch (%v)", err)
	}

	if string(payload) != `[{"store_id": "1"}]` {
		t.Errorf("Incorrect payload: %s", payload)
	}

	if len(*slept) != 1 {
		t.Errorf("Expected a single retry delay, got %v", *slept)
	}
}

func TestFetchWithEmptyURL(t *testing.T) {
	f, _ := newTestFetcher(Policy{MaxAttempts: 3, Delay: time.Second})

	_, err := f.Fetch(context.Background(), "")

	var unexpected UnexpectedError
	if !errors.As(err, &unexpected) {
		t.Fatalf("Expected UnexpectedError for empty URL, got %v", err)
	}
}

func TestFetchCancelledContext(t *testing.T) {
	f, _ := newTestFetcher(Policy{MaxAttempts: 3, Delay: time.Second})

	httpmock.ActivateNonDefault(f.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", testURL,
		httpmock.NewStringResponder(500, "internal server error"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, testURL)

	var unexpected UnexpectedError
	if !errors.As(err, &unexpected) {
		t.Fatalf("Expected UnexpectedError for cancelled context, got %v", err)
	}
}
