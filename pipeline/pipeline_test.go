package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/sheetsync/config"
	"github.com/retailops/sheetsync/fetch"
	"github.com/retailops/sheetsync/sheets"
	"github.com/retailops/sheetsync/table"
)

type stubFetcher struct {
	payloads map[string]json.RawMessage
	errs     map[string]error
	calls    []string
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) (json.RawMessage, error) {
	s.calls = append(s.calls, url)
	if err, ok := s.errs[url]; ok {
		return nil, err
	}
	return s.payloads[url], nil
}

type publishCall struct {
	target sheets.Target
	rows   int
}

type stubPublisher struct {
	errs      map[string]error
	published []publishCall
}

func (s *stubPublisher) Publish(ctx context.Context, t *table.Table, target sheets.Target) error {
	if err, ok := s.errs[target.Worksheet]; ok {
		return err
	}
	s.published = append(s.published, publishCall{target: target, rows: len(t.Rows)})
	return nil
}

func testKinds() []ResourceKind {
	coercions := table.CoercionSpec{"store_id": table.TypeInt, "quantity": table.TypeInt}

	return []ResourceKind{
		{
			Name:      "orders",
			URL:       "https://api.example.com/orders.json",
			Target:    sheets.Target{Spreadsheet: "testing-sheet", Worksheet: "orders", StartRow: 1, StartCol: 4},
			Coercions: coercions,
		},
		{
			Name:      "inventory",
			URL:       "https://api.example.com/inventory.json",
			Target:    sheets.Target{Spreadsheet: "testing-sheet", Worksheet: "inventory", StartRow: 1, StartCol: 4},
			Coercions: coercions,
		},
	}
}

func newTestRunner(fetcher Fetcher, publisher Publisher) *Runner {
	return NewRunner(fetcher, publisher, NewMetrics(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRun(t *testing.T) {
	fetcher := &stubFetcher{
		payloads: map[string]json.RawMessage{
			"https://api.example.com/orders.json":    json.RawMessage(`[{"store_id": "1", "quantity": "10"}]`),
			"https://api.example.com/inventory.json": json.RawMessage(`[{"store_id": "2", "quantity": "20"}]`),
		},
	}
	publisher := &stubPublisher{}

	ok := newTestRunner(fetcher, publisher).Run(context.Background(), testKinds())

	require.True(t, ok)
	require.Len(t, publisher.published, 2)
	assert.Equal(t, "orders", publisher.published[0].target.Worksheet)
	assert.Equal(t, "inventory", publisher.published[1].target.Worksheet)
	assert.Equal(t, 1, publisher.published[0].rows)
}

func TestRunKindFailureDoesNotBlockOthers(t *testing.T) {
	fetcher := &stubFetcher{
		payloads: map[string]json.RawMessage{
			"https://api.example.com/inventory.json": json.RawMessage(`[{"store_id": "2", "quantity": "20"}]`),
		},
		errs: map[string]error{
			"https://api.example.com/orders.json": fetch.ExhaustedError{Attempts: 3, Err: errors.New("http status 500")},
		},
	}
	publisher := &stubPublisher{}

	ok := newTestRunner(fetcher, publisher).Run(context.Background(), testKinds())

	// ... overall failure, but inventory still ran and published
	require.False(t, ok)
	require.Len(t, fetcher.calls, 2)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, "inventory", publisher.published[0].target.Worksheet)
}

func TestRunShortCircuitsWithinKind(t *testing.T) {
	fetcher := &stubFetcher{
		errs: map[string]error{
			"https://api.example.com/orders.json":    fetch.ExhaustedError{Attempts: 3, Err: errors.New("http status 500")},
			"https://api.example.com/inventory.json": fetch.MalformedResponseError{Err: errors.New("unexpected end of JSON input")},
		},
	}
	publisher := &stubPublisher{}

	ok := newTestRunner(fetcher, publisher).Run(context.Background(), testKinds())

	require.False(t, ok)
	assert.Empty(t, publisher.published)
}

func TestRunTreatsEmptyPayloadAsFailure(t *testing.T) {
	fetcher := &stubFetcher{
		payloads: map[string]json.RawMessage{
			"https://api.example.com/orders.json":    json.RawMessage(`[]`),
			"https://api.example.com/inventory.json": json.RawMessage(`[{"store_id": "2", "quantity": "20"}]`),
		},
	}
	publisher := &stubPublisher{}

	ok := newTestRunner(fetcher, publisher).Run(context.Background(), testKinds())

	require.False(t, ok)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, "inventory", publisher.published[0].target.Worksheet)
}

func TestRunPublishFailure(t *testing.T) {
	fetcher := &stubFetcher{
		payloads: map[string]json.RawMessage{
			"https://api.example.com/orders.json":    json.RawMessage(`[{"store_id": "1"}]`),
			"https://api.example.com/inventory.json": json.RawMessage(`[{"store_id": "2"}]`),
		},
	}
	publisher := &stubPublisher{
		errs: map[string]error{
			"orders": sheets.APIError{Op: "write values", Err: errors.New("rate limit exceeded")},
		},
	}

	ok := newTestRunner(fetcher, publisher).Run(context.Background(), testKinds())

	require.False(t, ok)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, "inventory", publisher.published[0].target.Worksheet)
}

func TestKinds(t *testing.T) {
	cfg := &config.Config{
		Orders: config.Endpoint{
			URL:       "https://api.example.com/orders.json",
			Worksheet: "orders",
			StartRow:  1,
			StartCol:  4,
		},
		Inventory: config.Endpoint{
			URL:       "https://api.example.com/inventory.json",
			Worksheet: "inventory",
			StartRow:  2,
			StartCol:  1,
		},
		Credentials: "conf/service-account.json",
		SheetName:   "testing-sheet",
		MaxRetries:  3,
		RetryDelay:  2 * time.Second,
	}

	kinds := Kinds(cfg)

	require.Len(t, kinds, 2)

	assert.Equal(t, "orders", kinds[0].Name)
	assert.Equal(t, sheets.Target{Spreadsheet: "testing-sheet", Worksheet: "orders", StartRow: 1, StartCol: 4}, kinds[0].Target)

	assert.Equal(t, "inventory", kinds[1].Name)
	assert.Equal(t, sheets.Target{Spreadsheet: "testing-sheet", Worksheet: "inventory", StartRow: 2, StartCol: 1}, kinds[1].Target)

	for _, kind := range kinds {
		assert.Equal(t, table.CoercionSpec{"store_id": table.TypeInt, "quantity": table.TypeInt}, kind.Coercions)
	}
}
