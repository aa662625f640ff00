package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/retailops/sheetsync/config"
	"github.com/retailops/sheetsync/sheets"
	"github.com/retailops/sheetsync/table"
)

// Fetcher retrieves a JSON payload from an API endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (json.RawMessage, error)
}

// Publisher writes a table to a worksheet, replacing its prior contents.
type Publisher interface {
	Publish(ctx context.Context, t *table.Table, target sheets.Target) error
}

// ResourceKind binds one data domain to its endpoint, worksheet target and
// column coercions.
type ResourceKind struct {
	Name      string
	URL       string
	Target    sheets.Target
	Coercions table.CoercionSpec
}

// Kinds builds the orders and inventory resource kinds from configuration.
// Both coerce the store and quantity columns the upstream API serves as
// strings.
func Kinds(cfg *config.Config) []ResourceKind {
	coercions := table.CoercionSpec{
		"store_id": table.TypeInt,
		"quantity": table.TypeInt,
	}

	bind := func(name string, endpoint config.Endpoint) ResourceKind {
		return ResourceKind{
			Name: name,
			URL:  endpoint.URL,
			Target: sheets.Target{
				Spreadsheet: cfg.SheetName,
				Worksheet:   endpoint.Worksheet,
				StartRow:    endpoint.StartRow,
				StartCol:    endpoint.StartCol,
			},
			Coercions: coercions,
		}
	}

	return []ResourceKind{
		bind("orders", cfg.Orders),
		bind("inventory", cfg.Inventory),
	}
}

// Runner sequences fetch, normalize and publish for each resource kind. A
// kind's failure never blocks the kinds after it; the overall result is the
// AND of the per-kind results.
type Runner struct {
	fetcher   Fetcher
	publisher Publisher
	metrics   *Metrics
	log       *slog.Logger
}

func NewRunner(fetcher Fetcher, publisher Publisher, metrics *Metrics, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}

	return &Runner{
		fetcher:   fetcher,
		publisher: publisher,
		metrics:   metrics,
		log:       log,
	}
}

// Run executes every kind's pipeline in order and reports overall success.
// All errors are absorbed here: each stage reduces to pass/fail plus a logged
// reason.
func (r *Runner) Run(ctx context.Context, kinds []ResourceKind) bool {
	overall := true

	for _, kind := range kinds {
		ok := r.runKind(ctx, kind)
		r.metrics.IncSync(kind.Name, ok)
		overall = overall && ok
	}

	return overall
}

func (r *Runner) runKind(ctx context.Context, kind ResourceKind) bool {
	log := r.log.With(slog.String("kind", kind.Name))
	log.Info("starting sync",
		slog.String("url", kind.URL),
		slog.String("worksheet", kind.Target.Worksheet),
	)

	// ... fetch
	started := time.Now()
	payload, err := r.fetcher.Fetch(ctx, kind.URL)
	r.metrics.ObserveStage(kind.Name, "fetch", time.Since(started))
	if err != nil {
		log.Error("fetch failed", slog.Any("error", err))
		return false
	}

	// ... normalize
	started = time.Now()
	t, err := table.Normalize(payload, kind.Coercions)
	r.metrics.ObserveStage(kind.Name, "normalize", time.Since(started))
	switch {
	case errors.Is(err, table.ErrNoRows):
		log.Error("no data returned by API")
		return false
	case err != nil:
		log.Error("normalization failed", slog.Any("error", err))
		return false
	}

	for _, column := range t.Missing {
		log.Info("coercion column not present in data", slog.String("column", column))
	}
	for _, warning := range t.Warnings {
		log.Warn("column left unconverted", slog.String("reason", warning))
	}
	r.metrics.AddCoercionWarnings(kind.Name, len(t.Warnings))

	log.Info("normalized payload",
		slog.Int("rows", len(t.Rows)),
		slog.Int("columns", len(t.Columns)),
	)

	// ... publish
	started = time.Now()
	err = r.publisher.Publish(ctx, t, kind.Target)
	r.metrics.ObserveStage(kind.Name, "publish", time.Since(started))
	if err != nil {
		log.Error("publish failed", slog.Any("error", err))
		return false
	}

	r.metrics.AddRows(kind.Name, len(t.Rows))
	log.Info("sync complete",
		slog.Int("rows", len(t.Rows)),
		slog.Int("columns", len(t.Columns)),
	)

	return true
}
