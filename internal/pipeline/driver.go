package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/localsignal/gbp-collector/internal/auth"
	"github.com/localsignal/gbp-collector/internal/gbp"
	"github.com/localsignal/gbp-collector/internal/warehouse"
)

// ErrNoLocations marks the fatal case of an account with zero listings.
var ErrNoLocations = errors.New("no locations found")

// Lister enumerates the business listings to collect for.
type Lister interface {
	ListLocations(ctx context.Context, readMask string) []gbp.Location
}

// Source is one pipeline's strategy: which fields to list, which table to
// load, and how one location's payload becomes normalized rows.
type Source interface {
	Name() string
	ReadMask() string
	Table() warehouse.Table
	// Collect fetches and normalizes one location's rows. An error or an
	// empty result degrades the location to "no data"; it never aborts
	// the run.
	Collect(ctx context.Context, loc gbp.Location) ([]warehouse.Row, error)
	// Enrich adds pipeline-specific counts to a successful summary.
	Enrich(details map[string]any, rows []warehouse.Row)
}

// EventPublisher receives the summary of every finished run.
type EventPublisher interface {
	Publish(ctx context.Context, s Summary)
}

// Summary is the externally observable outcome of one run. Status, Message
// and Code form the contract consumers branch on.
type Summary struct {
	Pipeline          string         `json:"pipeline"`
	RunID             string         `json:"run_id"`
	Status            string         `json:"status"`
	Code              int            `json:"code"`
	Message           string         `json:"message,omitempty"`
	LocationsFound    int            `json:"locations_found"`
	LocationsWithData int            `json:"locations_with_data"`
	RowsWritten       int            `json:"rows_written"`
	Details           map[string]any `json:"details,omitempty"`
}

// Driver sequences one pipeline: authenticate, list locations, collect and
// normalize per location, then load the full batch once. Per-location
// failures degrade; only authentication, an empty listing, and the load
// itself are fatal.
type Driver struct {
	source Source
	lister Lister
	loader warehouse.Loader
	tokens auth.TokenSource
	events EventPublisher
	log    *slog.Logger
}

// NewDriver wires a pipeline run.
func NewDriver(source Source, lister Lister, loader warehouse.Loader, tokens auth.TokenSource, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Driver{
		source: source,
		lister: lister,
		loader: loader,
		tokens: tokens,
		log:    logger,
	}
}

// WithPublisher attaches a run-summary publisher.
func (d *Driver) WithPublisher(p EventPublisher) *Driver {
	d.events = p
	return d
}

// Run executes the pipeline once and returns its summary.
func (d *Driver) Run(ctx context.Context) Summary {
	start := time.Now()
	runID := uuid.NewString()
	log := d.log.With(slog.String("pipeline", d.source.Name()), slog.String("run_id", runID))

	log.Info("run started")

	if _, err := d.tokens.Token(ctx); err != nil {
		log.Error("authentication failed", slog.Any("err", err))
		return d.finish(ctx, log, Summary{
			Pipeline: d.source.Name(),
			RunID:    runID,
			Status:   "error",
			Code:     http.StatusInternalServerError,
			Message:  "authentication failed: " + err.Error(),
		})
	}

	locations := d.lister.ListLocations(ctx, d.source.ReadMask())
	log.Info("locations listed", slog.Int("count", len(locations)))

	if len(locations) == 0 {
		log.Error("no locations found")
		return d.finish(ctx, log, Summary{
			Pipeline: d.source.Name(),
			RunID:    runID,
			Status:   "error",
			Code:     http.StatusBadRequest,
			Message:  ErrNoLocations.Error(),
		})
	}

	var batch []warehouse.Row
	withData := 0

	for idx, loc := range locations {
		locLog := log.With(slog.String("location", loc.Name), slog.String("title", loc.Title))
		locLog.Info("processing location", slog.Int("index", idx+1), slog.Int("total", len(locations)))

		rows, err := d.source.Collect(ctx, loc)
		if err != nil {
			locLog.Warn("collect failed, treating as no data", slog.Any("err", err))
			continue
		}
		if len(rows) == 0 {
			locLog.Warn("no data for location")
			continue
		}

		withData++
		batch = append(batch, rows...)
		locLog.Info("collected rows", slog.Int("rows", len(rows)))
	}

	written, err := d.loader.Replace(ctx, d.source.Table(), batch)
	if err != nil {
		log.Error("load failed", slog.Any("err", err))
		return d.finish(ctx, log, Summary{
			Pipeline:          d.source.Name(),
			RunID:             runID,
			Status:            "error",
			Code:              http.StatusInternalServerError,
			Message:           "load failed: " + err.Error(),
			LocationsFound:    len(locations),
			LocationsWithData: withData,
		})
	}

	summary := Summary{
		Pipeline:          d.source.Name(),
		RunID:             runID,
		Status:            "success",
		Code:              http.StatusOK,
		LocationsFound:    len(locations),
		LocationsWithData: withData,
		RowsWritten:       written,
		Details:           map[string]any{},
	}
	d.source.Enrich(summary.Details, batch)

	log.Info("run completed",
		slog.Int("locations", summary.LocationsFound),
		slog.Int("locations_with_data", summary.LocationsWithData),
		slog.Int("rows_written", summary.RowsWritten),
		slog.Duration("duration", time.Since(start)),
	)

	return d.finish(ctx, log, summary)
}

// finish publishes the summary best-effort before returning it.
func (d *Driver) finish(ctx context.Context, log *slog.Logger, s Summary) Summary {
	if d.events != nil {
		d.events.Publish(ctx, s)
	}
	return s
}
