package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/localsignal/gbp-collector/internal/config"
)

// Row is one flat record destined for a warehouse table. Every declared
// column carries a concrete value; numeric fields default to 0 and string
// fields to "", never null.
type Row map[string]any

// Table describes a warehouse target.
type Table struct {
	Name            string
	PartitionColumn string
	Columns         []string
}

// Loader replaces warehouse partitions idempotently: all existing rows for
// the partition values present in a batch are deleted before the batch is
// inserted, so a rerun for the same values fully supersedes the prior run.
type Loader interface {
	// Replace loads a batch, returning the number of rows written.
	// An empty batch is a no-op.
	Replace(ctx context.Context, table Table, rows []Row) (int, error)
	// PruneBefore deletes rows whose partition value sorts before cutoff
	// (an ISO date string), returning the number removed.
	PruneBefore(ctx context.Context, table Table, cutoff string) (int64, error)
	// Ping verifies connectivity.
	Ping(ctx context.Context) error
	// Close releases the underlying connections.
	Close()
}

// Open builds the loader selected by the warehouse configuration.
func Open(ctx context.Context, cfg config.Warehouse, logger *slog.Logger) (Loader, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgres(ctx, cfg.PostgresDSN, logger)
	case config.DriverElasticsearch:
		return NewElastic(cfg.ElasticsearchAddr, logger)
	default:
		return nil, fmt.Errorf("unknown warehouse driver %q", cfg.Driver)
	}
}

// DistinctPartitions extracts the sorted set of partition values in a batch.
func DistinctPartitions(table Table, rows []Row) []string {
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if v, ok := row[table.PartitionColumn].(string); ok && v != "" {
			seen[v] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
