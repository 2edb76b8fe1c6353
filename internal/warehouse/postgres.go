package warehouse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres loads batches into relational tables. Unlike the Elasticsearch
// backend it collapses the delete/insert window: both phases run inside one
// transaction, so a failed load leaves the prior partition contents intact.
type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgres connects a pgx pool to the warehouse database.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Postgres{pool: pool, log: logger}, nil
}

// Replace atomically swaps the batch's partitions: delete-by-partition and
// the batch insert commit together or not at all.
func (p *Postgres) Replace(ctx context.Context, table Table, rows []Row) (int, error) {
	if len(rows) == 0 {
		p.log.Warn("no rows to load", slog.String("table", table.Name))
		return 0, nil
	}

	partitions := DistinctPartitions(table, rows)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p.log.Info("replacing partitions",
		slog.String("table", table.Name),
		slog.Int("partitions", len(partitions)),
		slog.Int("rows", len(rows)),
	)

	if _, err := tx.Exec(ctx, deleteStatement(table), partitions); err != nil {
		return 0, fmt.Errorf("delete partitions: %w", err)
	}

	stmt := insertStatement(table)
	batch := &pgx.Batch{}
	for _, row := range rows {
		args := make([]any, len(table.Columns))
		for i, col := range table.Columns {
			args[i] = row[col]
		}
		batch.Queue(stmt, args...)
	}

	results := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return 0, fmt.Errorf("insert rows: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit load: %w", err)
	}

	return len(rows), nil
}

// PruneBefore deletes rows whose partition date is older than cutoff.
func (p *Postgres) PruneBefore(ctx context.Context, table Table, cutoff string) (int64, error) {
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE %s < $1",
		pgx.Identifier{table.Name}.Sanitize(),
		pgx.Identifier{table.PartitionColumn}.Sanitize(),
	)

	tag, err := p.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", table.Name, err)
	}
	return tag.RowsAffected(), nil
}

// Ping verifies database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func deleteStatement(table Table) string {
	return fmt.Sprintf(
		"DELETE FROM %s WHERE %s = ANY($1)",
		pgx.Identifier{table.Name}.Sanitize(),
		pgx.Identifier{table.PartitionColumn}.Sanitize(),
	)
}

func insertStatement(table Table) string {
	cols := make([]string, len(table.Columns))
	placeholders := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		cols[i] = pgx.Identifier{col}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{table.Name}.Sanitize(),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)
}
