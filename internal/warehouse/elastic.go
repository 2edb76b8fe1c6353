package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// pruneBatchSize is the scroll size for batched delete-by-query pruning.
const pruneBatchSize = 1000

// Elastic loads batches into one index per table. The replace protocol is
// two-phase: delete-by-query on the partition values, then a bulk insert.
// A failure between the phases leaves the touched partitions empty until the
// next successful run repopulates them (last run wins).
type Elastic struct {
	es  *elasticsearch.Client
	log *slog.Logger
}

// NewElastic instantiates the Elasticsearch-backed loader.
func NewElastic(addr string, logger *slog.Logger) (*Elastic, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Elastic{es: es, log: logger}, nil
}

// Replace deletes every document sharing the batch's partition values, then
// bulk-inserts the batch.
func (e *Elastic) Replace(ctx context.Context, table Table, rows []Row) (int, error) {
	if len(rows) == 0 {
		e.log.Warn("no rows to load", slog.String("table", table.Name))
		return 0, nil
	}

	partitions := DistinctPartitions(table, rows)
	if err := e.deletePartitions(ctx, table, partitions); err != nil {
		return 0, err
	}

	e.log.Info("inserting rows",
		slog.String("table", table.Name),
		slog.Int("rows", len(rows)),
		slog.Int("partitions", len(partitions)),
	)

	if err := e.bulkInsert(ctx, table.Name, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (e *Elastic) deletePartitions(ctx context.Context, table Table, partitions []string) error {
	if len(partitions) == 0 {
		return nil
	}

	body := map[string]any{
		"query": map[string]any{
			"terms": map[string]any{
				table.PartitionColumn: partitions,
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal delete body: %w", err)
	}

	e.log.Info("deleting existing partitions",
		slog.String("table", table.Name),
		slog.Int("partitions", len(partitions)),
	)

	res, err := e.es.DeleteByQuery(
		[]string{table.Name},
		bytes.NewReader(payload),
		e.es.DeleteByQuery.WithContext(ctx),
		e.es.DeleteByQuery.WithWaitForCompletion(true),
		e.es.DeleteByQuery.WithConflicts("proceed"),
		e.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("delete partitions: %w", err)
	}
	defer res.Body.Close()

	// 404 means the index has not been created yet; nothing to delete.
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("delete partitions failed: %s", strings.TrimSpace(string(data)))
	}

	return nil
}

func (e *Elastic) bulkInsert(ctx context.Context, index string, rows []Row) error {
	var buf bytes.Buffer
	action := fmt.Sprintf(`{"index":{"_index":%q}}`, index)

	for _, row := range rows {
		doc, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal row: %w", err)
		}
		buf.WriteString(action)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	req := esapi.BulkRequest{
		Index:   index,
		Body:    bytes.NewReader(buf.Bytes()),
		Refresh: "true",
	}

	res, err := req.Do(ctx, e.es)
	if err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk insert failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}

	if parsed.Errors {
		for _, item := range parsed.Items {
			for _, op := range item {
				if op.Status >= http.StatusBadRequest {
					return fmt.Errorf("bulk insert rejected rows: %s", op.Error.Reason)
				}
			}
		}
		return fmt.Errorf("bulk insert rejected rows")
	}

	return nil
}

// PruneBefore removes documents whose partition value sorts before cutoff
// using batched delete-by-query, looping until a batch comes back short.
func (e *Elastic) PruneBefore(ctx context.Context, table Table, cutoff string) (int64, error) {
	totalDeleted := int64(0)

	for {
		body := map[string]any{
			"query": map[string]any{
				"range": map[string]any{
					table.PartitionColumn: map[string]any{
						"lt": cutoff,
					},
				},
			},
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return totalDeleted, fmt.Errorf("marshal prune body: %w", err)
		}

		res, err := e.es.DeleteByQuery(
			[]string{table.Name},
			bytes.NewReader(payload),
			e.es.DeleteByQuery.WithContext(ctx),
			e.es.DeleteByQuery.WithWaitForCompletion(true),
			e.es.DeleteByQuery.WithConflicts("proceed"),
			e.es.DeleteByQuery.WithScrollSize(pruneBatchSize),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("prune by query: %w", err)
		}

		if res.StatusCode == http.StatusNotFound {
			res.Body.Close()
			return totalDeleted, nil
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("prune failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode prune response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(pruneBatchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// Ping checks cluster health.
func (e *Elastic) Ping(ctx context.Context) error {
	res, err := e.es.Cluster.Health(e.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// Close is a no-op; the underlying transport reuses the default pool.
func (e *Elastic) Close() {}
