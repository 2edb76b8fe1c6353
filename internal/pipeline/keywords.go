package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/localsignal/gbp-collector/internal/gbp"
	"github.com/localsignal/gbp-collector/internal/warehouse"
)

// KeywordsFetcher is the slice of the API client the keywords source needs.
type KeywordsFetcher interface {
	FetchSearchKeywords(ctx context.Context, locationName string, start, end time.Time) []gbp.KeywordCount
}

// KeywordsSource collects monthly search keyword impressions, one row per
// (location, keyword). Keywords with zero impressions or unresolvable text
// are noise and dropped without logging.
type KeywordsSource struct {
	fetcher    KeywordsFetcher
	table      string
	monthsBack int
	now        func() time.Time
}

// NewKeywordsSource builds the search keywords pipeline source.
func NewKeywordsSource(fetcher KeywordsFetcher, table string, monthsBack int) *KeywordsSource {
	return &KeywordsSource{
		fetcher:    fetcher,
		table:      table,
		monthsBack: monthsBack,
		now:        time.Now,
	}
}

func (s *KeywordsSource) Name() string { return "keywords" }

func (s *KeywordsSource) ReadMask() string {
	return "name,title,storefrontAddress,metadata"
}

func (s *KeywordsSource) Table() warehouse.Table {
	return warehouse.Table{
		Name:            s.table,
		PartitionColumn: "collection_date",
		Columns: []string{
			"collection_date", "location_name", "location_title",
			"keyword", "impressions", "months_period",
			"data_fetched_at",
		},
	}
}

// Collect fetches one location's keywords and normalizes them.
func (s *KeywordsSource) Collect(ctx context.Context, loc gbp.Location) ([]warehouse.Row, error) {
	end := s.now()
	start := end.AddDate(0, 0, -s.monthsBack*30)

	counts := s.fetcher.FetchSearchKeywords(ctx, loc.Name, start, end)
	if len(counts) == 0 {
		return nil, nil
	}

	fetchedAt := time.Now().UTC()
	collectionDate := fetchedAt.Format(dateOnly)

	rows := make([]warehouse.Row, 0, len(counts))
	for _, kc := range counts {
		keyword := resolveKeyword(kc.SearchKeyword)
		impressions := resolveImpressions(kc.InsightsValue)

		if keyword == "" || impressions == 0 {
			continue
		}

		rows = append(rows, warehouse.Row{
			"collection_date": collectionDate,
			"location_name":   loc.Name,
			"location_title":  orMissing(loc.Title),
			"keyword":         keyword,
			"impressions":     impressions,
			"months_period":   s.monthsBack,
			"data_fetched_at": fetchedAt,
		})
	}

	return rows, nil
}

// Enrich records the configured lookback.
func (s *KeywordsSource) Enrich(details map[string]any, rows []warehouse.Row) {
	details["months_period"] = s.monthsBack
}

// resolveKeyword handles both shapes the API has shipped: a plain JSON
// string and an object wrapping it in a "string" field. Anything else
// resolves to "".
func resolveKeyword(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}

	var wrapped struct {
		String string `json:"string"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return wrapped.String
	}

	return ""
}

// resolveImpressions reads the exact count; thresholded or malformed values
// resolve to 0 and fall out as noise.
func resolveImpressions(v gbp.InsightsValue) int64 {
	if v.Value == "" {
		return 0
	}
	n, err := v.Value.Int64()
	if err != nil {
		return 0
	}
	return n
}
