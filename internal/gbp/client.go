package gbp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/localsignal/gbp-collector/internal/auth"
)

// callTimeout bounds every individual API call.
const callTimeout = 30 * time.Second

// Config carries the client's endpoints and paging behaviour.
type Config struct {
	BusinessBase    string
	PerformanceBase string
	PageSize        int
}

// Client talks to the Business Profile information and performance APIs.
// All calls are read-only GETs carrying a bearer credential.
type Client struct {
	httpClient      *http.Client
	businessBase    string
	performanceBase string
	pageSize        int
	tokens          auth.TokenSource
	log             *slog.Logger
}

// New instantiates the API client.
func New(cfg Config, tokens auth.TokenSource, logger *slog.Logger) *Client {
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 100
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		httpClient:      &http.Client{},
		businessBase:    strings.TrimRight(cfg.BusinessBase, "/"),
		performanceBase: strings.TrimRight(cfg.PerformanceBase, "/"),
		pageSize:        cfg.PageSize,
		tokens:          tokens,
		log:             logger,
	}
}

// ListLocations pages through every listing under the account wildcard.
// A page failure ends pagination and returns what was accumulated so far;
// the error is logged, not returned. An empty account yields an empty slice.
func (c *Client) ListLocations(ctx context.Context, readMask string) []Location {
	endpoint := c.businessBase + "/accounts/-/locations"

	var all []Location
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("readMask", readMask)
		params.Set("pageSize", strconv.Itoa(c.pageSize))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page listLocationsResponse
		if err := c.get(ctx, endpoint, params, &page); err != nil {
			c.log.Error("fetch locations page", slog.Any("err", err), slog.Int("accumulated", len(all)))
			break
		}

		all = append(all, page.Locations...)
		c.log.Debug("fetched locations page", slog.Int("count", len(page.Locations)))

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	return all
}

// FetchDailyMetrics retrieves the multi-metric daily time series for one
// location over [start, end]. A failure means "no data" for that location.
func (c *Client) FetchDailyMetrics(ctx context.Context, locationName string, start, end time.Time) (*MetricsResponse, error) {
	endpoint := fmt.Sprintf("%s/locations/%s:fetchMultiDailyMetricsTimeSeries", c.performanceBase, locationID(locationName))

	params := url.Values{}
	for _, m := range DailyMetrics {
		params.Add("dailyMetrics", m)
	}
	params.Set("dailyRange.start_date.year", strconv.Itoa(start.Year()))
	params.Set("dailyRange.start_date.month", strconv.Itoa(int(start.Month())))
	params.Set("dailyRange.start_date.day", strconv.Itoa(start.Day()))
	params.Set("dailyRange.end_date.year", strconv.Itoa(end.Year()))
	params.Set("dailyRange.end_date.month", strconv.Itoa(int(end.Month())))
	params.Set("dailyRange.end_date.day", strconv.Itoa(end.Day()))

	var resp MetricsResponse
	if err := c.get(ctx, endpoint, params, &resp); err != nil {
		return nil, fmt.Errorf("fetch metrics for %s: %w", locationName, err)
	}
	return &resp, nil
}

// FetchSearchKeywords pages through the monthly keyword impressions for one
// location. Like ListLocations, a page failure returns the partial result.
func (c *Client) FetchSearchKeywords(ctx context.Context, locationName string, start, end time.Time) []KeywordCount {
	endpoint := fmt.Sprintf("%s/locations/%s/searchkeywords/impressions/monthly", c.performanceBase, locationID(locationName))

	var all []KeywordCount
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("monthlyRange.start_month.year", strconv.Itoa(start.Year()))
		params.Set("monthlyRange.start_month.month", strconv.Itoa(int(start.Month())))
		params.Set("monthlyRange.end_month.year", strconv.Itoa(end.Year()))
		params.Set("monthlyRange.end_month.month", strconv.Itoa(int(end.Month())))
		params.Set("pageSize", strconv.Itoa(c.pageSize))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page searchKeywordsResponse
		if err := c.get(ctx, endpoint, params, &page); err != nil {
			c.log.Error("fetch keywords page",
				slog.Any("err", err),
				slog.String("location", locationName),
				slog.Int("accumulated", len(all)),
			)
			break
		}

		all = append(all, page.SearchKeywordsCounts...)
		c.log.Debug("fetched keywords page", slog.Int("count", len(page.SearchKeywordsCounts)))

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	return all
}

// get issues one bounded, authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("obtain token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// locationID strips the resource prefix from "locations/123..." style names.
func locationID(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
