package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/localsignal/gbp-collector/internal/gbp"
)

type stubMetricsFetcher struct {
	resp *gbp.MetricsResponse
	err  error
}

func (s *stubMetricsFetcher) FetchDailyMetrics(context.Context, string, time.Time, time.Time) (*gbp.MetricsResponse, error) {
	return s.resp, s.err
}

func metricsResponse(series ...gbp.DailyMetricTimeSeries) *gbp.MetricsResponse {
	return &gbp.MetricsResponse{
		MultiDailyMetricTimeSeries: []gbp.MultiDailyMetricTimeSeries{
			{DailyMetricTimeSeries: series},
		},
	}
}

func dated(year, month, day int, value string) gbp.DatedValue {
	return gbp.DatedValue{
		Date:  gbp.Date{Year: year, Month: month, Day: day},
		Value: json.Number(value),
	}
}

func testLocation() gbp.Location {
	return gbp.Location{
		Name:  "accounts/-/locations/42",
		Title: "Corner Bakery",
	}
}

func TestImpressionsZeroFill(t *testing.T) {
	fetcher := &stubMetricsFetcher{resp: metricsResponse(
		gbp.DailyMetricTimeSeries{
			DailyMetric: gbp.MetricCallClicks,
			TimeSeries:  gbp.TimeSeries{DatedValues: []gbp.DatedValue{dated(2024, 1, 5, "4")}},
		},
		gbp.DailyMetricTimeSeries{
			DailyMetric: gbp.MetricWebsiteClicks,
			TimeSeries:  gbp.TimeSeries{DatedValues: []gbp.DatedValue{dated(2024, 1, 6, "9")}},
		},
	)}

	source := NewImpressionsSource(fetcher, "daily_impressions", 90, 3)
	rows, err := source.Collect(context.Background(), testLocation())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, "2024-01-05", rows[0]["date"])
	require.EqualValues(t, 4, rows[0]["call_clicks"])
	require.EqualValues(t, 0, rows[0]["website_clicks"])

	require.Equal(t, "2024-01-06", rows[1]["date"])
	require.EqualValues(t, 0, rows[1]["call_clicks"])
	require.EqualValues(t, 9, rows[1]["website_clicks"])
}

func TestImpressionsDerivedTotals(t *testing.T) {
	fetcher := &stubMetricsFetcher{resp: metricsResponse(
		gbp.DailyMetricTimeSeries{
			DailyMetric: gbp.MetricImpressionsDesktopMaps,
			TimeSeries:  gbp.TimeSeries{DatedValues: []gbp.DatedValue{dated(2024, 2, 1, "3")}},
		},
		gbp.DailyMetricTimeSeries{
			DailyMetric: gbp.MetricImpressionsDesktopSearch,
			TimeSeries:  gbp.TimeSeries{DatedValues: []gbp.DatedValue{dated(2024, 2, 1, "2")}},
		},
		gbp.DailyMetricTimeSeries{
			DailyMetric: gbp.MetricImpressionsMobileMaps,
			TimeSeries:  gbp.TimeSeries{DatedValues: []gbp.DatedValue{dated(2024, 2, 1, "1")}},
		},
		gbp.DailyMetricTimeSeries{
			DailyMetric: gbp.MetricImpressionsMobileSearch,
			TimeSeries:  gbp.TimeSeries{DatedValues: []gbp.DatedValue{dated(2024, 2, 1, "0")}},
		},
		gbp.DailyMetricTimeSeries{
			DailyMetric: gbp.MetricWebsiteClicks,
			TimeSeries:  gbp.TimeSeries{DatedValues: []gbp.DatedValue{dated(2024, 2, 1, "5")}},
		},
		gbp.DailyMetricTimeSeries{
			DailyMetric: gbp.MetricConversations,
			TimeSeries:  gbp.TimeSeries{DatedValues: []gbp.DatedValue{dated(2024, 2, 1, "2")}},
		},
	)}

	source := NewImpressionsSource(fetcher, "daily_impressions", 90, 3)
	rows, err := source.Collect(context.Background(), testLocation())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.EqualValues(t, 6, rows[0]["total_impressions"])
	require.EqualValues(t, 7, rows[0]["total_actions"])
}

func TestImpressionsCalendarFields(t *testing.T) {
	fetcher := &stubMetricsFetcher{resp: metricsResponse(
		gbp.DailyMetricTimeSeries{
			DailyMetric: gbp.MetricCallClicks,
			TimeSeries:  gbp.TimeSeries{DatedValues: []gbp.DatedValue{dated(2024, 1, 5, "1")}},
		},
	)}

	source := NewImpressionsSource(fetcher, "daily_impressions", 90, 3)
	rows, err := source.Collect(context.Background(), testLocation())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	require.Equal(t, "Friday", row["day_of_week"])
	require.Equal(t, 1, row["week_number"])
	require.Equal(t, 1, row["month"])
	require.Equal(t, "January", row["month_name"])
	require.Equal(t, 2024, row["year"])
}

func TestImpressionsUnparsableValueDefaultsToZero(t *testing.T) {
	fetcher := &stubMetricsFetcher{resp: metricsResponse(
		gbp.DailyMetricTimeSeries{
			DailyMetric: gbp.MetricCallClicks,
			TimeSeries:  gbp.TimeSeries{DatedValues: []gbp.DatedValue{dated(2024, 1, 5, `"garbage"`)}},
		},
	)}

	source := NewImpressionsSource(fetcher, "daily_impressions", 90, 3)
	rows, err := source.Collect(context.Background(), testLocation())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 0, rows[0]["call_clicks"])
}

func TestImpressionsSentinelFields(t *testing.T) {
	fetcher := &stubMetricsFetcher{resp: metricsResponse(
		gbp.DailyMetricTimeSeries{
			DailyMetric: gbp.MetricCallClicks,
			TimeSeries:  gbp.TimeSeries{DatedValues: []gbp.DatedValue{dated(2024, 1, 5, "1")}},
		},
	)}

	source := NewImpressionsSource(fetcher, "daily_impressions", 90, 3)
	rows, err := source.Collect(context.Background(), gbp.Location{Name: "locations/7"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.Equal(t, "N/A", rows[0]["title"])
	require.Equal(t, "N/A", rows[0]["phone"])
	require.Equal(t, "N/A", rows[0]["website"])
	require.Equal(t, "N/A", rows[0]["maps_url"])
	require.NotNil(t, rows[0]["data_fetched_at"])
}

func TestImpressionsNoDataYieldsNoRows(t *testing.T) {
	fetcher := &stubMetricsFetcher{resp: &gbp.MetricsResponse{}}
	source := NewImpressionsSource(fetcher, "daily_impressions", 90, 3)

	rows, err := source.Collect(context.Background(), testLocation())
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestImpressionsFetchErrorPropagates(t *testing.T) {
	fetcher := &stubMetricsFetcher{err: errors.New("quota exceeded")}
	source := NewImpressionsSource(fetcher, "daily_impressions", 90, 3)

	_, err := source.Collect(context.Background(), testLocation())
	require.Error(t, err)
}

func TestImpressionsDateRange(t *testing.T) {
	source := NewImpressionsSource(&stubMetricsFetcher{}, "daily_impressions", 90, 3)
	source.now = func() time.Time {
		return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	}

	start, end := source.DateRange()
	require.Equal(t, "2024-06-12", end.Format("2006-01-02"))
	require.Equal(t, "2024-03-14", start.Format("2006-01-02"))
}

func TestImpressionsTableShape(t *testing.T) {
	source := NewImpressionsSource(&stubMetricsFetcher{}, "daily_impressions", 90, 3)
	table := source.Table()

	require.Equal(t, "daily_impressions", table.Name)
	require.Equal(t, "date", table.PartitionColumn)
	require.Contains(t, table.Columns, "total_impressions")
	require.Contains(t, table.Columns, table.PartitionColumn)
}
