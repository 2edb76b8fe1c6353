package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/localsignal/gbp-collector/internal/gbp"
	"github.com/localsignal/gbp-collector/internal/warehouse"
)

// dateOnly is the partition value layout shared by all pipelines.
const dateOnly = "2006-01-02"

// missing is the sentinel for string fields without a source value.
const missing = "N/A"

// MetricsFetcher is the slice of the API client the impressions source needs.
type MetricsFetcher interface {
	FetchDailyMetrics(ctx context.Context, locationName string, start, end time.Time) (*gbp.MetricsResponse, error)
}

// ImpressionsSource collects daily performance metrics and flattens the
// nested per-metric time series into one row per (location, date).
type ImpressionsSource struct {
	fetcher      MetricsFetcher
	table        string
	lookbackDays int
	delayDays    int
	now          func() time.Time
}

// NewImpressionsSource builds the daily impressions pipeline source. The
// window covers lookbackDays and ends delayDays ago, absorbing the API's
// reporting delay.
func NewImpressionsSource(fetcher MetricsFetcher, table string, lookbackDays, delayDays int) *ImpressionsSource {
	return &ImpressionsSource{
		fetcher:      fetcher,
		table:        table,
		lookbackDays: lookbackDays,
		delayDays:    delayDays,
		now:          time.Now,
	}
}

func (s *ImpressionsSource) Name() string { return "impressions" }

func (s *ImpressionsSource) ReadMask() string {
	return "name,title,storefrontAddress,phoneNumbers,websiteUri,regularHours,metadata,profile"
}

func (s *ImpressionsSource) Table() warehouse.Table {
	return warehouse.Table{
		Name:            s.table,
		PartitionColumn: "date",
		Columns: []string{
			"date", "day_of_week", "week_number", "month", "month_name", "year",
			"location_name", "title", "phone", "website", "address", "maps_url",
			"impressions_desktop_maps", "impressions_desktop_search",
			"impressions_mobile_maps", "impressions_mobile_search",
			"conversations", "direction_requests", "call_clicks", "website_clicks",
			"bookings", "food_orders",
			"total_impressions", "total_actions",
			"data_fetched_at",
		},
	}
}

// DateRange resolves the collection window.
func (s *ImpressionsSource) DateRange() (time.Time, time.Time) {
	end := s.now().AddDate(0, 0, -s.delayDays)
	start := end.AddDate(0, 0, -s.lookbackDays)
	return start, end
}

// Collect fetches one location's metrics and normalizes them. Every tracked
// metric resolves to a value on every row; a date/metric combination the API
// never reported is 0, and an unparsable value degrades to 0.
func (s *ImpressionsSource) Collect(ctx context.Context, loc gbp.Location) ([]warehouse.Row, error) {
	start, end := s.DateRange()

	resp, err := s.fetcher.FetchDailyMetrics(ctx, loc.Name, start, end)
	if err != nil {
		return nil, err
	}

	daily := flattenDailyMetrics(resp)
	if len(daily) == 0 {
		return nil, nil
	}

	dates := make([]time.Time, 0, len(daily))
	for d := range daily {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	fetchedAt := time.Now().UTC()
	rows := make([]warehouse.Row, 0, len(dates))

	for _, day := range dates {
		metrics := daily[day]
		metric := func(name string) int64 { return metrics[name] }

		_, isoWeek := day.ISOWeek()

		rows = append(rows, warehouse.Row{
			"date":        day.Format(dateOnly),
			"day_of_week": day.Weekday().String(),
			"week_number": isoWeek,
			"month":       int(day.Month()),
			"month_name":  day.Month().String(),
			"year":        day.Year(),

			"location_name": loc.Name,
			"title":         orMissing(loc.Title),
			"phone":         orMissing(loc.PhoneNumbers.PrimaryPhone),
			"website":       orMissing(loc.WebsiteURI),
			"address":       loc.Address(),
			"maps_url":      orMissing(loc.Metadata.MapsURI),

			"impressions_desktop_maps":   metric(gbp.MetricImpressionsDesktopMaps),
			"impressions_desktop_search": metric(gbp.MetricImpressionsDesktopSearch),
			"impressions_mobile_maps":    metric(gbp.MetricImpressionsMobileMaps),
			"impressions_mobile_search":  metric(gbp.MetricImpressionsMobileSearch),

			"conversations":      metric(gbp.MetricConversations),
			"direction_requests": metric(gbp.MetricDirectionRequests),
			"call_clicks":        metric(gbp.MetricCallClicks),
			"website_clicks":     metric(gbp.MetricWebsiteClicks),
			"bookings":           metric(gbp.MetricBookings),
			"food_orders":        metric(gbp.MetricFoodOrders),

			"total_impressions": metric(gbp.MetricImpressionsDesktopMaps) +
				metric(gbp.MetricImpressionsDesktopSearch) +
				metric(gbp.MetricImpressionsMobileMaps) +
				metric(gbp.MetricImpressionsMobileSearch),
			"total_actions": metric(gbp.MetricWebsiteClicks) +
				metric(gbp.MetricCallClicks) +
				metric(gbp.MetricDirectionRequests) +
				metric(gbp.MetricConversations),

			"data_fetched_at": fetchedAt,
		})
	}

	return rows, nil
}

// Enrich records the resolved collection window.
func (s *ImpressionsSource) Enrich(details map[string]any, rows []warehouse.Row) {
	start, end := s.DateRange()
	details["date_range"] = map[string]string{
		"start": start.Format(dateOnly),
		"end":   end.Format(dateOnly),
	}
}

// flattenDailyMetrics indexes the nested time series by date then metric.
func flattenDailyMetrics(resp *gbp.MetricsResponse) map[time.Time]map[string]int64 {
	if resp == nil {
		return nil
	}

	daily := make(map[time.Time]map[string]int64)
	for _, multi := range resp.MultiDailyMetricTimeSeries {
		for _, series := range multi.DailyMetricTimeSeries {
			for _, dv := range series.TimeSeries.DatedValues {
				day := time.Date(dv.Date.Year, time.Month(dv.Date.Month), dv.Date.Day, 0, 0, 0, 0, time.UTC)
				if daily[day] == nil {
					daily[day] = make(map[string]int64)
				}

				value, err := dv.Value.Int64()
				if err != nil {
					value = 0
				}
				daily[day][series.DailyMetric] = value
			}
		}
	}
	return daily
}

func orMissing(s string) string {
	if s == "" {
		return missing
	}
	return s
}
