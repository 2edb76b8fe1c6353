package gbp

import "encoding/json"

// Daily metrics requested from the performance API.
const (
	MetricImpressionsDesktopMaps   = "BUSINESS_IMPRESSIONS_DESKTOP_MAPS"
	MetricImpressionsDesktopSearch = "BUSINESS_IMPRESSIONS_DESKTOP_SEARCH"
	MetricImpressionsMobileMaps    = "BUSINESS_IMPRESSIONS_MOBILE_MAPS"
	MetricImpressionsMobileSearch  = "BUSINESS_IMPRESSIONS_MOBILE_SEARCH"
	MetricConversations            = "BUSINESS_CONVERSATIONS"
	MetricDirectionRequests        = "BUSINESS_DIRECTION_REQUESTS"
	MetricCallClicks               = "CALL_CLICKS"
	MetricWebsiteClicks            = "WEBSITE_CLICKS"
	MetricBookings                 = "BUSINESS_BOOKINGS"
	MetricFoodOrders               = "BUSINESS_FOOD_ORDERS"
)

// DailyMetrics is the full metric set fetched for the impressions pipeline.
var DailyMetrics = []string{
	MetricImpressionsDesktopMaps,
	MetricImpressionsDesktopSearch,
	MetricImpressionsMobileMaps,
	MetricImpressionsMobileSearch,
	MetricConversations,
	MetricDirectionRequests,
	MetricCallClicks,
	MetricWebsiteClicks,
	MetricBookings,
	MetricFoodOrders,
}

// Location is one business listing as returned by the information API.
type Location struct {
	Name             string          `json:"name"`
	Title            string          `json:"title"`
	StorefrontAddr   json.RawMessage `json:"storefrontAddress"`
	PhoneNumbers     PhoneNumbers    `json:"phoneNumbers"`
	WebsiteURI       string          `json:"websiteUri"`
	Metadata         Metadata        `json:"metadata"`
}

// PhoneNumbers carries the listing's contact numbers.
type PhoneNumbers struct {
	PrimaryPhone string `json:"primaryPhone"`
}

// Metadata holds the verification and publishing flags of a listing.
type Metadata struct {
	HasVoiceOfMerchant bool   `json:"hasVoiceOfMerchant"`
	MapsURI            string `json:"mapsUri"`
	NewReviewURI       string `json:"newReviewUri"`
	PlaceID            string `json:"placeId"`
	CanDelete          bool   `json:"canDelete"`
}

// Address renders the storefront address as a flat string, or "" when absent.
func (l Location) Address() string {
	if len(l.StorefrontAddr) == 0 || string(l.StorefrontAddr) == "null" {
		return ""
	}
	return string(l.StorefrontAddr)
}

type listLocationsResponse struct {
	Locations     []Location `json:"locations"`
	NextPageToken string     `json:"nextPageToken"`
}

// MetricsResponse is the nested multi-metric time series payload.
type MetricsResponse struct {
	MultiDailyMetricTimeSeries []MultiDailyMetricTimeSeries `json:"multiDailyMetricTimeSeries"`
}

// MultiDailyMetricTimeSeries groups per-metric series.
type MultiDailyMetricTimeSeries struct {
	DailyMetricTimeSeries []DailyMetricTimeSeries `json:"dailyMetricTimeSeries"`
}

// DailyMetricTimeSeries is one metric's dated values.
type DailyMetricTimeSeries struct {
	DailyMetric string     `json:"dailyMetric"`
	TimeSeries  TimeSeries `json:"timeSeries"`
}

// TimeSeries wraps the dated value list.
type TimeSeries struct {
	DatedValues []DatedValue `json:"datedValues"`
}

// DatedValue is one (date, value) sample. The API serialises values as
// strings; Value stays raw so a malformed sample degrades to zero.
type DatedValue struct {
	Date  Date        `json:"date"`
	Value json.Number `json:"value"`
}

// Date is the API's split calendar date.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// KeywordCount is one search keyword with its monthly impression count.
// SearchKeyword is raw because the API has shipped it both as a plain string
// and wrapped in an object with a "string" field.
type KeywordCount struct {
	SearchKeyword json.RawMessage `json:"searchKeyword"`
	InsightsValue InsightsValue   `json:"insightsValue"`
}

// InsightsValue carries either an exact value or a privacy threshold.
type InsightsValue struct {
	Value     json.Number `json:"value"`
	Threshold json.Number `json:"threshold"`
}

type searchKeywordsResponse struct {
	SearchKeywordsCounts []KeywordCount `json:"searchKeywordsCounts"`
	NextPageToken        string         `json:"nextPageToken"`
}
