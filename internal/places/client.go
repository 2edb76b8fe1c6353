package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// callTimeout bounds the lightweight detail lookup.
const callTimeout = 10 * time.Second

// Rating is the resolved rating/review pair for a place.
type Rating struct {
	Rating      float64
	ReviewCount int64
}

// Client looks up place ratings through the Places Details API.
// A zero API key disables the client; Lookup then always returns nil.
type Client struct {
	httpClient *http.Client
	base       string
	apiKey     string
	log        *slog.Logger
}

type detailsResponse struct {
	Status string `json:"status"`
	Result struct {
		Name             string  `json:"name"`
		Rating           float64 `json:"rating"`
		UserRatingsTotal int64   `json:"user_ratings_total"`
	} `json:"result"`
}

// New instantiates the Places client.
func New(base, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		httpClient: &http.Client{},
		base:       strings.TrimRight(base, "/"),
		apiKey:     apiKey,
		log:        logger,
	}
}

// Enabled reports whether an API key was configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// Lookup fetches the rating for a place ID. Any failure (disabled client,
// transport error, non-OK Places status) yields nil, never a partial value.
func (c *Client) Lookup(ctx context.Context, placeID string) *Rating {
	if !c.Enabled() {
		c.log.Warn("places api key not configured")
		return nil
	}
	if placeID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", "name,rating,user_ratings_total")
	params.Set("key", c.apiKey)

	endpoint := c.base + "/place/details/json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.log.Error("create places request", slog.Any("err", err))
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("call places api", slog.Any("err", err), slog.String("place_id", placeID))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.log.Error("places api http error",
			slog.Int("status", resp.StatusCode),
			slog.String("body", strings.TrimSpace(string(body))),
		)
		return nil
	}

	var parsed detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.log.Error("decode places response", slog.Any("err", err))
		return nil
	}

	if parsed.Status != "OK" {
		c.log.Warn("places api returned status", slog.String("status", parsed.Status))
		return nil
	}

	return &Rating{
		Rating:      parsed.Result.Rating,
		ReviewCount: parsed.Result.UserRatingsTotal,
	}
}

// String renders a rating for log lines.
func (r *Rating) String() string {
	if r == nil {
		return "none"
	}
	return fmt.Sprintf("%.1f (%d reviews)", r.Rating, r.ReviewCount)
}
