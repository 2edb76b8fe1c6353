package places_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/localsignal/gbp-collector/internal/places"
)

func TestLookupResolvesRating(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/place/details/json", r.URL.Path)
		require.Equal(t, "place-1", r.URL.Query().Get("place_id"))
		require.Equal(t, "secret-key", r.URL.Query().Get("key"))
		require.Equal(t, "name,rating,user_ratings_total", r.URL.Query().Get("fields"))

		json.NewEncoder(w).Encode(map[string]any{
			"status": "OK",
			"result": map[string]any{
				"name":               "Corner Bakery",
				"rating":             4.5,
				"user_ratings_total": 120,
			},
		})
	}))
	defer srv.Close()

	client := places.New(srv.URL, "secret-key", nil)
	rating := client.Lookup(context.Background(), "place-1")

	require.NotNil(t, rating)
	require.Equal(t, 4.5, rating.Rating)
	require.EqualValues(t, 120, rating.ReviewCount)
}

func TestLookupNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "NOT_FOUND"})
	}))
	defer srv.Close()

	client := places.New(srv.URL, "secret-key", nil)
	require.Nil(t, client.Lookup(context.Background(), "gone"))
}

func TestLookupHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	client := places.New(srv.URL, "secret-key", nil)
	require.Nil(t, client.Lookup(context.Background(), "place-1"))
}

func TestLookupDisabledWithoutKey(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := places.New(srv.URL, "", nil)
	require.False(t, client.Enabled())
	require.Nil(t, client.Lookup(context.Background(), "place-1"))
	require.False(t, called)
}

func TestLookupEmptyPlaceID(t *testing.T) {
	client := places.New("http://unused", "secret-key", nil)
	require.Nil(t, client.Lookup(context.Background(), ""))
}

func TestRatingString(t *testing.T) {
	var missing *places.Rating
	require.Equal(t, "none", missing.String())
	require.Equal(t, "4.5 (120 reviews)", (&places.Rating{Rating: 4.5, ReviewCount: 120}).String())
}
