package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/localsignal/gbp-collector/internal/auth"
)

func TestRefreshTokenSourceCachesToken(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "client-id", r.PostForm.Get("client_id"))
		require.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		require.Equal(t, "refresh-me", r.PostForm.Get("refresh_token"))

		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh-token",
			"expires_in":   3600,
			"token_type":   "Bearer",
		})
	}))
	defer srv.Close()

	source := auth.NewRefreshTokenSource("client-id", "client-secret", "refresh-me", auth.WithTokenURL(srv.URL))

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh-token", token)

	token, err = source.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh-token", token)

	require.Equal(t, 1, requests)
}

func TestRefreshTokenSourceRefreshesExpired(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		// expires_in of 1s is inside the expiry slack, so the token is
		// already stale on the next call.
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "short-lived",
			"expires_in":   1,
		})
	}))
	defer srv.Close()

	source := auth.NewRefreshTokenSource("id", "secret", "refresh", auth.WithTokenURL(srv.URL))

	_, err := source.Token(context.Background())
	require.NoError(t, err)
	_, err = source.Token(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, requests)
}

func TestRefreshTokenSourceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	source := auth.NewRefreshTokenSource("id", "secret", "revoked", auth.WithTokenURL(srv.URL))

	_, err := source.Token(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 400")
}

func TestStaticToken(t *testing.T) {
	token, err := auth.Static("fixed").Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fixed", token)

	_, err = auth.Static("").Token(context.Background())
	require.Error(t, err)
}
