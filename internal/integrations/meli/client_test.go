package meli

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestClient wires a client whose token store refreshes against the same
// test server (/oauth/token) the API calls hit.
func newTestClient(t *testing.T, srvURL string, f tokenFile) *Client {
	t.Helper()
	clearMeliEnv(t)
	p := writeTokenFile(t, t.TempDir(), f)
	return New(srvURL, NewTokenStore(srvURL, p))
}

func TestClient_Do_RefreshAndRetryOnce(t *testing.T) {
	var apiCalls, refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"fresh"}`))
	})
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		n := apiCalls.Add(1)
		if n == 1 {
			require.Equal(t, "Bearer stale", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":123}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{
		AppID: "app", ClientSecret: "sec", AccessToken: "stale", RefreshToken: "ref",
	})

	id, err := c.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(123), id)
	require.Equal(t, int32(2), apiCalls.Load())
	require.Equal(t, int32(1), refreshCalls.Load())
}

func TestClient_Do_NoInfiniteRetry(t *testing.T) {
	var apiCalls, refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"fresh"}`))
	})
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, tokenFile{
		AppID: "app", ClientSecret: "sec", AccessToken: "stale", RefreshToken: "ref",
	})

	resp, err := c.do(context.Background(), http.MethodGet, "/users/me", reqOpts{})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(2), apiCalls.Load())
	require.Equal(t, int32(1), refreshCalls.Load())
}

func TestClient_Do_NoRetryWhenRefreshImpossible(t *testing.T) {
	var apiCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	// Sin refresh_token no hay reintento posible.
	c := newTestClient(t, srv.URL, tokenFile{AccessToken: "stale"})

	resp, err := c.do(context.Background(), http.MethodGet, "/users/me", reqOpts{})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, int32(1), apiCalls.Load())
}

func TestClient_FullURL(t *testing.T) {
	c := New("https://api.example.com", NewTokenStore("", filepath.Join(t.TempDir(), "t.json")))
	require.Equal(t, "https://api.example.com/orders/1", c.fullURL("orders/1"))
	require.Equal(t, "https://api.example.com/orders/1", c.fullURL("/orders/1"))
	require.Equal(t, "https://other.host/x", c.fullURL("https://other.host/x"))
}

func TestClient_EnsureAccessToken(t *testing.T) {
	clearMeliEnv(t)
	c := New("", NewTokenStore("", filepath.Join(t.TempDir(), "t.json")))
	err := c.EnsureAccessToken(context.Background())
	require.ErrorIs(t, err, ErrCredentialsMissing)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		require.Contains(t, string(b), "grant_type=refresh_token")
		_, _ = w.Write([]byte(`{"access_token":"minted"}`))
	}))
	defer srv.Close()

	p := writeTokenFile(t, t.TempDir(), tokenFile{AppID: "a", ClientSecret: "s", RefreshToken: "r"})
	c = New(srv.URL, NewTokenStore(srv.URL, p))
	require.NoError(t, c.EnsureAccessToken(context.Background()))
	require.Equal(t, "minted", c.Tokens().AccessToken)
}
