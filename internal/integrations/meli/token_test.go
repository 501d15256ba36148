package meli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTokenFile(t *testing.T, dir string, f tokenFile) string {
	t.Helper()
	p := filepath.Join(dir, "meli_tokens.json")
	b, err := json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, b, 0o600))
	return p
}

func clearMeliEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"MELI_APP_ID", "MELI_CLIENT_SECRET", "MELI_ACCESS_TOKEN", "MELI_REFRESH_TOKEN"} {
		t.Setenv(k, "")
	}
}

func TestTokenStore_Load_EnvWinsPerField(t *testing.T) {
	clearMeliEnv(t)
	p := writeTokenFile(t, t.TempDir(), tokenFile{
		AppID:        "file-app",
		ClientSecret: "file-secret",
		AccessToken:  "file-access",
		RefreshToken: "file-refresh",
	})
	t.Setenv("MELI_ACCESS_TOKEN", "env-access")

	ts := NewTokenStore("", p)
	require.Equal(t, "file-app", ts.AppID)
	require.Equal(t, "env-access", ts.AccessToken)
	require.Equal(t, "file-refresh", ts.RefreshToken)
}

func TestTokenStore_Refresh_KeepsRefreshTokenWhenNotReturned(t *testing.T) {
	clearMeliEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		require.Equal(t, "app", r.Form.Get("client_id"))
		require.Equal(t, "old-refresh", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","expires_in":21600}`))
	}))
	defer srv.Close()

	p := writeTokenFile(t, t.TempDir(), tokenFile{
		AppID:        "app",
		ClientSecret: "sec",
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
	})
	ts := NewTokenStore(srv.URL, p)

	require.True(t, ts.Refresh(context.Background()))
	require.Equal(t, "new-access", ts.AccessToken)
	require.Equal(t, "old-refresh", ts.RefreshToken)
}

func TestTokenStore_Refresh_RotatesAndPersists(t *testing.T) {
	clearMeliEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh"}`))
	}))
	defer srv.Close()

	p := writeTokenFile(t, t.TempDir(), tokenFile{
		AppID:        "app",
		ClientSecret: "sec",
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
	})
	ts := NewTokenStore(srv.URL, p)

	require.True(t, ts.Refresh(context.Background()))
	require.Equal(t, "new-access", ts.AccessToken)
	require.Equal(t, "new-refresh", ts.RefreshToken)

	// La persistencia permite que la próxima ejecución arranque sin re-autorizar.
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	var f tokenFile
	require.NoError(t, json.Unmarshal(data, &f))
	require.Equal(t, "new-access", f.AccessToken)
	require.Equal(t, "new-refresh", f.RefreshToken)
}

func TestTokenStore_Refresh_FailureIsFalseNotError(t *testing.T) {
	clearMeliEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := writeTokenFile(t, t.TempDir(), tokenFile{
		AppID: "app", ClientSecret: "sec", AccessToken: "a", RefreshToken: "r",
	})
	ts := NewTokenStore(srv.URL, p)

	require.False(t, ts.Refresh(context.Background()))
	require.Equal(t, "a", ts.AccessToken)
}

func TestTokenStore_ExchangeCodeAndClear(t *testing.T) {
	clearMeliEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		require.Equal(t, "TG-123", r.Form.Get("code"))
		require.Equal(t, "https://app/callback", r.Form.Get("redirect_uri"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"first-access","refresh_token":"first-refresh"}`))
	}))
	defer srv.Close()

	p := writeTokenFile(t, t.TempDir(), tokenFile{AppID: "app", ClientSecret: "sec"})
	ts := NewTokenStore(srv.URL, p)

	require.NoError(t, ts.ExchangeCode(context.Background(), "TG-123", "https://app/callback"))
	require.Equal(t, "first-access", ts.AccessToken)
	require.Equal(t, "first-refresh", ts.RefreshToken)

	ts.Clear()
	require.Empty(t, ts.AccessToken)
	require.Empty(t, ts.RefreshToken)

	// Las credenciales de la app sobreviven al limpiar la sesion.
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	var f tokenFile
	require.NoError(t, json.Unmarshal(data, &f))
	require.Equal(t, "app", f.AppID)
	require.Empty(t, f.AccessToken)
}

func TestTokenStore_ExchangeCode_NoAppCredentials(t *testing.T) {
	clearMeliEnv(t)
	ts := NewTokenStore("", filepath.Join(t.TempDir(), "missing.json"))
	err := ts.ExchangeCode(context.Background(), "TG-123", "")
	require.ErrorIs(t, err, ErrCredentialsMissing)
}

func TestTokenStore_CanRefresh(t *testing.T) {
	clearMeliEnv(t)
	dir := t.TempDir()

	ts := NewTokenStore("", filepath.Join(dir, "missing.json"))
	require.False(t, ts.CanRefresh())

	p := writeTokenFile(t, dir, tokenFile{AppID: "a", ClientSecret: "s", RefreshToken: "r"})
	ts = NewTokenStore("", p)
	require.True(t, ts.CanRefresh())
}
