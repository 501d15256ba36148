package meli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// TokenStore holds the OAuth credentials for the marketplace API.
// Fields are filled per-source: environment first, then the local token file
// for whatever the environment left empty. Refresh persists back to the file
// so the next run does not need re-authorization.
type TokenStore struct {
	mu   sync.Mutex
	path string

	AppID        string
	ClientSecret string
	AccessToken  string
	RefreshToken string

	baseURL string
	httpc   *http.Client
}

type tokenFile struct {
	AppID        string `json:"app_id"`
	ClientSecret string `json:"client_secret"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func NewTokenStore(baseURL, path string) *TokenStore {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if path == "" {
		path = "meli_tokens.json"
	}
	ts := &TokenStore{
		path:    path,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 25 * time.Second},
	}
	ts.Load()
	return ts
}

// Load re-reads credentials: env vars win per field, the token file fills
// the rest. Missing file is not an error.
func (t *TokenStore) Load() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.AppID = os.Getenv("MELI_APP_ID")
	t.ClientSecret = os.Getenv("MELI_CLIENT_SECRET")
	t.AccessToken = os.Getenv("MELI_ACCESS_TOKEN")
	t.RefreshToken = os.Getenv("MELI_REFRESH_TOKEN")

	if t.AppID != "" && t.ClientSecret != "" && t.AccessToken != "" && t.RefreshToken != "" {
		return
	}

	data, err := os.ReadFile(t.path)
	if err != nil {
		return
	}
	var f tokenFile
	if json.Unmarshal(data, &f) != nil {
		return
	}
	if t.AppID == "" {
		t.AppID = f.AppID
	}
	if t.ClientSecret == "" {
		t.ClientSecret = f.ClientSecret
	}
	if t.AccessToken == "" {
		t.AccessToken = f.AccessToken
	}
	if t.RefreshToken == "" {
		t.RefreshToken = f.RefreshToken
	}
}

func (t *TokenStore) CanRefresh() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.AppID != "" && t.ClientSecret != "" && t.RefreshToken != ""
}

// Refresh exchanges the refresh token for a new access token and persists
// the result. Failures are reported as false, never as an error: the caller
// decides whether a stale token is fatal.
func (t *TokenStore) Refresh(ctx context.Context) bool {
	if !t.CanRefresh() {
		return false
	}

	t.mu.Lock()
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {t.AppID},
		"client_secret": {t.ClientSecret},
		"refresh_token": {t.RefreshToken},
	}
	t.mu.Unlock()

	payload, ok := t.postToken(ctx, form)
	if !ok {
		return false
	}

	t.mu.Lock()
	if payload.AccessToken != "" {
		t.AccessToken = payload.AccessToken
	}
	// El server puede rotar el refresh_token; si no viene, se conserva el actual.
	if payload.RefreshToken != "" {
		t.RefreshToken = payload.RefreshToken
	}
	t.saveLocked()
	t.mu.Unlock()
	return true
}

// ExchangeCode runs the authorization_code grant (first-time setup).
func (t *TokenStore) ExchangeCode(ctx context.Context, code, redirectURI string) error {
	t.mu.Lock()
	if t.AppID == "" || t.ClientSecret == "" {
		t.mu.Unlock()
		return ErrCredentialsMissing
	}
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {t.AppID},
		"client_secret": {t.ClientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
	}
	t.mu.Unlock()

	payload, ok := t.postToken(ctx, form)
	if !ok {
		return errors.New("meli: authorization code exchange failed")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.AccessToken = payload.AccessToken
	if payload.RefreshToken != "" {
		t.RefreshToken = payload.RefreshToken
	}
	return errors.Wrap(t.saveLocked(), "persist tokens")
}

// Clear drops the session tokens (manual "limpiar token" action). The app
// credentials stay so a new authorization can run.
func (t *TokenStore) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.AccessToken = ""
	t.RefreshToken = ""
	_ = t.saveLocked()
}

func (t *TokenStore) postToken(ctx context.Context, form url.Values) (tokenResponse, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, false
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return tokenResponse{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tokenResponse{}, false
	}
	var payload tokenResponse
	if json.NewDecoder(resp.Body).Decode(&payload) != nil {
		return tokenResponse{}, false
	}
	return payload, true
}

func (t *TokenStore) saveLocked() error {
	data, err := json.MarshalIndent(tokenFile{
		AppID:        t.AppID,
		ClientSecret: t.ClientSecret,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal token file")
	}
	return errors.Wrap(os.WriteFile(t.path, data, 0o600), "write token file")
}

func (t *TokenStore) currentAccessToken() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.AccessToken
}
