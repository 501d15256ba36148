package meli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const DefaultBaseURL = "https://api.mercadolibre.com"

// Client wraps every marketplace call: it builds absolute URLs, attaches the
// bearer token and, on 401/403, refreshes once and retries the original
// request exactly once. No further retries.
type Client struct {
	baseURL string
	tokens  *TokenStore
	httpc   *http.Client
}

func New(baseURL string, tokens *TokenStore) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpc:   &http.Client{Timeout: 25 * time.Second},
	}
}

func (c *Client) Tokens() *TokenStore { return c.tokens }

// EnsureAccessToken fails fast with ErrCredentialsMissing so the caller can
// show a precise message before attempting calls that would fail confusingly.
func (c *Client) EnsureAccessToken(ctx context.Context) error {
	if c.tokens.currentAccessToken() != "" {
		return nil
	}
	if c.tokens.CanRefresh() && c.tokens.Refresh(ctx) {
		return nil
	}
	return ErrCredentialsMissing
}

func (c *Client) fullURL(pathOrURL string) string {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return pathOrURL
	}
	if !strings.HasPrefix(pathOrURL, "/") {
		pathOrURL = "/" + pathOrURL
	}
	return c.baseURL + pathOrURL
}

type reqOpts struct {
	query    url.Values
	headers  map[string]string
	jsonBody any
}

func (c *Client) do(ctx context.Context, method, path string, opts reqOpts) (*http.Response, error) {
	u := c.fullURL(path)
	if len(opts.query) > 0 {
		u = u + "?" + opts.query.Encode()
	}

	var body []byte
	if opts.jsonBody != nil {
		b, err := json.Marshal(opts.jsonBody)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request body")
		}
		body = b
	}

	send := func(token string) (*http.Response, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rd)
		if err != nil {
			return nil, errors.Wrap(err, "new request")
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range opts.headers {
			req.Header.Set(k, v)
		}
		resp, err := c.httpc.Do(req)
		return resp, errors.Wrap(err, "do request")
	}

	resp, err := send(c.tokens.currentAccessToken())
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Un solo refresh + un solo reintento. Si vuelve a fallar, el
		// status original llega al caller tal cual.
		if c.tokens.Refresh(ctx) {
			_ = resp.Body.Close()
			return send(c.tokens.currentAccessToken())
		}
	}
	return resp, nil
}

// getJSON decodes a 200 answer into out. 404 maps to ErrNotFound, any other
// non-200 to a plain status error.
func (c *Client) getJSON(ctx context.Context, path string, opts reqOpts, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("meli http %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(ErrInvalidResponse, err.Error())
	}
	return nil
}
