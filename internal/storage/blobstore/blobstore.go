// Package blobstore sube y sirve etiquetas PDF desde un bucket de
// Supabase Storage. El cliente solo usa la API REST de objetos; las
// etiquetas quedan publicas para que la impresora las pueda bajar.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Store struct {
	baseURL    string
	bucket     string
	serviceKey string
	httpc      *http.Client
}

func New(baseURL, bucket, serviceKey string) *Store {
	return &Store{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bucket:     bucket,
		serviceKey: serviceKey,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Upload writes the object under key, overwriting any previous version,
// and returns its public URL.
func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	u := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "upload object")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("storage upload http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return s.PublicURL(key), nil
}

func (s *Store) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}

// Available reports whether the object can actually be served right now.
// A stored URL in the database is not proof: the bucket may have been
// purged since the label was printed.
func (s *Store) Available(ctx context.Context, publicURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, publicURL, nil)
	if err != nil {
		return false
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

// Fetch downloads a stored label and verifies it still looks like a PDF.
func (s *Store) Fetch(ctx context.Context, publicURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, publicURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch object")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("storage fetch http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read object")
	}
	if !isPDF(data) {
		return nil, errors.New("stored object is not a pdf")
	}
	return data, nil
}

func isPDF(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == "%PDF"
}
