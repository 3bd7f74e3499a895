// Package blob provides photo uploads to an HTTP object-storage bucket.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Config holds blob storage configuration. With Enabled false the uploader
// is constructed but rejects every upload, so callers keep their inline
// payloads.
type Config struct {
	Enabled   bool
	Endpoint  string // storage API base, e.g. https://xyz.supabase.co/storage/v1
	Bucket    string
	APIKey    string
	PublicURL string // base for public object URLs; defaults to endpoint-derived
	Timeout   time.Duration
}

// ErrDisabled is returned when uploads are attempted with storage disabled.
var ErrDisabled = errors.New("blob storage disabled")

// Uploader stores photo payloads in an object bucket and returns their
// public URLs. Failures are expected to be recoverable: callers fall back
// to the inline payload.
type Uploader struct {
	config Config
	http   *http.Client
}

// NewUploader creates a blob uploader.
// Returns error if enabled but required config is missing.
func NewUploader(config Config) (*Uploader, error) {
	if config.Enabled {
		if config.Endpoint == "" {
			return nil, errors.New("blob storage: endpoint is required when enabled")
		}
		if config.Bucket == "" {
			return nil, errors.New("blob storage: bucket is required when enabled")
		}
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	slog.Info("blob storage configured",
		"enabled", config.Enabled,
		"bucket", config.Bucket,
	)

	return &Uploader{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
	}, nil
}

// Upload stores the object under the given key and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if !u.config.Enabled {
		return "", ErrDisabled
	}

	uploadURL := fmt.Sprintf("%s/object/%s/%s", u.config.Endpoint, u.config.Bucket, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if u.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.config.APIKey)
	}

	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload object: status %d: %s", resp.StatusCode, body)
	}

	return u.PublicURL(key), nil
}

// PublicURL returns the public URL for an object key.
func (u *Uploader) PublicURL(key string) string {
	base := u.config.PublicURL
	if base == "" {
		base = fmt.Sprintf("%s/object/public/%s", u.config.Endpoint, u.config.Bucket)
	}
	return base + "/" + key
}
