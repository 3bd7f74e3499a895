package blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUploader_RequiresConfigWhenEnabled(t *testing.T) {
	_, err := NewUploader(Config{Enabled: true})
	assert.Error(t, err)

	_, err = NewUploader(Config{Enabled: true, Endpoint: "https://store.example.com"})
	assert.Error(t, err)

	_, err = NewUploader(Config{Enabled: false})
	assert.NoError(t, err)
}

func TestUpload_Disabled(t *testing.T) {
	uploader, err := NewUploader(Config{})
	require.NoError(t, err)

	_, err = uploader.Upload(context.Background(), "k.jpg", []byte("x"), "image/jpeg")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestUpload_StoresObjectAndReturnsPublicURL(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	uploader, err := NewUploader(Config{
		Enabled:  true,
		Endpoint: server.URL,
		Bucket:   "photos",
		APIKey:   "secret",
	})
	require.NoError(t, err)

	url, err := uploader.Upload(context.Background(), "user-1-123.jpg", []byte("img"), "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, "/object/photos/user-1-123.jpg", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "image/jpeg", gotContentType)
	assert.Equal(t, []byte("img"), gotBody)
	assert.Equal(t, server.URL+"/object/public/photos/user-1-123.jpg", url)
}

func TestUpload_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	uploader, err := NewUploader(Config{Enabled: true, Endpoint: server.URL, Bucket: "photos"})
	require.NoError(t, err)

	_, err = uploader.Upload(context.Background(), "k.jpg", []byte("x"), "image/jpeg")
	assert.Error(t, err)
}
