package images

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves the handful of path-style S3 calls the store makes.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if key == "" {
		switch r.Method {
		case http.MethodHead:
			if !f.buckets[bucket] {
				w.WriteHeader(http.StatusNotFound)
				return
			}
		case http.MethodPut:
			f.buckets[bucket] = true
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	name := bucket + "/" + key
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[name] = body
		sum := md5.Sum(body)
		w.Header().Set("ETag", `"`+hex.EncodeToString(sum[:])+`"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		body, ok := f.objects[name]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>`+key+`</Key><BucketName>`+bucket+`</BucketName></Error>`)
			return
		}
		sum := md5.Sum(body)
		w.Header().Set("ETag", `"`+hex.EncodeToString(sum[:])+`"`)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(body)
		}
	case http.MethodDelete:
		delete(f.objects, name)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}}
	srv := httptest.NewTLSServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewS3Store(context.Background(), S3Config{
		Endpoint:  srv.Listener.Addr().String(),
		AccessKey: "test",
		SecretKey: "test-secret",
		Bucket:    "vault-images",
		Region:    "us-east-1",
		UseSSL:    true,
		Transport: srv.Client().Transport,
	})
	require.NoError(t, err)
	return store, fake
}

func TestS3Store_RoundTrip(t *testing.T) {
	store, fake := newFakeS3Store(t)
	ctx := context.Background()
	assert.True(t, fake.buckets["vault-images"], "bucket created on first use")

	ref, err := Accept(ctx, store, "sea.png", bytes.NewReader(pngPayload(48)), 0)
	require.NoError(t, err)
	assert.Equal(t, pngPayload(48), fake.objects["vault-images/"+ref])

	rc, err := store.Open(ctx, ref)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, pngPayload(48), got)

	require.NoError(t, store.Release(ctx, ref))
	assert.NotContains(t, fake.objects, "vault-images/"+ref)

	_, err = store.Open(ctx, ref)
	assert.ErrorIs(t, err, ErrNoSuchImage)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}
