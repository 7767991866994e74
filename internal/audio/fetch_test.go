package audio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayahplayer/ayah/internal/cache"
)

func TestHTTPFetcherFromNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp3" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ID3clip"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), nil)

	data, err := f.Fetch(context.Background(), srv.URL+"/001001.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3clip"), data)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.mp3")
	assert.Error(t, err)
}

func TestHTTPFetcherFromStore(t *testing.T) {
	cfg := cache.DefaultConfig("")
	cfg.InMemory = true
	cfg.GCInterval = 0
	store, err := cache.Open(cfg)
	require.NoError(t, err)
	defer store.Close()

	key := "clip:alafasy:128:001:001"
	require.NoError(t, store.Put(key, []byte("stored clip")))

	f := NewHTTPFetcher(nil, store)
	data, err := f.Fetch(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte("stored clip"), data)

	_, err = f.Fetch(context.Background(), "clip:alafasy:128:001:002")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	_, err = NewHTTPFetcher(nil, nil).Fetch(context.Background(), key)
	assert.Error(t, err)
}
