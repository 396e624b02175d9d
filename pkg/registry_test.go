package pkg

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pypiFixture = `{
  "info": {
    "name": "requests",
    "version": "2.31.0",
    "license": "Apache-2.0",
    "summary": "Python HTTP for Humans.",
    "classifiers": ["Operating System :: OS Independent"],
    "requires_dist": ["urllib3 (<3,>=1.21.1)", "certifi (>=2017.4.17)"]
  },
  "releases": {
    "2.31.0": [
      {
        "filename": "requests-2.31.0-py3-none-any.whl",
        "packagetype": "bdist_wheel",
        "size": 62574,
        "upload_time_iso_8601": "2023-05-22T15:12:42Z",
        "yanked": false
      }
    ],
    "2.30.0": [
      {
        "filename": "requests-2.30.0-py3-none-any.whl",
        "packagetype": "bdist_wheel",
        "size": 62500,
        "upload_time_iso_8601": "2023-05-03T00:00:00Z",
        "yanked": true,
        "yanked_reason": "broken urllib3 pin"
      }
    ],
    "0.0.1": []
  }
}`

func TestPyPIFetchMetadata(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/requests/json", r.URL.Path)
		fmt.Fprint(w, pypiFixture)
	}))
	defer server.Close()

	registry := NewPyPIRegistry(
		WithBaseURL(server.URL),
		WithCacheFs(afero.NewMemMapFs()),
		WithRetry(0),
	)

	// The lookup key is the normalized name.
	meta, err := registry.FetchMetadata(context.Background(), "Requests")
	require.NoError(t, err)

	assert.Equal(t, "requests", meta.Name)
	assert.Equal(t, "Apache-2.0", meta.License)
	assert.Equal(t, "Python HTTP for Humans.", meta.Description)
	assert.Len(t, meta.Requires, 2)
	require.Len(t, meta.Releases, 3)

	byVersion := map[string]Release{}
	for _, rel := range meta.Releases {
		byVersion[rel.Version] = rel
	}
	assert.False(t, byVersion["2.31.0"].Yanked)
	assert.Equal(t, int64(62574), byVersion["2.31.0"].Artifacts[0].SizeBytes)
	assert.True(t, byVersion["2.30.0"].Yanked)
	assert.Equal(t, "broken urllib3 pin", byVersion["2.30.0"].YankedReason)
	// A release with no files is unusable.
	assert.True(t, byVersion["0.0.1"].Yanked)

	// Second fetch must come from the cache.
	_, err = registry.FetchMetadata(context.Background(), "requests")
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
}

func TestPyPIFetchMetadataNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	registry := NewPyPIRegistry(
		WithBaseURL(server.URL),
		WithCacheFs(afero.NewMemMapFs()),
		WithRetry(0),
	)

	_, err := registry.FetchMetadata(context.Background(), "no-such-package")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPackageNotFound)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "no-such-package", notFound.Name)
}

func TestPyPIFetchMetadataServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	registry := NewPyPIRegistry(
		WithBaseURL(server.URL),
		WithCacheFs(afero.NewMemMapFs()),
		WithRetry(0),
	)

	_, err := registry.FetchMetadata(context.Background(), "requests")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPackageNotFound)
}

func TestPyPIFetchMetadataRetriesServerErrors(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, pypiFixture)
	}))
	defer server.Close()

	registry := NewPyPIRegistry(
		WithBaseURL(server.URL),
		WithCacheFs(afero.NewMemMapFs()),
		WithRetry(1),
	)

	meta, err := registry.FetchMetadata(context.Background(), "requests")
	require.NoError(t, err)
	assert.Equal(t, "requests", meta.Name)
	assert.Equal(t, 2, requests)
}

func TestMetadataCacheExpiry(t *testing.T) {
	fs := afero.NewMemMapFs()
	cache := metadataCache{fs: fs, dir: "cache", ttl: time.Hour}
	ctx := context.Background()

	meta := &PackageMetadata{Name: "requests", License: "Apache-2.0"}
	cache.write(ctx, "requests", meta)

	got, ok := cache.read(ctx, "requests")
	require.True(t, ok)
	assert.Equal(t, meta.License, got.License)

	// An expired entry is a miss.
	expired := metadataCache{fs: fs, dir: "cache", ttl: -time.Second}
	_, ok = expired.read(ctx, "requests")
	assert.False(t, ok)

	_, ok = cache.read(ctx, "never-cached")
	assert.False(t, ok)
}

func TestMetadataCacheMavenCoordinates(t *testing.T) {
	fs := afero.NewMemMapFs()
	cache := metadataCache{fs: fs, dir: "cache", ttl: time.Hour}
	ctx := context.Background()

	meta := &PackageMetadata{Name: "io.netty:netty-handler"}
	cache.write(ctx, "io.netty:netty-handler", meta)

	got, ok := cache.read(ctx, "io.netty:netty-handler")
	require.True(t, ok)
	assert.Equal(t, meta.Name, got.Name)

	// The colon never reaches the filesystem.
	exists, err := afero.Exists(fs, "cache/io.netty__netty-handler.json")
	require.NoError(t, err)
	assert.True(t, exists)
}
