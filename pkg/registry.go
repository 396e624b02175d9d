package pkg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/afero"
)

// Registry fetches package metadata from a package index.
type Registry interface {
	FetchMetadata(ctx context.Context, name string) (*PackageMetadata, error)
}

const (
	defaultPyPIURL   = "https://pypi.org/pypi"
	defaultRetry     = 2
	defaultCacheTTL  = 15 * time.Minute
	defaultCacheRoot = "depgate/registry"
)

type registryOptions struct {
	url      string
	client   *http.Client
	fs       afero.Fs
	cacheDir string
	cacheTTL time.Duration
	retry    int
}

// RegistryOption configures a registry client.
type RegistryOption func(*registryOptions)

// WithBaseURL overrides the registry endpoint, mainly for tests.
func WithBaseURL(url string) RegistryOption {
	return func(o *registryOptions) { o.url = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient overrides the HTTP client used for registry requests.
func WithHTTPClient(client *http.Client) RegistryOption {
	return func(o *registryOptions) { o.client = client }
}

// WithCacheFs sets the filesystem backing the metadata cache.
func WithCacheFs(fs afero.Fs) RegistryOption {
	return func(o *registryOptions) { o.fs = fs }
}

// WithCacheDir sets the directory holding cached metadata documents.
func WithCacheDir(dir string) RegistryOption {
	return func(o *registryOptions) { o.cacheDir = dir }
}

// WithCacheTTL sets how long a cached metadata document stays fresh.
func WithCacheTTL(ttl time.Duration) RegistryOption {
	return func(o *registryOptions) { o.cacheTTL = ttl }
}

// WithRetry sets how many times a failed fetch is retried.
func WithRetry(retry int) RegistryOption {
	return func(o *registryOptions) { o.retry = retry }
}

// PyPIRegistry fetches package metadata from the PyPI JSON API.
type PyPIRegistry struct {
	opts  registryOptions
	cache metadataCache
}

// NewPyPIRegistry creates a PyPI registry client with a filesystem-backed
// metadata cache.
func NewPyPIRegistry(opts ...RegistryOption) *PyPIRegistry {
	o := registryOptions{
		url:      defaultPyPIURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		fs:       afero.NewOsFs(),
		cacheDir: defaultCacheRoot,
		cacheTTL: defaultCacheTTL,
		retry:    defaultRetry,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &PyPIRegistry{
		opts:  o,
		cache: metadataCache{fs: o.fs, dir: o.cacheDir, ttl: o.cacheTTL},
	}
}

// pypiResponse mirrors the PyPI JSON API document for a package.
type pypiResponse struct {
	Info struct {
		Name         string   `json:"name"`
		Version      string   `json:"version"`
		License      string   `json:"license"`
		Summary      string   `json:"summary"`
		Description  string   `json:"description"`
		Classifiers  []string `json:"classifiers"`
		RequiresDist []string `json:"requires_dist"`
	} `json:"info"`
	Releases map[string][]pypiReleaseFile `json:"releases"`
}

type pypiReleaseFile struct {
	Filename     string    `json:"filename"`
	PackageType  string    `json:"packagetype"`
	Size         int64     `json:"size"`
	UploadTime   time.Time `json:"upload_time_iso_8601"`
	Yanked       bool      `json:"yanked"`
	YankedReason string    `json:"yanked_reason"`
}

// FetchMetadata implements Registry against the PyPI JSON API. It fails with
// a NotFoundError when the package does not exist upstream.
func (r *PyPIRegistry) FetchMetadata(ctx context.Context, name string) (*PackageMetadata, error) {
	log := clog.FromContext(ctx)
	name = NormalizeName(name)

	if meta, ok := r.cache.read(ctx, name); ok {
		log.Debugf("registry cache hit for %s", name)
		return meta, nil
	}

	url := fmt.Sprintf("%s/%s/json", r.opts.url, name)
	body, status, err := fetchWithRetry(ctx, r.opts.client, url, r.opts.retry)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if status == http.StatusNotFound {
		return nil, &NotFoundError{Name: name}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d for %s", status, name)
	}

	var doc pypiResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode registry response for %s: %w", name, err)
	}

	meta := &PackageMetadata{
		Name:        NormalizeName(doc.Info.Name),
		License:     doc.Info.License,
		Description: firstNonEmpty(doc.Info.Summary, doc.Info.Description),
		Classifiers: doc.Info.Classifiers,
		Requires:    doc.Info.RequiresDist,
	}
	for version, files := range doc.Releases {
		rel := Release{Version: version}
		yankedFiles := 0
		for _, f := range files {
			rel.Artifacts = append(rel.Artifacts, ReleaseArtifact{
				Filename:  f.Filename,
				Kind:      f.PackageType,
				SizeBytes: f.Size,
			})
			if rel.ReleaseDate.IsZero() || (!f.UploadTime.IsZero() && f.UploadTime.Before(rel.ReleaseDate)) {
				rel.ReleaseDate = f.UploadTime
			}
			if f.Yanked {
				yankedFiles++
				if rel.YankedReason == "" {
					rel.YankedReason = f.YankedReason
				}
			}
		}
		// A release whose files are all yanked (or that has none) is unusable.
		rel.Yanked = len(files) == 0 || yankedFiles == len(files)
		meta.Releases = append(meta.Releases, rel)
	}

	r.cache.write(ctx, name, meta)
	return meta, nil
}

// fetchWithRetry performs a GET with squared backoff between attempts.
// A 404 is a definitive answer and is never retried.
func fetchWithRetry(ctx context.Context, client *http.Client, url string, retry int) ([]byte, int, error) {
	log := clog.FromContext(ctx)
	var lastErr error
	for i := 0; i <= retry; i++ {
		if i > 0 {
			wait := time.Duration(math.Pow(float64(i), 2)) * time.Second
			log.Debugf("retrying %s after %s", url, wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}
		body, status, err := fetchOnce(ctx, client, url)
		if err == nil && status < http.StatusInternalServerError {
			return body, status, nil
		}
		if err == nil {
			err = fmt.Errorf("server returned status %d", status)
		}
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		lastErr = err
	}
	return nil, 0, fmt.Errorf("failed after %d attempts: %w", retry+1, lastErr)
}

func fetchOnce(ctx context.Context, client *http.Client, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
