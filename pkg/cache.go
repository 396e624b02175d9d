package pkg

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/afero"
)

// metadataCache is a filesystem-backed cache of registry metadata documents.
// Five analyzers resolve metadata per Analyze call; the cache keeps that at
// one network round trip.
type metadataCache struct {
	fs  afero.Fs
	dir string
	ttl time.Duration
}

func (c *metadataCache) path(name string) string {
	// Maven coordinates carry a colon; keep cache filenames flat.
	return filepath.Join(c.dir, strings.ReplaceAll(name, ":", "__")+".json")
}

func (c *metadataCache) read(ctx context.Context, name string) (*PackageMetadata, bool) {
	log := clog.FromContext(ctx)
	path := c.path(name)

	info, err := c.fs.Stat(path)
	if err != nil || time.Since(info.ModTime()) > c.ttl {
		return nil, false
	}
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, false
	}
	var meta PackageMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		log.Warnf("discarding unreadable cache entry %s: %v", path, err)
		return nil, false
	}
	return &meta, true
}

func (c *metadataCache) write(ctx context.Context, name string, meta *PackageMetadata) {
	log := clog.FromContext(ctx)
	data, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		log.Debugf("cannot create cache dir %s: %v", c.dir, err)
		return
	}
	if err := afero.WriteFile(c.fs, c.path(name), data, 0o644); err != nil {
		log.Debugf("cannot write cache entry for %s: %v", name, err)
	}
}
