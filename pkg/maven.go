package pkg

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/afero"
)

const defaultMavenURL = "https://repo.maven.apache.org/maven2"

// MavenRegistry fetches package metadata from a Maven repository. Candidate
// names use "group:artifact" coordinates, so pom.xml manifests resolve
// through the same Registry boundary as PyPI packages.
type MavenRegistry struct {
	opts  registryOptions
	cache metadataCache
}

// NewMavenRegistry creates a Maven Central registry client.
func NewMavenRegistry(opts ...RegistryOption) *MavenRegistry {
	o := registryOptions{
		url:      defaultMavenURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		fs:       afero.NewOsFs(),
		cacheDir: defaultCacheRoot,
		cacheTTL: defaultCacheTTL,
		retry:    defaultRetry,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &MavenRegistry{
		opts:  o,
		cache: metadataCache{fs: o.fs, dir: o.cacheDir, ttl: o.cacheTTL},
	}
}

// mavenMetadata mirrors the repository's maven-metadata.xml document.
type mavenMetadata struct {
	XMLName    xml.Name `xml:"metadata"`
	GroupID    string   `xml:"groupId"`
	ArtifactID string   `xml:"artifactId"`
	Versioning struct {
		Latest      string   `xml:"latest"`
		Release     string   `xml:"release"`
		Versions    []string `xml:"versions>version"`
		LastUpdated string   `xml:"lastUpdated"`
	} `xml:"versioning"`
}

// mavenPom is the subset of a deployed POM needed for license lookup.
type mavenPom struct {
	XMLName  xml.Name `xml:"project"`
	Licenses []struct {
		Name string `xml:"name"`
	} `xml:"licenses>license"`
	Dependencies []struct {
		GroupID    string `xml:"groupId"`
		ArtifactID string `xml:"artifactId"`
		Scope      string `xml:"scope"`
		Optional   string `xml:"optional"`
	} `xml:"dependencies>dependency"`
}

// FetchMetadata implements Registry for "group:artifact" coordinates.
func (r *MavenRegistry) FetchMetadata(ctx context.Context, name string) (*PackageMetadata, error) {
	log := clog.FromContext(ctx)
	name = NormalizeName(name)

	if meta, ok := r.cache.read(ctx, name); ok {
		log.Debugf("registry cache hit for %s", name)
		return meta, nil
	}

	group, artifact, ok := strings.Cut(name, ":")
	if !ok || group == "" || artifact == "" {
		return nil, fmt.Errorf("maven coordinates must be group:artifact, got %q", name)
	}
	groupPath := strings.ReplaceAll(group, ".", "/")

	url := fmt.Sprintf("%s/%s/%s/maven-metadata.xml", r.opts.url, groupPath, artifact)
	body, status, err := fetchWithRetry(ctx, r.opts.client, url, r.opts.retry)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if status == http.StatusNotFound {
		return nil, &NotFoundError{Name: name}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("maven repository returned status %d for %s", status, name)
	}

	var meta mavenMetadata
	if err := xml.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode maven metadata for %s: %w", name, err)
	}

	lastUpdated := parseMavenTimestamp(meta.Versioning.LastUpdated)
	pkgMeta := &PackageMetadata{Name: name}
	for _, v := range meta.Versioning.Versions {
		rel := Release{Version: v}
		// maven-metadata.xml only timestamps the newest release.
		if v == meta.Versioning.Latest || v == meta.Versioning.Release {
			rel.ReleaseDate = lastUpdated
		}
		pkgMeta.Releases = append(pkgMeta.Releases, rel)
	}

	release := meta.Versioning.Release
	if release == "" {
		release = meta.Versioning.Latest
	}
	if release != "" {
		if license, requires, err := r.fetchPom(ctx, groupPath, artifact, release); err != nil {
			log.Debugf("cannot fetch pom for %s@%s: %v", name, release, err)
		} else {
			pkgMeta.License = license
			pkgMeta.Requires = requires
		}
	}

	r.cache.write(ctx, name, pkgMeta)
	return pkgMeta, nil
}

// fetchPom reads the deployed POM of one release to recover the declared
// license and the compile-scope dependency list.
func (r *MavenRegistry) fetchPom(ctx context.Context, groupPath, artifact, version string) (string, []string, error) {
	url := fmt.Sprintf("%s/%s/%s/%s/%s-%s.pom", r.opts.url, groupPath, artifact, version, artifact, version)
	body, status, err := fetchWithRetry(ctx, r.opts.client, url, r.opts.retry)
	if err != nil {
		return "", nil, err
	}
	if status != http.StatusOK {
		return "", nil, fmt.Errorf("pom fetch returned status %d", status)
	}

	var pom mavenPom
	if err := xml.Unmarshal(body, &pom); err != nil {
		return "", nil, fmt.Errorf("failed to decode pom: %w", err)
	}

	var license string
	if len(pom.Licenses) > 0 {
		license = pom.Licenses[0].Name
	}
	var requires []string
	for _, dep := range pom.Dependencies {
		if dep.Scope == "test" || dep.Scope == "provided" || dep.Optional == "true" {
			continue
		}
		requires = append(requires, fmt.Sprintf("%s:%s", dep.GroupID, dep.ArtifactID))
	}
	return license, requires, nil
}

func parseMavenTimestamp(s string) time.Time {
	// lastUpdated is yyyyMMddHHmmss in UTC.
	t, err := time.Parse("20060102150405", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
