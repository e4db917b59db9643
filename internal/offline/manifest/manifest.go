package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// DefaultBucket is the cache bucket of the shipped front-end build.
const DefaultBucket = "precache-v0.8.16"

// Formats understood by Load and Encode.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// ErrInvalid is returned for manifests that fail validation.
var ErrInvalid = errors.New("manifest: invalid")

// Manifest names the current bucket and the URLs precached into it.
type Manifest struct {
	Bucket   string   `yaml:"bucket" toml:"bucket"`
	Precache []string `yaml:"precache" toml:"precache"`
}

// Default returns the manifest of the shipped front-end build.
func Default() Manifest {
	return Manifest{
		Bucket: DefaultBucket,
		Precache: []string{
			"/registerServiceWorker.js",
			"/icons/favicon-512x512.png",
			"/icons/favicon-16x16.png",
			"/icons/favicon-32x32.png",
			"/icons/favicon-192x192.png",
			"/manifest.json",
			"/favicon.ico",
		},
	}
}

// Validate checks that the bucket is named and every URL is an
// origin-relative path listed once.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.Bucket) == "" {
		return fmt.Errorf("%w: bucket is required", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(m.Precache))
	for _, u := range m.Precache {
		if !strings.HasPrefix(u, "/") || strings.HasPrefix(u, "//") {
			return fmt.Errorf("%w: %q is not an origin-relative path", ErrInvalid, u)
		}
		if _, dup := seen[u]; dup {
			return fmt.Errorf("%w: %q is listed twice", ErrInvalid, u)
		}
		seen[u] = struct{}{}
	}
	return nil
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported manifest format %q", filepath.Ext(path))
	}
}

// Load reads and validates a YAML or TOML manifest. An empty path yields
// the default manifest.
func Load(path string) (Manifest, error) {
	if path == "" {
		return Default(), nil
	}
	format, err := FormatOf(path)
	if err != nil {
		return Manifest{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	return Decode(data, format)
}

// Decode parses data in the given format and validates the result.
func Decode(data []byte, format string) (Manifest, error) {
	var m Manifest
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &m)
	case FormatTOML:
		err = toml.Unmarshal(data, &m)
	default:
		return Manifest{}, fmt.Errorf("unsupported manifest format %q", format)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("decode %s manifest: %w", format, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Encode renders m in the given format.
func (m Manifest) Encode(format string) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(m)
	case FormatTOML:
		return toml.Marshal(m)
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", format)
	}
}

// Generate walks dir and lists every file matching one of patterns as an
// origin-relative URL. Patterns are doublestar globs relative to dir; none
// means every file.
func Generate(ctx context.Context, dir, bucket string, patterns []string) (Manifest, error) {
	if len(patterns) == 0 {
		patterns = []string{"**"}
	}
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return Manifest{}, fmt.Errorf("invalid pattern %q", pattern)
		}
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return Manifest{}, fmt.Errorf("resolve %s: %w", dir, err)
	}

	var (
		mu    sync.Mutex
		found []string
	)
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				mu.Lock()
				found = append(found, "/"+rel)
				mu.Unlock()
				break
			}
		}
		return nil
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("walk %s: %w", dir, err)
	}

	slices.Sort(found)
	m := Manifest{Bucket: bucket, Precache: found}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
