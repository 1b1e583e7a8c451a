package cluster

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/ulid/v2"
)

// FileCache is the shared temp area for propagated Parquet files, keyed by
// the logical filename the client uploaded with. A file is only ever
// pushed to a peer once; subsequent distributions of the same logical
// file reuse the cached copy.
type FileCache struct {
	mu     sync.Mutex
	dir    string
	files  map[string]string
	logger log.Logger
}

// NewFileCache creates (if necessary) dir and returns an empty cache
// rooted there.
func NewFileCache(dir string, logger log.Logger) (*FileCache, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cluster: failed to create file cache dir: %w", err)
	}
	return &FileCache{dir: dir, files: map[string]string{}, logger: logger}, nil
}

// Has reports whether key is already materialized locally.
func (c *FileCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.files[key]
	return ok
}

// Path returns the local path for key, if cached.
func (c *FileCache) Path(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.files[key]
	return p, ok
}

// Store writes r to a new temp file named with a ULID (collision-proof
// under concurrent stores of different keys) and registers it under key.
// A second Store of the same key while the first is in flight is
// harmless: the later write simply wins the map entry.
func (c *FileCache) Store(key string, r io.Reader) (string, int64, error) {
	name := ulid.Make().String() + ".parquet"
	path := filepath.Join(c.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("cluster: failed to create cache file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("cluster: failed to write cache file: %w", err)
	}

	c.mu.Lock()
	c.files[key] = path
	c.mu.Unlock()

	level.Debug(c.logger).Log("msg", "cached propagated file", "key", key, "path", path, "bytes", n)
	return path, n, nil
}

// Open opens the cached file for key for reading, along with its size.
func (c *FileCache) Open(key string) (*os.File, int64, error) {
	path, ok := c.Path(key)
	if !ok {
		return nil, 0, fmt.Errorf("cluster: no cached file for key %q", key)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}
