package tle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	cachePrefix = "elements_"
	cacheSuffix = ".txt"
)

var errCacheEmpty = errors.New("no cache files found")

// Cache keeps the most recent raw element-set downloads on disk.
type Cache struct {
	dir      string
	maxFiles int
}

// NewCache creates a Cache in dir that retains at most maxFiles snapshots.
func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Cache{dir: dir, maxFiles: maxFiles}
}

// Write stores data as a snapshot stamped with ts and prunes the oldest snapshots.
func (c *Cache) Write(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	name := cachePrefix + strconv.FormatInt(ts.Unix(), 10) + cacheSuffix
	if err := os.WriteFile(filepath.Join(c.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	return c.prune()
}

// LoadLatest returns the newest snapshot and the time it was written.
func (c *Cache) LoadLatest() ([]byte, time.Time, error) {
	snaps, err := c.snapshots()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(snaps) == 0 {
		return nil, time.Time{}, errCacheEmpty
	}

	latest := snaps[len(snaps)-1]
	data, err := os.ReadFile(filepath.Join(c.dir, latest.name))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading cache file: %w", err)
	}
	return data, latest.ts, nil
}

type snapshot struct {
	name string
	ts   time.Time
}

// snapshots lists cache files oldest first. A missing directory is not an error.
func (c *Cache) snapshots() ([]snapshot, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var snaps []snapshot
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, cachePrefix) || !strings.HasSuffix(name, cacheSuffix) {
			continue
		}
		unix, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, cachePrefix), cacheSuffix), 10, 64)
		if err != nil {
			continue
		}
		snaps = append(snaps, snapshot{name: name, ts: time.Unix(unix, 0)})
	}

	slices.SortFunc(snaps, func(a, b snapshot) int { return a.ts.Compare(b.ts) })
	return snaps, nil
}

func (c *Cache) prune() error {
	snaps, err := c.snapshots()
	if err != nil {
		return err
	}
	if len(snaps) <= c.maxFiles {
		return nil
	}

	for _, s := range snaps[:len(snaps)-c.maxFiles] {
		if err := os.Remove(filepath.Join(c.dir, s.name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", s.name, err)
		}
	}
	return nil
}
