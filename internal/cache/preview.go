// Package cache stores fetched video assets on disk so playback and
// thumbnails never re-download content the agent already has. Entries are
// keyed by video id; evicting an entry deletes its file.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ariesai/studio-agent/internal/sora"
)

// inFlightFetch is a fetch already in progress. Late callers wait on done
// and read the shared result instead of starting a second download.
type inFlightFetch struct {
	done    chan struct{}
	path    string
	err     error
	evicted bool
}

// PreviewCache holds full video files for playback. At most one fetch per
// video id runs at a time; concurrent requests for the same id share it.
type PreviewCache struct {
	dir    string
	client sora.Client
	logger *slog.Logger

	mu       sync.Mutex
	entries  map[string]string
	inFlight map[string]*inFlightFetch
	loading  map[string]bool
	showing  string
}

func NewPreviewCache(dir string, client sora.Client, logger *slog.Logger) (*PreviewCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create preview cache dir: %w", err)
	}
	return &PreviewCache{
		dir:      dir,
		client:   client,
		logger:   logger,
		entries:  make(map[string]string),
		inFlight: make(map[string]*inFlightFetch),
		loading:  make(map[string]bool),
	}, nil
}

// EnsureCached returns the local path for a video, downloading it first if
// needed. A fetch already in flight for the same id is joined, not
// duplicated.
func (c *PreviewCache) EnsureCached(ctx context.Context, videoID string) (string, error) {
	c.mu.Lock()
	if path, ok := c.entries[videoID]; ok {
		c.mu.Unlock()
		return path, nil
	}
	if op, ok := c.inFlight[videoID]; ok {
		c.mu.Unlock()
		select {
		case <-op.done:
			return op.path, op.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	op := &inFlightFetch{done: make(chan struct{})}
	c.inFlight[videoID] = op
	c.mu.Unlock()

	path, err := c.fetch(ctx, videoID)

	c.mu.Lock()
	if c.inFlight[videoID] == op {
		delete(c.inFlight, videoID)
	}
	if err == nil {
		if op.evicted {
			// Detached by an eviction. Drop the file unless the id was
			// re-added meanwhile and a fresh fetch owns the path now.
			_, refetching := c.inFlight[videoID]
			if _, ok := c.entries[videoID]; !ok && !refetching {
				os.Remove(path)
			}
		} else {
			if prior, ok := c.entries[videoID]; ok && prior != path {
				os.Remove(prior)
			}
			c.entries[videoID] = path
		}
	}
	c.mu.Unlock()

	op.path = path
	op.err = err
	close(op.done)
	return path, err
}

func (c *PreviewCache) fetch(ctx context.Context, videoID string) (string, error) {
	data, _, err := c.client.GetContent(ctx, videoID, "video")
	if err != nil {
		return "", fmt.Errorf("failed to fetch preview for %s: %w", videoID, err)
	}

	path := filepath.Join(c.dir, videoID+".mp4")
	tmp, err := os.CreateTemp(c.dir, videoID+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create preview file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write preview file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close preview file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to place preview file: %w", err)
	}
	return path, nil
}

// Play makes a video the active preview, fetching it on a cache miss. The
// returned path is ready to serve. An empty id is a no-op.
func (c *PreviewCache) Play(ctx context.Context, videoID string) (string, error) {
	if videoID == "" {
		return "", nil
	}

	c.mu.Lock()
	if path, ok := c.entries[videoID]; ok {
		c.showing = videoID
		c.mu.Unlock()
		return path, nil
	}
	c.loading[videoID] = true
	c.mu.Unlock()

	path, err := c.EnsureCached(ctx, videoID)

	c.mu.Lock()
	delete(c.loading, videoID)
	if err == nil {
		c.showing = videoID
	}
	c.mu.Unlock()
	return path, err
}

// Clear stops showing the active preview without evicting its file.
func (c *PreviewCache) Clear() {
	c.mu.Lock()
	c.showing = ""
	c.mu.Unlock()
}

// Showing returns the id of the active preview, or "".
func (c *PreviewCache) Showing() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.showing
}

// Loading reports whether a fetch started by Play is still running.
func (c *PreviewCache) Loading(videoID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading[videoID]
}

// Path returns the cached file for a video if present.
func (c *PreviewCache) Path(videoID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path, ok := c.entries[videoID]
	return path, ok
}

// Prefetch evicts entries outside the valid id set and warms the cache for
// the listed ids. Fetch failures are logged and skipped; one bad video does
// not block the rest.
func (c *PreviewCache) Prefetch(ctx context.Context, validIDs []string) {
	valid := make(map[string]bool, len(validIDs))
	for _, id := range validIDs {
		valid[id] = true
	}

	c.mu.Lock()
	for id, path := range c.entries {
		if !valid[id] {
			os.Remove(path)
			delete(c.entries, id)
		}
	}
	for id, op := range c.inFlight {
		if !valid[id] {
			// Drop the marker right away so a later prefetch can start a
			// fresh fetch; the orphaned one finishes detached.
			op.evicted = true
			delete(c.inFlight, id)
		}
	}
	var missing []string
	for _, id := range validIDs {
		if _, ok := c.entries[id]; !ok {
			if _, ok := c.inFlight[id]; !ok {
				missing = append(missing, id)
			}
		}
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range missing {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.EnsureCached(ctx, id); err != nil && c.logger != nil {
				c.logger.Debug("preview prefetch failed", "video_id", id, "error", err)
			}
		}()
	}
	wg.Wait()
}

// Close evicts every entry and deletes its file.
func (c *PreviewCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, path := range c.entries {
		os.Remove(path)
		delete(c.entries, id)
	}
	c.showing = ""
}
