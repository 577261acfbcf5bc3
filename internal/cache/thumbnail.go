package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ariesai/studio-agent/internal/sora"
	"github.com/ariesai/studio-agent/internal/video"
)

// ThumbnailCache mirrors the item list with thumbnail files for completed
// videos. Fetch failures are silent; a missing thumbnail is normal while a
// video is still rendering.
type ThumbnailCache struct {
	dir    string
	client sora.Client
	logger *slog.Logger

	mu       sync.Mutex
	entries  map[string]string
	inFlight map[string]bool
}

func NewThumbnailCache(dir string, client sora.Client, logger *slog.Logger) (*ThumbnailCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail cache dir: %w", err)
	}
	return &ThumbnailCache{
		dir:      dir,
		client:   client,
		logger:   logger,
		entries:  make(map[string]string),
		inFlight: make(map[string]bool),
	}, nil
}

// Sync brings the cache in line with the item list: thumbnails for ids no
// longer present are evicted, and completed items without one are fetched.
func (c *ThumbnailCache) Sync(ctx context.Context, items []*video.Item) {
	present := make(map[string]bool, len(items))
	for _, item := range items {
		present[item.ID] = true
	}

	c.mu.Lock()
	for id, path := range c.entries {
		if !present[id] {
			os.Remove(path)
			delete(c.entries, id)
		}
	}
	var wanted []string
	for _, item := range items {
		if !video.IsCompletedStatus(item.Status) {
			continue
		}
		if _, ok := c.entries[item.ID]; ok {
			continue
		}
		if c.inFlight[item.ID] {
			continue
		}
		c.inFlight[item.ID] = true
		wanted = append(wanted, item.ID)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range wanted {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.fetch(ctx, id)
		}()
	}
	wg.Wait()
}

func (c *ThumbnailCache) fetch(ctx context.Context, videoID string) {
	data, contentType, err := c.client.GetContent(ctx, videoID, "thumbnail")

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, videoID)

	if err != nil {
		if c.logger != nil {
			c.logger.Debug("thumbnail fetch failed", "video_id", videoID, "error", err)
		}
		return
	}

	path := filepath.Join(c.dir, videoID+extForContentType(contentType))
	if err := os.WriteFile(path, data, 0644); err != nil {
		if c.logger != nil {
			c.logger.Debug("thumbnail write failed", "video_id", videoID, "error", err)
		}
		return
	}
	if prior, ok := c.entries[videoID]; ok && prior != path {
		os.Remove(prior)
	}
	c.entries[videoID] = path
}

// Path returns the cached thumbnail file for a video if present.
func (c *ThumbnailCache) Path(videoID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path, ok := c.entries[videoID]
	return path, ok
}

// Close evicts every entry and deletes its file.
func (c *ThumbnailCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, path := range c.entries {
		os.Remove(path)
		delete(c.entries, id)
	}
}

func extForContentType(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
