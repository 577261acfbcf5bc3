package sora

import (
	"fmt"
	"strings"
	"time"

	"github.com/ariesai/studio-agent/internal/video"
)

// NormalizeResponse coerces an upstream video payload into a canonical item,
// layered over the known fallback. It resolves the id from its alternate
// locations, digs asset URLs out of the payload shapes the upstream has
// shipped, and defaults the status to queued for fresh creations.
func NormalizeResponse(payload map[string]any, fallback *video.Item) video.Item {
	raw := make(map[string]any, len(payload)+4)
	for k, v := range payload {
		raw[k] = v
	}

	raw["id"] = ResolveVideoID(payload, fallback)

	if _, ok := raw["status"]; !ok {
		if _, ok := raw["state"]; !ok {
			if fallback == nil || fallback.Status == "" {
				raw["status"] = video.StatusQueued
			}
		}
	}

	if url := ExtractDownloadURL(payload); url != "" {
		raw["download_url"] = url
	}
	if url := ExtractThumbnailURL(payload); url != "" {
		raw["thumbnail_url"] = url
	}

	item := video.Normalize(raw, fallback)
	if item.CreatedAt == "" {
		item.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return item
}

// ResolveVideoID finds the video id wherever the upstream put it, minting a
// synthetic id as the last resort so every response stays addressable.
func ResolveVideoID(payload map[string]any, fallback *video.Item) string {
	if id := stringAt(payload, "id"); id != "" {
		return id
	}
	if id := stringAt(payload, "video_id"); id != "" {
		return id
	}
	if data, ok := payload["data"].(map[string]any); ok {
		if id := stringAt(data, "id"); id != "" {
			return id
		}
	}
	if fallback != nil && fallback.ID != "" {
		return fallback.ID
	}
	return fmt.Sprintf("video_%d", time.Now().UnixMilli())
}

// ExtractDownloadURL probes the payload shapes that have carried the final
// video URL: top-level fields, the assets object, the assets array, and the
// output array, in that order.
func ExtractDownloadURL(payload map[string]any) string {
	if url := stringAt(payload, "download_url"); url != "" {
		return url
	}
	if url := stringAt(payload, "content_url"); url != "" {
		return url
	}

	switch assets := payload["assets"].(type) {
	case map[string]any:
		if v, ok := assets["video"].(map[string]any); ok {
			if url := stringAt(v, "download_url"); url != "" {
				return url
			}
			if url := stringAt(v, "url"); url != "" {
				return url
			}
		}
	case []any:
		for _, entry := range assets {
			node, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if url := stringAt(node, "download_url"); url != "" {
				return url
			}
			if url := stringAt(node, "url"); url != "" {
				return url
			}
		}
	}

	if output, ok := payload["output"].([]any); ok {
		for _, entry := range output {
			node, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if url := stringAt(node, "download_url"); url != "" {
				return url
			}
			if url := stringAt(node, "url"); url != "" {
				return url
			}
		}
	}
	return ""
}

// ExtractThumbnailURL probes the payload shapes that have carried the
// thumbnail URL.
func ExtractThumbnailURL(payload map[string]any) string {
	if url := stringAt(payload, "thumbnail_url"); url != "" {
		return url
	}

	switch assets := payload["assets"].(type) {
	case map[string]any:
		if t, ok := assets["thumbnail"].(map[string]any); ok {
			if url := stringAt(t, "url"); url != "" {
				return url
			}
		}
	case []any:
		for _, entry := range assets {
			node, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if kind := stringAt(node, "type"); kind == "thumbnail" {
				if url := stringAt(node, "url"); url != "" {
					return url
				}
			}
		}
	}
	return ""
}

func stringAt(node map[string]any, key string) string {
	s, _ := node[key].(string)
	return strings.TrimSpace(s)
}
