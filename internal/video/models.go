// Package video holds the canonical video item model: the enumerations the
// Sora API accepts, the sanitizers that coerce arbitrary input onto them, and
// the normalization that folds heterogeneous provider payloads into Items.
package video

import (
	"strconv"
	"strings"
)

const (
	ModelSora2    = "sora-2"
	ModelSora2Pro = "sora-2-pro"

	DefaultSize = "1280x720"

	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

var ModelOptions = []string{ModelSora2, ModelSora2Pro}

var SecondsOptions = []string{"4", "8", "12"}

// SizeOptions groups the sizes a model accepts by orientation.
type SizeOptions struct {
	Portrait  []string
	Landscape []string
}

var ModelSizeOptions = map[string]SizeOptions{
	ModelSora2: {
		Portrait:  []string{"720x1280"},
		Landscape: []string{DefaultSize},
	},
	ModelSora2Pro: {
		Portrait:  []string{"720x1280", "1024x1792"},
		Landscape: []string{DefaultSize, "1792x1024"},
	},
}

// Item is one video generation request/result. It is the unit every cache,
// poller and list operation keys on; ID is the stable identity.
type Item struct {
	ID                 string   `json:"id"`
	Status             string   `json:"status"`
	Title              string   `json:"title"`
	Prompt             string   `json:"prompt"`
	Model              string   `json:"model"`
	Size               string   `json:"size"`
	Seconds            string   `json:"seconds"`
	RemixVideoID       string   `json:"remix_video_id,omitempty"`
	RetryOf            string   `json:"retry_of,omitempty"`
	CreatedAt          string   `json:"created_at,omitempty"`
	CompletedAt        string   `json:"completed_at,omitempty"`
	Progress           *float64 `json:"progress,omitempty"`
	DownloadURL        string   `json:"download_url,omitempty"`
	ThumbnailURL       string   `json:"thumbnail_url,omitempty"`
	Downloaded         bool     `json:"downloaded"`
	ImageInputRequired bool     `json:"image_input_required"`
	Error              any      `json:"error,omitempty"`
	UserID             string   `json:"user_id,omitempty"`
}

// IsCompletedStatus reports terminal success. The provider uses "completed"
// and "succeeded" interchangeably.
func IsCompletedStatus(status string) bool {
	return status == StatusCompleted || status == StatusSucceeded
}

// IsFailedStatus reports terminal failure.
func IsFailedStatus(status string) bool {
	return status == StatusFailed
}

// ShouldPoll reports whether an item is still worth re-fetching. Only the two
// known in-flight statuses poll; anything else (terminal or unrecognized) is
// left alone.
func ShouldPoll(status string) bool {
	s := strings.ToLower(status)
	return s == StatusQueued || s == StatusInProgress
}

// SanitizeModel coerces unrecognized model identifiers to the default model.
func SanitizeModel(value string) string {
	trimmed := strings.TrimSpace(value)
	for _, m := range ModelOptions {
		if trimmed == m {
			return m
		}
	}
	return ModelOptions[0]
}

// GetModelSizeOptions returns the size groups for a model, sanitizing the
// model first so the result is always a known group.
func GetModelSizeOptions(model string) SizeOptions {
	return ModelSizeOptions[SanitizeModel(model)]
}

// SanitizeSizeForModel coerces a size onto the model's allow-list. Sizes the
// model does not accept fall back to its first landscape size.
func SanitizeSizeForModel(size, model string) string {
	opts := GetModelSizeOptions(model)
	for _, s := range opts.Portrait {
		if size == s {
			return s
		}
	}
	for _, s := range opts.Landscape {
		if size == s {
			return s
		}
	}
	if len(opts.Landscape) > 0 {
		return opts.Landscape[0]
	}
	if len(opts.Portrait) > 0 {
		return opts.Portrait[0]
	}
	return DefaultSize
}

// SanitizeSeconds coerces a duration onto the allowed set, defaulting to the
// smallest value. Accepts numeric strings with surrounding whitespace.
func SanitizeSeconds(value string) string {
	trimmed := strings.TrimSpace(value)
	for _, s := range SecondsOptions {
		if trimmed == s {
			return s
		}
	}
	return SecondsOptions[0]
}

// ParseSize splits a "WxH" string into dimensions, defaulting to 1280x720 on
// malformed input.
func ParseSize(size string) (width, height int) {
	parts := strings.SplitN(size, "x", 2)
	if len(parts) != 2 {
		return 1280, 720
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 1280, 720
	}
	return w, h
}

// EnsurePrompt picks the best available prompt text for re-submitting an
// item: its own prompt, then the caller's current prompt, then the title,
// then a generic placeholder.
func EnsurePrompt(item *Item, currentPrompt string) string {
	if item != nil && strings.TrimSpace(item.Prompt) != "" {
		return item.Prompt
	}
	if strings.TrimSpace(currentPrompt) != "" {
		return currentPrompt
	}
	if item != nil && strings.TrimSpace(item.Title) != "" {
		return strings.TrimSpace(item.Title)
	}
	return "Regenerate previous Sora video"
}

// TruncateRunes caps a string at max characters without splitting a
// multibyte rune.
func TruncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// BuildDownloadName derives a filesystem-safe .mp4 filename from an item's
// title, falling back to the id when the title sanitizes to nothing.
func BuildDownloadName(id, title string) string {
	var b strings.Builder
	for _, r := range title {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			continue
		default:
			b.WriteRune(r)
		}
	}
	safe := strings.TrimSpace(b.String())
	if safe == "" {
		return id + ".mp4"
	}
	parts := strings.Fields(safe)
	normalized := TruncateRunes(strings.Join(parts, "-"), 60)
	if normalized == "" {
		normalized = id
	}
	return normalized + ".mp4"
}
