package video

import (
	"strconv"
	"strings"
	"time"
)

// remixIDKeys is the ordered list of field spellings the provider has used
// for "this video is a remix of X". First present wins.
var remixIDKeys = []string{
	"remix_video_id",
	"remixVideoId",
	"remix_of",
	"remixOf",
	"source_video_id",
	"sourceVideoId",
	"remixed_from_video_id",
}

// createdAtKeys and completedAtKeys are the timestamp spellings seen in
// provider payloads, probed in order.
var createdAtKeys = []string{"created_at", "createdAt"}
var completedAtKeys = []string{"completed_at", "completedAt"}

// Normalize folds an arbitrary provider payload over a known item and
// returns a fully-populated Item. It is total: a nil or empty payload
// returns the fallback's fields (or zero values plus status "unknown"), and
// it is idempotent when re-applied to its own output.
func Normalize(raw map[string]any, fallback *Item) Item {
	var out Item
	if fallback != nil {
		out = *fallback
	}
	if raw == nil {
		raw = map[string]any{}
	}

	if id := stringField(raw, "id"); id != "" {
		out.ID = id
	}

	if status := stringField(raw, "status"); status != "" {
		out.Status = status
	} else if status := stringField(raw, "state"); status != "" {
		out.Status = status
	}
	if out.Status == "" {
		out.Status = "unknown"
	}

	if title := stringField(raw, "title"); title != "" {
		out.Title = title
	} else if out.Title == "" {
		out.Title = stringField(raw, "name")
	}

	if prompt := stringField(raw, "prompt"); prompt != "" {
		out.Prompt = prompt
	}

	if model, ok := raw["model"]; ok {
		out.Model = SanitizeModel(asString(model))
	} else {
		out.Model = SanitizeModel(out.Model)
	}
	if size, ok := raw["size"]; ok {
		out.Size = SanitizeSizeForModel(asString(size), out.Model)
	} else {
		out.Size = SanitizeSizeForModel(out.Size, out.Model)
	}
	if seconds, ok := raw["seconds"]; ok {
		out.Seconds = SanitizeSeconds(asString(seconds))
	} else {
		out.Seconds = SanitizeSeconds(out.Seconds)
	}

	for _, key := range remixIDKeys {
		if id := stringField(raw, key); id != "" {
			out.RemixVideoID = id
			break
		}
	}

	for _, key := range createdAtKeys {
		if ts := NormalizeTimestamp(raw[key]); ts != "" {
			out.CreatedAt = ts
			break
		}
	}
	for _, key := range completedAtKeys {
		if ts := NormalizeTimestamp(raw[key]); ts != "" {
			out.CompletedAt = ts
			break
		}
	}

	if p := CoerceProgress(raw["progress"]); p != nil {
		out.Progress = p
	}

	if url := stringField(raw, "download_url"); url != "" {
		out.DownloadURL = url
	}
	if url := stringField(raw, "thumbnail_url"); url != "" {
		out.ThumbnailURL = url
	}

	if v, ok := raw["downloaded"].(bool); ok {
		out.Downloaded = v
	}
	if v, ok := raw["image_input_required"].(bool); ok {
		out.ImageInputRequired = v
	}
	if v, ok := raw["error"]; ok && v != nil {
		out.Error = v
	}
	if id := stringField(raw, "user_id"); id != "" {
		out.UserID = id
	}

	// A payload that reports full progress or carries a download URL is
	// complete regardless of what its status field says, unless it already
	// failed.
	terminal := (out.Progress != nil && *out.Progress >= 100) || out.DownloadURL != ""
	if terminal && !IsFailedStatus(strings.ToLower(out.Status)) {
		out.Status = StatusCompleted
	}
	if IsCompletedStatus(strings.ToLower(out.Status)) {
		if out.CompletedAt == "" {
			out.CompletedAt = time.Now().UTC().Format(time.RFC3339)
		}
		full := 100.0
		out.Progress = &full
	}

	return out
}

// NormalizeTimestamp coerces a payload timestamp to RFC 3339. Numbers are
// unix seconds unless large enough to be milliseconds; strings may be
// numeric or already date-formatted. Unparseable input yields "".
func NormalizeTimestamp(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case float64:
		return unixToRFC3339(v)
	case int64:
		return unixToRFC3339(float64(v))
	case int:
		return unixToRFC3339(float64(v))
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return ""
		}
		if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return unixToRFC3339(n)
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t.UTC().Format(time.RFC3339)
			}
		}
		return ""
	default:
		return ""
	}
}

func unixToRFC3339(n float64) string {
	if n <= 0 {
		return ""
	}
	// Magnitude above 1e12 means the value is already in milliseconds.
	ms := int64(n * 1000)
	if n > 1e12 {
		ms = int64(n)
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// CoerceProgress normalizes a progress value to a percentage in [0, 100].
// Fractions at or below 1 are treated as ratios, strings may carry a
// trailing percent sign. Returns nil when the value is absent or
// unparseable.
func CoerceProgress(value any) *float64 {
	var n float64
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(v), "%")
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}

	if n <= 1 && n >= 0 {
		n *= 100
	}
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return &n
}

func stringField(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	return strings.TrimSpace(asString(v))
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}
