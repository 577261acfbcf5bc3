package video

import (
	"testing"
	"time"
)

func TestNormalize_EmptyPayload(t *testing.T) {
	got := Normalize(nil, nil)
	if got.Status != "unknown" {
		t.Errorf("Status = %q, want unknown", got.Status)
	}
	if got.Model != "sora-2" || got.Size != "1280x720" || got.Seconds != "4" {
		t.Errorf("defaults = %s/%s/%s, want sora-2/1280x720/4",
			got.Model, got.Size, got.Seconds)
	}
}

func TestNormalize_MergesOverFallback(t *testing.T) {
	fallback := &Item{
		ID:     "vid_1",
		Status: "queued",
		Title:  "Old title",
		Prompt: "old prompt",
		Model:  "sora-2-pro",
		Size:   "1792x1024",
		UserID: "user-1",
	}
	raw := map[string]any{
		"status":   "in_progress",
		"progress": 0.42,
	}

	got := Normalize(raw, fallback)
	if got.ID != "vid_1" {
		t.Errorf("ID = %q, want vid_1", got.ID)
	}
	if got.Status != "in_progress" {
		t.Errorf("Status = %q, want in_progress", got.Status)
	}
	if got.Title != "Old title" || got.Prompt != "old prompt" {
		t.Errorf("fallback text fields not preserved: %+v", got)
	}
	if got.Model != "sora-2-pro" || got.Size != "1792x1024" {
		t.Errorf("fallback model/size not preserved: %s/%s", got.Model, got.Size)
	}
	if got.Progress == nil || *got.Progress != 42 {
		t.Errorf("Progress = %v, want 42", got.Progress)
	}
	if got.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", got.UserID)
	}
}

func TestNormalize_RemixIDSpellings(t *testing.T) {
	spellings := []string{
		"remix_video_id", "remixVideoId", "remix_of", "remixOf",
		"source_video_id", "sourceVideoId", "remixed_from_video_id",
	}
	for _, key := range spellings {
		t.Run(key, func(t *testing.T) {
			got := Normalize(map[string]any{"id": "vid_2", key: "vid_1"}, nil)
			if got.RemixVideoID != "vid_1" {
				t.Errorf("RemixVideoID = %q, want vid_1", got.RemixVideoID)
			}
		})
	}
}

func TestNormalize_RemixIDOrder(t *testing.T) {
	got := Normalize(map[string]any{
		"remix_of":       "second",
		"remix_video_id": "first",
	}, nil)
	if got.RemixVideoID != "first" {
		t.Errorf("RemixVideoID = %q, want first (canonical spelling wins)", got.RemixVideoID)
	}
}

func TestNormalize_TerminalInference(t *testing.T) {
	t.Run("full progress completes", func(t *testing.T) {
		got := Normalize(map[string]any{
			"id":       "vid_1",
			"status":   "in_progress",
			"progress": 100,
		}, nil)
		if got.Status != StatusCompleted {
			t.Errorf("Status = %q, want completed", got.Status)
		}
		if got.CompletedAt == "" {
			t.Error("CompletedAt not backfilled")
		}
	})

	t.Run("download url completes", func(t *testing.T) {
		got := Normalize(map[string]any{
			"id":           "vid_1",
			"status":       "queued",
			"download_url": "https://example.com/v.mp4",
		}, nil)
		if got.Status != StatusCompleted {
			t.Errorf("Status = %q, want completed", got.Status)
		}
		if got.Progress == nil || *got.Progress != 100 {
			t.Errorf("Progress = %v, want forced to 100", got.Progress)
		}
	})

	t.Run("failed stays failed", func(t *testing.T) {
		got := Normalize(map[string]any{
			"id":           "vid_1",
			"status":       "failed",
			"download_url": "https://example.com/v.mp4",
		}, nil)
		if got.Status != StatusFailed {
			t.Errorf("Status = %q, want failed", got.Status)
		}
	})

	t.Run("completed keeps upstream timestamp", func(t *testing.T) {
		got := Normalize(map[string]any{
			"id":           "vid_1",
			"status":       "completed",
			"completed_at": "2026-01-02T03:04:05Z",
		}, nil)
		if got.CompletedAt != "2026-01-02T03:04:05Z" {
			t.Errorf("CompletedAt = %q, want upstream value", got.CompletedAt)
		}
	})
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := map[string]any{
		"id":           "vid_1",
		"status":       "in_progress",
		"title":        "Test",
		"prompt":       "a test",
		"model":        "sora-2-pro",
		"size":         "1024x1792",
		"seconds":      "8",
		"progress":     0.5,
		"created_at":   1756400000,
		"remixVideoId": "vid_0",
	}
	once := Normalize(raw, nil)
	twice := Normalize(nil, &once)

	if once != twice {
		t.Errorf("Normalize not idempotent:\n once = %+v\ntwice = %+v", once, twice)
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"unix seconds", float64(1756400000), "2025-08-28T16:53:20Z"},
		{"unix millis", float64(1756400000000), "2025-08-28T16:53:20Z"},
		{"numeric string", "1756400000", "2025-08-28T16:53:20Z"},
		{"rfc3339 string", "2025-08-28T16:53:20Z", "2025-08-28T16:53:20Z"},
		{"date only", "2026-08-28", "2026-08-28T00:00:00Z"},
		{"garbage", "soon", ""},
		{"nil", nil, ""},
		{"zero", float64(0), ""},
		{"bool", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTimestamp(tt.input); got != tt.want {
				t.Errorf("NormalizeTimestamp(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeTimestamp_RoundTrips(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	got := NormalizeTimestamp(float64(now.Unix()))
	if got != now.Format(time.RFC3339) {
		t.Errorf("round trip = %q, want %q", got, now.Format(time.RFC3339))
	}
}

func TestCoerceProgress(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  float64
		isNil bool
	}{
		{"fraction scales", 0.25, 25, false},
		{"one scales", float64(1), 100, false},
		{"percent passes", float64(55), 55, false},
		{"clamps high", float64(250), 100, false},
		{"clamps low", float64(-3), 0, false},
		{"percent string", "37%", 37, false},
		{"plain string", "80", 80, false},
		{"fraction string", "0.5", 50, false},
		{"garbage string", "done", 0, true},
		{"nil", nil, 0, true},
		{"bool", false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CoerceProgress(tt.input)
			if tt.isNil {
				if got != nil {
					t.Errorf("CoerceProgress(%v) = %v, want nil", tt.input, *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("CoerceProgress(%v) = nil, want %v", tt.input, tt.want)
			}
			if *got != tt.want {
				t.Errorf("CoerceProgress(%v) = %v, want %v", tt.input, *got, tt.want)
			}
		})
	}
}
