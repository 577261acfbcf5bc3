package video

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeModel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"known model", "sora-2-pro", "sora-2-pro"},
		{"default model", "sora-2", "sora-2"},
		{"whitespace", "  sora-2-pro  ", "sora-2-pro"},
		{"unknown", "dall-e", "sora-2"},
		{"empty", "", "sora-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeModel(tt.input); got != tt.want {
				t.Errorf("SanitizeModel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeSizeForModel(t *testing.T) {
	tests := []struct {
		name  string
		size  string
		model string
		want  string
	}{
		{"sora-2 landscape", "1280x720", "sora-2", "1280x720"},
		{"sora-2 portrait", "720x1280", "sora-2", "720x1280"},
		{"sora-2 rejects pro size", "1792x1024", "sora-2", "1280x720"},
		{"pro keeps large landscape", "1792x1024", "sora-2-pro", "1792x1024"},
		{"pro keeps large portrait", "1024x1792", "sora-2-pro", "1024x1792"},
		{"garbage size", "banana", "sora-2-pro", "1280x720"},
		{"garbage model", "1280x720", "banana", "1280x720"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeSizeForModel(tt.size, tt.model); got != tt.want {
				t.Errorf("SanitizeSizeForModel(%q, %q) = %q, want %q",
					tt.size, tt.model, got, tt.want)
			}
		})
	}
}

func TestSanitizeSizeForModel_AllPairs(t *testing.T) {
	// Every model must accept each of its own declared sizes unchanged, and
	// any size at all must sanitize into the model's declared set.
	for _, model := range ModelOptions {
		opts := ModelSizeOptions[model]
		all := append(append([]string{}, opts.Portrait...), opts.Landscape...)
		for _, size := range all {
			if got := SanitizeSizeForModel(size, model); got != size {
				t.Errorf("model %s rejected its own size %s (got %s)", model, size, got)
			}
		}

		foreign := []string{"1x1", "", "1024x1792", "1792x1024"}
		for _, size := range foreign {
			got := SanitizeSizeForModel(size, model)
			valid := false
			for _, s := range all {
				if got == s {
					valid = true
				}
			}
			if !valid {
				t.Errorf("model %s sanitized %q to %q, not in its size set", model, size, got)
			}
		}
	}
}

func TestSanitizeSeconds(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"4", "4"},
		{"8", "8"},
		{"12", "12"},
		{" 8 ", "8"},
		{"16", "4"},
		{"", "4"},
	}

	for _, tt := range tests {
		if got := SanitizeSeconds(tt.input); got != tt.want {
			t.Errorf("SanitizeSeconds(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input      string
		wantWidth  int
		wantHeight int
	}{
		{"1280x720", 1280, 720},
		{"720x1280", 720, 1280},
		{"bad", 1280, 720},
		{"", 1280, 720},
		{"0x100", 1280, 720},
		{"-1x100", 1280, 720},
	}

	for _, tt := range tests {
		w, h := ParseSize(tt.input)
		if w != tt.wantWidth || h != tt.wantHeight {
			t.Errorf("ParseSize(%q) = %dx%d, want %dx%d",
				tt.input, w, h, tt.wantWidth, tt.wantHeight)
		}
	}
}

func TestShouldPoll(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"queued", true},
		{"in_progress", true},
		{"QUEUED", true},
		{"completed", false},
		{"succeeded", false},
		{"failed", false},
		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ShouldPoll(tt.status); got != tt.want {
			t.Errorf("ShouldPoll(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestEnsurePrompt(t *testing.T) {
	tests := []struct {
		name    string
		item    *Item
		current string
		want    string
	}{
		{"item prompt wins", &Item{Prompt: "a cat", Title: "Cat"}, "a dog", "a cat"},
		{"current prompt next", &Item{Title: "Cat"}, "a dog", "a dog"},
		{"title next", &Item{Title: "  Cat  "}, "  ", "Cat"},
		{"placeholder last", &Item{}, "", "Regenerate previous Sora video"},
		{"nil item", nil, "", "Regenerate previous Sora video"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EnsurePrompt(tt.item, tt.current); got != tt.want {
				t.Errorf("EnsurePrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildDownloadName(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		title string
		want  string
	}{
		{"simple title", "vid_1", "Sunset over water", "Sunset-over-water.mp4"},
		{"strips unsafe runes", "vid_1", `A/B <Test>: "quoted"?`, "AB-Test-quoted.mp4"},
		{"empty title falls back to id", "vid_1", "", "vid_1.mp4"},
		{"only unsafe runes", "vid_1", `<>:"/\|?*`, "vid_1.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildDownloadName(tt.id, tt.title); got != tt.want {
				t.Errorf("BuildDownloadName(%q, %q) = %q, want %q",
					tt.id, tt.title, got, tt.want)
			}
		})
	}
}

func TestBuildDownloadName_Caps(t *testing.T) {
	long := strings.Repeat("word ", 40)
	got := BuildDownloadName("vid_1", long)
	if len(got) > 64 {
		t.Errorf("name %q exceeds 60-char base plus extension", got)
	}
	if !strings.HasSuffix(got, ".mp4") {
		t.Errorf("name %q missing .mp4 extension", got)
	}
}

func TestBuildDownloadName_MultibyteCap(t *testing.T) {
	got := BuildDownloadName("vid_1", "a"+strings.Repeat("日", 80))
	if !utf8.ValidString(got) {
		t.Fatalf("name %q is not valid UTF-8", got)
	}
	base := strings.TrimSuffix(got, ".mp4")
	if n := utf8.RuneCountInString(base); n != 60 {
		t.Errorf("base rune count = %d, want 60", n)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"日本語テスト", 3, "日本語"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
