package studio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ariesai/studio-agent/internal/compose"
	"github.com/ariesai/studio-agent/internal/db"
	"github.com/ariesai/studio-agent/internal/sora"
	"github.com/ariesai/studio-agent/internal/video"
)

// stubClient scripts upstream responses for service tests.
type stubClient struct {
	createCalls  int
	createErr    error
	lastCreate   sora.CreateVideoRequest
	remixCalls   int
	lastRemixID  string
	getPayloads  map[string]map[string]any
	contentErr   error
	contentCalls int
	titlePayload map[string]any
	titleErr     error
}

func (c *stubClient) CreateVideo(ctx context.Context, req sora.CreateVideoRequest) (map[string]any, error) {
	c.createCalls++
	c.lastCreate = req
	if c.createErr != nil {
		return nil, c.createErr
	}
	return map[string]any{
		"id":     fmt.Sprintf("vid_new_%d", c.createCalls),
		"status": "queued",
	}, nil
}

func (c *stubClient) RemixVideo(ctx context.Context, videoID, prompt string) (map[string]any, error) {
	c.remixCalls++
	c.lastRemixID = videoID
	return map[string]any{
		"id":             fmt.Sprintf("vid_remix_%d", c.remixCalls),
		"status":         "queued",
		"remix_video_id": videoID,
	}, nil
}

func (c *stubClient) GetVideo(ctx context.Context, videoID string) (map[string]any, error) {
	if payload, ok := c.getPayloads[videoID]; ok {
		return payload, nil
	}
	return nil, &sora.APIError{Status: 404, Message: "not found"}
}

func (c *stubClient) GetContent(ctx context.Context, videoID, variant string) ([]byte, string, error) {
	c.contentCalls++
	if c.contentErr != nil {
		return nil, "", c.contentErr
	}
	return []byte("video-bytes-" + videoID), "video/mp4", nil
}

func (c *stubClient) GenerateImages(ctx context.Context, req sora.GenerateImagesRequest) ([]sora.GeneratedImage, error) {
	return nil, errors.New("not implemented")
}

func (c *stubClient) SuggestPrompt(ctx context.Context, req sora.SuggestPromptRequest) (string, error) {
	return "", errors.New("not implemented")
}

func (c *stubClient) GenerateTitle(ctx context.Context, prompt string) (map[string]any, error) {
	if c.titleErr != nil {
		return nil, c.titleErr
	}
	if c.titlePayload != nil {
		return c.titlePayload, nil
	}
	return map[string]any{"output_text": "Generated Title"}, nil
}

type testEnv struct {
	service *Service
	repo    *video.SQLiteRepository
	client  *stubClient
	delays  []time.Duration
	dir     string
}

func setupService(t *testing.T) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	env := &testEnv{
		repo:   video.NewSQLiteRepository(database),
		client: &stubClient{titleErr: errors.New("titles offline")},
		dir:    t.TempDir(),
	}
	env.service = NewService(env.repo, env.client, nil, nil, env.dir, nil)
	env.service.delay = func(ctx context.Context, d time.Duration) error {
		env.delays = append(env.delays, d)
		return nil
	}
	return env
}

func TestSubmit_SingleVideo(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	result, err := env.service.Submit(ctx, SubmitRequest{
		Prompt: "A koi pond at dawn\nwith mist",
		Model:  "sora-2",
		UserID: "user-1",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(result.Items))
	}

	item := result.Items[0]
	if item.ID != "vid_new_1" || item.Status != video.StatusQueued {
		t.Errorf("item = %+v", item)
	}
	if item.Title != "A koi pond at dawn" {
		t.Errorf("Title = %q, want first prompt line", item.Title)
	}
	if item.ImageInputRequired {
		t.Error("ImageInputRequired set without an image")
	}

	stored, err := env.repo.Get(ctx, "vid_new_1")
	if err != nil {
		t.Fatalf("item not persisted: %v", err)
	}
	if stored.UserID != "user-1" || stored.Prompt != "A koi pond at dawn\nwith mist" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestSubmit_EmptyPrompt(t *testing.T) {
	env := setupService(t)

	_, err := env.service.Submit(context.Background(), SubmitRequest{Prompt: "  "})
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("error = %v, want ErrEmptyPrompt", err)
	}
}

func TestSubmit_GeneratedTitle(t *testing.T) {
	env := setupService(t)
	env.client.titleErr = nil
	env.client.titlePayload = map[string]any{"output_text": "Koi Dreams"}

	result, err := env.service.Submit(context.Background(), SubmitRequest{Prompt: "a koi pond"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Title != "Koi Dreams" {
		t.Errorf("Title = %q, want generated title", result.Title)
	}
}

func TestSubmit_TitleCapsOnRuneBoundary(t *testing.T) {
	env := setupService(t)
	env.client.titleErr = nil
	env.client.titlePayload = map[string]any{"output_text": strings.Repeat("日", 100)}

	result, err := env.service.Submit(context.Background(), SubmitRequest{Prompt: "a koi pond"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !utf8.ValidString(result.Title) {
		t.Fatalf("Title %q is not valid UTF-8", result.Title)
	}
	if n := utf8.RuneCountInString(result.Title); n != titleMaxLen {
		t.Errorf("Title rune count = %d, want %d", n, titleMaxLen)
	}
}

func TestPromptTitle_MultibyteCap(t *testing.T) {
	got := promptTitle("a" + strings.Repeat("日", 80))
	if !utf8.ValidString(got) {
		t.Fatalf("title %q is not valid UTF-8", got)
	}
	if n := utf8.RuneCountInString(got); n != promptTitleMaxLen {
		t.Errorf("title rune count = %d, want %d", n, promptTitleMaxLen)
	}
}

func TestSubmit_TitleOverrideSkipsGeneration(t *testing.T) {
	env := setupService(t)
	env.client.titleErr = nil

	result, err := env.service.Submit(context.Background(), SubmitRequest{
		Prompt: "a koi pond",
		Title:  "My Title",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Title != "My Title" {
		t.Errorf("Title = %q, want override", result.Title)
	}
}

func TestSubmit_BatchPrependsAndSpacesRuns(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	var progress [][2]int
	result, err := env.service.Submit(ctx, SubmitRequest{
		Prompt:   "a koi pond",
		Versions: 3,
		OnProgress: func(current, total int) {
			progress = append(progress, [2]int{current, total})
			// The run's item is already persisted when progress fires.
			items, _ := env.repo.List(ctx)
			if len(items) != current {
				t.Errorf("progress %d/%d fired with %d items stored", current, total, len(items))
			}
		},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(result.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(result.Items))
	}
	if len(env.delays) != 2 {
		t.Errorf("got %d delays, want 2 between 3 runs", len(env.delays))
	}
	want := [][2]int{{1, 3}, {2, 3}, {3, 3}}
	if !reflect.DeepEqual(progress, want) {
		t.Errorf("progress = %v, want %v", progress, want)
	}
	for _, d := range env.delays {
		if d != submitDelay {
			t.Errorf("delay = %v, want %v", d, submitDelay)
		}
	}

	items, _ := env.repo.List(ctx)
	if len(items) != 3 || items[0].ID != "vid_new_3" || items[2].ID != "vid_new_1" {
		t.Errorf("list order wrong: %v", itemIDs(items))
	}
}

func TestSubmit_ReplaceForcesSingleRun(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	env.repo.Insert(ctx, &video.Item{
		ID: "vid_old", Status: video.StatusFailed,
		Model: "sora-2", Size: "1280x720", Seconds: "4",
	})
	env.repo.Insert(ctx, &video.Item{
		ID: "vid_top", Status: video.StatusQueued,
		Model: "sora-2", Size: "1280x720", Seconds: "4",
	})

	result, err := env.service.Submit(ctx, SubmitRequest{
		Prompt:    "retry it",
		Versions:  5,
		ReplaceID: "vid_old",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("replace ran %d times, want 1", len(result.Items))
	}

	items, _ := env.repo.List(ctx)
	want := []string{"vid_top", "vid_new_1"}
	if len(items) != 2 || items[0].ID != want[0] || items[1].ID != want[1] {
		t.Errorf("list = %v, want %v (replaced in place)", itemIDs(items), want)
	}
	if items[1].RetryOf != "vid_old" {
		t.Errorf("RetryOf = %q, want vid_old", items[1].RetryOf)
	}
}

func TestSubmit_RemixWithImageBlocked(t *testing.T) {
	env := setupService(t)

	_, err := env.service.Submit(context.Background(), SubmitRequest{
		Prompt:  "remix it",
		RemixID: "vid_1",
		Images:  []compose.Image{{Data: []byte("x")}},
	})
	if !errors.Is(err, ErrRemixWithImage) {
		t.Errorf("error = %v, want ErrRemixWithImage", err)
	}
}

func TestSubmit_UpstreamFailureAbortsBatch(t *testing.T) {
	env := setupService(t)
	env.client.createErr = &sora.APIError{Status: 429, Message: "rate limited"}

	result, err := env.service.Submit(context.Background(), SubmitRequest{
		Prompt:   "a koi pond",
		Versions: 3,
	})
	if err == nil {
		t.Fatal("Submit should propagate upstream failure")
	}
	if len(result.Items) != 0 {
		t.Errorf("got %d items, want 0", len(result.Items))
	}
	if env.client.createCalls != 1 {
		t.Errorf("createCalls = %d, want abort after first failure", env.client.createCalls)
	}
}

func TestRetry(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	env.repo.Insert(ctx, &video.Item{
		ID: "vid_failed", Status: video.StatusFailed,
		Title: "Koi", Prompt: "a koi pond",
		Model: "sora-2-pro", Size: "1792x1024", Seconds: "8",
		UserID: "user-1",
	})

	result, err := env.service.Retry(ctx, "vid_failed", "")
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("got %d items", len(result.Items))
	}
	if env.client.lastCreate.Prompt != "a koi pond" {
		t.Errorf("retry prompt = %q", env.client.lastCreate.Prompt)
	}
	if env.client.lastCreate.Model != "sora-2-pro" || env.client.lastCreate.Size != "1792x1024" {
		t.Errorf("retry params = %+v", env.client.lastCreate)
	}

	if _, err := env.repo.Get(ctx, "vid_failed"); !errors.Is(err, video.ErrNotFound) {
		t.Error("old item still present after in-place retry")
	}
	replacement, err := env.repo.Get(ctx, "vid_new_1")
	if err != nil {
		t.Fatalf("replacement missing: %v", err)
	}
	if replacement.RetryOf != "vid_failed" {
		t.Errorf("RetryOf = %q", replacement.RetryOf)
	}
}

func TestRetry_ImageInputBlocked(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	env.repo.Insert(ctx, &video.Item{
		ID: "vid_img", Status: video.StatusFailed,
		Prompt: "from image", Model: "sora-2", Size: "1280x720", Seconds: "4",
		ImageInputRequired: true,
	})

	_, err := env.service.Retry(ctx, "vid_img", "")
	if !errors.Is(err, ErrImageInputRequired) {
		t.Errorf("error = %v, want ErrImageInputRequired", err)
	}
	if env.client.createCalls != 0 {
		t.Error("blocked retry still hit the upstream")
	}
}

func TestRemix_Prepends(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	env.repo.Insert(ctx, &video.Item{
		ID: "vid_src", Status: video.StatusCompleted,
		Model: "sora-2", Size: "720x1280", Seconds: "8", UserID: "user-1",
	})

	result, err := env.service.Remix(ctx, "vid_src", "make it rain", "")
	if err != nil {
		t.Fatalf("Remix failed: %v", err)
	}
	if env.client.lastRemixID != "vid_src" {
		t.Errorf("remix target = %q", env.client.lastRemixID)
	}
	if result.Items[0].RemixVideoID != "vid_src" {
		t.Errorf("RemixVideoID = %q", result.Items[0].RemixVideoID)
	}

	items, _ := env.repo.List(ctx)
	if len(items) != 2 || items[0].ID != "vid_remix_1" {
		t.Errorf("remix not prepended: %v", itemIDs(items))
	}
	if items[0].UserID != "user-1" {
		t.Errorf("remix UserID = %q, want inherited", items[0].UserID)
	}
}

func TestRefresh_MergesUpstreamState(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	env.repo.Insert(ctx, &video.Item{
		ID: "vid_1", Status: video.StatusInProgress,
		Title: "Koi", Prompt: "a koi pond",
		Model: "sora-2", Size: "1280x720", Seconds: "4", UserID: "user-1",
	})
	env.client.getPayloads = map[string]map[string]any{
		"vid_1": {
			"id":           "vid_1",
			"status":       "completed",
			"progress":     100,
			"download_url": "https://x/v.mp4",
		},
	}

	item, err := env.service.Refresh(ctx, "vid_1")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if item.Status != video.StatusCompleted || item.DownloadURL == "" {
		t.Errorf("item = %+v", item)
	}
	if item.Title != "Koi" || item.UserID != "user-1" {
		t.Errorf("local fields lost on refresh: %+v", item)
	}

	stored, _ := env.repo.Get(ctx, "vid_1")
	if stored.Status != video.StatusCompleted {
		t.Errorf("stored status = %q", stored.Status)
	}
}

func TestRefreshAll_SwallowsFailures(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	env.repo.Insert(ctx, &video.Item{
		ID: "vid_gone", Status: video.StatusQueued,
		Model: "sora-2", Size: "1280x720", Seconds: "4",
	})
	env.repo.Insert(ctx, &video.Item{
		ID: "vid_ok", Status: video.StatusQueued,
		Model: "sora-2", Size: "1280x720", Seconds: "4",
	})
	env.client.getPayloads = map[string]map[string]any{
		"vid_ok": {"id": "vid_ok", "status": "in_progress", "progress": 40},
	}

	env.service.RefreshAll(ctx)

	ok, _ := env.repo.Get(ctx, "vid_ok")
	if ok.Status != video.StatusInProgress {
		t.Errorf("vid_ok status = %q, want refreshed", ok.Status)
	}
	gone, _ := env.repo.Get(ctx, "vid_gone")
	if gone.Status != video.StatusQueued {
		t.Errorf("vid_gone status = %q, want untouched after failed refresh", gone.Status)
	}
}

func TestDownload(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	env.repo.Insert(ctx, &video.Item{
		ID: "vid_1", Status: video.StatusCompleted,
		Title: "Koi Pond", Model: "sora-2", Size: "1280x720", Seconds: "4",
	})

	path, err := env.service.Download(ctx, "vid_1")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if filepath.Base(path) != "Koi-Pond.mp4" {
		t.Errorf("saved name = %q", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "video-bytes-vid_1" {
		t.Errorf("saved content = %q, %v", data, err)
	}

	stored, _ := env.repo.Get(ctx, "vid_1")
	if !stored.Downloaded {
		t.Error("Downloaded flag not set")
	}
}

func TestDownload_NotCompleted(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	env.repo.Insert(ctx, &video.Item{
		ID: "vid_1", Status: video.StatusInProgress,
		Model: "sora-2", Size: "1280x720", Seconds: "4",
	})

	if _, err := env.service.Download(ctx, "vid_1"); !errors.Is(err, ErrNotCompleted) {
		t.Errorf("error = %v, want ErrNotCompleted", err)
	}
}

func TestDownload_FailureLeavesFlagClear(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	env.repo.Insert(ctx, &video.Item{
		ID: "vid_1", Status: video.StatusCompleted,
		Model: "sora-2", Size: "1280x720", Seconds: "4",
	})
	env.client.contentErr = errors.New("stream reset")

	if _, err := env.service.Download(ctx, "vid_1"); err == nil {
		t.Fatal("Download should fail when the fetch fails")
	}
	stored, _ := env.repo.Get(ctx, "vid_1")
	if stored.Downloaded {
		t.Error("Downloaded flag set despite failure")
	}
}

func TestDownloadAll(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	env.repo.Insert(ctx, &video.Item{
		ID: "vid_done", Status: video.StatusCompleted,
		Model: "sora-2", Size: "1280x720", Seconds: "4",
	})
	env.repo.Insert(ctx, &video.Item{
		ID: "vid_have", Status: video.StatusCompleted, Downloaded: true,
		Model: "sora-2", Size: "1280x720", Seconds: "4",
	})
	env.repo.Insert(ctx, &video.Item{
		ID: "vid_wip", Status: video.StatusInProgress,
		Model: "sora-2", Size: "1280x720", Seconds: "4",
	})
	env.repo.Insert(ctx, &video.Item{
		ID: "vid_done2", Status: video.StatusSucceeded,
		Model: "sora-2", Size: "1280x720", Seconds: "4",
	})

	result, err := env.service.DownloadAll(ctx, "")
	if err != nil {
		t.Fatalf("DownloadAll failed: %v", err)
	}
	if result.Saved != 2 || result.Failed != 0 {
		t.Errorf("result = %+v, want 2 saved", result)
	}
	if env.client.contentCalls != 2 {
		t.Errorf("contentCalls = %d, want 2", env.client.contentCalls)
	}
	if len(env.delays) != 1 || env.delays[0] != downloadAllDelay {
		t.Errorf("delays = %v, want one spacing delay", env.delays)
	}
}

func TestDownloadAll_NonReentrant(t *testing.T) {
	env := setupService(t)

	env.service.downloadingAll.Store(true)
	defer env.service.downloadingAll.Store(false)

	if _, err := env.service.DownloadAll(context.Background(), ""); !errors.Is(err, ErrDownloadsBusy) {
		t.Errorf("error = %v, want ErrDownloadsBusy", err)
	}
}

func itemIDs(items []*video.Item) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}
