// Package studio orchestrates the video workflow: submitting generations,
// retrying and remixing them, keeping their status fresh, and saving
// completed videos to disk.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ariesai/studio-agent/internal/cache"
	"github.com/ariesai/studio-agent/internal/compose"
	"github.com/ariesai/studio-agent/internal/sora"
	"github.com/ariesai/studio-agent/internal/video"
)

const (
	// submitDelay spaces out the creations of a multi-version batch so the
	// upstream does not see a burst.
	submitDelay = time.Second

	// downloadAllDelay spaces out bulk downloads.
	downloadAllDelay = 400 * time.Millisecond

	titleMaxLen       = 80
	promptTitleMaxLen = 60
	fallbackTitle     = "Untitled Video"
)

var (
	ErrRemixWithImage = errors.New("remix ignores uploaded image overrides; remove the image or create a fresh video instead")

	// ErrImageInputRequired blocks automatic retries of videos that were
	// generated from an uploaded image the agent no longer has.
	ErrImageInputRequired = errors.New("this video used an image input; attach the image again before regenerating")

	ErrNotCompleted  = errors.New("video is not completed yet")
	ErrDownloadsBusy = errors.New("bulk download already running")
	ErrEmptyPrompt   = errors.New("prompt is required")
)

// Service ties the repository, the upstream client and the asset caches
// together behind the operations the API exposes.
type Service struct {
	repo         video.Repository
	client       sora.Client
	previews     *cache.PreviewCache
	thumbs       *cache.ThumbnailCache
	downloadsDir string
	logger       *slog.Logger

	downloadingAll atomic.Bool

	// delay is replaced in tests to avoid real sleeps.
	delay func(ctx context.Context, d time.Duration) error
}

func NewService(repo video.Repository, client sora.Client, previews *cache.PreviewCache, thumbs *cache.ThumbnailCache, downloadsDir string, logger *slog.Logger) *Service {
	return &Service{
		repo:         repo,
		client:       client,
		previews:     previews,
		thumbs:       thumbs,
		downloadsDir: downloadsDir,
		logger:       logger,
		delay:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitRequest describes one submission. Versions above 1 create a batch;
// ReplaceID retries an existing item in place and forces a single run.
// Images are composed into a single input reference before upload.
type SubmitRequest struct {
	Prompt    string
	Model     string
	Size      string
	Seconds   string
	Title     string
	Versions  int
	ReplaceID string
	RemixID   string
	UserID    string
	Images    []compose.Image

	// OnProgress, when set, is called after each run completes with the
	// 1-based run number and the total run count.
	OnProgress func(current, total int)
}

// SubmitResult reports what a submission created.
type SubmitResult struct {
	Items []*video.Item `json:"items"`
	Title string        `json:"title"`
}

// Submit creates one or more videos. Batch runs go up sequentially with a
// delay between them; the first upstream failure aborts the remainder and
// is returned alongside the items already created.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if req.RemixID != "" && len(req.Images) > 0 {
		return nil, ErrRemixWithImage
	}

	model := video.SanitizeModel(req.Model)
	size := video.SanitizeSizeForModel(req.Size, model)
	seconds := video.SanitizeSeconds(req.Seconds)

	runs := 1
	if req.ReplaceID == "" && req.Versions > 1 {
		runs = req.Versions
	}

	title := s.resolveTitle(ctx, req.Title, prompt)

	reference, err := s.prepareReference(ctx, req.Images, size)
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{Title: title}
	for run := 0; run < runs; run++ {
		var payload map[string]any
		var err error
		if req.RemixID != "" {
			payload, err = s.client.RemixVideo(ctx, req.RemixID, prompt)
		} else {
			createReq := sora.CreateVideoRequest{
				Prompt:  prompt,
				Model:   model,
				Size:    size,
				Seconds: seconds,
			}
			if reference != nil {
				createReq.ImageData = reference.Data
				createReq.ImageName = reference.Name
				createReq.ImageMime = reference.Mime
			}
			payload, err = s.client.CreateVideo(ctx, createReq)
		}
		if err != nil {
			return result, err
		}

		fallback := &video.Item{
			Status:             video.StatusQueued,
			Title:              title,
			Prompt:             prompt,
			Model:              model,
			Size:               size,
			Seconds:            seconds,
			RemixVideoID:       req.RemixID,
			RetryOf:            req.ReplaceID,
			CreatedAt:          time.Now().UTC().Format(time.RFC3339),
			ImageInputRequired: len(req.Images) > 0,
			UserID:             req.UserID,
		}
		item := sora.NormalizeResponse(payload, fallback)

		if req.ReplaceID != "" && run == 0 {
			err = s.repo.Replace(ctx, req.ReplaceID, &item)
		} else {
			err = s.repo.Insert(ctx, &item)
		}
		if err != nil {
			return result, err
		}
		result.Items = append(result.Items, &item)

		if req.OnProgress != nil {
			req.OnProgress(run+1, runs)
		}

		if s.logger != nil {
			s.logger.Info("video submitted",
				"video_id", item.ID, "run", run+1, "runs", runs,
				"remix", req.RemixID != "", "replace", req.ReplaceID)
		}

		if runs > 1 && run < runs-1 {
			if err := s.delay(ctx, submitDelay); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

// resolveTitle picks the submission title: the explicit override, then a
// generated one, then the first line of the prompt.
func (s *Service) resolveTitle(ctx context.Context, override, prompt string) string {
	if trimmed := strings.TrimSpace(override); trimmed != "" {
		return trimmed
	}

	title := promptTitle(prompt)
	payload, err := s.client.GenerateTitle(ctx, prompt)
	if err != nil {
		if s.logger != nil {
			s.logger.Debug("title generation failed", "error", err)
		}
		return title
	}
	generated := strings.TrimSpace(sora.ExtractText(payload))
	if generated == "" {
		return title
	}
	return strings.TrimSpace(video.TruncateRunes(generated, titleMaxLen))
}

func promptTitle(prompt string) string {
	line := prompt
	if idx := strings.IndexAny(line, "\r\n"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return fallbackTitle
	}
	return strings.TrimSpace(video.TruncateRunes(line, promptTitleMaxLen))
}

// prepareReference reduces the uploaded images to the single input
// reference the upstream accepts: a crop for one image, a grid composite
// for several.
func (s *Service) prepareReference(ctx context.Context, images []compose.Image, size string) (*compose.Image, error) {
	if len(images) == 0 {
		return nil, nil
	}
	width, height := video.ParseSize(size)

	if len(images) == 1 {
		cropped, err := compose.CropToCover(images[0], width, height)
		if err != nil {
			return nil, err
		}
		return &cropped, nil
	}

	composite, err := compose.ComposeGrid(ctx, images, width, height)
	if err != nil {
		return nil, err
	}
	return &composite, nil
}

// Retry resubmits an item in place with its original parameters. Items that
// were generated from an uploaded image cannot retry automatically.
func (s *Service) Retry(ctx context.Context, videoID, currentPrompt string) (*SubmitResult, error) {
	item, err := s.repo.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if item.ImageInputRequired {
		return nil, ErrImageInputRequired
	}

	return s.Submit(ctx, SubmitRequest{
		Prompt:    video.EnsurePrompt(item, currentPrompt),
		Model:     item.Model,
		Size:      item.Size,
		Seconds:   item.Seconds,
		Title:     item.Title,
		ReplaceID: item.ID,
		RemixID:   item.RemixVideoID,
		UserID:    item.UserID,
	})
}

// Remix creates a new video derived from an existing one. The result is
// inserted at the head of the list, not in place.
func (s *Service) Remix(ctx context.Context, videoID, prompt, userID string) (*SubmitResult, error) {
	item, err := s.repo.Get(ctx, videoID)
	if err != nil && !errors.Is(err, video.ErrNotFound) {
		return nil, err
	}

	req := SubmitRequest{
		Prompt:  prompt,
		RemixID: videoID,
		UserID:  userID,
	}
	if item != nil {
		req.Model = item.Model
		req.Size = item.Size
		req.Seconds = item.Seconds
		if req.UserID == "" {
			req.UserID = item.UserID
		}
	}
	return s.Submit(ctx, req)
}

// Refresh re-fetches one item from the upstream and merges the payload over
// the stored state.
func (s *Service) Refresh(ctx context.Context, videoID string) (*video.Item, error) {
	fallback, err := s.repo.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}

	payload, err := s.client.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	item := sora.NormalizeResponse(payload, fallback)
	if err := s.repo.Update(ctx, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// RefreshAll polls every pollable item, then brings the asset caches in
// line with the list. Individual refresh failures are logged and skipped.
func (s *Service) RefreshAll(ctx context.Context) {
	pollable, err := s.repo.ListPollable(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to list pollable videos", "error", err)
		}
		return
	}
	for _, item := range pollable {
		if _, err := s.Refresh(ctx, item.ID); err != nil {
			if s.logger != nil {
				s.logger.Debug("refresh failed", "video_id", item.ID, "error", err)
			}
		}
	}
	s.SyncAssets(ctx)
}

// SyncAssets reconciles the thumbnail and preview caches with the current
// item list.
func (s *Service) SyncAssets(ctx context.Context) {
	items, err := s.repo.List(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to list videos for asset sync", "error", err)
		}
		return
	}

	if s.thumbs != nil {
		s.thumbs.Sync(ctx, items)
	}
	if s.previews != nil {
		var completed []string
		for _, item := range items {
			if video.IsCompletedStatus(item.Status) {
				completed = append(completed, item.ID)
			}
		}
		s.previews.Prefetch(ctx, completed)
	}
}

// Download saves a completed video into the downloads directory and marks
// the item downloaded. The flag is only set when the save succeeded.
func (s *Service) Download(ctx context.Context, videoID string) (string, error) {
	item, err := s.repo.Get(ctx, videoID)
	if err != nil {
		return "", err
	}
	if !video.IsCompletedStatus(item.Status) {
		return "", ErrNotCompleted
	}

	data, _, err := s.client.GetContent(ctx, videoID, "video")
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.downloadsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create downloads dir: %w", err)
	}
	path := filepath.Join(s.downloadsDir, video.BuildDownloadName(item.ID, item.Title))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save video: %w", err)
	}

	if err := s.repo.MarkDownloaded(ctx, videoID); err != nil {
		return "", err
	}
	if s.logger != nil {
		s.logger.Info("video downloaded", "video_id", videoID, "path", path)
	}
	return path, nil
}

// DownloadAllResult summarizes a bulk download.
type DownloadAllResult struct {
	Saved  int `json:"saved"`
	Failed int `json:"failed"`
}

// DownloadAll saves every completed, not yet downloaded video. Only one
// bulk download runs at a time; failures are counted and skipped.
func (s *Service) DownloadAll(ctx context.Context, userID string) (*DownloadAllResult, error) {
	if !s.downloadingAll.CompareAndSwap(false, true) {
		return nil, ErrDownloadsBusy
	}
	defer s.downloadingAll.Store(false)

	items, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	var pending []*video.Item
	for _, item := range items {
		if video.IsCompletedStatus(item.Status) && !item.Downloaded {
			pending = append(pending, item)
		}
	}

	result := &DownloadAllResult{}
	for i, item := range pending {
		if _, err := s.Download(ctx, item.ID); err != nil {
			result.Failed++
			if s.logger != nil {
				s.logger.Warn("bulk download failed", "video_id", item.ID, "error", err)
			}
		} else {
			result.Saved++
		}
		if i < len(pending)-1 {
			if err := s.delay(ctx, downloadAllDelay); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

// List returns the items newest first, optionally scoped to a user.
func (s *Service) List(ctx context.Context, userID string) ([]*video.Item, error) {
	if userID == "" {
		return s.repo.List(ctx)
	}
	return s.repo.ListByUser(ctx, userID)
}

// Get returns one item.
func (s *Service) Get(ctx context.Context, videoID string) (*video.Item, error) {
	return s.repo.Get(ctx, videoID)
}

// Delete removes an item. Its cached assets are evicted on the next sync.
func (s *Service) Delete(ctx context.Context, videoID string) error {
	return s.repo.Delete(ctx, videoID)
}
