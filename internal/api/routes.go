package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariesai/studio-agent/internal/compose"
	"github.com/ariesai/studio-agent/internal/sora"
	"github.com/ariesai/studio-agent/internal/studio"
	"github.com/ariesai/studio-agent/internal/video"
)

// maxPromptLen mirrors the upstream limit so oversized prompts fail fast
// with a clear message instead of a proxied 400. Remix prompts carry a
// stricter cap.
const (
	maxPromptLen      = 4000
	maxRemixPromptLen = 500
)

var contentVariants = map[string]bool{
	"video":       true,
	"thumbnail":   true,
	"spritesheet": true,
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Post("/api/generate-video", generateVideoHandler(cfg))
		r.Post("/api/remix-video", remixVideoHandler(cfg))
		r.Get("/api/videos", listVideosHandler(cfg))
		r.Get("/api/videos/{id}", getVideoHandler(cfg))
		r.Delete("/api/videos/{id}", deleteVideoHandler(cfg))
		r.Get("/api/videos/{id}/content", contentHandler(cfg))
		r.Post("/api/videos/{id}/retry", retryVideoHandler(cfg))
		r.Post("/api/videos/{id}/download", downloadVideoHandler(cfg))
		r.Post("/api/videos/download-all", downloadAllHandler(cfg))
		r.Post("/api/videos/{id}/preview", playPreviewHandler(cfg))
		r.Get("/api/videos/{id}/preview", streamPreviewHandler(cfg))
		r.Delete("/api/preview", clearPreviewHandler(cfg))

		r.Post("/api/generate-images", generateImagesHandler(cfg))
		r.Post("/api/suggest-prompt", suggestPromptHandler(cfg))
		r.Post("/api/video-title", videoTitleHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := cfg.Service.List(r.Context(), "")
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list videos")
			return
		}

		resp := StatusResponse{
			State:         "idle",
			VideosTotal:   len(items),
			PollIntervalS: cfg.PollIntervalS,
		}
		for _, item := range items {
			if video.ShouldPoll(item.Status) {
				resp.VideosPolling++
			}
			if video.IsCompletedStatus(item.Status) {
				resp.VideosComplete++
			}
		}
		if resp.VideosPolling > 0 {
			resp.State = "polling"
		}
		if cfg.Poller != nil && cfg.Poller.Paused() {
			resp.State = "paused"
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func generateVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateVideoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}

		prompt := strings.TrimSpace(req.Prompt)
		if prompt == "" {
			WriteError(w, http.StatusBadRequest, "Prompt is required")
			return
		}
		if len(prompt) > maxPromptLen {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf(
				"Prompt exceeds maximum length of %d characters (current: %d)",
				maxPromptLen, len(prompt)))
			return
		}

		payloads := req.Images
		if req.Image != nil {
			payloads = append([]ImagePayload{*req.Image}, payloads...)
		}
		images, err := decodeImages(payloads)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		result, err := cfg.Service.Submit(r.Context(), studio.SubmitRequest{
			Prompt:   prompt,
			Model:    req.Model,
			Size:     req.Size,
			Seconds:  req.Seconds,
			Title:    req.Title,
			Versions: req.Versions,
			UserID:   req.UserID,
			Images:   images,
		})
		if err != nil {
			writeServiceError(w, err, "Failed to create video")
			return
		}
		WriteJSON(w, http.StatusCreated, result)
	}
}

func remixVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RemixVideoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
		if strings.TrimSpace(req.VideoID) == "" {
			WriteError(w, http.StatusBadRequest, "videoId is required")
			return
		}
		prompt := strings.TrimSpace(req.Prompt)
		if prompt == "" {
			WriteError(w, http.StatusBadRequest, "Prompt is required")
			return
		}
		if len(prompt) > maxRemixPromptLen {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf(
				"Prompt exceeds maximum length of %d characters (current: %d)",
				maxRemixPromptLen, len(prompt)))
			return
		}

		result, err := cfg.Service.Remix(r.Context(), strings.TrimSpace(req.VideoID), prompt, req.UserID)
		if err != nil {
			writeServiceError(w, err, "Failed to remix video")
			return
		}
		WriteJSON(w, http.StatusCreated, result)
	}
}

func listVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := cfg.Service.List(r.Context(), r.URL.Query().Get("user_id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list videos")
			return
		}
		if items == nil {
			items = []*video.Item{}
		}
		WriteJSON(w, http.StatusOK, VideosResponse{Videos: items})
	}
}

// getVideoHandler refreshes the item from the upstream and returns the
// merged state, falling back to the stored item when the upstream is
// unreachable.
func getVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		item, err := cfg.Service.Refresh(r.Context(), id)
		if err != nil {
			if errors.Is(err, video.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "video not found")
				return
			}
			stored, getErr := cfg.Service.Get(r.Context(), id)
			if getErr == nil {
				WriteJSON(w, http.StatusOK, stored)
				return
			}
			writeServiceError(w, err, "Failed to fetch video")
			return
		}
		WriteJSON(w, http.StatusOK, item)
	}
}

func deleteVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err, "Failed to delete video")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// contentHandler serves a video asset, preferring the local caches and
// proxying the upstream on a miss.
func contentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		variant := r.URL.Query().Get("variant")
		if variant == "" {
			variant = "video"
		}
		if !contentVariants[variant] {
			WriteError(w, http.StatusBadRequest, "Invalid variant")
			return
		}

		if variant == "video" && cfg.Previews != nil && cfg.Playback != nil {
			if path, ok := cfg.Previews.Path(id); ok {
				if err := cfg.Playback.ServeFile(w, r, path); err == nil {
					return
				}
			}
		}
		if variant == "thumbnail" && cfg.Thumbnails != nil && cfg.Playback != nil {
			if path, ok := cfg.Thumbnails.Path(id); ok {
				if err := cfg.Playback.ServeFile(w, r, path); err == nil {
					return
				}
			}
		}

		data, contentType, err := cfg.Client.GetContent(r.Context(), id, variant)
		if err != nil {
			writeServiceError(w, err, "Failed to fetch video content")
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func retryVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RetryVideoRequest
		if r.Body != nil {
			// The body is optional; a missing prompt falls back to the
			// item's own.
			json.NewDecoder(r.Body).Decode(&req)
		}

		result, err := cfg.Service.Retry(r.Context(), chi.URLParam(r, "id"), req.Prompt)
		if err != nil {
			writeServiceError(w, err, "Failed to retry video")
			return
		}
		WriteJSON(w, http.StatusCreated, result)
	}
}

func downloadVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := cfg.Service.Download(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err, "Failed to download video")
			return
		}
		WriteJSON(w, http.StatusOK, DownloadResponse{Path: path})
	}
}

func downloadAllHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := cfg.Service.DownloadAll(r.Context(), r.URL.Query().Get("user_id"))
		if err != nil {
			writeServiceError(w, err, "Failed to download videos")
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

func playPreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		path, err := cfg.Previews.Play(r.Context(), id)
		if err != nil {
			writeServiceError(w, err, "Failed to load preview")
			return
		}
		WriteJSON(w, http.StatusOK, PreviewResponse{VideoID: id, Path: path})
	}
}

func streamPreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		path, err := cfg.Previews.EnsureCached(r.Context(), id)
		if err != nil {
			writeServiceError(w, err, "Failed to load preview")
			return
		}
		if err := cfg.Playback.ServeFile(w, r, path); err != nil {
			cfg.Logger.Error("preview stream failed", "video_id", id, "error", err)
		}
	}
}

func clearPreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Previews.Clear()
		w.WriteHeader(http.StatusNoContent)
	}
}

func generateImagesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateImagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			WriteError(w, http.StatusBadRequest, "Prompt is required")
			return
		}

		images, err := cfg.Client.GenerateImages(r.Context(), sora.GenerateImagesRequest{
			Prompt: strings.TrimSpace(req.Prompt),
			Count:  req.Count,
			Size:   req.Size,
			Model:  req.Model,
		})
		if err != nil {
			writeServiceError(w, err, "Failed to generate images")
			return
		}
		if images == nil {
			images = []sora.GeneratedImage{}
		}
		WriteJSON(w, http.StatusOK, GenerateImagesResponse{Images: images})
	}
}

func suggestPromptHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SuggestPromptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}

		suggestion, err := cfg.Client.SuggestPrompt(r.Context(), sora.SuggestPromptRequest{
			Prompt:  req.Prompt,
			Model:   req.Model,
			Size:    req.Size,
			Seconds: req.Seconds,
		})
		if err != nil {
			writeServiceError(w, err, "Failed to generate prompt suggestion")
			return
		}
		if suggestion == "" {
			WriteError(w, http.StatusBadGateway, "Prompt suggestion unavailable. Try again.")
			return
		}
		WriteJSON(w, http.StatusOK, SuggestPromptResponse{Prompt: suggestion})
	}
}

// videoTitleHandler returns the raw upstream payload; clients extract the
// title text themselves.
func videoTitleHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VideoTitleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
		prompt := strings.TrimSpace(req.Prompt)
		if prompt == "" {
			WriteError(w, http.StatusBadRequest, "Prompt is required")
			return
		}

		payload, err := cfg.Client.GenerateTitle(r.Context(), prompt)
		if err != nil {
			writeServiceError(w, err, "Failed to generate title")
			return
		}
		WriteJSON(w, http.StatusOK, payload)
	}
}

func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, video.ErrNotFound):
		WriteError(w, http.StatusNotFound, "video not found")
	case errors.Is(err, studio.ErrEmptyPrompt):
		WriteError(w, http.StatusBadRequest, "Prompt is required")
	case errors.Is(err, studio.ErrRemixWithImage),
		errors.Is(err, studio.ErrImageInputRequired):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, studio.ErrNotCompleted),
		errors.Is(err, studio.ErrDownloadsBusy):
		WriteError(w, http.StatusConflict, err.Error())
	default:
		WriteError(w, sora.ResolveErrorStatus(err), sora.DescribeError(err, fallback))
	}
}

// decodeImages converts uploaded payloads to raw bytes, accepting both
// plain base64 and data URLs.
func decodeImages(payloads []ImagePayload) ([]compose.Image, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	images := make([]compose.Image, 0, len(payloads))
	for i, p := range payloads {
		encoded := p.Data
		mime := p.MimeType
		if rest, ok := strings.CutPrefix(encoded, "data:"); ok {
			header, body, found := strings.Cut(rest, ",")
			if !found {
				return nil, fmt.Errorf("image %d: malformed data URL", i+1)
			}
			encoded = body
			if m, _, _ := strings.Cut(header, ";"); m != "" && mime == "" {
				mime = m
			}
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("image %d: invalid base64 data", i+1)
		}
		images = append(images, compose.Image{Data: data, Mime: mime, Name: p.Name})
	}
	return images, nil
}
