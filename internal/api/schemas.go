package api

import (
	"encoding/json"
	"net/http"

	"github.com/ariesai/studio-agent/internal/sora"
	"github.com/ariesai/studio-agent/internal/video"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State          string `json:"state"`
	VideosTotal    int    `json:"videos_total"`
	VideosPolling  int    `json:"videos_polling"`
	VideosComplete int    `json:"videos_complete"`
	PollIntervalS  int    `json:"poll_interval_s"`
}

// ImagePayload is one uploaded reference image, base64 in transit.
type ImagePayload struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data"`
}

// GenerateVideoRequest accepts either a single pre-composited reference
// image or a list the agent composites itself.
type GenerateVideoRequest struct {
	Prompt   string         `json:"prompt"`
	Model    string         `json:"model,omitempty"`
	Size     string         `json:"size,omitempty"`
	Seconds  string         `json:"seconds,omitempty"`
	Title    string         `json:"title,omitempty"`
	Versions int            `json:"versions,omitempty"`
	UserID   string         `json:"user_id,omitempty"`
	Image    *ImagePayload  `json:"image,omitempty"`
	Images   []ImagePayload `json:"images,omitempty"`
}

type RemixVideoRequest struct {
	VideoID string `json:"video_id"`
	Prompt  string `json:"prompt"`
	UserID  string `json:"user_id,omitempty"`
}

type RetryVideoRequest struct {
	Prompt string `json:"prompt,omitempty"`
}

type VideosResponse struct {
	Videos []*video.Item `json:"videos"`
}

type DownloadResponse struct {
	Path string `json:"path"`
}

type GenerateImagesRequest struct {
	Prompt string `json:"prompt"`
	Count  int    `json:"count,omitempty"`
	Size   string `json:"size,omitempty"`
	Model  string `json:"model,omitempty"`
}

type GenerateImagesResponse struct {
	Images []sora.GeneratedImage `json:"images"`
}

type SuggestPromptRequest struct {
	Prompt  string `json:"prompt,omitempty"`
	Model   string `json:"model,omitempty"`
	Size    string `json:"size,omitempty"`
	Seconds string `json:"seconds,omitempty"`
}

type SuggestPromptResponse struct {
	Prompt string `json:"prompt"`
}

type VideoTitleRequest struct {
	Prompt string `json:"prompt"`
}

type PreviewResponse struct {
	VideoID string `json:"video_id"`
	Path    string `json:"path"`
}

// ErrorDetail matches the error envelope the web clients already parse.
type ErrorDetail struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: ErrorDetail{Message: message}})
}
