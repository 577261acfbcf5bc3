// Package sora talks to the OpenAI video API. It owns the HTTP transport,
// the request defaults the upstream enforces, and the coercion of upstream
// payloads into canonical video items.
package sora

import "context"

// CreateVideoRequest carries the fields for a new generation. ImageData is
// optional; when present the request goes up as multipart with the image
// attached as the input reference.
type CreateVideoRequest struct {
	Prompt    string
	Model     string
	Size      string
	Seconds   string
	ImageData []byte
	ImageName string
	ImageMime string
}

// GenerateImagesRequest carries the fields for reference image generation.
type GenerateImagesRequest struct {
	Prompt string
	Count  int
	Size   string
	Model  string
}

// GeneratedImage is one result from image generation. URL is either the
// upstream URL or a base64 data URL when the upstream inlines the bytes.
type GeneratedImage struct {
	ID          string  `json:"id"`
	URL         string  `json:"url"`
	Base64      *string `json:"base64"`
	Description string  `json:"description"`
}

// SuggestPromptRequest carries the form context a prompt suggestion is
// generated against. Prompt may be empty when the form is blank.
type SuggestPromptRequest struct {
	Prompt  string
	Model   string
	Size    string
	Seconds string
}

// Client is the upstream video API surface the agent depends on. Video
// endpoints return the raw decoded payload; normalization happens in the
// caller so partial or odd payloads still merge into known items.
type Client interface {
	CreateVideo(ctx context.Context, req CreateVideoRequest) (map[string]any, error)
	RemixVideo(ctx context.Context, videoID, prompt string) (map[string]any, error)
	GetVideo(ctx context.Context, videoID string) (map[string]any, error)
	GetContent(ctx context.Context, videoID, variant string) ([]byte, string, error)
	GenerateImages(ctx context.Context, req GenerateImagesRequest) ([]GeneratedImage, error)
	SuggestPrompt(ctx context.Context, req SuggestPromptRequest) (string, error)
	GenerateTitle(ctx context.Context, prompt string) (map[string]any, error)
}
