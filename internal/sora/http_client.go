package sora

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/ariesai/studio-agent/internal/config"
	"github.com/ariesai/studio-agent/internal/video"
)

const (
	// TitleModel and PromptModel are the text models used for the title and
	// prompt helper endpoints.
	TitleModel  = "gpt-4.1-mini"
	PromptModel = "gpt-4.1-mini"

	// DefaultImageModel is the only image model the agent forwards.
	DefaultImageModel = "gpt-image-1"
	DefaultImageSize  = "1024x1024"
	DefaultImageCount = 3
	MaxImageCount     = 4

	defaultImageFieldName = "input-reference"
	defaultImageMime      = "image/png"
)

// ImageSizeOptions is the allow-list for generated reference images.
var ImageSizeOptions = map[string]bool{
	"256x256":   true,
	"512x512":   true,
	"1024x1024": true,
	"1024x1536": true,
	"1536x1024": true,
	"1024x1792": true,
	"1792x1024": true,
	"auto":      true,
}

// HTTPClient implements Client against the OpenAI REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	orgID      string
	projectID  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(cfg config.Config, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:   strings.TrimSuffix(cfg.BaseURL(), "/"),
		apiKey:    cfg.APIKey(),
		orgID:     cfg.OrgID(),
		projectID: cfg.ProjectID(),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

func (c *HTTPClient) CreateVideo(ctx context.Context, req CreateVideoRequest) (map[string]any, error) {
	model := video.SanitizeModel(req.Model)
	size := video.SanitizeSizeForModel(req.Size, model)
	seconds := video.SanitizeSeconds(req.Seconds)

	if len(req.ImageData) > 0 {
		return c.createVideoMultipart(ctx, req.Prompt, model, size, seconds, req)
	}

	body := map[string]any{
		"prompt":  req.Prompt,
		"model":   model,
		"size":    size,
		"seconds": seconds,
	}
	return c.doJSON(ctx, http.MethodPost, "/videos", body)
}

func (c *HTTPClient) createVideoMultipart(ctx context.Context, prompt, model, size, seconds string, req CreateVideoRequest) (map[string]any, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{
		"prompt":  prompt,
		"model":   model,
		"size":    size,
		"seconds": seconds,
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", key, err)
		}
	}

	name := req.ImageName
	if name == "" {
		name = defaultImageFieldName
	}
	mimeType := req.ImageMime
	if mimeType == "" {
		mimeType = defaultImageMime
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="input_reference"; filename="%s"`, name))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(req.ImageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return c.do(ctx, http.MethodPost, "/videos", &buf, writer.FormDataContentType())
}

func (c *HTTPClient) RemixVideo(ctx context.Context, videoID, prompt string) (map[string]any, error) {
	path := "/videos/" + url.PathEscape(videoID) + "/remix"
	return c.doJSON(ctx, http.MethodPost, path, map[string]any{"prompt": prompt})
}

func (c *HTTPClient) GetVideo(ctx context.Context, videoID string) (map[string]any, error) {
	return c.doJSON(ctx, http.MethodGet, "/videos/"+url.PathEscape(videoID), nil)
}

// GetContent streams a video asset. The returned content type echoes the
// upstream header, defaulting by variant when the upstream omits it.
func (c *HTTPClient) GetContent(ctx context.Context, videoID, variant string) ([]byte, string, error) {
	path := "/videos/" + url.PathEscape(videoID) + "/content"
	if variant != "" {
		path += "?variant=" + url.QueryEscape(variant)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create content request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch video content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", c.errorFromResponse(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read video content: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		if variant == "thumbnail" || variant == "spritesheet" {
			contentType = "image/png"
		} else {
			contentType = "video/mp4"
		}
	}
	return data, contentType, nil
}

func (c *HTTPClient) GenerateImages(ctx context.Context, req GenerateImagesRequest) ([]GeneratedImage, error) {
	count := req.Count
	if count <= 0 {
		count = DefaultImageCount
	}
	if count > MaxImageCount {
		count = MaxImageCount
	}
	size := req.Size
	if !ImageSizeOptions[size] {
		size = DefaultImageSize
	}

	body := map[string]any{
		"model":   DefaultImageModel,
		"prompt":  req.Prompt,
		"n":       count,
		"size":    size,
		"quality": "high",
	}
	payload, err := c.doJSON(ctx, http.MethodPost, "/images/generations", body)
	if err != nil {
		return nil, err
	}

	entries, _ := payload["data"].([]any)
	now := time.Now().UnixMilli()
	var images []GeneratedImage
	for i, entry := range entries {
		node, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		img := GeneratedImage{
			ID:          fmt.Sprintf("generated-%d-%d", now, i),
			Description: req.Prompt,
		}
		if b64, ok := node["b64_json"].(string); ok && b64 != "" {
			img.URL = "data:image/png;base64," + b64
			img.Base64 = &b64
		} else if u, ok := node["url"].(string); ok && u != "" {
			img.URL = u
		} else {
			continue
		}
		images = append(images, img)
	}
	return images, nil
}

func (c *HTTPClient) SuggestPrompt(ctx context.Context, req SuggestPromptRequest) (string, error) {
	model := video.SanitizeModel(req.Model)
	size := video.SanitizeSizeForModel(req.Size, model)
	seconds := video.SanitizeSeconds(req.Seconds)

	contextLines := []string{
		"Target model: " + model,
		"Frame size: " + size,
		"Duration: " + seconds + " seconds",
	}
	if trimmed := strings.TrimSpace(req.Prompt); trimmed != "" {
		contextLines = append(contextLines, "Existing prompt: "+trimmed)
	}

	body := map[string]any{
		"model":             PromptModel,
		"max_output_tokens": 200,
		"temperature":       0.8,
		"input": []any{
			inputMessage("system", "You are a creative director crafting vivid video prompts for the OpenAI Sora model. Respond with a single prompt, without additional commentary."),
			inputMessage("user", "Context for the video prompt:\n"+strings.Join(contextLines, "\n")),
		},
	}
	payload, err := c.doJSON(ctx, http.MethodPost, "/responses", body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(ExtractText(payload)), nil
}

func (c *HTTPClient) GenerateTitle(ctx context.Context, prompt string) (map[string]any, error) {
	body := map[string]any{
		"model":             TitleModel,
		"max_output_tokens": 80,
		"input": []any{
			inputMessage("user", "Propose a short reel-style title for this video prompt (don't include quotes around the title): "+prompt),
		},
	}
	return c.doJSON(ctx, http.MethodPost, "/responses", body)
}

func inputMessage(role, text string) map[string]any {
	return map[string]any{
		"role": role,
		"content": []any{
			map[string]any{"type": "input_text", "text": text},
		},
	}
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body map[string]any) (map[string]any, error) {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, reader, contentType)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, contentType string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.setHeaders(req)

	if c.logger != nil {
		c.logger.Debug("upstream request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.errorFromResponse(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return payload, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.orgID != "" {
		req.Header.Set("OpenAI-Organization", c.orgID)
	}
	if c.projectID != "" {
		req.Header.Set("OpenAI-Project", c.projectID)
	}
}

func (c *HTTPClient) errorFromResponse(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	apiErr := &APIError{Status: resp.StatusCode}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err == nil {
		apiErr.Payload = payload
		if node, ok := payload["error"].(map[string]any); ok {
			if msg, ok := node["message"].(string); ok {
				apiErr.Message = msg
			}
		} else if msg, ok := payload["error"].(string); ok {
			apiErr.Message = msg
		}
	}
	if apiErr.Message == "" && len(data) > 0 {
		apiErr.Message = strings.TrimSpace(string(data))
	}

	if c.logger != nil {
		c.logger.Warn("upstream error response",
			"status", resp.StatusCode, "message", apiErr.Message)
	}
	return apiErr
}
