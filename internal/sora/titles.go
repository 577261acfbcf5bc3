package sora

import "strings"

// ExtractText pulls the generated text out of a responses-API payload. The
// upstream has shipped several shapes; probe them from most to least
// specific and return the first non-blank hit.
func ExtractText(payload map[string]any) string {
	switch v := payload["output_text"].(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			return v
		}
	case []any:
		var parts []string
		for _, entry := range v {
			if s, ok := entry.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}

	if text := gatherText(payload["output"]); strings.TrimSpace(text) != "" {
		return text
	}

	if choices, ok := payload["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if message, ok := choice["message"].(map[string]any); ok {
				if text := gatherText(message["content"]); strings.TrimSpace(text) != "" {
					return text
				}
			}
		}
	}

	if text := gatherText(payload["text"]); strings.TrimSpace(text) != "" {
		return text
	}
	return gatherText(payload["result"])
}

// gatherText descends a node collecting every string it can reach through
// the text, content and value fields.
func gatherText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		var parts []string
		for _, entry := range v {
			if text := gatherText(entry); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, " ")
	case map[string]any:
		if text, ok := v["text"]; ok {
			return gatherText(text)
		}
		if content, ok := v["content"]; ok {
			return gatherText(content)
		}
		if val, ok := v["value"]; ok {
			return gatherText(val)
		}
		return ""
	default:
		return ""
	}
}
