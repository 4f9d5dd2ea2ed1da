package backend

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const maxReasonChars = 500

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("backend error (status %d)", e.Code)
	}
	return fmt.Sprintf("backend error (status %d): %s", e.Code, e.Reason)
}

// NewStatusError builds a StatusError with a readable reason extracted from
// the response body. JSON bodies contribute their "detail" or "error" field;
// HTML error pages from proxies are converted to markdown text.
func NewStatusError(code int, contentType string, body []byte) *StatusError {
	return &StatusError{Code: code, Reason: reasonFromBody(contentType, body)}
}

func reasonFromBody(contentType string, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}

	var payload struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Error != "":
			return truncate(payload.Error)
		case payload.Detail != nil:
			if s, ok := payload.Detail.(string); ok {
				return truncate(s)
			}
			data, _ := json.Marshal(payload.Detail)
			return truncate(string(data))
		}
	}

	if strings.Contains(contentType, "text/html") || strings.HasPrefix(text, "<") {
		md, err := htmltomarkdown.ConvertString(text)
		if err == nil {
			return truncate(strings.TrimSpace(md))
		}
	}

	return truncate(text)
}

// truncate caps s at maxReasonChars bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxReasonChars {
		return s
	}
	end := maxReasonChars
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end] + "..."
}
