// Package tokens measures text in model tokens.
package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens with a tiktoken encoding.
type Counter struct {
	tokenizer *tiktoken.Tiktoken
}

// New creates a Counter for the given model (e.g. "gpt-3.5-turbo").
func New(model string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Counter{tokenizer: enc}, nil
}

// Count returns the token count for text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.tokenizer.Encode(text, nil, nil))
}
