package conversation

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/seonho-lim/aide/pkg/logging"
)

// tokenCounter measures prompt-context size. It prefers an exact tiktoken
// encoding and estimates by byte length when the encoding cannot be loaded
// (the encoder downloads its dictionary on first use).
type tokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func newTokenCounter(logger *logging.Logger) *tokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		if logger != nil {
			logger.Warn("tiktoken encoding unavailable, estimating token counts", "error", err)
		}
		return &tokenCounter{}
	}
	return &tokenCounter{encoding: enc}
}

func (c *tokenCounter) Count(text string) int {
	if c.encoding != nil {
		return len(c.encoding.Encode(text, nil, nil))
	}
	// Rough UTF-8 estimate: ~4 bytes per token.
	return len(text)/4 + 1
}

// Truncate trims text to at most maxTokens, cutting at a rune boundary when
// estimating.
func (c *tokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || c.Count(text) <= maxTokens {
		return text
	}
	if c.encoding != nil {
		tokens := c.encoding.Encode(text, nil, nil)
		return c.encoding.Decode(tokens[:maxTokens])
	}
	runes := []rune(text)
	// The byte estimate over-counts multibyte text, so this stays conservative.
	if len(runes) > maxTokens*4 {
		runes = runes[:maxTokens*4]
	}
	return string(runes)
}
