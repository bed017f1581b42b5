package tokenizer

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const (
	DefaultEncoding = "cl100k_base"
	runesPerToken   = 4
)

// Counter counts BPE tokens, or estimates four runes per token when the encoding is unavailable.
type Counter struct {
	enc *tiktoken.Tiktoken
}

func New(encoding string) *Counter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		slog.Warn("tokenizer_encoding_unavailable", "encoding", encoding, "error", err.Error())
		return &Counter{}
	}
	return &Counter{enc: enc}
}

func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c == nil || c.enc == nil {
		return (utf8.RuneCountInString(text) + runesPerToken - 1) / runesPerToken
	}
	return len(c.enc.Encode(text, nil, nil))
}

func (c *Counter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if c == nil || c.enc == nil {
		limit := maxTokens * runesPerToken
		if utf8.RuneCountInString(text) <= limit {
			return text
		}
		return string([]rune(text)[:limit])
	}
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return dropPartialRunes(c.enc.Decode(tokens[:maxTokens]))
}

// dropPartialRunes removes bytes of runes that a token cut split in half.
func dropPartialRunes(text string) string {
	return strings.ToValidUTF8(text, "")
}
