package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// TextProcessor cleans up generated text before it goes into an email
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText shortens text to at most maxRunes runes, cutting at the last word
// boundary when there is one and marking the cut with an ellipsis
func (tp *TextProcessor) TruncateText(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	runes := []rune(text)
	cut := runes[:maxRunes-1]
	if i := lastSpace(cut); i > len(cut)/2 {
		cut = cut[:i]
	}
	truncated := strings.TrimRightFunc(string(cut), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}) + "…"

	tp.logger.Debug("Text truncated",
		zap.Int("original_runes", len(runes)),
		zap.Int("truncated_runes", utf8.RuneCountInString(truncated)),
		zap.Int("max_runes", maxRunes))

	return truncated
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

// SanitizeUTF8 drops invalid UTF-8 sequences and control characters
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	dropped := 0
	for i, r := range text {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(text[i:]); size == 1 {
				dropped++
				continue
			}
		}
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			dropped++
			continue
		}
		b.WriteRune(r)
	}

	if dropped > 0 {
		tp.logger.Debug("Text sanitized", zap.Int("dropped", dropped))
	}
	return b.String()
}

// CollapseWhitespace joins all whitespace runs into single spaces
func (tp *TextProcessor) CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ExtractJSON returns the outermost {...} span of text, for model replies that
// wrap their JSON in prose or code fences
func (tp *TextProcessor) ExtractJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// ProcessText sanitizes, flattens and truncates text in one operation
func (tp *TextProcessor) ProcessText(text string, maxRunes int) string {
	cleaned := tp.CollapseWhitespace(tp.SanitizeUTF8(text))
	cleaned = strings.Trim(cleaned, `"'`)
	return tp.TruncateText(cleaned, maxRunes)
}
