package session

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxContentSize bounds the bytes of one turn.
const DefaultMaxContentSize = 16 << 10

var (
	ErrContentTooLarge = errors.New("content exceeds maximum allowed size")
	ErrInvalidUTF8     = errors.New("content contains invalid UTF-8 sequences")
)

// SanitizeContent enforces the size limit, validates UTF-8 and strips control
// characters other than newline, tab and carriage return.
func SanitizeContent(content string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxContentSize
	}
	if len(content) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrContentTooLarge, len(content), limit)
	}
	if !utf8.ValidString(content) {
		return "", ErrInvalidUTF8
	}

	if !strings.ContainsFunc(content, unsafeControl) {
		return content, nil
	}
	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		if !unsafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func unsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}
