package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/tripchat/pkg/ports"
)

// DefaultRedactPatterns match e-mail addresses and card-like digit runs.
var DefaultRedactPatterns = []string{
	`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
	`\b(?:\d{4}[ -]){3}\d{4}\b|\b\d{16}\b`,
}

const redacted = "***"

type redactMiddleware struct {
	next ports.KeyValueStore
	mask func([]byte) []byte
}

// NewRedactor returns a function that masks every match of the patterns.
// Patterns must not match JSON delimiters, otherwise stored records break.
func NewRedactor(patternStrings []string) func([]byte) []byte {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(value []byte) []byte {
		for _, re := range patterns {
			value = re.ReplaceAll(value, []byte(redacted))
		}
		return value
	}
}

// NewRedactMiddleware masks every match of the patterns in values before they
// reach the store. Redaction is one-way: Get returns the masked value.
// Values already compressed by the caller are opaque here; mask those with
// NewRedactor before compression.
func NewRedactMiddleware(patternStrings []string) Middleware {
	mask := NewRedactor(patternStrings)
	return func(next ports.KeyValueStore) ports.KeyValueStore {
		return &redactMiddleware{next: next, mask: mask}
	}
}

func (m *redactMiddleware) Set(ctx context.Context, key string, value []byte) error {
	return m.next.Set(ctx, key, m.mask(value))
}

func (m *redactMiddleware) Get(ctx context.Context, key string) ([]byte, error) {
	return m.next.Get(ctx, key)
}

func (m *redactMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

func (m *redactMiddleware) Keys(ctx context.Context, prefix string) ([]string, error) {
	return m.next.Keys(ctx, prefix)
}
