package hook

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxLength vetoes drafts longer than n runes.
func MaxLength(n int) Fn {
	return func(_ context.Context, _ string, data any) (any, error) {
		d, ok := data.(*Draft)
		if !ok {
			return data, nil
		}
		if utf8.RuneCountInString(d.Content) > n {
			return d, fmt.Errorf("%w: content exceeds %d characters", ErrInterrupt, n)
		}
		return d, nil
	}
}

// MaskWords replaces each listed word (case-insensitive) with asterisks.
func MaskWords(words []string) Fn {
	lowered := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			lowered = append(lowered, strings.ToLower(w))
		}
	}
	return func(_ context.Context, _ string, data any) (any, error) {
		d, ok := data.(*Draft)
		if !ok || len(lowered) == 0 {
			return data, nil
		}
		d.Content = mask(d.Content, lowered)
		return d, nil
	}
}

func mask(s string, words []string) string {
	lower := strings.ToLower(s)
	// ToLower can change byte lengths outside ASCII; fall back to matching
	// on the unfolded text in that case.
	if len(lower) != len(s) {
		lower = s
	}
	out := []byte(s)
	for _, w := range words {
		for i := 0; ; {
			j := strings.Index(lower[i:], w)
			if j < 0 {
				break
			}
			start := i + j
			for k := start; k < start+len(w); k++ {
				out[k] = '*'
			}
			i = start + len(w)
		}
	}
	return string(out)
}
