// Package normalize turns raw recognizer output into the canonical form used
// for command matching.
//
// Normalization lowercases the text, folds accented letters to their base
// letter (é → e, ç → c), drops everything that is not a letter, digit, or
// whitespace, removes filler stop words, and joins the remaining tokens with
// single spaces. The result is idempotent.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxInputBytes bounds both the input considered by
// [Normalizer.Normalize] and the length of its output.
const DefaultMaxInputBytes = 1024

// DefaultStopWords are the French filler words dropped before matching.
var DefaultStopWords = []string{
	"le", "la", "un", "une", "des", "fais", "peux", "tu", "il", "elle",
	"ce", "de", "a", "est", "s'il", "te", "plait",
}

// Option configures a [Normalizer].
type Option func(*Normalizer)

// WithStopWords replaces the stop-word list. Entries are normalized with the
// same character rules as input, so "s'il" is stored as "sil".
func WithStopWords(words []string) Option {
	return func(n *Normalizer) { n.rawStopWords = words }
}

// WithMaxInputBytes sets the length limit. Longer input is truncated at the
// last whole rune within the limit, and output that grew past the limit while
// lowercasing is cut back to the last whole token. Values <= 0 keep the default.
func WithMaxInputBytes(limit int) Option {
	return func(n *Normalizer) {
		if limit > 0 {
			n.maxInput = limit
		}
	}
}

// Normalizer is immutable after construction and safe for concurrent use.
type Normalizer struct {
	rawStopWords []string
	stopWords    map[string]struct{}
	maxInput     int
}

// New creates a [Normalizer] using [DefaultStopWords] unless overridden.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		rawStopWords: DefaultStopWords,
		maxInput:     DefaultMaxInputBytes,
	}
	for _, o := range opts {
		o(n)
	}
	n.stopWords = make(map[string]struct{}, len(n.rawStopWords))
	for _, w := range n.rawStopWords {
		for _, tok := range strings.Fields(filter(w)) {
			n.stopWords[tok] = struct{}{}
		}
	}
	n.rawStopWords = nil
	return n
}

var defaultNormalizer = New()

// Normalize normalizes raw with the default stop words and length limit.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// Normalize returns the canonical form of raw. Empty input yields empty
// output.
func (n *Normalizer) Normalize(raw string) string {
	raw = truncate(raw, n.maxInput)
	if raw == "" {
		return ""
	}

	tokens := strings.Fields(filter(raw))
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, stop := n.stopWords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}
	return clip(strings.Join(kept, " "), n.maxInput)
}

// IsStopWord reports whether the normalized token tok is dropped.
func (n *Normalizer) IsStopWord(tok string) bool {
	_, ok := n.stopWords[tok]
	return ok
}

// filter lowercases s, folds diacritics, and replaces every rune that is not a
// letter, digit, or whitespace by nothing.
func filter(s string) string {
	s = strings.ToLower(s)
	if folded, _, err := transform.String(foldChain(), s); err == nil {
		s = folded
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// foldChain returns a fresh transformer; transform.Transformer values carry
// state and must not be shared between goroutines.
func foldChain() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// clip cuts the normalized text s to at most limit bytes at a token boundary.
// Some letters are longer in lower case (Ⱥ → ⱥ), so s can exceed the limit the
// input was truncated to. Cutting whole tokens keeps the result a fixed point.
func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if s[limit] == ' ' {
		return s[:limit]
	}
	if i := strings.LastIndexByte(s[:limit], ' '); i >= 0 {
		return s[:i]
	}
	return ""
}
