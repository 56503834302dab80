package command

import (
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// shortPhraseLen is the longest phrase (in runes) matched with the tight
// tolerance.
const shortPhraseLen = 4

// Match is the result of scoring one transcript against a [Table].
type Match struct {
	// ID is the winning command, or [Unknown].
	ID ID

	// Phrase is the winning trigger phrase; empty when ID is Unknown.
	Phrase string

	// Distance is the edit distance to Phrase; -1 when ID is Unknown.
	Distance int

	// PhraseLen is the rune length of Phrase.
	PhraseLen int
}

// Matched reports whether a command was found.
func (m Match) Matched() bool { return m.ID != Unknown }

// Distance returns the Levenshtein distance between a and b, counting
// insertions, deletions, and substitutions of runes at cost 1.
func Distance(a, b string) int {
	return matchr.Levenshtein(a, b)
}

// Threshold returns the largest distance accepted for phrase: 1 for phrases of
// up to four runes, 2 otherwise.
func Threshold(phrase string) int {
	if utf8.RuneCountInString(phrase) <= shortPhraseLen {
		return 1
	}
	return 2
}

// Matcher scores normalized text against a fixed table. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	table Table
}

// NewMatcher returns a [Matcher] over a private copy of table.
func NewMatcher(table Table) *Matcher {
	t := make(Table, len(table))
	copy(t, table)
	return &Matcher{table: t}
}

// Match scans every entry in table order and returns the accepted entry with
// the strictly smallest distance. A candidate is accepted when its distance
// does not exceed [Threshold] of its phrase. Ties keep the earlier entry.
// Empty text never matches.
func (m *Matcher) Match(text string) Match {
	best := Match{ID: Unknown, Distance: -1}
	if text == "" {
		return best
	}
	for _, e := range m.table {
		d := Distance(text, e.Phrase)
		if d > Threshold(e.Phrase) {
			continue
		}
		if best.ID == Unknown || d < best.Distance {
			best = Match{
				ID:        e.ID,
				Phrase:    e.Phrase,
				Distance:  d,
				PhraseLen: utf8.RuneCountInString(e.Phrase),
			}
		}
	}
	return best
}

// Nearest returns the entry most similar to text by Jaro-Winkler similarity,
// regardless of tolerance, together with its score in [0, 1]. It is meant for
// diagnostics on unmatched transcripts. ok is false for an empty table or
// empty text.
func (m *Matcher) Nearest(text string) (e Entry, score float64, ok bool) {
	if text == "" || len(m.table) == 0 {
		return Entry{}, 0, false
	}
	for _, cand := range m.table {
		if s := matchr.JaroWinkler(text, cand.Phrase, false); !ok || s > score {
			e, score, ok = cand, s, true
		}
	}
	return e, score, ok
}
