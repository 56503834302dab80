// Package jsonfield reads a single string field out of small flat JSON
// objects and escapes text for embedding in a JSON string literal.
//
// Recognizer results ({"text": "..."}) and relay responses
// ({"response": "...", ...}) are the only documents handled here; both are
// produced by trusted local engines and only one field is ever needed.
package jsonfield

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Extract returns the string value of key in doc. It locates the quoted key,
// the following colon, and the string literal after it, decoding escape
// sequences up to the first unescaped quote. ok is false when the key is
// absent, its value is not a string, or the string is unterminated.
//
// An occurrence of "key" that is not followed by a colon (for instance when
// it appears as another field's value) is skipped.
func Extract(doc, key string) (value string, ok bool) {
	needle := `"` + key + `"`
	for from := 0; from < len(doc); {
		idx := strings.Index(doc[from:], needle)
		if idx < 0 {
			return "", false
		}
		pos := skipSpace(doc, from+idx+len(needle))
		from += idx + 1
		if pos >= len(doc) || doc[pos] != ':' {
			continue
		}
		pos = skipSpace(doc, pos+1)
		if pos >= len(doc) || doc[pos] != '"' {
			return "", false
		}
		return readString(doc[pos+1:])
	}
	return "", false
}

func skipSpace(s string, i int) int {
	for i < len(s) {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}

// readString decodes a string body up to the closing quote.
func readString(s string) (string, bool) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			return b.String(), true
		case '\\':
			i++
			if i >= len(s) {
				return "", false
			}
			switch e := s[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'u':
				r, n := decodeUnicode(s[i+1:])
				if n == 0 {
					b.WriteByte('u')
					continue
				}
				b.WriteRune(r)
				i += n
			default:
				// \" \\ \/ and unknown escapes yield the escaped byte itself.
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", false
}

// decodeUnicode decodes the hex digits following a \u escape, joining a UTF-16
// surrogate pair when present. It returns the rune and the number of bytes
// consumed, or 0 when the digits are malformed.
func decodeUnicode(s string) (rune, int) {
	r1, ok := hex4(s)
	if !ok {
		return 0, 0
	}
	if !utf16.IsSurrogate(r1) {
		return r1, 4
	}
	if len(s) >= 10 && s[4] == '\\' && s[5] == 'u' {
		if r2, ok := hex4(s[6:]); ok {
			if r := utf16.DecodeRune(r1, r2); r != utf8.RuneError {
				return r, 10
			}
		}
	}
	return utf8.RuneError, 4
}

func hex4(s string) (rune, bool) {
	if len(s) < 4 {
		return 0, false
	}
	v, err := strconv.ParseUint(s[:4], 16, 16)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}

// Escape prepares s for embedding between the quotes of a JSON string:
// quotes and backslashes are escaped, newlines and carriage returns become
// spaces, tabs become \t, and other control characters are written as \u00XX.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			b.WriteString(`\"`)
		case c == '\\':
			b.WriteString(`\\`)
		case c == '\n' || c == '\r':
			b.WriteByte(' ')
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
			b.WriteString(`\u00`)
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0xf])
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

const hexDigits = "0123456789abcdef"
