// Package caption turns raw mention text into the bounded caption drawn on
// the image.
package caption

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	// MaxLength is the longest input, in UTF-16 code units, that is kept
	// verbatim.
	MaxLength = 30

	emptyText   = "the emptiness"
	longText    = "long tweets"
	unicodeText = "Unicode & Emojis"
	beansText   = "JEREMY SINCLAIR LOVES BEANS."
)

var controlChars = strings.NewReplacer("\t", "", "\n", "", "\r", "")

// Clean maps arbitrary text to a caption. It is total and pure.
func Clean(text string) string {
	content := strings.TrimSpace(text)
	if content == "" {
		content = emptyText
	}

	content = controlChars.Replace(content)

	if length(content) > MaxLength {
		content = longText
	}

	if ContainsNonASCII(content) {
		content = unicodeText
	}

	if strings.EqualFold(content, "beans") {
		return beansText
	}
	return strings.ToUpper("I AM TIRED OF " + content + ".")
}

// ContainsNonASCII reports whether s has any byte outside 7-bit ASCII,
// including bytes of invalid UTF-8 sequences.
func ContainsNonASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

// length counts UTF-16 code units so astral characters weigh two, which is
// how the platform counts post length.
func length(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
