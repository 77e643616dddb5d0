package caption

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify returns a file-name friendly version of a caption: lower-case,
// periods dropped, diacritics folded and everything else collapsed to '-'.
func Slugify(text string) string {
	// transformers carry state, so build one per call
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, text)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		folded = text
	}

	slug := strings.ToLower(strings.TrimSpace(folded))
	slug = strings.ReplaceAll(slug, ".", "")
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
