package moderation

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

//go:embed words.txt
var defaultWords string

var nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)

// WordList flags text containing any token from a fixed set. It is safe for
// concurrent use once built.
type WordList struct {
	words map[string]struct{}
}

// NewWordList returns a filter seeded with the built-in list plus any extra
// words given.
func NewWordList(extra ...string) *WordList {
	wl := &WordList{words: make(map[string]struct{})}
	wl.load(strings.NewReader(defaultWords))
	for _, w := range extra {
		wl.add(w)
	}
	return wl
}

// LoadWordList builds a filter from the built-in list plus the words in path.
func LoadWordList(path string) (*WordList, error) {
	wl := NewWordList()
	if path == "" {
		return wl, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open word list: %w", err)
	}
	defer f.Close()
	if err := wl.load(f); err != nil {
		return nil, fmt.Errorf("read word list: %w", err)
	}
	return wl, nil
}

func (wl *WordList) load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		wl.add(line)
	}
	return scanner.Err()
}

func (wl *WordList) add(word string) {
	for _, tok := range Tokenize(word) {
		wl.words[tok] = struct{}{}
	}
}

// Len returns the number of distinct tokens in the list.
func (wl *WordList) Len() int {
	return len(wl.words)
}

// IsProfane reports whether any token of text is on the list.
func (wl *WordList) IsProfane(text string) bool {
	return len(wl.Matches(text)) > 0
}

// Matches returns every listed token found in text, in order of appearance.
func (wl *WordList) Matches(text string) []string {
	var out []string
	for _, tok := range Tokenize(text) {
		if _, ok := wl.words[tok]; ok {
			out = append(out, tok)
		}
	}
	return out
}

// Tokenize lower-cases text, strips punctuation and folds diacritics, then
// splits on whitespace.
func Tokenize(text string) []string {
	// transformers carry state, so build one per call
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	bare := strings.ToLower(nonTokenChars.ReplaceAllString(text, " "))
	folded, _, err := transform.String(fold, bare)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		folded = bare
	}
	return strings.Fields(folded)
}
