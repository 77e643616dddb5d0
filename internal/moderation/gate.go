// Package moderation decides which mentions the bot answers.
package moderation

import (
	"regexp"
	"strings"

	"github.com/user/tiredmanhattan/internal/types"
)

// Reason names why a mention was dropped.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonSelf         Reason = "self_authored"
	ReasonConversation Reason = "not_conversation_root"
	ReasonMedia        Reason = "has_media"
	ReasonReference    Reason = "has_references"
	ReasonProfanity    Reason = "profanity"
)

// Verdict is the outcome of evaluating one mention.
type Verdict struct {
	Reason Reason
	// Text is the mention text with the bot's handle removed.
	Text string
	// Addressees are "@handle" strings for everyone in the thread but the bot.
	Addressees []string
}

// Allowed reports whether the mention should be answered.
func (v Verdict) Allowed() bool {
	return v.Reason == ReasonNone
}

// Gate applies structural and profanity checks to inbound mentions.
type Gate struct {
	handle  string
	filter  types.ProfanityFilter
	mention *regexp.Regexp
}

// NewGate creates a Gate for the bot account handle.
func NewGate(handle string, filter types.ProfanityFilter) *Gate {
	handle = strings.TrimPrefix(handle, "@")
	return &Gate{
		handle:  handle,
		filter:  filter,
		mention: regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(handle) + `\b`),
	}
}

// Evaluate runs the cheap structural checks first, then profanity.
func (g *Gate) Evaluate(m *types.Mention) Verdict {
	if strings.EqualFold(strings.TrimPrefix(m.AuthorHandle, "@"), g.handle) {
		return Verdict{Reason: ReasonSelf}
	}
	if !m.IsConversationRoot() {
		return Verdict{Reason: ReasonConversation}
	}
	if m.HasMedia {
		return Verdict{Reason: ReasonMedia}
	}
	if m.HasReferences {
		return Verdict{Reason: ReasonReference}
	}

	text := g.StripMentions(m.Text)
	addressees := g.addressees(m)
	if g.IsProfane(text) {
		return Verdict{Reason: ReasonProfanity, Text: text, Addressees: addressees}
	}
	return Verdict{Text: text, Addressees: addressees}
}

// IsProfane applies only the profanity predicate.
func (g *Gate) IsProfane(text string) bool {
	return g.filter != nil && g.filter.IsProfane(text)
}

// StripMentions removes every @mention of the bot and trims the result.
func (g *Gate) StripMentions(text string) string {
	return strings.TrimSpace(g.mention.ReplaceAllString(text, ""))
}

func (g *Gate) addressees(m *types.Mention) []string {
	handles := append([]string{m.AuthorHandle}, m.MentionedHandles...)
	seen := make(map[string]bool, len(handles))
	out := make([]string, 0, len(handles))
	for _, h := range handles {
		h = strings.TrimPrefix(h, "@")
		key := strings.ToLower(h)
		if h == "" || key == strings.ToLower(g.handle) || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, "@"+h)
	}
	return out
}
