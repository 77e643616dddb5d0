// internal/types/models.go
package types

import (
	"strings"
)

// Mention is a single post pushed by the filtered stream.
type Mention struct {
	ID               TweetID  `json:"id"`
	ConversationID   TweetID  `json:"conversation_id"`
	AuthorHandle     string   `json:"author_handle"`
	Text             string   `json:"text"`
	MentionedHandles []string `json:"mentioned_handles,omitempty"`
	HasMedia         bool     `json:"has_media,omitempty"`
	HasReferences    bool     `json:"has_references,omitempty"`
}

// IsConversationRoot reports whether the mention starts its own thread.
func (m *Mention) IsConversationRoot() bool {
	return m.ConversationID == m.ID
}

// Rule is a server-side predicate that selects which posts reach the stream.
type Rule struct {
	ID    string `json:"id,omitempty"`
	Value string `json:"value"`
	Tag   string `json:"tag,omitempty"`
}

// MentionRule returns the rule matching posts that mention handle.
func MentionRule(handle string) Rule {
	return Rule{Value: "@" + strings.TrimPrefix(handle, "@"), Tag: "mention"}
}

// Reply is the payload published in response to a mention.
type Reply struct {
	Text        string    `json:"text"`
	InReplyToID TweetID   `json:"in_reply_to_id,omitempty"`
	MediaIDs    []MediaID `json:"media_ids"`
}
