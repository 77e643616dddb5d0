// internal/types/interfaces.go
package types

import (
	"context"
)

// Feed is the push source of mentions.
type Feed interface {
	ListRules(ctx context.Context) ([]Rule, error)
	AddRule(ctx context.Context, rule Rule) error
	Open(ctx context.Context) (Subscription, error)
}

// Subscription is one open connection to the feed. Next blocks until a
// mention arrives, the stream fails, or ctx is done. A nil mention with a nil
// error is a frame that carried no post and should be skipped.
type Subscription interface {
	Next(ctx context.Context) (*Mention, error)
	Close() error
}

// Publisher uploads rendered images and posts replies.
type Publisher interface {
	UploadImage(ctx context.Context, png []byte) (MediaID, error)
	Reply(ctx context.Context, reply Reply) (TweetID, error)
}

// ProfanityFilter is the moderation predicate.
type ProfanityFilter interface {
	IsProfane(text string) bool
}
