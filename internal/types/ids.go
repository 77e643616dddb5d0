// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type RunID string
type TweetID string
type MediaID string

func NewRunID() RunID {
	return RunID(uuid.New().String())
}
