package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/user/tiredmanhattan/internal/caption"
	"github.com/user/tiredmanhattan/internal/moderation"
	"github.com/user/tiredmanhattan/internal/types"
)

// ErrProfane is returned by Post when the text fails the profanity check.
var ErrProfane = errors.New("text contains profanity")

// Renderer turns a caption into an encoded image.
type Renderer interface {
	Render(caption string) ([]byte, error)
}

// Responder moderates a mention, renders its caption and publishes the reply.
type Responder struct {
	gate      *moderation.Gate
	renderer  Renderer
	publisher types.Publisher
	logger    *slog.Logger
}

// NewResponder wires the moderation gate, renderer and publisher together.
func NewResponder(gate *moderation.Gate, renderer Renderer, publisher types.Publisher) *Responder {
	return &Responder{
		gate:      gate,
		renderer:  renderer,
		publisher: publisher,
		logger:    slog.Default().With("component", "responder"),
	}
}

// ProcessRun is the gateway Processor for inbound mentions.
func (r *Responder) ProcessRun(ctx context.Context, run *Run) error {
	m := run.Mention
	logger := r.logger.With("run_id", string(run.ID), "tweet_id", string(m.ID), "author", m.AuthorHandle)
	logger.Info("received mention", "text", m.Text)

	verdict := r.gate.Evaluate(m)
	if !verdict.Allowed() {
		run.DropReason = string(verdict.Reason)
		mentionsDropped.WithLabelValues(string(verdict.Reason)).Inc()
		logger.Info("ignoring mention", "reason", verdict.Reason, "text", verdict.Text)
		return nil
	}

	reply := types.Reply{
		Text:        strings.Join(verdict.Addressees, " "),
		InReplyToID: m.ID,
	}
	id, err := r.publish(ctx, verdict.Text, reply)
	if err != nil {
		return err
	}
	run.ReplyID = id
	logger.Info("reply sent", "usernames", verdict.Addressees, "reply_id", id)
	return nil
}

// Post publishes a standalone image for text. Only the profanity check
// applies; there is no mention to reply to.
func (r *Responder) Post(ctx context.Context, text string) (types.TweetID, error) {
	if r.gate.IsProfane(text) {
		mentionsDropped.WithLabelValues(string(moderation.ReasonProfanity)).Inc()
		return "", ErrProfane
	}
	id, err := r.publish(ctx, text, types.Reply{})
	if err != nil {
		return "", err
	}
	r.logger.Info("posted image", "text", text, "tweet_id", id)
	return id, nil
}

func (r *Responder) publish(ctx context.Context, text string, reply types.Reply) (types.TweetID, error) {
	content := caption.Clean(text)

	image, err := r.renderer.Render(content)
	if err != nil {
		return "", fmt.Errorf("render caption %q: %w", content, err)
	}

	mediaID, err := r.publisher.UploadImage(ctx, image)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	reply.MediaIDs = []types.MediaID{mediaID}

	id, err := r.publisher.Reply(ctx, reply)
	if err != nil {
		return "", fmt.Errorf("publish reply: %w", err)
	}
	repliesPublished.Inc()
	return id, nil
}
