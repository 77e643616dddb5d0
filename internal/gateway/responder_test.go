package gateway

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/tiredmanhattan/internal/moderation"
	"github.com/user/tiredmanhattan/internal/render"
	"github.com/user/tiredmanhattan/internal/types"
)

type fakePublisher struct {
	mu        sync.Mutex
	uploads   [][]byte
	replies   []types.Reply
	uploadErr error
}

func (p *fakePublisher) UploadImage(ctx context.Context, data []byte) (types.MediaID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uploadErr != nil {
		return "", p.uploadErr
	}
	p.uploads = append(p.uploads, data)
	return "media-1", nil
}

func (p *fakePublisher) Reply(ctx context.Context, reply types.Reply) (types.TweetID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, reply)
	return "reply-1", nil
}

type captionRecorder struct {
	captions []string
	err      error
}

func (c *captionRecorder) Render(caption string) ([]byte, error) {
	c.captions = append(c.captions, caption)
	return []byte("png"), c.err
}

func newTestResponder(r Renderer, p types.Publisher) *Responder {
	gate := moderation.NewGate("TiredManhattan", moderation.NewWordList())
	return NewResponder(gate, r, p)
}

func TestResponderReplies(t *testing.T) {
	renderer := &captionRecorder{}
	pub := &fakePublisher{}
	resp := newTestResponder(renderer, pub)

	m := &types.Mention{
		ID:               "42",
		ConversationID:   "42",
		AuthorHandle:     "alice",
		Text:             "@TiredManhattan pineapple",
		MentionedHandles: []string{"TiredManhattan", "bob"},
	}
	run := NewRun(m)
	require.NoError(t, resp.ProcessRun(context.Background(), run))

	assert.Equal(t, []string{"I AM TIRED OF PINEAPPLE."}, renderer.captions)
	require.Len(t, pub.replies, 1)
	assert.Equal(t, types.Reply{
		Text:        "@alice @bob",
		InReplyToID: "42",
		MediaIDs:    []types.MediaID{"media-1"},
	}, pub.replies[0])
	assert.Empty(t, run.DropReason)
}

func TestResponderDropsModeratedMentions(t *testing.T) {
	renderer := &captionRecorder{}
	pub := &fakePublisher{}
	resp := newTestResponder(renderer, pub)

	reply := &types.Mention{ID: "2", ConversationID: "1", AuthorHandle: "alice", Text: "@TiredManhattan hi"}
	run := NewRun(reply)
	require.NoError(t, resp.ProcessRun(context.Background(), run))
	assert.Equal(t, string(moderation.ReasonConversation), run.DropReason)

	rude := &types.Mention{ID: "3", ConversationID: "3", AuthorHandle: "alice", Text: "@TiredManhattan shit"}
	run = NewRun(rude)
	require.NoError(t, resp.ProcessRun(context.Background(), run))
	assert.Equal(t, string(moderation.ReasonProfanity), run.DropReason)

	assert.Empty(t, renderer.captions)
	assert.Empty(t, pub.replies)
}

func TestResponderPropagatesErrors(t *testing.T) {
	m := &types.Mention{ID: "1", ConversationID: "1", AuthorHandle: "alice", Text: "@TiredManhattan x"}

	resp := newTestResponder(&captionRecorder{err: render.ErrAssetUnavailable}, &fakePublisher{})
	err := resp.ProcessRun(context.Background(), NewRun(m))
	assert.ErrorIs(t, err, render.ErrAssetUnavailable)

	pub := &fakePublisher{uploadErr: errors.New("upload failed")}
	resp = newTestResponder(&captionRecorder{}, pub)
	err = resp.ProcessRun(context.Background(), NewRun(m))
	assert.ErrorContains(t, err, "upload image")
	assert.Empty(t, pub.replies)
}

func TestResponderPost(t *testing.T) {
	renderer := &captionRecorder{}
	pub := &fakePublisher{}
	resp := newTestResponder(renderer, pub)

	id, err := resp.Post(context.Background(), "beans")
	require.NoError(t, err)
	assert.Equal(t, types.TweetID("reply-1"), id)
	assert.Equal(t, []string{"JEREMY SINCLAIR LOVES BEANS."}, renderer.captions)
	require.Len(t, pub.replies, 1)
	assert.Empty(t, pub.replies[0].InReplyToID)

	_, err = resp.Post(context.Background(), "bullshit")
	assert.ErrorIs(t, err, ErrProfane)
	assert.Len(t, pub.replies, 1)
}

func TestPipelineEndToEnd(t *testing.T) {
	assets, err := render.NewStaticAssets(image.NewRGBA(image.Rect(0, 0, 1700, 400)), nil)
	require.NoError(t, err)
	pub := &fakePublisher{}
	resp := newTestResponder(render.NewCompositor(render.DefaultSpec(), assets), pub)

	gw := New(resp.ProcessRun, 2)
	gw.Start(context.Background())
	gw.HandleInbound(context.Background(), &types.Mention{
		ID: "7", ConversationID: "7", AuthorHandle: "carol", Text: "@TiredManhattan meetings",
	})
	gw.HandleInbound(context.Background(), &types.Mention{
		ID: "8", ConversationID: "7", AuthorHandle: "dave", Text: "@TiredManhattan noise",
	})
	gw.Stop()

	require.Len(t, pub.uploads, 1)
	img, err := png.Decode(bytes.NewReader(pub.uploads[0]))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 850, 200), img.Bounds())
	require.Len(t, pub.replies, 1)
	assert.Equal(t, "@carol", pub.replies[0].Text)
	assert.Equal(t, types.TweetID("7"), pub.replies[0].InReplyToID)
}

func TestResponderRecordsReplyID(t *testing.T) {
	resp := newTestResponder(&captionRecorder{}, &fakePublisher{})

	run := NewRun(&types.Mention{ID: "43", ConversationID: "43", AuthorHandle: "alice", Text: "@TiredManhattan x"})
	require.NoError(t, resp.ProcessRun(context.Background(), run))
	assert.Equal(t, types.TweetID("reply-1"), run.ReplyID)
}

func TestGatewayOnFinish(t *testing.T) {
	var mu sync.Mutex
	var finished []*Run
	gw := New(func(ctx context.Context, run *Run) error {
		if run.Mention.ID == "bad" {
			return errors.New("boom")
		}
		return nil
	}, 2)
	gw.SetOnFinish(func(run *Run) {
		mu.Lock()
		defer mu.Unlock()
		finished = append(finished, run)
	})
	gw.Start(context.Background())
	gw.HandleInbound(context.Background(), &types.Mention{ID: "ok"})
	gw.HandleInbound(context.Background(), &types.Mention{ID: "bad"})
	gw.Stop()

	require.Len(t, finished, 2)
	statuses := map[types.TweetID]RunStatus{}
	for _, run := range finished {
		statuses[run.Mention.ID] = run.Status
	}
	assert.Equal(t, RunStatusComplete, statuses["ok"])
	assert.Equal(t, RunStatusFailed, statuses["bad"])
}
