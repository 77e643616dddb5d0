package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/tiredmanhattan/internal/stream"
	"github.com/user/tiredmanhattan/internal/types"
)

func newTestStream(t *testing.T, handler http.HandlerFunc) *Stream {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewStream(StreamConfig{BaseURL: srv.URL, Client: testHTTPClient()})
}

func TestListRules(t *testing.T) {
	s := newTestStream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, rulesPath, r.URL.Path)
		w.Write([]byte(`{"data":[{"id":"1","value":"@TiredManhattan","tag":"mention"}],"meta":{"result_count":1}}`))
	})

	rules, err := s.ListRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.Rule{{ID: "1", Value: "@TiredManhattan", Tag: "mention"}}, rules)
}

func TestListRulesEmpty(t *testing.T) {
	s := newTestStream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta":{"result_count":0}}`))
	})

	rules, err := s.ListRules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestAddRule(t *testing.T) {
	var got map[string][]types.Rule
	s := newTestStream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"data":[{"id":"9","value":"@TiredManhattan","tag":"mention"}],"meta":{"summary":{"created":1,"not_created":0}}}`))
	})

	require.NoError(t, s.AddRule(context.Background(), types.MentionRule("TiredManhattan")))
	assert.Equal(t, []types.Rule{{Value: "@TiredManhattan", Tag: "mention"}}, got["add"])
}

func TestAddRuleErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"duplicate", `{"meta":{"summary":{"created":0,"not_created":1}},"errors":[{"title":"DuplicateRule","value":"@x"}]}`, false},
		{"invalid", `{"meta":{"summary":{"created":0,"not_created":1}},"errors":[{"title":"Invalid Rule","detail":"bad operator"}]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStream(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			err := s.AddRule(context.Background(), types.MentionRule("x"))
			if tt.wantErr {
				assert.ErrorContains(t, err, "bad operator")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

const mentionFrame = `{"data":{"id":"100","conversation_id":"100","author_id":"u1","text":"@TiredManhattan @bob meetings",` +
	`"entities":{"mentions":[{"username":"TiredManhattan"},{"username":"bob"}]}},` +
	`"includes":{"users":[{"id":"u2","username":"bob"},{"id":"u1","username":"alice"}]}}`

const replyFrame = `{"data":{"id":"101","conversation_id":"100","author_id":"u1","text":"@TiredManhattan again",` +
	`"attachments":{"media_keys":["3_1"]},"referenced_tweets":[{"type":"replied_to","id":"100"}]},` +
	`"includes":{"users":[{"id":"u1","username":"alice"}]}}`

func TestSubscriptionDecodesFrames(t *testing.T) {
	s := newTestStream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, streamPath, r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("expansions"), "entities.mentions.username")
		fmt.Fprint(w, "\r\n"+mentionFrame+"\r\n\r\n"+replyFrame+"\r\n"+`{"matching_rules":[]}`+"\r\n")
	})

	ctx := context.Background()
	sub, err := s.Open(ctx)
	require.NoError(t, err)
	defer sub.Close()

	m, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, &types.Mention{
		ID:               "100",
		ConversationID:   "100",
		AuthorHandle:     "alice",
		Text:             "@TiredManhattan @bob meetings",
		MentionedHandles: []string{"TiredManhattan", "bob"},
	}, m)

	m, err = sub.Next(ctx)
	require.NoError(t, err)
	assert.True(t, m.HasMedia)
	assert.True(t, m.HasReferences)
	assert.False(t, m.IsConversationRoot())

	m, err = sub.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSubscriptionErrorFrame(t *testing.T) {
	s := newTestStream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors":[{"title":"ConnectionException","connection_issue":"TooManyConnections","detail":"limit"}]}`+"\r\n")
	})

	sub, err := s.Open(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	_, err = sub.Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, stream.FailureRateLimit, stream.Classify(err))
}

func TestOpenRateLimited(t *testing.T) {
	s := newTestStream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"title":"ConnectionException","detail":"This stream is currently at the maximum allowed connection limit.","status":429}`))
	})

	_, err := s.Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, stream.FailureRateLimit, stream.Classify(err))
}

func TestOpenServerError(t *testing.T) {
	s := newTestStream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"title":"Unauthorized","status":401}`))
	})

	_, err := s.Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, stream.FailureTransient, stream.Classify(err))
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	release := make(chan struct{})
	s := newTestStream(t, func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	sub, err := s.Open(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		done <- err
	}()

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
	assert.Error(t, <-done)
}

func TestStreamAgainstSupervisor(t *testing.T) {
	var ruleAdds atomic.Int32
	s := newTestStream(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == rulesPath && r.Method == http.MethodGet:
			w.Write([]byte(`{"meta":{"result_count":0}}`))
		case r.URL.Path == rulesPath:
			ruleAdds.Add(1)
			w.Write([]byte(`{"meta":{"summary":{"created":1,"not_created":0}}}`))
		default:
			fmt.Fprint(w, mentionFrame+"\r\n")
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan *types.Mention, 1)
	sup := stream.NewSupervisor(s, "TiredManhattan", dispatchFunc(func(m *types.Mention) {
		select {
		case got <- m:
		default:
		}
		cancel()
	}))

	require.ErrorIs(t, sup.Run(ctx), context.Canceled)
	assert.Equal(t, int32(1), ruleAdds.Load())
	m := <-got
	assert.Equal(t, types.TweetID("100"), m.ID)
}

type dispatchFunc func(*types.Mention)

func (f dispatchFunc) HandleInbound(_ context.Context, m *types.Mention) { f(m) }
