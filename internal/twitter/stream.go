package twitter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/user/tiredmanhattan/internal/types"
)

const (
	rulesPath  = "/2/tweets/search/stream/rules"
	streamPath = "/2/tweets/search/stream"

	maxFrameSize = 1 << 20
)

// streamQuery asks for everything the moderation gate looks at.
var streamQuery = url.Values{
	"expansions":   {"author_id,entities.mentions.username,attachments.media_keys,referenced_tweets.id"},
	"tweet.fields": {"author_id,conversation_id,entities,attachments,referenced_tweets"},
	"user.fields":  {"username"},
}

// StreamConfig configures a Stream.
type StreamConfig struct {
	BaseURL string
	// Client sends rule requests.
	Client *http.Client
	// StreamClient holds the long-lived connection and must not have a
	// timeout. Client is used when nil.
	StreamClient *http.Client
	Logger       *slog.Logger
}

// Stream is the filtered-stream feed. It implements types.Feed.
type Stream struct {
	baseURL      string
	client       *http.Client
	streamClient *http.Client
	logger       *slog.Logger
}

// NewStream creates a Stream from cfg.
func NewStream(cfg StreamConfig) *Stream {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAPIBaseURL
	}
	if cfg.StreamClient == nil {
		cfg.StreamClient = cfg.Client
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Stream{
		baseURL:      cfg.BaseURL,
		client:       cfg.Client,
		streamClient: cfg.StreamClient,
		logger:       cfg.Logger.With("component", "twitter-stream"),
	}
}

type rulesResponse struct {
	Data []types.Rule `json:"data"`
	Meta struct {
		Summary struct {
			Created    int `json:"created"`
			NotCreated int `json:"not_created"`
		} `json:"summary"`
	} `json:"meta"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Value  string `json:"value"`
	} `json:"errors"`
}

// ListRules returns the rules currently registered for the stream.
func (s *Stream) ListRules(ctx context.Context) ([]types.Rule, error) {
	var resp rulesResponse
	if err := doJSON(ctx, s.client, http.MethodGet, joinURL(s.baseURL, rulesPath), nil, &resp); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return resp.Data, nil
}

// AddRule registers rule. A rule that already exists is not an error.
func (s *Stream) AddRule(ctx context.Context, rule types.Rule) error {
	req := map[string][]types.Rule{
		"add": {{Value: rule.Value, Tag: rule.Tag}},
	}
	var resp rulesResponse
	if err := doJSON(ctx, s.client, http.MethodPost, joinURL(s.baseURL, rulesPath), req, &resp); err != nil {
		return fmt.Errorf("add rule %q: %w", rule.Value, err)
	}
	if resp.Meta.Summary.NotCreated == 0 {
		return nil
	}
	for _, e := range resp.Errors {
		if e.Title == "DuplicateRule" {
			s.logger.Info("rule already registered", "value", rule.Value)
			continue
		}
		return fmt.Errorf("add rule %q: %s: %s", rule.Value, e.Title, e.Detail)
	}
	return nil
}

// Open connects to the stream. The connection lives until ctx is done, the
// server ends it, or the returned subscription is closed.
func (s *Stream) Open(ctx context.Context) (types.Subscription, error) {
	u := joinURL(s.baseURL, streamPath) + "?" + streamQuery.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("open stream: %w", decodeError(resp))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxFrameSize)
	return &subscription{
		body:    resp.Body,
		scanner: scanner,
		logger:  s.logger,
	}, nil
}

type subscription struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Next returns the next post. Blank keep-alive lines are skipped; frames
// without a post yield a nil mention.
func (s *subscription) Next(ctx context.Context) (*types.Mention, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return s.decode(line)
	}
	if err := s.scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, io.EOF
}

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

type streamFrame struct {
	Data *struct {
		ID             string `json:"id"`
		Text           string `json:"text"`
		AuthorID       string `json:"author_id"`
		ConversationID string `json:"conversation_id"`
		Entities       struct {
			Mentions []struct {
				Username string `json:"username"`
			} `json:"mentions"`
		} `json:"entities"`
		Attachments struct {
			MediaKeys []string `json:"media_keys"`
		} `json:"attachments"`
		ReferencedTweets []struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"referenced_tweets"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
	Errors []struct {
		Title           string `json:"title"`
		Detail          string `json:"detail"`
		ConnectionIssue string `json:"connection_issue"`
	} `json:"errors"`
}

func (s *subscription) decode(line []byte) (*types.Mention, error) {
	var frame streamFrame
	if err := json.Unmarshal(line, &frame); err != nil {
		s.logger.Warn("skipping malformed frame", "error", err)
		return nil, nil
	}

	if frame.Data == nil || frame.Data.ID == "" {
		if len(frame.Errors) > 0 {
			e := frame.Errors[0]
			parts := []string{e.Title, e.ConnectionIssue, e.Detail}
			return nil, fmt.Errorf("stream error: %s", joinNonEmpty(parts, ": "))
		}
		return nil, nil
	}

	d := frame.Data
	m := &types.Mention{
		ID:             types.TweetID(d.ID),
		ConversationID: types.TweetID(d.ConversationID),
		Text:           d.Text,
		HasMedia:       len(d.Attachments.MediaKeys) > 0,
		HasReferences:  len(d.ReferencedTweets) > 0,
	}
	for _, u := range frame.Includes.Users {
		if u.ID == d.AuthorID {
			m.AuthorHandle = u.Username
			break
		}
	}
	for _, mention := range d.Entities.Mentions {
		m.MentionedHandles = append(m.MentionedHandles, mention.Username)
	}
	return m, nil
}

func joinNonEmpty(parts []string, sep string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
