package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/user/tiredmanhattan/internal/types"
)

const (
	uploadPath = "/1.1/media/upload.json"
	tweetsPath = "/2/tweets"
	mePath     = "/2/users/me"
)

// PublisherConfig configures a Publisher. Both clients must sign requests
// as the account.
type PublisherConfig struct {
	BaseURL       string
	UploadBaseURL string
	// UploadClient sends media uploads and lookups.
	UploadClient *http.Client
	// PostClient creates tweets. It should not retry, since a retried
	// create can publish twice. UploadClient is used when nil.
	PostClient *http.Client
	Logger     *slog.Logger
}

// Publisher uploads images and posts tweets. It implements types.Publisher.
type Publisher struct {
	baseURL       string
	uploadBaseURL string
	uploadClient  *http.Client
	postClient    *http.Client
	logger        *slog.Logger
}

// NewPublisher creates a Publisher from cfg.
func NewPublisher(cfg PublisherConfig) *Publisher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAPIBaseURL
	}
	if cfg.UploadBaseURL == "" {
		cfg.UploadBaseURL = DefaultUploadBaseURL
	}
	if cfg.PostClient == nil {
		cfg.PostClient = cfg.UploadClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Publisher{
		baseURL:       cfg.BaseURL,
		uploadBaseURL: cfg.UploadBaseURL,
		uploadClient:  cfg.UploadClient,
		postClient:    cfg.PostClient,
		logger:        cfg.Logger.With("component", "twitter-publisher"),
	}
}

// UploadImage uploads a PNG and returns its media id.
func (p *Publisher) UploadImage(ctx context.Context, png []byte) (types.MediaID, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("media", "image.png")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(p.uploadBaseURL, uploadPath), &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.uploadClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", decodeError(resp)
	}

	var out struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.MediaIDString == "" {
		return "", fmt.Errorf("upload response carried no media id")
	}
	p.logger.Debug("uploaded media", "media_id", out.MediaIDString, "bytes", len(png))
	return types.MediaID(out.MediaIDString), nil
}

type createTweetRequest struct {
	Text  string     `json:"text,omitempty"`
	Reply *replyRef  `json:"reply,omitempty"`
	Media *mediaRefs `json:"media,omitempty"`
}

type replyRef struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type mediaRefs struct {
	MediaIDs []string `json:"media_ids"`
}

// Reply posts reply and returns the new tweet's id. An empty InReplyToID
// posts a standalone tweet.
func (p *Publisher) Reply(ctx context.Context, reply types.Reply) (types.TweetID, error) {
	req := createTweetRequest{Text: reply.Text}
	if reply.InReplyToID != "" {
		req.Reply = &replyRef{InReplyToTweetID: string(reply.InReplyToID)}
	}
	if len(reply.MediaIDs) > 0 {
		ids := make([]string, len(reply.MediaIDs))
		for i, id := range reply.MediaIDs {
			ids[i] = string(id)
		}
		req.Media = &mediaRefs{MediaIDs: ids}
	}

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := doJSON(ctx, p.postClient, http.MethodPost, joinURL(p.baseURL, tweetsPath), req, &resp); err != nil {
		return "", fmt.Errorf("create tweet: %w", err)
	}
	return types.TweetID(resp.Data.ID), nil
}

// Me returns the username of the authenticated account.
func (p *Publisher) Me(ctx context.Context) (string, error) {
	var resp struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := doJSON(ctx, p.uploadClient, http.MethodGet, joinURL(p.baseURL, mePath), nil, &resp); err != nil {
		return "", fmt.Errorf("lookup account: %w", err)
	}
	return resp.Data.Username, nil
}
