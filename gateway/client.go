// Package gateway talks to the chat platform's REST API on behalf of the
// action executor.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/liamcoop/triggers/actions"
	"github.com/liamcoop/triggers/rules"
)

// Client implements actions.Platform over HTTP.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Logger  *slog.Logger
}

// NewClient creates a client for the gateway at baseURL. Requests are never
// retried.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP: &http.Client{
			Transport: otelhttp.NewTransport(cleanhttp.DefaultPooledTransport()),
			Timeout:   timeout,
		},
		Logger: logger.With("component", "gateway"),
	}
}

type messageReference struct {
	MessageID string `json:"message_id"`
}

type allowedMentions struct {
	Parse       []string `json:"parse"`
	RepliedUser bool     `json:"replied_user"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embedBody struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Image       *embedImage  `json:"image,omitempty"`
	Thumbnail   *embedImage  `json:"thumbnail,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
}

type createMessage struct {
	Content          string            `json:"content,omitempty"`
	Embeds           []embedBody       `json:"embeds,omitempty"`
	MessageReference *messageReference `json:"message_reference,omitempty"`
	AllowedMentions  *allowedMentions  `json:"allowed_mentions,omitempty"`
}

type createdObject struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

func toEmbedBody(e rules.Embed) embedBody {
	out := embedBody{
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		Color:       e.Color,
	}
	if e.Footer != "" {
		out.Footer = &embedFooter{Text: e.Footer}
	}
	if e.ImageURL != "" {
		out.Image = &embedImage{URL: e.ImageURL}
	}
	if e.ThumbnailURL != "" {
		out.Thumbnail = &embedImage{URL: e.ThumbnailURL}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, embedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}

func (c *Client) SendEmbed(ctx context.Context, channelID string, embed rules.Embed) (actions.Artifact, error) {
	return c.postMessage(ctx, channelID, createMessage{Embeds: []embedBody{toEmbedBody(embed)}})
}

func (c *Client) SendText(ctx context.Context, channelID, text string) (actions.Artifact, error) {
	return c.postMessage(ctx, channelID, createMessage{Content: text})
}

func (c *Client) Reply(ctx context.Context, channelID, messageID, text string, suppressMention bool) (actions.Artifact, error) {
	msg := createMessage{
		Content:          text,
		MessageReference: &messageReference{MessageID: messageID},
	}
	if suppressMention {
		msg.AllowedMentions = &allowedMentions{Parse: []string{}, RepliedUser: false}
	}
	return c.postMessage(ctx, channelID, msg)
}

func (c *Client) SendDirect(ctx context.Context, userID, text string) (actions.Artifact, error) {
	var dm createdObject
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", map[string]string{"recipient_id": userID}, &dm); err != nil {
		return actions.Artifact{}, fmt.Errorf("failed to open direct channel: %w", err)
	}
	a, err := c.postMessage(ctx, dm.ID, createMessage{Content: text})
	if err != nil {
		return actions.Artifact{}, err
	}
	a.Kind = actions.ArtifactDirect
	a.UserID = userID
	return a, nil
}

func (c *Client) AddReaction(ctx context.Context, channelID, messageID, emoji string) (actions.Artifact, error) {
	if err := c.do(ctx, http.MethodPut, reactionPath(channelID, messageID, emoji), nil, nil); err != nil {
		return actions.Artifact{}, err
	}
	return actions.Artifact{
		Kind:      actions.ArtifactReaction,
		ChannelID: channelID,
		MessageID: messageID,
		Emoji:     emoji,
	}, nil
}

func (c *Client) DeleteArtifact(ctx context.Context, a actions.Artifact) error {
	switch a.Kind {
	case actions.ArtifactReaction:
		return c.do(ctx, http.MethodDelete, reactionPath(a.ChannelID, a.MessageID, a.Emoji), nil, nil)
	case actions.ArtifactMessage, actions.ArtifactDirect:
		return c.do(ctx, http.MethodDelete, "/channels/"+url.PathEscape(a.ChannelID)+"/messages/"+url.PathEscape(a.MessageID), nil, nil)
	default:
		return fmt.Errorf("unknown artifact kind %q", a.Kind)
	}
}

func reactionPath(channelID, messageID, emoji string) string {
	return "/channels/" + url.PathEscape(channelID) +
		"/messages/" + url.PathEscape(messageID) +
		"/reactions/" + url.PathEscape(emoji) + "/@me"
}

func (c *Client) postMessage(ctx context.Context, channelID string, msg createMessage) (actions.Artifact, error) {
	var created createdObject
	if err := c.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(channelID)+"/messages", msg, &created); err != nil {
		return actions.Artifact{}, err
	}
	if created.ChannelID == "" {
		created.ChannelID = channelID
	}
	return actions.Artifact{
		Kind:      actions.ArtifactMessage,
		ChannelID: created.ChannelID,
		MessageID: created.ID,
	}, nil
}

// APIError is a non-2xx gateway response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bot "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.Logger.Debug("gateway request failed", "method", method, "path", path, "status", resp.StatusCode)
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
