package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/liamcoop/triggers/render"
	"github.com/liamcoop/triggers/rules"
)

var errNoPlatform = errors.New("no platform configured")

func resolveChannel(req Request) (string, error) {
	if req.Preset.ChannelID != "" {
		return req.Preset.ChannelID, nil
	}
	if req.Context.Channel.ID != "" {
		return req.Context.Channel.ID, nil
	}
	return "", &AddressingError{PresetType: string(req.Preset.Type), Target: "channel"}
}

func handleEmbed(ctx context.Context, x *Executor, req Request) (Result, error) {
	if x.Platform == nil {
		return Result{}, errNoPlatform
	}
	if req.Preset.Embed == nil {
		return Result{}, errors.New("embed preset has no embed")
	}
	channelID, err := resolveChannel(req)
	if err != nil {
		return Result{}, err
	}

	src := req.Preset.Embed
	embed := rules.Embed{
		Title:        render.Render(src.Title, req.Context),
		Description:  render.Render(src.Description, req.Context),
		URL:          src.URL,
		Color:        src.Color,
		Footer:       render.Render(src.Footer, req.Context),
		ImageURL:     src.ImageURL,
		ThumbnailURL: src.ThumbnailURL,
	}
	for _, f := range src.Fields {
		embed.Fields = append(embed.Fields, rules.EmbedField{
			Name:   render.Render(f.Name, req.Context),
			Value:  render.Render(f.Value, req.Context),
			Inline: f.Inline,
		})
	}

	a, err := x.Platform.SendEmbed(ctx, channelID, embed)
	if err != nil {
		return Result{}, fmt.Errorf("failed to send embed to channel %s: %w", channelID, err)
	}
	return Result{Artifact: &a, Summary: fmt.Sprintf("sent embed to channel %s", channelID)}, nil
}

func handleText(ctx context.Context, x *Executor, req Request) (Result, error) {
	if x.Platform == nil {
		return Result{}, errNoPlatform
	}
	channelID, err := resolveChannel(req)
	if err != nil {
		return Result{}, err
	}
	text := render.Render(req.Preset.Template, req.Context)
	a, err := x.Platform.SendText(ctx, channelID, text)
	if err != nil {
		return Result{}, fmt.Errorf("failed to send text to channel %s: %w", channelID, err)
	}
	return Result{Artifact: &a, Summary: fmt.Sprintf("sent text to channel %s", channelID)}, nil
}

func handleReply(ctx context.Context, x *Executor, req Request) (Result, error) {
	if x.Platform == nil {
		return Result{}, errNoPlatform
	}
	// A reply references the triggering message, so it must go to that
	// message's channel. The preset's channel override does not apply.
	channelID := req.Context.Channel.ID
	if channelID == "" {
		return Result{}, &AddressingError{PresetType: string(req.Preset.Type), Target: "channel"}
	}
	messageID := req.Context.Message.ID
	if messageID == "" {
		return Result{}, &AddressingError{PresetType: string(req.Preset.Type), Target: "message"}
	}
	text := render.Render(req.Preset.Template, req.Context)
	a, err := x.Platform.Reply(ctx, channelID, messageID, text, !req.Preset.ReplyWithMention)
	if err != nil {
		return Result{}, fmt.Errorf("failed to reply to message %s: %w", messageID, err)
	}
	return Result{Artifact: &a, Summary: fmt.Sprintf("replied to message %s", messageID)}, nil
}

func handleWebhook(ctx context.Context, x *Executor, req Request) (Result, error) {
	if x.Webhooks == nil {
		return Result{}, errors.New("no webhook caller configured")
	}
	cfg := req.Preset.Webhook
	if cfg == nil || cfg.URL == "" {
		return Result{}, &AddressingError{PresetType: string(req.Preset.Type), Target: "url"}
	}

	method := strings.ToUpper(strings.TrimSpace(render.Render(cfg.Method, req.Context)))
	if method == "" {
		method = "POST"
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = render.Render(v, req.Context)
	}
	body, err := renderBody(cfg.Body, req.Context)
	if err != nil {
		return Result{}, err
	}

	status, err := x.Webhooks.Call(ctx, WebhookRequest{
		URL:     cfg.URL,
		Method:  method,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Summary: fmt.Sprintf("webhook %s %s returned %d", method, cfg.URL, status)}, nil
}

func handleDirect(ctx context.Context, x *Executor, req Request) (Result, error) {
	if x.Platform == nil {
		return Result{}, errNoPlatform
	}
	userID := strings.TrimSpace(req.Preset.TargetUserID)
	userID = strings.TrimPrefix(strings.TrimSuffix(strings.TrimPrefix(userID, "<@"), ">"), "!")
	if userID == "" {
		userID = req.Context.User.ID
	}
	if userID == "" {
		return Result{}, &AddressingError{PresetType: string(req.Preset.Type), Target: "recipient"}
	}
	text := render.Render(req.Preset.Template, req.Context)
	a, err := x.Platform.SendDirect(ctx, userID, text)
	if err != nil {
		return Result{}, fmt.Errorf("failed to send direct message to %s: %w", userID, err)
	}
	return Result{Artifact: &a, Summary: fmt.Sprintf("sent direct message to %s", userID)}, nil
}

func handleReaction(ctx context.Context, x *Executor, req Request) (Result, error) {
	if x.Platform == nil {
		return Result{}, errNoPlatform
	}
	if req.Preset.Emoji == "" {
		return Result{}, errors.New("reaction preset has no emoji")
	}
	channelID := req.Context.Channel.ID
	if channelID == "" {
		return Result{}, &AddressingError{PresetType: string(req.Preset.Type), Target: "channel"}
	}
	messageID := req.Context.Message.ID
	if messageID == "" {
		return Result{}, &AddressingError{PresetType: string(req.Preset.Type), Target: "message"}
	}
	a, err := x.Platform.AddReaction(ctx, channelID, messageID, req.Preset.Emoji)
	if err != nil {
		return Result{}, fmt.Errorf("failed to add reaction to message %s: %w", messageID, err)
	}
	return Result{Artifact: &a, Summary: fmt.Sprintf("reacted %s to message %s", req.Preset.Emoji, messageID)}, nil
}
