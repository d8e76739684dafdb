package main

import (
	"context"
	"fmt"
	"log/slog"
)

const parseModeMarkdown = "Markdown"

// Publisher delivers one Content record to one channel with best-effort
// degradation: photo with caption, photo without caption, markdown text,
// plain text. The chain is strictly sequential, terminates at the first
// success, and never retries the same payload shape twice. ChatNotFound
// and InvalidCredentials short-circuit it; every other failure degrades
// to the next shape.
type Publisher struct {
	telegram *TelegramClient
}

func NewPublisher(telegram *TelegramClient) *Publisher {
	return &Publisher{telegram: telegram}
}

func (p *Publisher) Deliver(ctx context.Context, channel *Channel, content *Content) error {
	slog.Info("Delivering content to telegram",
		"content_id", content.ID,
		"chat_id", channel.TelegramID,
		"token_length", len(channel.AccessToken),
		"has_image", content.ImageURL != "")

	if content.ImageURL == "" {
		// Nothing to attach, start at the text shapes.
		return p.sendText(ctx, channel, content)
	}

	caption := ComposeMessage(content.Title, content.Text, captionLimit)
	resp, err := p.telegram.SendPhoto(ctx, channel.AccessToken, photoPayload{
		ChatID:    channel.TelegramID,
		Photo:     content.ImageURL,
		Caption:   caption,
		ParseMode: parseModeMarkdown,
	})
	if err != nil {
		slog.Warn("Photo send failed at transport level, falling back to text", "content_id", content.ID)
		return p.sendText(ctx, channel, content)
	}
	if resp.OK {
		return nil
	}

	switch {
	case isCaptionTooLong(resp.Description):
		slog.Info("Caption rejected as too long, retrying without caption", "content_id", content.ID)
		return p.sendPhotoWithoutCaption(ctx, channel, content)
	case isChatNotFound(resp.Description):
		return ErrChatNotFound
	case isUnauthorized(resp.Description):
		return ErrInvalidCredentials
	case isBadRequest(resp.Description):
		slog.Warn("Photo send rejected as bad request, falling back to text",
			"content_id", content.ID, "description", resp.Description)
		return p.sendText(ctx, channel, content)
	default:
		slog.Warn("Photo send rejected, falling back to text",
			"content_id", content.ID, "description", resp.Description)
		return p.sendText(ctx, channel, content)
	}
}

func (p *Publisher) sendPhotoWithoutCaption(ctx context.Context, channel *Channel, content *Content) error {
	// Probe chat reachability first: a failing probe means the bot was
	// never added or the id is wrong, so no payload shape can succeed.
	probe, err := p.telegram.GetChat(ctx, channel.AccessToken, channel.TelegramID)
	if err == nil && !probe.OK && isChatNotFound(probe.Description) {
		return ErrChannelUnreachable
	}

	resp, err := p.telegram.SendPhoto(ctx, channel.AccessToken, photoPayload{
		ChatID: channel.TelegramID,
		Photo:  content.ImageURL,
	})
	if err != nil {
		return p.sendText(ctx, channel, content)
	}
	if resp.OK {
		return nil
	}

	switch {
	case isChatNotFound(resp.Description):
		return ErrChatNotFound
	case isUnauthorized(resp.Description):
		return ErrInvalidCredentials
	case isWrongFileID(resp.Description):
		slog.Warn("Image URL rejected by telegram, falling back to text",
			"content_id", content.ID)
		return p.sendText(ctx, channel, content)
	default:
		slog.Warn("Captionless photo send rejected, falling back to text",
			"content_id", content.ID, "description", resp.Description)
		return p.sendText(ctx, channel, content)
	}
}

func (p *Publisher) sendText(ctx context.Context, channel *Channel, content *Content) error {
	resp, err := p.telegram.SendMessage(ctx, channel.AccessToken, messagePayload{
		ChatID:    channel.TelegramID,
		Text:      ComposeMessage(content.Title, content.Text, messageLimit),
		ParseMode: parseModeMarkdown,
	})
	if err != nil {
		return p.sendPlainText(ctx, channel, content)
	}
	if resp.OK {
		return nil
	}

	switch {
	case isChatNotFound(resp.Description):
		return ErrChatNotFound
	case isUnauthorized(resp.Description):
		return ErrInvalidCredentials
	case isParseError(resp.Description):
		slog.Warn("Markdown entities rejected, falling back to plain text",
			"content_id", content.ID)
		return p.sendPlainText(ctx, channel, content)
	default:
		slog.Warn("Markdown message rejected, falling back to plain text",
			"content_id", content.ID, "description", resp.Description)
		return p.sendPlainText(ctx, channel, content)
	}
}

func (p *Publisher) sendPlainText(ctx context.Context, channel *Channel, content *Content) error {
	resp, err := p.telegram.SendMessage(ctx, channel.AccessToken, messagePayload{
		ChatID: channel.TelegramID,
		Text:   ComposePlainText(content.Title, content.Text),
	})
	if err != nil {
		return fmt.Errorf("%w: transport error on final attempt", ErrDeliveryFailed)
	}
	if resp.OK {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDeliveryFailed, resp.Description)
}
