package main

import (
	"fmt"

	"github.com/gorilla/feeds"
	"github.com/samber/lo"
)

// FeedService renders a channel's published posts as an RSS feed.
type FeedService struct {
	storage Storage
}

func NewFeedService(storage Storage) *FeedService {
	return &FeedService{
		storage: storage,
	}
}

func (s *FeedService) GenerateFeed(channelID string, baseURL string) (*feeds.Feed, error) {
	channel, err := s.storage.GetChannelByID(channelID)
	if err != nil {
		return nil, fmt.Errorf("channel not found %s: %w", channelID, err)
	}

	items, err := s.storage.ListContent(channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get content for channel %s: %w", channelID, err)
	}

	published := lo.Filter(items, func(content *Content, _ int) bool {
		return content.Status == ContentStatusPublished
	})

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s - Published Posts", channel.Name),
		Link:        &feeds.Link{Href: fmt.Sprintf("%s/rss/%s", baseURL, channel.ID)},
		Description: fmt.Sprintf("Published posts for Telegram channel: %s", channel.Name),
		Created:     channel.CreatedAt,
	}

	feed.Items = lo.Map(published, func(content *Content, _ int) *feeds.Item {
		return s.contentToFeedItem(content)
	})

	return feed, nil
}

func (s *FeedService) contentToFeedItem(content *Content) *feeds.Item {
	body := fmt.Sprintf("<p>%s</p>", escapeHTML(content.Text))
	if content.ImageURL != "" {
		body += fmt.Sprintf(`<p><img src="%s" alt="%s"/></p>`,
			escapeHTML(content.ImageURL), escapeHTML(content.Title))
	}

	item := &feeds.Item{
		Title:       content.Title,
		Description: truncate(content.Text, 200),
		Content:     body,
		Id:          content.ID,
		Created:     content.CreatedAt,
	}
	if content.PublishedAt != nil {
		item.Created = *content.PublishedAt
	}

	return item
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func escapeHTML(s string) string {
	result := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '<':
			result = append(result, []rune("&lt;")...)
		case '>':
			result = append(result, []rune("&gt;")...)
		case '&':
			result = append(result, []rune("&amp;")...)
		case '"':
			result = append(result, []rune("&quot;")...)
		case '\'':
			result = append(result, []rune("&#39;")...)
		default:
			result = append(result, r)
		}
	}
	return string(result)
}
