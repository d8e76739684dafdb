package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

const generatorSystemPrompt = "You are an expert content creator for Telegram channels. " +
	"You create engaging, informative content that drives user engagement."

// ContentService owns channel and content operations: CRUD with
// ownership filtering, AI generation tasks and publication.
type ContentService struct {
	storage   Storage
	tasks     *TaskStore
	generator Generator
	publisher *Publisher
	now       func() time.Time
}

func NewContentService(storage Storage, tasks *TaskStore, generator Generator, publisher *Publisher) *ContentService {
	return &ContentService{
		storage:   storage,
		tasks:     tasks,
		generator: generator,
		publisher: publisher,
		now:       time.Now,
	}
}

// Channel management

func (s *ContentService) GetChannel(userID, channelID string) (*Channel, error) {
	return s.storage.GetChannel(channelID, userID)
}

func (s *ContentService) ListChannels(userID string) ([]*Channel, error) {
	return s.storage.ListChannels(userID)
}

func (s *ContentService) AddChannel(userID, name, telegramID, accessToken string) (*Channel, error) {
	channel := &Channel{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		TelegramID:  telegramID,
		AccessToken: accessToken,
		CreatedAt:   s.now(),
	}
	if err := s.storage.SaveChannel(channel); err != nil {
		return nil, oops.With("channel_name", name).Wrap(err)
	}
	return channel, nil
}

func (s *ContentService) DeleteChannel(userID, channelID string) error {
	return s.storage.DeleteChannel(channelID, userID)
}

func (s *ContentService) UpdateChannelTheme(userID, channelID, theme string) (*Channel, error) {
	channel, err := s.storage.GetChannel(channelID, userID)
	if err != nil {
		return nil, err
	}

	theme = strings.TrimSpace(theme)
	if theme == "" {
		return nil, ErrEmptyTheme
	}

	channel.Theme = theme
	if err := s.storage.SaveChannel(channel); err != nil {
		return nil, oops.With("channel_id", channelID).Wrap(err)
	}

	slog.Info("Channel theme updated", "channel_id", channelID, "theme", theme)
	return channel, nil
}

// ChannelSettings bundles a channel with its analysis configuration.
type ChannelSettings struct {
	Channel          *Channel          `json:"channel"`
	AnalysisSettings *AnalysisSettings `json:"analysisSettings"`
	ChannelAnalysis  *ChannelAnalysis  `json:"channelAnalysis"`
}

func (s *ContentService) GetChannelSettings(userID, channelID string) (*ChannelSettings, error) {
	channel, err := s.storage.GetChannel(channelID, userID)
	if err != nil {
		return nil, err
	}

	settings, err := s.storage.GetAnalysisSettings(channelID)
	if err != nil {
		return nil, err
	}
	analysis, err := s.storage.GetChannelAnalysis(channelID)
	if err != nil {
		return nil, err
	}

	return &ChannelSettings{
		Channel:          channel,
		AnalysisSettings: settings,
		ChannelAnalysis:  analysis,
	}, nil
}

// Content management

func (s *ContentService) ListContent(userID, channelID string) ([]*Content, error) {
	if _, err := s.storage.GetChannel(channelID, userID); err != nil {
		return nil, err
	}
	return s.storage.ListContent(channelID)
}

func (s *ContentService) GetContent(userID, contentID string) (*Content, error) {
	content, err := s.storage.GetContent(contentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.storage.GetChannel(content.ChannelID, userID); err != nil {
		return nil, ErrContentNotFound
	}
	return content, nil
}

type CreateContentInput struct {
	ChannelID   string     `json:"channelId"`
	Title       string     `json:"title"`
	Text        string     `json:"text"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

func (s *ContentService) CreateContent(userID string, input CreateContentInput) (*Content, error) {
	if _, err := s.storage.GetChannel(input.ChannelID, userID); err != nil {
		return nil, err
	}

	status := ContentStatusDraft
	if input.ScheduledAt != nil {
		status = ContentStatusScheduled
	}

	content := &Content{
		ID:          uuid.NewString(),
		ChannelID:   input.ChannelID,
		Title:       input.Title,
		Text:        input.Text,
		ImageURL:    input.ImageURL,
		Status:      status,
		ScheduledAt: input.ScheduledAt,
		CreatedAt:   s.now(),
	}
	if err := s.storage.SaveContent(content); err != nil {
		return nil, oops.With("channel_id", input.ChannelID).Wrap(err)
	}
	return content, nil
}

type UpdateContentInput struct {
	ID          string         `json:"id"`
	Title       *string        `json:"title,omitempty"`
	Text        *string        `json:"text,omitempty"`
	ImageURL    *string        `json:"imageUrl,omitempty"`
	Status      *ContentStatus `json:"status,omitempty"`
	ScheduledAt *time.Time     `json:"scheduledAt,omitempty"`
}

// UpdateContent applies a partial update. A transition to PUBLISHED sets
// publishedAt on the first transition only and triggers delivery; a
// delivery failure does not fail the update, the row stays published.
func (s *ContentService) UpdateContent(ctx context.Context, userID string, input UpdateContentInput) (*Content, error) {
	content, err := s.GetContent(userID, input.ID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		content.Title = *input.Title
	}
	if input.Text != nil {
		content.Text = *input.Text
	}
	if input.ImageURL != nil {
		content.ImageURL = *input.ImageURL
	}
	if input.ScheduledAt != nil {
		content.ScheduledAt = input.ScheduledAt
	}

	isPublishing := input.Status != nil &&
		*input.Status == ContentStatusPublished &&
		content.Status != ContentStatusPublished

	if input.Status != nil && !isPublishing {
		content.Status = *input.Status
	}
	if isPublishing {
		content.Status = ContentStatusPublished
		if content.PublishedAt == nil {
			publishedAt := s.now()
			content.PublishedAt = &publishedAt
		}
	}

	if err := s.storage.SaveContent(content); err != nil {
		return nil, oops.With("content_id", content.ID).Wrap(err)
	}

	if isPublishing {
		channel, err := s.storage.GetChannel(content.ChannelID, userID)
		if err != nil {
			return nil, err
		}
		if err := s.publisher.Deliver(ctx, channel, content); err != nil {
			// The row is already published; delivery is reported, not
			// rolled back.
			slog.Error("Failed to deliver published content",
				"content_id", content.ID, "error", err)
		}
	}

	return content, nil
}

func (s *ContentService) DeleteContent(userID, contentID string) error {
	if _, err := s.GetContent(userID, contentID); err != nil {
		return err
	}
	return s.storage.DeleteContent(contentID)
}

// AI generation

// GenerateContent verifies ownership synchronously, then enqueues the
// generation unit and returns its task id. The unit generates text,
// then an image, then persists one DRAFT row; any failure marks the
// task FAILED with no row written.
func (s *ContentService) GenerateContent(userID, channelID, topic string) (string, error) {
	channel, err := s.storage.GetChannel(channelID, userID)
	if err != nil {
		return "", err
	}

	taskID := s.tasks.Enqueue(func(ctx context.Context) (string, error) {
		topicPrompt := "on a trending and engaging topic"
		if topic != "" {
			topicPrompt = fmt.Sprintf("about %s", topic)
		}

		prompt := fmt.Sprintf(
			"Generate a Telegram post %s for a channel named %q. "+
				"Include a title, engaging text (with emojis where appropriate), "+
				"and a prompt for an image that would complement the post.",
			topicPrompt, channel.Name)

		content, err := s.generateAndSave(ctx, channel, generatorSystemPrompt, prompt, nil)
		if err != nil {
			return "", err
		}
		return content.ID, nil
	})

	slog.Info("Content generation task queued", "task_id", taskID, "channel_id", channelID)
	return taskID, nil
}

// GeneratedContentStatus is the poll response for generation tasks.
type GeneratedContentStatus struct {
	Status  TaskStatus `json:"status"`
	Content *Content   `json:"content,omitempty"`
}

func (s *ContentService) GetGeneratedContent(userID, taskID string) (*GeneratedContentStatus, error) {
	task, err := s.tasks.GetStatus(taskID)
	if err != nil {
		return nil, err
	}

	switch task.Status {
	case TaskStatusPending, TaskStatusRunning:
		return &GeneratedContentStatus{Status: TaskStatusPending}, nil
	case TaskStatusFailed:
		return nil, oops.With("task_id", taskID).Errorf("content generation failed: %s", task.Error)
	}

	content, err := s.GetContent(userID, task.ResultID)
	if err != nil {
		return nil, err
	}
	return &GeneratedContentStatus{Status: TaskStatusCompleted, Content: content}, nil
}

// PublishContentNow generates one post from the channel's analysis and
// publishes it immediately. The content row is persisted as PUBLISHED
// before delivery; a delivery failure is logged and reported separately
// so the generated post is never lost.
func (s *ContentService) PublishContentNow(userID, channelID string) (string, error) {
	channel, analysis, err := s.channelWithAnalysis(userID, channelID)
	if err != nil {
		return "", err
	}

	taskID := s.tasks.Enqueue(func(ctx context.Context) (string, error) {
		prompt := s.pickPrompt(analysis, channel.Theme)
		system := fmt.Sprintf("You are an expert content creator for Telegram channels about %s. %s",
			channel.Theme, analysis.StylePrompt)

		publishedAt := s.now()
		content, err := s.generateAndSave(ctx, channel, system, prompt, &publishedAt)
		if err != nil {
			return "", err
		}

		if err := s.publisher.Deliver(ctx, channel, content); err != nil {
			slog.Error("Failed to deliver immediately published content",
				"content_id", content.ID, "error", err)
		}
		return content.ID, nil
	})

	slog.Info("Immediate publication task queued", "task_id", taskID, "channel_id", channelID)
	return taskID, nil
}

// StartAutomaticContentGeneration generates one post and schedules it
// for the next configured posting hour. A slot within the near-term
// window is published right away instead of waiting for the sweep.
func (s *ContentService) StartAutomaticContentGeneration(userID, channelID string) (string, error) {
	channel, analysis, err := s.channelWithAnalysis(userID, channelID)
	if err != nil {
		return "", err
	}

	taskID := s.tasks.Enqueue(func(ctx context.Context) (string, error) {
		prompt := s.pickPrompt(analysis, channel.Theme)
		system := fmt.Sprintf("You are an expert content creator for Telegram channels about %s. %s",
			channel.Theme, analysis.StylePrompt)

		draft, err := s.generator.GeneratePost(ctx, system, prompt)
		if err != nil {
			return "", err
		}
		imageURL, err := s.generateImage(ctx, channel.Theme, draft.ImagePrompt)
		if err != nil {
			return "", err
		}

		now := s.now()
		scheduledAt := NextPostingTime(now, analysis.PostingTimes)

		content := &Content{
			ID:          uuid.NewString(),
			ChannelID:   channel.ID,
			Title:       draft.Title,
			Text:        draft.Text,
			ImageURL:    imageURL,
			Status:      ContentStatusScheduled,
			ScheduledAt: &scheduledAt,
			CreatedAt:   now,
		}
		if err := s.storage.SaveContent(content); err != nil {
			return "", oops.With("channel_id", channel.ID).Wrap(err)
		}
		slog.Info("Content scheduled", "content_id", content.ID, "scheduled_at", scheduledAt)

		if !scheduledAt.After(now.Add(nearTermWindow)) {
			published, err := s.storage.PublishContent(content.ID, ContentStatusScheduled, s.now())
			if err != nil {
				return "", err
			}
			if err := s.publisher.Deliver(ctx, channel, published); err != nil {
				slog.Error("Failed to deliver near-term scheduled content",
					"content_id", content.ID, "error", err)
			}
		}
		return content.ID, nil
	})

	slog.Info("Automatic generation task queued", "task_id", taskID, "channel_id", channelID)
	return taskID, nil
}

func (s *ContentService) channelWithAnalysis(userID, channelID string) (*Channel, *ChannelAnalysis, error) {
	channel, err := s.storage.GetChannel(channelID, userID)
	if err != nil {
		return nil, nil, err
	}
	if channel.Theme == "" {
		return nil, nil, ErrThemeRequired
	}

	analysis, err := s.storage.GetChannelAnalysis(channelID)
	if err != nil {
		return nil, nil, err
	}
	if analysis == nil {
		return nil, nil, ErrAnalysisRequired
	}
	return channel, analysis, nil
}

func (s *ContentService) pickPrompt(analysis *ChannelAnalysis, theme string) string {
	template := "Create a post about ${theme}"
	if len(analysis.PostPrompts) > 0 {
		template = analysis.PostPrompts[rand.IntN(len(analysis.PostPrompts))]
	}
	return strings.ReplaceAll(template, themePlaceholder, theme)
}

func (s *ContentService) generateAndSave(ctx context.Context, channel *Channel, system, prompt string, publishedAt *time.Time) (*Content, error) {
	draft, err := s.generator.GeneratePost(ctx, system, prompt)
	if err != nil {
		return nil, err
	}
	slog.Info("Generated content", "channel_id", channel.ID, "title", draft.Title)

	imageURL, err := s.generateImage(ctx, channel.Theme, draft.ImagePrompt)
	if err != nil {
		return nil, err
	}

	status := ContentStatusDraft
	if publishedAt != nil {
		status = ContentStatusPublished
	}

	content := &Content{
		ID:          uuid.NewString(),
		ChannelID:   channel.ID,
		Title:       draft.Title,
		Text:        draft.Text,
		ImageURL:    imageURL,
		Status:      status,
		PublishedAt: publishedAt,
		CreatedAt:   s.now(),
	}
	if err := s.storage.SaveContent(content); err != nil {
		return nil, oops.With("channel_id", channel.ID).Wrap(err)
	}

	slog.Info("Content saved", "content_id", content.ID, "status", content.Status)
	return content, nil
}

func (s *ContentService) generateImage(ctx context.Context, theme, imagePrompt string) (string, error) {
	prompt := fmt.Sprintf("Generate an image for a Telegram post with the following description: %s", imagePrompt)
	if theme != "" {
		prompt = fmt.Sprintf("Generate an image for a Telegram post about %s with the following description: %s",
			theme, imagePrompt)
	}
	return s.generator.GenerateImage(ctx, prompt)
}
