package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/samber/lo"
)

// fakeGenerator returns canned drafts and records the prompts it saw.
type fakeGenerator struct {
	draft    *PostDraft
	imageURL string
	postErr  error
	imageErr error
	systems  []string
	prompts  []string
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		draft: &PostDraft{
			Title:       "Generated Title",
			Text:        "Generated text with substance.",
			ImagePrompt: "a minimalist blue illustration",
		},
		imageURL: "https://images.example.com/generated.png",
	}
}

func (g *fakeGenerator) GeneratePost(ctx context.Context, system, prompt string) (*PostDraft, error) {
	g.systems = append(g.systems, system)
	g.prompts = append(g.prompts, prompt)
	if g.postErr != nil {
		return nil, g.postErr
	}
	return g.draft, nil
}

func (g *fakeGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.imageErr != nil {
		return "", g.imageErr
	}
	return g.imageURL, nil
}

func newTestContentService(storage Storage, generator Generator, fake *fakeTelegram, now time.Time) (*ContentService, *TaskStore) {
	tasks := NewTaskStore()
	service := NewContentService(storage, tasks, generator, fake.publisher())
	service.now = func() time.Time { return now }
	return service, tasks
}

func seedAnalyzedChannel(t *testing.T, storage Storage) *Channel {
	t.Helper()

	channel := seedChannel(t, storage, "Technology")
	if err := storage.SaveChannelAnalysis(BuildChannelAnalysis(channel.ID, channel.Theme)); err != nil {
		t.Fatalf("failed to seed analysis: %v", err)
	}
	return channel
}

func TestUpdateChannelThemeTrimsAndRejectsEmpty(t *testing.T) {
	storage := NewMemoryStorage()
	channel := seedChannel(t, storage, "")
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	service, _ := newTestContentService(storage, newFakeGenerator(), fake, at(9, 0))

	updated, err := service.UpdateChannelTheme(channel.UserID, channel.ID, "  Technology  ")
	assert.Equal(t, err, nil)
	assert.Equal(t, updated.Theme, "Technology")

	_, err = service.UpdateChannelTheme(channel.UserID, channel.ID, "   ")
	if !errors.Is(err, ErrEmptyTheme) {
		t.Fatalf("expected ErrEmptyTheme, got %v", err)
	}
}

func TestCreateContentStatusFollowsSchedule(t *testing.T) {
	storage := NewMemoryStorage()
	channel := seedChannel(t, storage, "Technology")
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	service, _ := newTestContentService(storage, newFakeGenerator(), fake, at(9, 0))

	draft, err := service.CreateContent(channel.UserID, CreateContentInput{
		ChannelID: channel.ID,
		Title:     "Manual",
		Text:      "Written by hand",
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, draft.Status, ContentStatusDraft)

	scheduledAt := at(18, 0)
	scheduled, err := service.CreateContent(channel.UserID, CreateContentInput{
		ChannelID:   channel.ID,
		Title:       "Later",
		Text:        "Queued for the evening",
		ScheduledAt: &scheduledAt,
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, scheduled.Status, ContentStatusScheduled)
}

func TestGetContentHidesForeignRows(t *testing.T) {
	storage := NewMemoryStorage()
	channel := seedChannel(t, storage, "Technology")
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	service, _ := newTestContentService(storage, newFakeGenerator(), fake, at(9, 0))

	content, err := service.CreateContent(channel.UserID, CreateContentInput{
		ChannelID: channel.ID,
		Title:     "Private",
		Text:      "Mine only",
	})
	assert.Equal(t, err, nil)

	_, err = service.GetContent("someone-else", content.ID)
	if !errors.Is(err, ErrContentNotFound) {
		t.Fatalf("expected ErrContentNotFound, got %v", err)
	}
}

func TestGenerateContentProducesDraft(t *testing.T) {
	storage := NewMemoryStorage()
	channel := seedChannel(t, storage, "Technology")
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	generator := newFakeGenerator()
	service, tasks := newTestContentService(storage, generator, fake, at(9, 0))

	taskID, err := service.GenerateContent(channel.UserID, channel.ID, "AI assistants")
	assert.Equal(t, err, nil)
	tasks.Wait()

	status, err := service.GetGeneratedContent(channel.UserID, taskID)
	assert.Equal(t, err, nil)
	assert.Equal(t, status.Status, TaskStatusCompleted)
	assert.Equal(t, status.Content.Status, ContentStatusDraft)
	assert.Equal(t, status.Content.Title, "Generated Title")
	assert.Equal(t, status.Content.ImageURL, "https://images.example.com/generated.png")
	if status.Content.PublishedAt != nil {
		t.Fatal("draft must not carry a publication time")
	}
	if !strings.Contains(generator.prompts[0], "about AI assistants") {
		t.Fatalf("topic missing from prompt: %q", generator.prompts[0])
	}
	// No delivery happens during generation.
	assert.Equal(t, len(fake.calls), 0)
}

func TestGenerateContentFailureLeavesNoRow(t *testing.T) {
	storage := NewMemoryStorage()
	channel := seedChannel(t, storage, "Technology")
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	generator := newFakeGenerator()
	generator.postErr = errors.New("model unavailable")
	service, tasks := newTestContentService(storage, generator, fake, at(9, 0))

	taskID, err := service.GenerateContent(channel.UserID, channel.ID, "")
	assert.Equal(t, err, nil)
	tasks.Wait()

	_, err = service.GetGeneratedContent(channel.UserID, taskID)
	if err == nil || !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected failure with cause, got %v", err)
	}

	rows, err := service.ListContent(channel.UserID, channel.ID)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(rows), 0)
}

func TestGenerateContentRequiresOwnership(t *testing.T) {
	storage := NewMemoryStorage()
	channel := seedChannel(t, storage, "Technology")
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	service, _ := newTestContentService(storage, newFakeGenerator(), fake, at(9, 0))

	_, err := service.GenerateContent("someone-else", channel.ID, "")
	if !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestUpdateContentPublishesOnceAndDelivers(t *testing.T) {
	storage := NewMemoryStorage()
	channel := seedChannel(t, storage, "Technology")
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	service, _ := newTestContentService(storage, newFakeGenerator(), fake, at(12, 0))

	content, err := service.CreateContent(channel.UserID, CreateContentInput{
		ChannelID: channel.ID,
		Title:     "Hello",
		Text:      "World",
	})
	assert.Equal(t, err, nil)

	published, err := service.UpdateContent(context.Background(), channel.UserID, UpdateContentInput{
		ID:     content.ID,
		Status: lo.ToPtr(ContentStatusPublished),
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, published.Status, ContentStatusPublished)
	assert.Equal(t, *published.PublishedAt, at(12, 0))
	assert.Equal(t, fake.methods(), []string{"sendMessage"})

	// A second PUBLISHED update neither re-stamps nor re-delivers.
	again, err := service.UpdateContent(context.Background(), channel.UserID, UpdateContentInput{
		ID:     content.ID,
		Status: lo.ToPtr(ContentStatusPublished),
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, *again.PublishedAt, at(12, 0))
	assert.Equal(t, len(fake.calls), 1)
}

func TestUpdateContentDeliveryFailureKeepsRowPublished(t *testing.T) {
	storage := NewMemoryStorage()
	channel := seedChannel(t, storage, "Technology")
	fake := newFakeTelegram(t, func(call tgCall) string {
		return tgError("Bad Request: nope")
	})
	service, _ := newTestContentService(storage, newFakeGenerator(), fake, at(12, 0))

	content, err := service.CreateContent(channel.UserID, CreateContentInput{
		ChannelID: channel.ID,
		Title:     "Hello",
		Text:      "World",
	})
	assert.Equal(t, err, nil)

	published, err := service.UpdateContent(context.Background(), channel.UserID, UpdateContentInput{
		ID:     content.ID,
		Status: lo.ToPtr(ContentStatusPublished),
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, published.Status, ContentStatusPublished)

	stored, err := service.GetContent(channel.UserID, content.ID)
	assert.Equal(t, err, nil)
	assert.Equal(t, stored.Status, ContentStatusPublished)
}

func TestPublishContentNowRequiresAnalysis(t *testing.T) {
	storage := NewMemoryStorage()
	channel := seedChannel(t, storage, "Technology")
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	service, _ := newTestContentService(storage, newFakeGenerator(), fake, at(9, 0))

	_, err := service.PublishContentNow(channel.UserID, channel.ID)
	if !errors.Is(err, ErrAnalysisRequired) {
		t.Fatalf("expected ErrAnalysisRequired, got %v", err)
	}
}

func TestPublishContentNowPersistsBeforeDelivery(t *testing.T) {
	storage := NewMemoryStorage()
	channel := seedAnalyzedChannel(t, storage)
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	generator := newFakeGenerator()
	service, tasks := newTestContentService(storage, generator, fake, at(12, 0))

	taskID, err := service.PublishContentNow(channel.UserID, channel.ID)
	assert.Equal(t, err, nil)
	tasks.Wait()

	task, err := tasks.GetStatus(taskID)
	assert.Equal(t, err, nil)
	assert.Equal(t, task.Status, TaskStatusCompleted)

	content, err := service.GetContent(channel.UserID, task.ResultID)
	assert.Equal(t, err, nil)
	assert.Equal(t, content.Status, ContentStatusPublished)
	assert.Equal(t, *content.PublishedAt, at(12, 0))
	assert.Equal(t, fake.methods(), []string{"sendPhoto"})
	// Style guidance flows into the generation system prompt.
	if !strings.Contains(generator.systems[0], "Technology") {
		t.Fatalf("theme missing from system prompt: %q", generator.systems[0])
	}
}

func TestPublishContentNowDeliveryFailureKeepsPost(t *testing.T) {
	storage := NewMemoryStorage()
	channel := seedAnalyzedChannel(t, storage)
	fake := newFakeTelegram(t, func(call tgCall) string {
		return tgError("Bad Request: nope")
	})
	service, tasks := newTestContentService(storage, newFakeGenerator(), fake, at(12, 0))

	taskID, err := service.PublishContentNow(channel.UserID, channel.ID)
	assert.Equal(t, err, nil)
	tasks.Wait()

	task, err := tasks.GetStatus(taskID)
	assert.Equal(t, err, nil)
	// The post is generated and kept even though delivery failed.
	assert.Equal(t, task.Status, TaskStatusCompleted)

	content, err := service.GetContent(channel.UserID, task.ResultID)
	assert.Equal(t, err, nil)
	assert.Equal(t, content.Status, ContentStatusPublished)
}

func TestAutomaticGenerationSchedulesNextSlot(t *testing.T) {
	storage := NewMemoryStorage()
	channel := seedAnalyzedChannel(t, storage)
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	service, tasks := newTestContentService(storage, newFakeGenerator(), fake, at(9, 30))

	taskID, err := service.StartAutomaticContentGeneration(channel.UserID, channel.ID)
	assert.Equal(t, err, nil)
	tasks.Wait()

	task, err := tasks.GetStatus(taskID)
	assert.Equal(t, err, nil)
	assert.Equal(t, task.Status, TaskStatusCompleted)

	content, err := service.GetContent(channel.UserID, task.ResultID)
	assert.Equal(t, err, nil)
	assert.Equal(t, content.Status, ContentStatusScheduled)
	assert.Equal(t, *content.ScheduledAt, at(10, 0))
	// 10:00 is outside the near-term window at 09:30; the sweep owns it.
	assert.Equal(t, len(fake.calls), 0)
}

func TestAutomaticGenerationPublishesNearTermSlot(t *testing.T) {
	storage := NewMemoryStorage()
	channel := seedAnalyzedChannel(t, storage)
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	service, tasks := newTestContentService(storage, newFakeGenerator(), fake, at(9, 59))

	taskID, err := service.StartAutomaticContentGeneration(channel.UserID, channel.ID)
	assert.Equal(t, err, nil)
	tasks.Wait()

	task, err := tasks.GetStatus(taskID)
	assert.Equal(t, err, nil)
	assert.Equal(t, task.Status, TaskStatusCompleted)

	content, err := service.GetContent(channel.UserID, task.ResultID)
	assert.Equal(t, err, nil)
	// The 10:00 slot is under two minutes away, so it goes out now.
	assert.Equal(t, content.Status, ContentStatusPublished)
	assert.Equal(t, *content.PublishedAt, at(9, 59))
	assert.Equal(t, fake.methods(), []string{"sendPhoto"})
}
