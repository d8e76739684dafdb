package main

import (
	"time"
)

// ContentStatus is the lifecycle state of a post.
type ContentStatus string

const (
	ContentStatusDraft     ContentStatus = "DRAFT"
	ContentStatusScheduled ContentStatus = "SCHEDULED"
	ContentStatusPublished ContentStatus = "PUBLISHED"
)

// TaskStatus is the state of a background unit of work.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusFailed    TaskStatus = "FAILED"
)

// Channel represents a connected Telegram destination with bot credentials
type Channel struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	TelegramID  string    `json:"telegramId"` // numeric chat id or @username
	AccessToken string    `json:"-"`          // bot token, never serialized
	Theme       string    `json:"theme,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Content represents one post with a lifecycle status
type Content struct {
	ID          string        `json:"id"`
	ChannelID   string        `json:"channelId"`
	Title       string        `json:"title"`
	Text        string        `json:"text"`
	ImageURL    string        `json:"imageUrl,omitempty"`
	Status      ContentStatus `json:"status"`
	ScheduledAt *time.Time    `json:"scheduledAt,omitempty"`
	PublishedAt *time.Time    `json:"publishedAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// AnalysisSettings holds per-channel thresholds for competitive analysis
type AnalysisSettings struct {
	ChannelID            string   `json:"channelId"`
	MinSubscribers       int      `json:"minSubscribers"`
	MinAverageViews      int      `json:"minAverageViews"`
	NumChannelsToAnalyze int      `json:"numChannelsToAnalyze"`
	SpecificChannels     []string `json:"specificChannels,omitempty"`
}

// ChannelAnalysis is derived posting guidance for a channel's theme
type ChannelAnalysis struct {
	ID               string   `json:"id"`
	ChannelID        string   `json:"channelId"`
	PostPrompts      []string `json:"postPrompts"`
	StylePrompt      string   `json:"stylePrompt"`
	PostingFrequency int      `json:"postingFrequency"` // posts per day
	PostingTimes     []int    `json:"postingTimes"`     // hours of day
}

// Task is an asynchronously executed unit of work with a pollable status.
// ResultID references the entity the unit produced, so status lookups can
// return it directly instead of scanning for the most recent row.
type Task struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	ResultID  string     `json:"resultId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
