package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

const themePlaceholder = "${theme}"

// Analysis configuration defaults applied when a channel has no saved
// settings.
const (
	defaultMinSubscribers       = 50000
	defaultMinAverageViews      = 4000
	defaultNumChannelsToAnalyze = 3
	maxChannelsToAnalyze        = 10
)

// Derived posting guidance produced by the analysis.
const (
	analysisPostingFrequency = 2 // posts per day
)

var analysisPostingTimes = []int{10, 18}

// postPromptTemplates are the reusable generation prompts the analysis
// derives for a channel; ${theme} is replaced with the channel theme.
var postPromptTemplates = []string{
	"Create a post about the latest trends in ${theme} with a focus on visual content",
	"Describe the 5 biggest innovations in ${theme} with matching imagery",
	"Compare different approaches to ${theme} with illustrative examples",
	"Share a success story from ${theme} with inspiring visuals",
	"Create an educational post on ${theme} with step-by-step illustrations",
	"Discuss the future of ${theme} with conceptual imagery",
	"Analyze the impact of ${theme} on modern society with charts",
	"Compile a top-10 list of resources on ${theme} with a preview of each",
	"Share interesting facts about ${theme} with matching imagery",
	"Create a poll on ${theme} with a visualization of the possible answers",
}

const stylePromptTemplate = "Posts should be informative yet accessible. Use professional " +
	"vocabulary on %s, but explain complex concepts in simple words. Every post should use " +
	"emojis to separate paragraphs and highlight key points. Images should be high quality, " +
	"mostly in blue and white tones, with a minimalist design. Text should be structured with " +
	"bullet lists and subheadings for readability."

// AnalysisService owns analysis settings and the competitive channel
// analysis task.
type AnalysisService struct {
	storage Storage
	tasks   *TaskStore
	now     func() time.Time
}

func NewAnalysisService(storage Storage, tasks *TaskStore) *AnalysisService {
	return &AnalysisService{
		storage: storage,
		tasks:   tasks,
		now:     time.Now,
	}
}

type UpdateAnalysisSettingsInput struct {
	ChannelID            string    `json:"channelId"`
	MinSubscribers       *int      `json:"minSubscribers,omitempty"`
	MinAverageViews      *int      `json:"minAverageViews,omitempty"`
	NumChannelsToAnalyze *int      `json:"numChannelsToAnalyze,omitempty"`
	SpecificChannels     *[]string `json:"specificChannels,omitempty"`
}

// UpdateAnalysisSettings applies a partial update, creating the row with
// defaults when the channel has none. numChannelsToAnalyze is capped.
func (s *AnalysisService) UpdateAnalysisSettings(userID string, input UpdateAnalysisSettingsInput) (*AnalysisSettings, error) {
	if _, err := s.storage.GetChannel(input.ChannelID, userID); err != nil {
		return nil, err
	}

	settings, err := s.storage.GetAnalysisSettings(input.ChannelID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = defaultAnalysisSettings(input.ChannelID)
	}

	if input.MinSubscribers != nil {
		settings.MinSubscribers = *input.MinSubscribers
	}
	if input.MinAverageViews != nil {
		settings.MinAverageViews = *input.MinAverageViews
	}
	if input.NumChannelsToAnalyze != nil {
		settings.NumChannelsToAnalyze = min(*input.NumChannelsToAnalyze, maxChannelsToAnalyze)
	}
	if input.SpecificChannels != nil {
		settings.SpecificChannels = *input.SpecificChannels
	}

	if err := s.storage.SaveAnalysisSettings(settings); err != nil {
		return nil, oops.With("channel_id", input.ChannelID).Wrap(err)
	}
	return settings, nil
}

// AnalyzeCompetitiveChannels enqueues the analysis unit and returns its
// task id. The unit derives posting guidance for the channel theme and
// upserts the ChannelAnalysis row.
func (s *AnalysisService) AnalyzeCompetitiveChannels(userID, channelID string) (string, error) {
	channel, err := s.storage.GetChannel(channelID, userID)
	if err != nil {
		return "", err
	}
	if channel.Theme == "" {
		return "", ErrThemeRequired
	}

	settings, err := s.storage.GetAnalysisSettings(channelID)
	if err != nil {
		return "", err
	}
	if settings == nil {
		settings = defaultAnalysisSettings(channelID)
	}

	theme := channel.Theme
	taskID := s.tasks.Enqueue(func(ctx context.Context) (string, error) {
		slog.Info("Starting competitive channel analysis",
			"channel_id", channelID,
			"theme", theme,
			"min_subscribers", settings.MinSubscribers,
			"min_average_views", settings.MinAverageViews,
			"num_channels", settings.NumChannelsToAnalyze,
			"specific_channels", len(settings.SpecificChannels))

		analysis := BuildChannelAnalysis(channelID, theme)

		existing, err := s.storage.GetChannelAnalysis(channelID)
		if err != nil {
			return "", err
		}
		if existing != nil {
			analysis.ID = existing.ID
		}

		if err := s.storage.SaveChannelAnalysis(analysis); err != nil {
			return "", oops.With("channel_id", channelID).Wrap(err)
		}

		slog.Info("Analysis completed", "channel_id", channelID, "analysis_id", analysis.ID)
		return analysis.ID, nil
	})

	slog.Info("Analysis task queued", "task_id", taskID, "channel_id", channelID)
	return taskID, nil
}

// AnalysisStatus is the poll response for analysis tasks.
type AnalysisStatus struct {
	Status   TaskStatus       `json:"status"`
	Analysis *ChannelAnalysis `json:"analysis,omitempty"`
}

func (s *AnalysisService) GetAnalysisStatus(userID, taskID string) (*AnalysisStatus, error) {
	task, err := s.tasks.GetStatus(taskID)
	if err != nil {
		return nil, err
	}

	switch task.Status {
	case TaskStatusPending, TaskStatusRunning:
		return &AnalysisStatus{Status: TaskStatusPending}, nil
	case TaskStatusFailed:
		return nil, oops.With("task_id", taskID).Errorf("analysis failed: %s", task.Error)
	}

	// The task's result references the analysis row; verify the caller
	// owns the channel it belongs to before handing it out.
	channels, err := s.storage.ListChannels(userID)
	if err != nil {
		return nil, err
	}
	for _, channel := range channels {
		analysis, err := s.storage.GetChannelAnalysis(channel.ID)
		if err != nil {
			return nil, err
		}
		if analysis != nil && analysis.ID == task.ResultID {
			return &AnalysisStatus{Status: TaskStatusCompleted, Analysis: analysis}, nil
		}
	}

	return &AnalysisStatus{Status: TaskStatusPending}, nil
}

// BuildChannelAnalysis derives the posting guidance for a theme: the
// prompt template set with ${theme} substituted, the style block and
// the posting cadence.
func BuildChannelAnalysis(channelID, theme string) *ChannelAnalysis {
	prompts := lo.Map(postPromptTemplates, func(template string, _ int) string {
		return strings.ReplaceAll(template, themePlaceholder, theme)
	})

	return &ChannelAnalysis{
		ID:               uuid.NewString(),
		ChannelID:        channelID,
		PostPrompts:      prompts,
		StylePrompt:      fmt.Sprintf(stylePromptTemplate, theme),
		PostingFrequency: analysisPostingFrequency,
		PostingTimes:     append([]int(nil), analysisPostingTimes...),
	}
}

func defaultAnalysisSettings(channelID string) *AnalysisSettings {
	return &AnalysisSettings{
		ChannelID:            channelID,
		MinSubscribers:       defaultMinSubscribers,
		MinAverageViews:      defaultMinAverageViews,
		NumChannelsToAnalyze: defaultNumChannelsToAnalyze,
	}
}
