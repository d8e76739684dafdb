package main

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

type Storage interface {
	SaveChannel(channel *Channel) error
	GetChannel(channelID, userID string) (*Channel, error)
	// GetChannelByID skips the ownership filter; it serves the sweep,
	// which acts on behalf of no user.
	GetChannelByID(channelID string) (*Channel, error)
	ListChannels(userID string) ([]*Channel, error)
	DeleteChannel(channelID, userID string) error

	SaveContent(content *Content) error
	GetContent(contentID string) (*Content, error)
	ListContent(channelID string) ([]*Content, error)
	DeleteContent(contentID string) error
	ListDueScheduled(now time.Time) ([]*Content, error)
	// PublishContent transitions a row to PUBLISHED only while it still has
	// the expected prior status, setting publishedAt on the first transition
	// only. A row that changed under us yields ErrPublishConflict.
	PublishContent(contentID string, expected ContentStatus, at time.Time) (*Content, error)

	GetAnalysisSettings(channelID string) (*AnalysisSettings, error)
	SaveAnalysisSettings(settings *AnalysisSettings) error
	GetChannelAnalysis(channelID string) (*ChannelAnalysis, error)
	SaveChannelAnalysis(analysis *ChannelAnalysis) error
}

// MemoryStorage keeps everything in process memory. It backs tests and
// local runs without a database; production uses PostgresStorage.
type MemoryStorage struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	content  map[string]*Content
	settings map[string]*AnalysisSettings
	analysis map[string]*ChannelAnalysis
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		channels: make(map[string]*Channel),
		content:  make(map[string]*Content),
		settings: make(map[string]*AnalysisSettings),
		analysis: make(map[string]*ChannelAnalysis),
	}
}

func (s *MemoryStorage) SaveChannel(channel *Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *channel
	s.channels[c.ID] = &c
	return nil
}

func (s *MemoryStorage) GetChannel(channelID, userID string) (*Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channel, ok := s.channels[channelID]
	if !ok || channel.UserID != userID {
		return nil, ErrChannelNotFound
	}

	c := *channel
	return &c, nil
}

func (s *MemoryStorage) GetChannelByID(channelID string) (*Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channel, ok := s.channels[channelID]
	if !ok {
		return nil, ErrChannelNotFound
	}

	c := *channel
	return &c, nil
}

func (s *MemoryStorage) ListChannels(userID string) ([]*Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channels := lo.FilterMap(lo.Values(s.channels), func(channel *Channel, _ int) (*Channel, bool) {
		if channel.UserID != userID {
			return nil, false
		}
		c := *channel
		return &c, true
	})

	// Newest first
	sort.Slice(channels, func(i, j int) bool {
		return channels[i].CreatedAt.After(channels[j].CreatedAt)
	})

	return channels, nil
}

func (s *MemoryStorage) DeleteChannel(channelID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	channel, ok := s.channels[channelID]
	if !ok || channel.UserID != userID {
		return ErrChannelNotFound
	}

	delete(s.channels, channelID)
	delete(s.settings, channelID)
	delete(s.analysis, channelID)
	for id, content := range s.content {
		if content.ChannelID == channelID {
			delete(s.content, id)
		}
	}
	return nil
}

func (s *MemoryStorage) SaveContent(content *Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *content
	s.content[c.ID] = &c
	return nil
}

func (s *MemoryStorage) GetContent(contentID string) (*Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.content[contentID]
	if !ok {
		return nil, ErrContentNotFound
	}

	c := *content
	return &c, nil
}

func (s *MemoryStorage) ListContent(channelID string) ([]*Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := lo.FilterMap(lo.Values(s.content), func(content *Content, _ int) (*Content, bool) {
		if content.ChannelID != channelID {
			return nil, false
		}
		c := *content
		return &c, true
	})

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	return items, nil
}

func (s *MemoryStorage) DeleteContent(contentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.content[contentID]; !ok {
		return ErrContentNotFound
	}

	delete(s.content, contentID)
	return nil
}

func (s *MemoryStorage) ListDueScheduled(now time.Time) ([]*Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := lo.FilterMap(lo.Values(s.content), func(content *Content, _ int) (*Content, bool) {
		if content.Status != ContentStatusScheduled || content.ScheduledAt == nil {
			return nil, false
		}
		if content.ScheduledAt.After(now) {
			return nil, false
		}
		c := *content
		return &c, true
	})

	sort.Slice(items, func(i, j int) bool {
		return items[i].ScheduledAt.Before(*items[j].ScheduledAt)
	})

	return items, nil
}

func (s *MemoryStorage) PublishContent(contentID string, expected ContentStatus, at time.Time) (*Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, ok := s.content[contentID]
	if !ok {
		return nil, ErrContentNotFound
	}
	if content.Status != expected {
		return nil, ErrPublishConflict
	}

	content.Status = ContentStatusPublished
	if content.PublishedAt == nil {
		publishedAt := at
		content.PublishedAt = &publishedAt
	}

	c := *content
	return &c, nil
}

func (s *MemoryStorage) GetAnalysisSettings(channelID string) (*AnalysisSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, ok := s.settings[channelID]
	if !ok {
		return nil, nil
	}

	cp := *settings
	cp.SpecificChannels = append([]string(nil), settings.SpecificChannels...)
	return &cp, nil
}

func (s *MemoryStorage) SaveAnalysisSettings(settings *AnalysisSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *settings
	cp.SpecificChannels = append([]string(nil), settings.SpecificChannels...)
	s.settings[cp.ChannelID] = &cp
	return nil
}

func (s *MemoryStorage) GetChannelAnalysis(channelID string) (*ChannelAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	analysis, ok := s.analysis[channelID]
	if !ok {
		return nil, nil
	}

	cp := *analysis
	cp.PostPrompts = append([]string(nil), analysis.PostPrompts...)
	cp.PostingTimes = append([]int(nil), analysis.PostingTimes...)
	return &cp, nil
}

func (s *MemoryStorage) SaveChannelAnalysis(analysis *ChannelAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *analysis
	cp.PostPrompts = append([]string(nil), analysis.PostPrompts...)
	cp.PostingTimes = append([]int(nil), analysis.PostingTimes...)
	s.analysis[cp.ChannelID] = &cp
	return nil
}
