package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// nearTermWindow is how close a computed slot must be to "now" for the
// content to be published immediately instead of waiting for the sweep.
const nearTermWindow = 2 * time.Minute

// NextPostingTime picks the earliest configured hour strictly after the
// current hour; when none remains today it wraps to the first configured
// hour tomorrow. Minutes and seconds are zeroed.
func NextPostingTime(now time.Time, postingHours []int) time.Time {
	hour := 12 // default to noon when nothing is configured
	if len(postingHours) > 0 {
		hour = postingHours[0]
	}
	for _, h := range postingHours {
		if h > now.Hour() {
			hour = h
			break
		}
	}

	scheduled := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !scheduled.After(now) {
		scheduled = scheduled.AddDate(0, 0, 1)
	}
	return scheduled
}

// PublishScheduler periodically sweeps for SCHEDULED content whose time
// has passed and feeds each row into the delivery pipeline. One item's
// failure never stops the rest of the sweep.
type PublishScheduler struct {
	storage   Storage
	publisher *Publisher
	interval  time.Duration
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPublishScheduler(storage Storage, publisher *Publisher, interval time.Duration) *PublishScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &PublishScheduler{
		storage:   storage,
		publisher: publisher,
		interval:  interval,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *PublishScheduler) Start() {
	s.wg.Add(1)
	go s.sweepLoop()
}

func (s *PublishScheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *PublishScheduler) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial sweep
	s.Sweep(s.ctx)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.ctx)
		}
	}
}

// Sweep publishes every due SCHEDULED row. Exported so tests and the
// automatic generation flow can trigger it directly.
func (s *PublishScheduler) Sweep(ctx context.Context) {
	now := s.now()
	due, err := s.storage.ListDueScheduled(now)
	if err != nil {
		slog.Error("Failed to list due scheduled content", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	slog.Info("Publishing due scheduled content", "count", len(due))

	for _, content := range due {
		if err := s.publishOne(ctx, content, now); err != nil {
			slog.Error("Failed to publish scheduled content",
				"content_id", content.ID, "error", err)
		}
	}
}

func (s *PublishScheduler) publishOne(ctx context.Context, content *Content, now time.Time) error {
	channel, err := s.storage.GetChannelByID(content.ChannelID)
	if err != nil {
		return err
	}

	// Re-check the status at transition time: a manual edit racing the
	// sweep aborts the publish instead of double-writing publishedAt.
	published, err := s.storage.PublishContent(content.ID, ContentStatusScheduled, now)
	if err != nil {
		return err
	}

	if err := s.publisher.Deliver(ctx, channel, published); err != nil {
		// The row stays published; the delivery failure is reported
		// separately so the post itself is never lost.
		return err
	}

	slog.Info("Scheduled content published", "content_id", content.ID, "chat_id", channel.TelegramID)
	return nil
}
