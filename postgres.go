package main

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"
	"github.com/samber/oops"
)

// PostgresStorage implements Storage on top of database/sql + lib/pq.
type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(databaseURL string) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, oops.With("context", "opening database").Wrap(err)
	}
	if err := db.Ping(); err != nil {
		return nil, oops.With("context", "pinging database").Wrap(err)
	}

	s := &PostgresStorage{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func (s *PostgresStorage) ensureSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS channels (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			telegram_id TEXT NOT NULL,
			access_token TEXT NOT NULL,
			theme TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS content (
			id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			scheduled_at TIMESTAMPTZ,
			published_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_settings (
			channel_id TEXT PRIMARY KEY REFERENCES channels(id) ON DELETE CASCADE,
			min_subscribers INT NOT NULL,
			min_average_views INT NOT NULL,
			num_channels_to_analyze INT NOT NULL,
			specific_channels TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS channel_analysis (
			id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL UNIQUE REFERENCES channels(id) ON DELETE CASCADE,
			post_prompts TEXT NOT NULL,
			style_prompt TEXT NOT NULL,
			posting_frequency INT NOT NULL,
			posting_times TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_content_due ON content (status, scheduled_at)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return oops.With("context", "creating schema").Wrap(err)
		}
	}
	return nil
}

func (s *PostgresStorage) SaveChannel(channel *Channel) error {
	_, err := s.db.Exec(`
		INSERT INTO channels (id, user_id, name, telegram_id, access_token, theme, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			telegram_id = EXCLUDED.telegram_id,
			access_token = EXCLUDED.access_token,
			theme = EXCLUDED.theme`,
		channel.ID, channel.UserID, channel.Name, channel.TelegramID,
		channel.AccessToken, channel.Theme, channel.CreatedAt)
	if err != nil {
		return oops.With("channel_id", channel.ID).Wrap(err)
	}
	return nil
}

func (s *PostgresStorage) GetChannel(channelID, userID string) (*Channel, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, name, telegram_id, access_token, theme, created_at
		FROM channels WHERE id = $1 AND user_id = $2`, channelID, userID)
	return scanChannel(row)
}

func (s *PostgresStorage) GetChannelByID(channelID string) (*Channel, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, name, telegram_id, access_token, theme, created_at
		FROM channels WHERE id = $1`, channelID)
	return scanChannel(row)
}

func (s *PostgresStorage) ListChannels(userID string) ([]*Channel, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, name, telegram_id, access_token, theme, created_at
		FROM channels WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, oops.With("user_id", userID).Wrap(err)
	}
	defer rows.Close()

	var channels []*Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}

func (s *PostgresStorage) DeleteChannel(channelID, userID string) error {
	res, err := s.db.Exec(`DELETE FROM channels WHERE id = $1 AND user_id = $2`, channelID, userID)
	if err != nil {
		return oops.With("channel_id", channelID).Wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrChannelNotFound
	}
	return nil
}

func (s *PostgresStorage) SaveContent(content *Content) error {
	_, err := s.db.Exec(`
		INSERT INTO content (id, channel_id, title, body, image_url, status, scheduled_at, published_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			image_url = EXCLUDED.image_url,
			status = EXCLUDED.status,
			scheduled_at = EXCLUDED.scheduled_at,
			published_at = EXCLUDED.published_at`,
		content.ID, content.ChannelID, content.Title, content.Text, content.ImageURL,
		string(content.Status), content.ScheduledAt, content.PublishedAt, content.CreatedAt)
	if err != nil {
		return oops.With("content_id", content.ID).Wrap(err)
	}
	return nil
}

func (s *PostgresStorage) GetContent(contentID string) (*Content, error) {
	row := s.db.QueryRow(`
		SELECT id, channel_id, title, body, image_url, status, scheduled_at, published_at, created_at
		FROM content WHERE id = $1`, contentID)
	return scanContent(row)
}

func (s *PostgresStorage) ListContent(channelID string) ([]*Content, error) {
	rows, err := s.db.Query(`
		SELECT id, channel_id, title, body, image_url, status, scheduled_at, published_at, created_at
		FROM content WHERE channel_id = $1 ORDER BY created_at DESC`, channelID)
	if err != nil {
		return nil, oops.With("channel_id", channelID).Wrap(err)
	}
	defer rows.Close()
	return collectContent(rows)
}

func (s *PostgresStorage) DeleteContent(contentID string) error {
	res, err := s.db.Exec(`DELETE FROM content WHERE id = $1`, contentID)
	if err != nil {
		return oops.With("content_id", contentID).Wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrContentNotFound
	}
	return nil
}

func (s *PostgresStorage) ListDueScheduled(now time.Time) ([]*Content, error) {
	rows, err := s.db.Query(`
		SELECT id, channel_id, title, body, image_url, status, scheduled_at, published_at, created_at
		FROM content WHERE status = $1 AND scheduled_at <= $2 ORDER BY scheduled_at`,
		string(ContentStatusScheduled), now)
	if err != nil {
		return nil, oops.With("context", "listing due content").Wrap(err)
	}
	defer rows.Close()
	return collectContent(rows)
}

func (s *PostgresStorage) PublishContent(contentID string, expected ContentStatus, at time.Time) (*Content, error) {
	// Conditional transition: only a row still in the expected status moves,
	// and published_at is written exactly once.
	row := s.db.QueryRow(`
		UPDATE content
		SET status = $1, published_at = COALESCE(published_at, $2)
		WHERE id = $3 AND status = $4
		RETURNING id, channel_id, title, body, image_url, status, scheduled_at, published_at, created_at`,
		string(ContentStatusPublished), at, contentID, string(expected))

	content, err := scanContent(row)
	if err == ErrContentNotFound {
		if _, getErr := s.GetContent(contentID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrPublishConflict
	}
	return content, err
}

func (s *PostgresStorage) GetAnalysisSettings(channelID string) (*AnalysisSettings, error) {
	var (
		settings         AnalysisSettings
		specificChannels sql.NullString
	)
	err := s.db.QueryRow(`
		SELECT channel_id, min_subscribers, min_average_views, num_channels_to_analyze, specific_channels
		FROM analysis_settings WHERE channel_id = $1`, channelID).
		Scan(&settings.ChannelID, &settings.MinSubscribers, &settings.MinAverageViews,
			&settings.NumChannelsToAnalyze, &specificChannels)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, oops.With("channel_id", channelID).Wrap(err)
	}

	if specificChannels.Valid && specificChannels.String != "" {
		if err := json.Unmarshal([]byte(specificChannels.String), &settings.SpecificChannels); err != nil {
			return nil, oops.With("channel_id", channelID, "context", "decoding specific channels").Wrap(err)
		}
	}
	return &settings, nil
}

func (s *PostgresStorage) SaveAnalysisSettings(settings *AnalysisSettings) error {
	var specificChannels sql.NullString
	if settings.SpecificChannels != nil {
		data, err := json.Marshal(settings.SpecificChannels)
		if err != nil {
			return oops.With("channel_id", settings.ChannelID).Wrap(err)
		}
		specificChannels = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO analysis_settings (channel_id, min_subscribers, min_average_views, num_channels_to_analyze, specific_channels)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (channel_id) DO UPDATE SET
			min_subscribers = EXCLUDED.min_subscribers,
			min_average_views = EXCLUDED.min_average_views,
			num_channels_to_analyze = EXCLUDED.num_channels_to_analyze,
			specific_channels = EXCLUDED.specific_channels`,
		settings.ChannelID, settings.MinSubscribers, settings.MinAverageViews,
		settings.NumChannelsToAnalyze, specificChannels)
	if err != nil {
		return oops.With("channel_id", settings.ChannelID).Wrap(err)
	}
	return nil
}

func (s *PostgresStorage) GetChannelAnalysis(channelID string) (*ChannelAnalysis, error) {
	var (
		analysis     ChannelAnalysis
		postPrompts  string
		postingTimes string
	)
	err := s.db.QueryRow(`
		SELECT id, channel_id, post_prompts, style_prompt, posting_frequency, posting_times
		FROM channel_analysis WHERE channel_id = $1`, channelID).
		Scan(&analysis.ID, &analysis.ChannelID, &postPrompts, &analysis.StylePrompt,
			&analysis.PostingFrequency, &postingTimes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, oops.With("channel_id", channelID).Wrap(err)
	}

	if err := json.Unmarshal([]byte(postPrompts), &analysis.PostPrompts); err != nil {
		return nil, oops.With("channel_id", channelID, "context", "decoding post prompts").Wrap(err)
	}
	if err := json.Unmarshal([]byte(postingTimes), &analysis.PostingTimes); err != nil {
		return nil, oops.With("channel_id", channelID, "context", "decoding posting times").Wrap(err)
	}
	return &analysis, nil
}

func (s *PostgresStorage) SaveChannelAnalysis(analysis *ChannelAnalysis) error {
	postPrompts, err := json.Marshal(analysis.PostPrompts)
	if err != nil {
		return oops.With("channel_id", analysis.ChannelID).Wrap(err)
	}
	postingTimes, err := json.Marshal(analysis.PostingTimes)
	if err != nil {
		return oops.With("channel_id", analysis.ChannelID).Wrap(err)
	}

	_, err = s.db.Exec(`
		INSERT INTO channel_analysis (id, channel_id, post_prompts, style_prompt, posting_frequency, posting_times)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (channel_id) DO UPDATE SET
			post_prompts = EXCLUDED.post_prompts,
			style_prompt = EXCLUDED.style_prompt,
			posting_frequency = EXCLUDED.posting_frequency,
			posting_times = EXCLUDED.posting_times`,
		analysis.ID, analysis.ChannelID, string(postPrompts), analysis.StylePrompt,
		analysis.PostingFrequency, string(postingTimes))
	if err != nil {
		return oops.With("channel_id", analysis.ChannelID).Wrap(err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (*Channel, error) {
	var channel Channel
	err := row.Scan(&channel.ID, &channel.UserID, &channel.Name, &channel.TelegramID,
		&channel.AccessToken, &channel.Theme, &channel.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, oops.With("context", "scanning channel").Wrap(err)
	}
	return &channel, nil
}

func scanContent(row rowScanner) (*Content, error) {
	var (
		content     Content
		status      string
		scheduledAt sql.NullTime
		publishedAt sql.NullTime
	)
	err := row.Scan(&content.ID, &content.ChannelID, &content.Title, &content.Text,
		&content.ImageURL, &status, &scheduledAt, &publishedAt, &content.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrContentNotFound
	}
	if err != nil {
		return nil, oops.With("context", "scanning content").Wrap(err)
	}

	content.Status = ContentStatus(status)
	if scheduledAt.Valid {
		content.ScheduledAt = &scheduledAt.Time
	}
	if publishedAt.Valid {
		content.PublishedAt = &publishedAt.Time
	}
	return &content, nil
}

func collectContent(rows *sql.Rows) ([]*Content, error) {
	var items []*Content
	for rows.Next() {
		content, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, content)
	}
	return items, rows.Err()
}
