package main

import "errors"

var (
	ErrUnauthenticated  = errors.New("authentication required")
	ErrChannelNotFound  = errors.New("channel not found")
	ErrContentNotFound  = errors.New("content not found")
	ErrEmptyTheme       = errors.New("channel theme cannot be empty")
	ErrThemeRequired    = errors.New("channel theme must be set first")
	ErrAnalysisRequired = errors.New("competitive channel analysis must be run first")
	ErrTaskNotFound     = errors.New("task not found")
	ErrPublishConflict  = errors.New("content changed before it could be published")

	// Delivery pipeline terminal failures. ErrChatNotFound and
	// ErrInvalidCredentials short-circuit the fallback chain.
	ErrChatNotFound       = errors.New("telegram chat not found: check the channel id and make sure the bot was added to the channel")
	ErrInvalidCredentials = errors.New("bot token appears to be invalid")
	ErrChannelUnreachable = errors.New("bot has no access to the channel: add the bot as an administrator and verify the channel id")
	ErrDeliveryFailed     = errors.New("failed to deliver message to telegram")
)
