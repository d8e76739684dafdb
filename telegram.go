package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TelegramClient is a thin JSON wrapper over the Telegram Bot API.
// Tokens are supplied per call because every channel carries its own
// bot credentials; they never appear in logs or errors.
type TelegramClient struct {
	baseURL string
	http    *http.Client
}

func NewTelegramClient(baseURL string) *TelegramClient {
	return &TelegramClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// TelegramResponse is the Bot API envelope: ok plus either a result
// or a human-readable description of the failure.
type TelegramResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
}

type photoPayload struct {
	ChatID    string `json:"chat_id"`
	Photo     string `json:"photo"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type messagePayload struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type chatPayload struct {
	ChatID string `json:"chat_id"`
}

func (c *TelegramClient) SendPhoto(ctx context.Context, token string, payload photoPayload) (*TelegramResponse, error) {
	return c.post(ctx, token, "sendPhoto", payload)
}

func (c *TelegramClient) SendMessage(ctx context.Context, token string, payload messagePayload) (*TelegramResponse, error) {
	return c.post(ctx, token, "sendMessage", payload)
}

func (c *TelegramClient) GetChat(ctx context.Context, token, chatID string) (*TelegramResponse, error) {
	return c.post(ctx, token, "getChat", chatPayload{ChatID: chatID})
}

func (c *TelegramClient) post(ctx context.Context, token, method string, payload any) (*TelegramResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The wrapped error may embed the URL (and thus the token);
		// report the method only.
		return nil, fmt.Errorf("telegram %s request failed: transport error", method)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var result TelegramResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", method, err)
	}

	return &result, nil
}

// Classification of Bot API failure descriptions. The fallback ladder
// branches on these substrings the same way the Bot API reports them.

func isCaptionTooLong(description string) bool {
	d := strings.ToLower(description)
	return strings.Contains(d, "caption") && strings.Contains(d, "too long")
}

func isChatNotFound(description string) bool {
	return strings.Contains(strings.ToLower(description), "chat not found")
}

func isUnauthorized(description string) bool {
	return strings.Contains(strings.ToLower(description), "unauthorized")
}

func isBadRequest(description string) bool {
	return strings.Contains(strings.ToLower(description), "bad request")
}

func isWrongFileID(description string) bool {
	return strings.Contains(strings.ToLower(description), "wrong file identifier")
}

func isParseError(description string) bool {
	return strings.Contains(strings.ToLower(description), "can't parse entities")
}
