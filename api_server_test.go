package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func postJSON(t *testing.T, url, userID string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestAPIRejectsAnonymousRequests(t *testing.T) {
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	ts, _ := newTestAPI(t, NewMemoryStorage(), newFakeGenerator(), fake)

	resp := postJSON(t, ts.URL+"/api/listChannels", "", map[string]string{})

	assert.Equal(t, resp.StatusCode, http.StatusUnauthorized)
}

func TestAPIChannelRoundtrip(t *testing.T) {
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	ts, _ := newTestAPI(t, NewMemoryStorage(), newFakeGenerator(), fake)

	resp := postJSON(t, ts.URL+"/api/addChannel", "user-1", map[string]string{
		"name":        "Tech Daily",
		"telegramId":  "@techdaily",
		"accessToken": "123456:secret-token",
	})
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	var created map[string]any
	decodeBody(t, resp, &created)
	assert.Equal(t, created["name"], "Tech Daily")
	// The bot token must never appear on the wire.
	if _, leaked := created["accessToken"]; leaked {
		t.Fatal("access token leaked in the response")
	}

	resp = postJSON(t, ts.URL+"/api/listChannels", "user-1", map[string]string{})
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	var channels []map[string]any
	decodeBody(t, resp, &channels)
	assert.Equal(t, len(channels), 1)
	assert.Equal(t, channels[0]["id"], created["id"])

	// Another user does not see the channel.
	resp = postJSON(t, ts.URL+"/api/listChannels", "user-2", map[string]string{})
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	var foreign []map[string]any
	decodeBody(t, resp, &foreign)
	assert.Equal(t, len(foreign), 0)
}

func TestAPIErrorStatusMapping(t *testing.T) {
	storage := NewMemoryStorage()
	channel := seedChannel(t, storage, "Technology")
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	ts, _ := newTestAPI(t, storage, newFakeGenerator(), fake)

	resp := postJSON(t, ts.URL+"/api/getContent", channel.UserID, idRequest{ID: "missing"})
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)

	resp = postJSON(t, ts.URL+"/api/updateChannelTheme", channel.UserID, map[string]string{
		"channelId": channel.ID,
		"theme":     "   ",
	})
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)

	resp = postJSON(t, ts.URL+"/api/getChannel", "someone-else", idRequest{ID: channel.ID})
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
}

func TestAPIRejectsMalformedBody(t *testing.T) {
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	ts, _ := newTestAPI(t, NewMemoryStorage(), newFakeGenerator(), fake)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/getChannel", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("X-User-ID", "user-1")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
}

func TestAPIHealthEndpoint(t *testing.T) {
	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	ts, _ := newTestAPI(t, NewMemoryStorage(), newFakeGenerator(), fake)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	assert.Equal(t, resp.StatusCode, http.StatusOK)

	var status map[string]string
	decodeBody(t, resp, &status)
	assert.Equal(t, status["status"], "ok")
}

func TestAPIRSSFeedListsPublishedPosts(t *testing.T) {
	storage := NewMemoryStorage()
	channel := seedChannel(t, storage, "Technology")

	publishedAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := storage.SaveContent(&Content{
		ID:          "content-published",
		ChannelID:   channel.ID,
		Title:       "Shipped Post",
		Text:        "This one went out.",
		Status:      ContentStatusPublished,
		PublishedAt: &publishedAt,
		CreatedAt:   publishedAt,
	}); err != nil {
		t.Fatalf("failed to seed content: %v", err)
	}
	if err := storage.SaveContent(&Content{
		ID:        "content-draft",
		ChannelID: channel.ID,
		Title:     "Unfinished Post",
		Text:      "Still a draft.",
		Status:    ContentStatusDraft,
		CreatedAt: publishedAt,
	}); err != nil {
		t.Fatalf("failed to seed content: %v", err)
	}

	fake := newFakeTelegram(t, func(call tgCall) string { return tgOK })
	ts, _ := newTestAPI(t, storage, newFakeGenerator(), fake)

	resp, err := http.Get(ts.URL + "/rss/" + channel.ID)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, resp.Header.Get("Content-Type"), "application/rss+xml; charset=utf-8")

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	rss := body.String()
	if !strings.Contains(rss, "Shipped Post") {
		t.Fatal("published post missing from the feed")
	}
	if strings.Contains(rss, "Unfinished Post") {
		t.Fatal("draft leaked into the feed")
	}
}
