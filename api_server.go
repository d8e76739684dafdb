package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sloghttp "github.com/samber/slog-http"
)

// APIServer exposes the RPC surface the web client calls: JSON-over-POST
// endpoints under /api, a health check and per-channel RSS feeds.
type APIServer struct {
	cfg      *Config
	content  *ContentService
	analysis *AnalysisService
	feeds    *FeedService
	auth     AuthProvider
	logger   *slog.Logger
}

func NewAPIServer(cfg *Config, content *ContentService, analysis *AnalysisService, feeds *FeedService, auth AuthProvider) *APIServer {
	return &APIServer{
		cfg:      cfg,
		content:  content,
		analysis: analysis,
		feeds:    feeds,
		auth:     auth,
		logger:   slog.Default(),
	}
}

func (s *APIServer) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Channel management
	mux.HandleFunc("POST /api/getChannel", s.handleGetChannel)
	mux.HandleFunc("POST /api/listChannels", s.handleListChannels)
	mux.HandleFunc("POST /api/addChannel", s.handleAddChannel)
	mux.HandleFunc("POST /api/deleteChannel", s.handleDeleteChannel)
	mux.HandleFunc("POST /api/updateChannelTheme", s.handleUpdateChannelTheme)
	mux.HandleFunc("POST /api/getChannelSettings", s.handleGetChannelSettings)

	// Analysis
	mux.HandleFunc("POST /api/updateAnalysisSettings", s.handleUpdateAnalysisSettings)
	mux.HandleFunc("POST /api/analyzeCompetitiveChannels", s.handleAnalyzeCompetitiveChannels)
	mux.HandleFunc("POST /api/getAnalysisStatus", s.handleGetAnalysisStatus)

	// Content management
	mux.HandleFunc("POST /api/listContent", s.handleListContent)
	mux.HandleFunc("POST /api/getContent", s.handleGetContent)
	mux.HandleFunc("POST /api/createContent", s.handleCreateContent)
	mux.HandleFunc("POST /api/updateContent", s.handleUpdateContent)
	mux.HandleFunc("POST /api/deleteContent", s.handleDeleteContent)

	// Generation and publishing
	mux.HandleFunc("POST /api/generateContent", s.handleGenerateContent)
	mux.HandleFunc("POST /api/getGeneratedContent", s.handleGetGeneratedContent)
	mux.HandleFunc("POST /api/publishContentNow", s.handlePublishContentNow)
	mux.HandleFunc("POST /api/startAutomaticContentGeneration", s.handleStartAutomaticContentGeneration)

	// RSS feed of published posts
	mux.HandleFunc("GET /rss/{channelID}", s.handleRSSFeed)

	// Health check endpoint
	mux.HandleFunc("GET /health", s.handleHealth)

	// Use slog-http middleware with recovery
	handler := sloghttp.Recovery(mux)
	handler = sloghttp.New(s.logger)(handler)
	return handler
}

func (s *APIServer) Start() error {
	addr := fmt.Sprintf(":%s", s.cfg.HTTPPort)
	s.logger.Info("API server starting", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// Channel handlers

type idRequest struct {
	ID string `json:"id"`
}

type channelIDRequest struct {
	ChannelID string `json:"channelId"`
}

type taskIDRequest struct {
	TaskID string `json:"taskId"`
}

func (s *APIServer) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req idRequest
	if !s.decode(w, r, &req) {
		return
	}

	channel, err := s.content.GetChannel(userID, req.ID)
	s.respond(w, channel, err)
}

func (s *APIServer) handleListChannels(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	channels, err := s.content.ListChannels(userID)
	if channels == nil {
		channels = []*Channel{}
	}
	s.respond(w, channels, err)
}

func (s *APIServer) handleAddChannel(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name"`
		TelegramID  string `json:"telegramId"`
		AccessToken string `json:"accessToken"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	channel, err := s.content.AddChannel(userID, req.Name, req.TelegramID, req.AccessToken)
	s.respond(w, channel, err)
}

func (s *APIServer) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req idRequest
	if !s.decode(w, r, &req) {
		return
	}

	err := s.content.DeleteChannel(userID, req.ID)
	s.respond(w, map[string]string{"id": req.ID}, err)
}

func (s *APIServer) handleUpdateChannelTheme(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		ChannelID string `json:"channelId"`
		Theme     string `json:"theme"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	channel, err := s.content.UpdateChannelTheme(userID, req.ChannelID, req.Theme)
	s.respond(w, channel, err)
}

func (s *APIServer) handleGetChannelSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req channelIDRequest
	if !s.decode(w, r, &req) {
		return
	}

	settings, err := s.content.GetChannelSettings(userID, req.ChannelID)
	s.respond(w, settings, err)
}

// Analysis handlers

func (s *APIServer) handleUpdateAnalysisSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req UpdateAnalysisSettingsInput
	if !s.decode(w, r, &req) {
		return
	}

	settings, err := s.analysis.UpdateAnalysisSettings(userID, req)
	s.respond(w, settings, err)
}

func (s *APIServer) handleAnalyzeCompetitiveChannels(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req channelIDRequest
	if !s.decode(w, r, &req) {
		return
	}

	taskID, err := s.analysis.AnalyzeCompetitiveChannels(userID, req.ChannelID)
	s.respond(w, map[string]string{"taskId": taskID}, err)
}

func (s *APIServer) handleGetAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req taskIDRequest
	if !s.decode(w, r, &req) {
		return
	}

	status, err := s.analysis.GetAnalysisStatus(userID, req.TaskID)
	s.respond(w, status, err)
}

// Content handlers

func (s *APIServer) handleListContent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req channelIDRequest
	if !s.decode(w, r, &req) {
		return
	}

	items, err := s.content.ListContent(userID, req.ChannelID)
	if items == nil {
		items = []*Content{}
	}
	s.respond(w, items, err)
}

func (s *APIServer) handleGetContent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req idRequest
	if !s.decode(w, r, &req) {
		return
	}

	content, err := s.content.GetContent(userID, req.ID)
	s.respond(w, content, err)
}

func (s *APIServer) handleCreateContent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req CreateContentInput
	if !s.decode(w, r, &req) {
		return
	}

	content, err := s.content.CreateContent(userID, req)
	s.respond(w, content, err)
}

func (s *APIServer) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req UpdateContentInput
	if !s.decode(w, r, &req) {
		return
	}

	content, err := s.content.UpdateContent(r.Context(), userID, req)
	s.respond(w, content, err)
}

func (s *APIServer) handleDeleteContent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req idRequest
	if !s.decode(w, r, &req) {
		return
	}

	err := s.content.DeleteContent(userID, req.ID)
	s.respond(w, map[string]string{"id": req.ID}, err)
}

// Generation handlers

func (s *APIServer) handleGenerateContent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		ChannelID string `json:"channelId"`
		Topic     string `json:"topic,omitempty"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	taskID, err := s.content.GenerateContent(userID, req.ChannelID, req.Topic)
	s.respond(w, map[string]string{"taskId": taskID}, err)
}

func (s *APIServer) handleGetGeneratedContent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req taskIDRequest
	if !s.decode(w, r, &req) {
		return
	}

	status, err := s.content.GetGeneratedContent(userID, req.TaskID)
	s.respond(w, status, err)
}

func (s *APIServer) handlePublishContentNow(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req channelIDRequest
	if !s.decode(w, r, &req) {
		return
	}

	taskID, err := s.content.PublishContentNow(userID, req.ChannelID)
	s.respond(w, map[string]string{"taskId": taskID}, err)
}

func (s *APIServer) handleStartAutomaticContentGeneration(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req channelIDRequest
	if !s.decode(w, r, &req) {
		return
	}

	taskID, err := s.content.StartAutomaticContentGeneration(userID, req.ChannelID)
	s.respond(w, map[string]string{"taskId": taskID}, err)
}

// RSS and health

func (s *APIServer) handleRSSFeed(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channelID")
	if channelID == "" {
		http.Error(w, "Channel ID is required", http.StatusBadRequest)
		return
	}

	baseURL := fmt.Sprintf("%s://%s", getScheme(r), r.Host)

	feed, err := s.feeds.GenerateFeed(channelID, baseURL)
	if err != nil {
		s.logger.Error("Error generating feed", "channel_id", channelID, "error", err)
		http.Error(w, "Failed to generate feed", http.StatusInternalServerError)
		return
	}

	rss, err := feed.ToRss()
	if err != nil {
		s.logger.Error("Error converting feed to RSS", "error", err)
		http.Error(w, "Failed to generate RSS", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(rss))
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Helpers

func (s *APIServer) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := s.auth.CurrentUser(r, true)
	if err != nil {
		s.writeError(w, err)
		return "", false
	}
	return userID, true
}

func (s *APIServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (s *APIServer) respond(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *APIServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrChannelNotFound),
		errors.Is(err, ErrContentNotFound),
		errors.Is(err, ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrEmptyTheme),
		errors.Is(err, ErrThemeRequired),
		errors.Is(err, ErrAnalysisRequired):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
