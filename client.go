package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrStillProcessing reports the client-side polling timeout. It is a
// safety net, not a failure: the background task keeps running and may
// still complete after the client stops watching.
var ErrStillProcessing = errors.New("the task is taking longer than expected, check back later")

const (
	defaultPollInterval = 3 * time.Second
	defaultPollTimeout  = 2 * time.Minute
)

// APIClient is a Go client for the RPC surface.
type APIClient struct {
	baseURL string
	userID  string
	http    *http.Client
}

func NewAPIClient(baseURL, userID string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		userID:  userID,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type taskHandle struct {
	TaskID string `json:"taskId"`
}

func (c *APIClient) GenerateContent(ctx context.Context, channelID, topic string) (string, error) {
	var handle taskHandle
	err := c.call(ctx, "generateContent", map[string]string{
		"channelId": channelID,
		"topic":     topic,
	}, &handle)
	return handle.TaskID, err
}

func (c *APIClient) GetGeneratedContent(ctx context.Context, taskID string) (*GeneratedContentStatus, error) {
	var status GeneratedContentStatus
	if err := c.call(ctx, "getGeneratedContent", taskIDRequest{TaskID: taskID}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *APIClient) AnalyzeCompetitiveChannels(ctx context.Context, channelID string) (string, error) {
	var handle taskHandle
	err := c.call(ctx, "analyzeCompetitiveChannels", channelIDRequest{ChannelID: channelID}, &handle)
	return handle.TaskID, err
}

func (c *APIClient) GetAnalysisStatus(ctx context.Context, taskID string) (*AnalysisStatus, error) {
	var status AnalysisStatus
	if err := c.call(ctx, "getAnalysisStatus", taskIDRequest{TaskID: taskID}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *APIClient) call(ctx context.Context, op string, payload, dst any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	url := fmt.Sprintf("%s/api/%s", c.baseURL, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", c.userID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s failed: %s", op, apiErr.Error)
		}
		return fmt.Errorf("%s failed with status %d", op, resp.StatusCode)
	}

	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// TaskPoller repeatedly asks for a task's status on a fixed interval,
// stops at the first terminal status and enforces its own wall-clock
// timeout.
type TaskPoller struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Wait polls until the task completes, fails, the timeout elapses or
// the context is cancelled. poll reports whether the task reached a
// terminal state; a FAILED task surfaces as poll's error and stops the
// loop immediately.
func (p TaskPoller) Wait(ctx context.Context, poll func(ctx context.Context) (TaskStatus, error)) error {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := poll(ctx)
		if err != nil {
			return err
		}
		if status == TaskStatusCompleted {
			return nil
		}
		if status == TaskStatusFailed {
			return errors.New("task failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrStillProcessing
		case <-ticker.C:
		}
	}
}

// WaitForGeneratedContent polls a generation task to completion and
// fetches the produced content.
func (c *APIClient) WaitForGeneratedContent(ctx context.Context, taskID string, poller TaskPoller) (*Content, error) {
	var content *Content
	err := poller.Wait(ctx, func(ctx context.Context) (TaskStatus, error) {
		status, err := c.GetGeneratedContent(ctx, taskID)
		if err != nil {
			return TaskStatusFailed, err
		}
		content = status.Content
		return status.Status, nil
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// WaitForAnalysis polls an analysis task to completion and fetches the
// derived guidance.
func (c *APIClient) WaitForAnalysis(ctx context.Context, taskID string, poller TaskPoller) (*ChannelAnalysis, error) {
	var analysis *ChannelAnalysis
	err := poller.Wait(ctx, func(ctx context.Context) (TaskStatus, error) {
		status, err := c.GetAnalysisStatus(ctx, taskID)
		if err != nil {
			return TaskStatusFailed, err
		}
		analysis = status.Analysis
		return status.Status, nil
	})
	if err != nil {
		return nil, err
	}
	return analysis, nil
}
