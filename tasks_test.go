package main

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestEnqueueReturnsImmediatelyAndCompletes(t *testing.T) {
	store := NewTaskStore()
	release := make(chan struct{})

	taskID := store.Enqueue(func(ctx context.Context) (string, error) {
		<-release
		return "entity-1", nil
	})

	// The handle comes back before the work finishes.
	task, err := store.GetStatus(taskID)
	assert.Equal(t, err, nil)
	assert.Equal(t, task.Status, TaskStatusRunning)

	close(release)
	store.Wait()

	task, err = store.GetStatus(taskID)
	assert.Equal(t, err, nil)
	assert.Equal(t, task.Status, TaskStatusCompleted)
	assert.Equal(t, task.ResultID, "entity-1")
	assert.Equal(t, task.Error, "")
}

func TestEnqueueFailureCarriesMessage(t *testing.T) {
	store := NewTaskStore()

	taskID := store.Enqueue(func(ctx context.Context) (string, error) {
		return "", errors.New("model unavailable")
	})
	store.Wait()

	task, err := store.GetStatus(taskID)
	assert.Equal(t, err, nil)
	assert.Equal(t, task.Status, TaskStatusFailed)
	assert.Equal(t, task.Error, "model unavailable")
	assert.Equal(t, task.ResultID, "")
}

func TestGetStatusUnknownTask(t *testing.T) {
	store := NewTaskStore()

	_, err := store.GetStatus("missing")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestTerminalStatusIsImmutable(t *testing.T) {
	store := NewTaskStore()

	taskID := store.Enqueue(func(ctx context.Context) (string, error) {
		return "first", nil
	})
	store.Wait()

	// A late duplicate transition must not overwrite the terminal state.
	store.finish(taskID, TaskStatusFailed, "late failure", "")

	task, err := store.GetStatus(taskID)
	assert.Equal(t, err, nil)
	assert.Equal(t, task.Status, TaskStatusCompleted)
	assert.Equal(t, task.ResultID, "first")
}

func TestGetStatusReturnsACopy(t *testing.T) {
	store := NewTaskStore()

	taskID := store.Enqueue(func(ctx context.Context) (string, error) {
		return "entity-2", nil
	})
	store.Wait()

	task, _ := store.GetStatus(taskID)
	task.Status = TaskStatusFailed

	again, _ := store.GetStatus(taskID)
	assert.Equal(t, again.Status, TaskStatusCompleted)
}
