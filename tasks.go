package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskWork is one unit of background work. It returns the id of the
// entity it produced (if any) so status lookups can hand the caller a
// direct reference instead of scanning for the most recent row.
type TaskWork func(ctx context.Context) (resultID string, err error)

// TaskStore runs enqueued work on background goroutines and keeps
// status bookkeeping. The enqueuing component owns the business side
// effects; the store owns only the task records. A task transitions
// exactly once from RUNNING to COMPLETED or FAILED and is immutable
// afterwards.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	wg    sync.WaitGroup
}

func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*Task),
	}
}

// Enqueue registers the work and returns its task id immediately. The
// work runs detached from the caller's context: a client that stops
// polling does not cancel the unit.
func (s *TaskStore) Enqueue(work TaskWork) string {
	task := &Task{
		ID:        uuid.NewString(),
		Status:    TaskStatusRunning,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		resultID, err := work(context.Background())
		if err != nil {
			slog.Error("Background task failed", "task_id", task.ID, "error", err)
			s.finish(task.ID, TaskStatusFailed, err.Error(), "")
			return
		}
		s.finish(task.ID, TaskStatusCompleted, "", resultID)
	}()

	return task.ID
}

// GetStatus reports the task's current state. The returned Task is a copy.
func (s *TaskStore) GetStatus(taskID string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}

	t := *task
	return &t, nil
}

// Wait blocks until every enqueued unit has finished. Used during
// shutdown and in tests.
func (s *TaskStore) Wait() {
	s.wg.Wait()
}

func (s *TaskStore) finish(taskID string, status TaskStatus, errMsg, resultID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return
	}
	// First terminal transition wins
	if task.Status == TaskStatusCompleted || task.Status == TaskStatusFailed {
		return
	}

	task.Status = status
	task.Error = errMsg
	task.ResultID = resultID
}
