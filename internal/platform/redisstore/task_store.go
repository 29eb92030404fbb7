package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/echopod-api/internal/domain"
	"github.com/phrazzld/echopod-api/internal/store"
)

const (
	// taskKeyPrefix namespaces task records in the shared keyspace.
	taskKeyPrefix = "task:"

	// DefaultTaskTTL is how long a task record survives after its last
	// write. Every save refreshes the TTL.
	DefaultTaskTTL = 7 * 24 * time.Hour

	// scanBatchSize is the COUNT hint passed to SCAN when enumerating
	// task keys.
	scanBatchSize = 100
)

// TaskStore persists task records in Redis as JSON values under task:{id}
// keys with a rolling TTL. It is safe for concurrent use; each task id is an
// independent key and no multi-key transactions are required.
type TaskStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewTaskStore creates a TaskStore on the given Redis client. A non-positive
// ttl falls back to DefaultTaskTTL.
func NewTaskStore(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *TaskStore {
	if ttl <= 0 {
		ttl = DefaultTaskTTL
	}
	return &TaskStore{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "redis_task_store"),
	}
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}

// SaveTask writes the task record, refreshing its TTL.
func (s *TaskStore) SaveTask(ctx context.Context, task *domain.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to serialize task %s: %w", task.ID, err)
	}

	if err := s.client.Set(ctx, taskKey(task.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: failed to save task %s: %v", store.ErrStoreUnavailable, task.ID, err)
	}
	return nil
}

// GetTask reads a task record by id. Returns store.ErrTaskNotFound when the
// record never existed or has expired.
func (s *TaskStore) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	payload, err := s.client.Get(ctx, taskKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("%w: failed to load task %s: %v", store.ErrStoreUnavailable, id, err)
	}

	var task domain.Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", id, err)
	}
	return &task, nil
}

// DeleteTask removes a task record. Deleting an absent record is not an
// error; the record may have expired concurrently.
func (s *TaskStore) DeleteTask(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, taskKey(id)).Err(); err != nil {
		return fmt.Errorf("%w: failed to delete task %s: %v", store.ErrStoreUnavailable, id, err)
	}
	return nil
}

// ListTasks enumerates every stored task record. This is an O(total tasks)
// scan; callers that poll frequently should subscribe to the broadcast
// stream instead.
func (s *TaskStore) ListTasks(ctx context.Context) ([]*domain.Task, error) {
	var tasks []*domain.Task

	iter := s.client.Scan(ctx, 0, taskKeyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		payload, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Expired between SCAN and GET.
				continue
			}
			return nil, fmt.Errorf("%w: failed to load task key %s: %v", store.ErrStoreUnavailable, iter.Val(), err)
		}

		var task domain.Task
		if err := json.Unmarshal(payload, &task); err != nil {
			s.logger.Warn("skipping undecodable task record", "key", iter.Val(), "error", err)
			continue
		}
		tasks = append(tasks, &task)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: task key scan failed: %v", store.ErrStoreUnavailable, err)
	}

	return tasks, nil
}
