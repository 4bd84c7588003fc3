package solverapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"turnstile-solver/solver"
)

const defaultKeyPrefix = "turnstile:task:"

// RedisStore keeps tasks as JSON strings. Finished tasks expire after ttl,
// so Cleanup has nothing to do.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Create(ctx context.Context, req solver.Request) (*Task, error) {
	task := newTask(req)
	if err := s.write(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Task, error) {
	data, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	} else if err != nil {
		return nil, fmt.Errorf("error loading task %s: %w", id, err)
	}

	var task Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, fmt.Errorf("error unmarshalling task %s: %w", id, err)
	}
	return &task, nil
}

func (s *RedisStore) Save(ctx context.Context, task *Task) error {
	n, err := s.client.Exists(ctx, s.key(task.ID)).Result()
	if err != nil {
		return fmt.Errorf("error checking task %s: %w", task.ID, err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return s.write(ctx, task)
}

func (s *RedisStore) Cleanup(ctx context.Context, maxAge time.Duration) error {
	return nil
}

func (s *RedisStore) write(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("error marshalling task %s: %w", task.ID, err)
	}
	var ttl time.Duration
	if task.Status.Finished() {
		ttl = s.ttl
	}
	return s.client.Set(ctx, s.key(task.ID), data, ttl).Err()
}
