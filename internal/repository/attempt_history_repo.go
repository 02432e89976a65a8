package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/csharp-course-api/internal/models"
)

// AttemptHistoryRepository keeps the accepted attempts of each quiz, newest first.
type AttemptHistoryRepository interface {
	Push(ctx context.Context, userID, quizID string, entry models.AttemptHistoryEntry) error
	List(ctx context.Context, userID, quizID string) ([]models.AttemptHistoryEntry, error)
	Replace(ctx context.Context, userID, quizID string, entries []models.AttemptHistoryEntry) error
	Clear(ctx context.Context, userID, quizID string) error
}

type attemptHistoryRepository struct {
	client *redis.Client
}

// NewAttemptHistoryRepository constructs a Redis backed attempt history repository.
func NewAttemptHistoryRepository(client *redis.Client) AttemptHistoryRepository {
	return &attemptHistoryRepository{client: client}
}

func (r *attemptHistoryRepository) Push(ctx context.Context, userID, quizID string, entry models.AttemptHistoryEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	return r.client.LPush(ctx, quizHistoryKey(userID, quizID), payload).Err()
}

func (r *attemptHistoryRepository) List(ctx context.Context, userID, quizID string) ([]models.AttemptHistoryEntry, error) {
	raw, err := r.client.LRange(ctx, quizHistoryKey(userID, quizID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	entries := make([]models.AttemptHistoryEntry, 0, len(raw))
	for _, item := range raw {
		var entry models.AttemptHistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Replace overwrites the history; entries are given newest first.
func (r *attemptHistoryRepository) Replace(ctx context.Context, userID, quizID string, entries []models.AttemptHistoryEntry) error {
	key := quizHistoryKey(userID, quizID)
	values := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode attempt: %w", err)
		}
		values = append(values, payload)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace attempts: %w", err)
	}
	return nil
}

func (r *attemptHistoryRepository) Clear(ctx context.Context, userID, quizID string) error {
	return r.client.Del(ctx, quizHistoryKey(userID, quizID)).Err()
}
