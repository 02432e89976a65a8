package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/csharp-course-api/internal/models"
)

// ParticipationRepository stores the raw engagement event log of each student.
type ParticipationRepository interface {
	Append(ctx context.Context, userID string, event models.ParticipationEvent) error
	List(ctx context.Context, userID string) ([]models.ParticipationEvent, error)
}

type participationRepository struct {
	client *redis.Client
}

// NewParticipationRepository constructs a Redis backed participation repository.
func NewParticipationRepository(client *redis.Client) ParticipationRepository {
	return &participationRepository{client: client}
}

func (r *participationRepository) Append(ctx context.Context, userID string, event models.ParticipationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode participation: %w", err)
	}
	return r.client.RPush(ctx, participationKey(userID), payload).Err()
}

func (r *participationRepository) List(ctx context.Context, userID string) ([]models.ParticipationEvent, error) {
	raw, err := r.client.LRange(ctx, participationKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list participation: %w", err)
	}
	events := make([]models.ParticipationEvent, 0, len(raw))
	for _, item := range raw {
		var event models.ParticipationEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
