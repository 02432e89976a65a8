package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/csharp-course-api/internal/models"
)

// AuditRepository is the bounded, newest-first override audit trail.
type AuditRepository interface {
	Append(ctx context.Context, entry models.AuditEntry) error
	List(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

type auditRepository struct {
	client *redis.Client
}

// NewAuditRepository constructs a Redis backed audit repository.
func NewAuditRepository(client *redis.Client) AuditRepository {
	return &auditRepository{client: client}
}

func (r *auditRepository) Append(ctx context.Context, entry models.AuditEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, auditKey, payload)
		pipe.LTrim(ctx, auditKey, 0, AuditLogCap-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > AuditLogCap {
		limit = AuditLogCap
	}
	raw, err := r.client.LRange(ctx, auditKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	entries := make([]models.AuditEntry, 0, len(raw))
	for _, item := range raw {
		var entry models.AuditEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
