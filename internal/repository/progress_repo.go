package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/csharp-course-api/internal/models"
)

// ProgressRepository reads and writes per-student progress records.
type ProgressRepository interface {
	Load(ctx context.Context, userID string) (map[string]models.ProgressRecord, error)
	Get(ctx context.Context, userID, assignmentID string) (models.ProgressRecord, error)
	Save(ctx context.Context, userID, assignmentID string, fields map[string]string) error
	ClearFields(ctx context.Context, userID, assignmentID string, fields ...string) error
	RegisterStudent(ctx context.Context, userID string) error
	Students(ctx context.Context) ([]string, error)
	MarkCompleted(ctx context.Context, userID, assignmentID string) error
	Completed(ctx context.Context, userID string) ([]string, error)
}

type progressRepository struct {
	client *redis.Client
}

// NewProgressRepository constructs a Redis backed progress repository.
func NewProgressRepository(client *redis.Client) ProgressRepository {
	return &progressRepository{client: client}
}

func (r *progressRepository) Load(ctx context.Context, userID string) (map[string]models.ProgressRecord, error) {
	shapes, err := r.shapes(ctx, userID)
	if err != nil {
		return nil, err
	}
	return models.NormalizeProgress(shapes), nil
}

func (r *progressRepository) Get(ctx context.Context, userID, assignmentID string) (models.ProgressRecord, error) {
	records, err := r.Load(ctx, userID)
	if err != nil {
		return models.ProgressRecord{}, err
	}
	record, ok := records[assignmentID]
	if !ok {
		return models.ProgressRecord{AssignmentID: assignmentID}, nil
	}
	return record, nil
}

func (r *progressRepository) Save(ctx context.Context, userID, assignmentID string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(fields))
	for name, value := range fields {
		values[fieldKey(assignmentID, name)] = value
	}
	if err := r.client.HSet(ctx, progressKey(userID), values).Err(); err != nil {
		return fmt.Errorf("save progress %s/%s: %w", userID, assignmentID, err)
	}
	return nil
}

// ClearFields removes fields from a record. Legacy documents for the assignment are
// migrated into the current hash first so cleared fields cannot resurface from them.
func (r *progressRepository) ClearFields(ctx context.Context, userID, assignmentID string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	if err := r.migrateLegacy(ctx, userID, assignmentID); err != nil {
		return err
	}
	keys := make([]string, 0, len(fields))
	for _, name := range fields {
		keys = append(keys, fieldKey(assignmentID, name))
	}
	if err := r.client.HDel(ctx, progressKey(userID), keys...).Err(); err != nil {
		return fmt.Errorf("clear progress %s/%s: %w", userID, assignmentID, err)
	}
	return nil
}

func (r *progressRepository) RegisterStudent(ctx context.Context, userID string) error {
	return r.client.SAdd(ctx, studentsKey, userID).Err()
}

func (r *progressRepository) Students(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, studentsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	sort.Strings(members)
	return members, nil
}

func (r *progressRepository) MarkCompleted(ctx context.Context, userID, assignmentID string) error {
	return r.client.SAdd(ctx, completedKey(userID), assignmentID).Err()
}

func (r *progressRepository) Completed(ctx context.Context, userID string) ([]string, error) {
	members, err := r.client.SMembers(ctx, completedKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	sort.Strings(members)
	return members, nil
}

func (r *progressRepository) shapes(ctx context.Context, userID string) ([]models.ProgressShape, error) {
	shapes := make([]models.ProgressShape, 0, 4)

	blob, err := r.client.Get(ctx, legacyProgressKey(userID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, fmt.Errorf("load legacy progress: %w", err)
	default:
		shapes = append(shapes, models.ProgressShape{Version: models.ShapeLegacyBlob, Blob: blob})
	}

	prefix := legacySubmissionKey(userID, "")
	iter := r.client.Scan(ctx, 0, legacySubmissionPattern(userID), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		assignmentID := strings.TrimPrefix(key, prefix)
		// Assignment ids never contain ':'; a longer suffix belongs to a user whose id
		// starts with this one, e.g. submission:u1:x:week-01-lab for user "u1:x".
		if assignmentID == "" || strings.Contains(assignmentID, ":") {
			continue
		}
		doc, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("load legacy submission: %w", err)
		}
		shapes = append(shapes, models.ProgressShape{
			Version:      models.ShapeLegacySubmission,
			AssignmentID: assignmentID,
			Blob:         doc,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan legacy submissions: %w", err)
	}

	hash, err := r.client.HGetAll(ctx, progressKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if len(hash) > 0 {
		shapes = append(shapes, models.ProgressShape{Version: models.ShapeFieldHash, Fields: hash})
	}

	return shapes, nil
}

// migrateLegacy copies the normalised record into the hash and drops the assignment from
// every legacy document.
func (r *progressRepository) migrateLegacy(ctx context.Context, userID, assignmentID string) error {
	blobKey := legacyProgressKey(userID)
	subKey := legacySubmissionKey(userID, assignmentID)

	blob, err := r.client.Get(ctx, blobKey).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("load legacy progress: %w", err)
	}
	hasBlobEntry := false
	var stripped []byte
	if len(blob) > 0 {
		stripped, hasBlobEntry = models.StripLegacyAssignment(blob, assignmentID)
	}
	exists, err := r.client.Exists(ctx, subKey).Result()
	if err != nil {
		return fmt.Errorf("check legacy submission: %w", err)
	}
	if !hasBlobEntry && exists == 0 {
		return nil
	}

	record, err := r.Get(ctx, userID, assignmentID)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if fields := record.Fields(); len(fields) > 0 {
			values := make(map[string]interface{}, len(fields))
			for name, value := range fields {
				values[fieldKey(assignmentID, name)] = value
			}
			pipe.HSet(ctx, progressKey(userID), values)
		}
		if hasBlobEntry {
			pipe.Set(ctx, blobKey, stripped, 0)
		}
		if exists > 0 {
			pipe.Del(ctx, subKey)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("migrate legacy progress %s/%s: %w", userID, assignmentID, err)
	}
	return nil
}
