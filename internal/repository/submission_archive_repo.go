package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/csharp-course-api/internal/models"
)

// SubmissionArchiveRepository persists full submission artefacts.
type SubmissionArchiveRepository interface {
	Create(ctx context.Context, archive *models.SubmissionArchive) error
	ListByUser(ctx context.Context, userID string, assignmentID string) ([]models.SubmissionArchive, error)
}

type submissionArchiveRepository struct {
	db *gorm.DB
}

// NewSubmissionArchiveRepository constructs a gorm backed archive repository.
func NewSubmissionArchiveRepository(db *gorm.DB) SubmissionArchiveRepository {
	return &submissionArchiveRepository{db: db}
}

func (r *submissionArchiveRepository) Create(ctx context.Context, archive *models.SubmissionArchive) error {
	return r.db.WithContext(ctx).Create(archive).Error
}

func (r *submissionArchiveRepository) ListByUser(ctx context.Context, userID string, assignmentID string) ([]models.SubmissionArchive, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if assignmentID != "" {
		query = query.Where("assignment_id = ?", assignmentID)
	}

	var archives []models.SubmissionArchive
	if err := query.Order("submitted_at DESC").Order("id DESC").Find(&archives).Error; err != nil {
		return nil, err
	}
	return archives, nil
}
