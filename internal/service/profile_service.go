package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/csharp-course-api/internal/auth"
	"github.com/noah-isme/csharp-course-api/internal/repository"
)

// ProfileService caches student display names. Every operation is best effort.
type ProfileService interface {
	Remember(ctx context.Context, identity auth.Identity)
	Names(ctx context.Context, userIDs []string) map[string]string
}

type profileService struct {
	repo   repository.ProfileRepository
	logger zerolog.Logger
}

// NewProfileService constructs the display-name cache.
func NewProfileService(repo repository.ProfileRepository, logger zerolog.Logger) ProfileService {
	return &profileService{
		repo:   repo,
		logger: logger.With().Str("component", "profile_service").Logger(),
	}
}

func (s *profileService) Remember(ctx context.Context, identity auth.Identity) {
	if identity.SubjectID == "" || (identity.Name == "" && identity.Email == "") {
		return
	}
	err := s.repo.Upsert(ctx, repository.Profile{
		UserID: identity.SubjectID,
		Name:   identity.Name,
		Email:  identity.Email,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", identity.SubjectID).Msg("failed to cache display name")
	}
}

func (s *profileService) Names(ctx context.Context, userIDs []string) map[string]string {
	names := make(map[string]string, len(userIDs))
	profiles, err := s.repo.Many(ctx, userIDs)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load display names")
		return names
	}
	for id, profile := range profiles {
		switch {
		case profile.Name != "":
			names[id] = profile.Name
		case profile.Email != "":
			names[id] = profile.Email
		}
	}
	return names
}
