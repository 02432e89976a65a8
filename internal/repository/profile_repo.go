package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Profile is the cached display identity of a student.
type Profile struct {
	UserID string
	Name   string
	Email  string
}

// ProfileRepository caches student display names for rosters and exports.
type ProfileRepository interface {
	Upsert(ctx context.Context, profile Profile) error
	Get(ctx context.Context, userID string) (Profile, error)
	Many(ctx context.Context, userIDs []string) (map[string]Profile, error)
}

type profileRepository struct {
	client *redis.Client
}

// NewProfileRepository constructs a Redis backed profile cache.
func NewProfileRepository(client *redis.Client) ProfileRepository {
	return &profileRepository{client: client}
}

func (r *profileRepository) Upsert(ctx context.Context, profile Profile) error {
	values := map[string]interface{}{}
	if profile.Name != "" {
		values["name"] = profile.Name
	}
	if profile.Email != "" {
		values["email"] = profile.Email
	}
	if len(values) == 0 {
		return nil
	}
	if err := r.client.HSet(ctx, profileKey(profile.UserID), values).Err(); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (r *profileRepository) Get(ctx context.Context, userID string) (Profile, error) {
	values, err := r.client.HGetAll(ctx, profileKey(userID)).Result()
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return Profile{UserID: userID, Name: values["name"], Email: values["email"]}, nil
}

func (r *profileRepository) Many(ctx context.Context, userIDs []string) (map[string]Profile, error) {
	profiles := make(map[string]Profile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(userIDs))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range userIDs {
			cmds[i] = pipe.HGetAll(ctx, profileKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	for i, id := range userIDs {
		values := cmds[i].Val()
		profiles[id] = Profile{UserID: id, Name: values["name"], Email: values["email"]}
	}
	return profiles, nil
}
