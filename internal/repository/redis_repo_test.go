package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/csharp-course-api/internal/models"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mini, client
}

func TestProgressRepositorySaveAndLoad(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewProgressRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "u1", "week-01-lab", map[string]string{
		models.FieldScore:  "72",
		models.FieldStatus: string(models.StatusSubmitted),
	}))

	records, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	require.Contains(t, records, "week-01-lab")
	require.InDelta(t, 72, *records["week-01-lab"].Score, 0.0001)
	require.Equal(t, models.StatusSubmitted, records["week-01-lab"].Status)

	missing, err := repo.Get(ctx, "u1", "week-02-lab")
	require.NoError(t, err)
	require.Equal(t, "week-02-lab", missing.AssignmentID)
	require.False(t, missing.HasScore())
}

func TestProgressRepositoryMergesLegacyShapes(t *testing.T) {
	mini, client := newTestRedis(t)
	repo := NewProgressRepository(client)
	ctx := context.Background()

	require.NoError(t, mini.Set("user:u1:progress", `{"assignments":{"week-01-quiz":{"score":60,"attempts":1},"week-01-lab":{"score":50}}}`))
	require.NoError(t, mini.Set("submission:u1:week-01-homework", `{"score":88,"isLate":true,"daysLate":1}`))
	mini.HSet("progress:u1", "week-01-quiz:score", "90")

	records, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	require.InDelta(t, 90, *records["week-01-quiz"].Score, 0.0001)
	require.Equal(t, 1, records["week-01-quiz"].AttemptCount())
	require.InDelta(t, 50, *records["week-01-lab"].Score, 0.0001)
	require.InDelta(t, 88, *records["week-01-homework"].Score, 0.0001)
	require.True(t, records["week-01-homework"].Late())
}

func TestProgressRepositoryIgnoresLegacyDocumentsOfPrefixedUsers(t *testing.T) {
	mini, client := newTestRedis(t)
	repo := NewProgressRepository(client)
	ctx := context.Background()

	require.NoError(t, mini.Set("submission:u1:week-01-lab", `{"score":70}`))
	require.NoError(t, mini.Set("submission:u1:x:week-01-homework", `{"score":99}`))

	records, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	require.InDelta(t, 70, *records["week-01-lab"].Score, 0.0001)
	require.NotContains(t, records, "week-01-homework")
	require.NotContains(t, records, "x:week-01-homework")

	other, err := repo.Load(ctx, "u1:x")
	require.NoError(t, err)
	require.InDelta(t, 99, *other["week-01-homework"].Score, 0.0001)
	require.NotContains(t, other, "week-01-lab")
}

func TestProgressRepositoryClearFieldsDoesNotResurfaceLegacy(t *testing.T) {
	mini, client := newTestRedis(t)
	repo := NewProgressRepository(client)
	ctx := context.Background()

	require.NoError(t, mini.Set("user:u1:progress", `{"assignments":{"week-01-quiz":{"score":60,"attempts":2,"feedback":"ok"},"week-01-lab":{"score":50}}}`))

	require.NoError(t, repo.ClearFields(ctx, "u1", "week-01-quiz", models.FieldAttempts, models.FieldScore))

	record, err := repo.Get(ctx, "u1", "week-01-quiz")
	require.NoError(t, err)
	require.Nil(t, record.Attempts)
	require.Nil(t, record.Score)
	require.Equal(t, "ok", record.Feedback)

	lab, err := repo.Get(ctx, "u1", "week-01-lab")
	require.NoError(t, err)
	require.InDelta(t, 50, *lab.Score, 0.0001)
}

func TestProgressRepositoryStudentsAndCompleted(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewProgressRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.RegisterStudent(ctx, "b"))
	require.NoError(t, repo.RegisterStudent(ctx, "a"))
	require.NoError(t, repo.RegisterStudent(ctx, "a"))
	students, err := repo.Students(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, students)

	require.NoError(t, repo.MarkCompleted(ctx, "a", "week-01-lab"))
	completed, err := repo.Completed(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, []string{"week-01-lab"}, completed)
}

func TestAttemptHistoryRepositoryNewestFirst(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewAttemptHistoryRepository(client)
	ctx := context.Background()
	now := time.Date(2026, 1, 14, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Push(ctx, "u1", "week-01-quiz", models.AttemptHistoryEntry{Attempt: 1, Score: 60, Timestamp: now}))
	require.NoError(t, repo.Push(ctx, "u1", "week-01-quiz", models.AttemptHistoryEntry{Attempt: 2, Score: 80, Timestamp: now.Add(time.Hour)}))

	entries, err := repo.List(ctx, "u1", "week-01-quiz")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 2, entries[0].Attempt)

	require.NoError(t, repo.Replace(ctx, "u1", "week-01-quiz", entries[:1]))
	entries, err = repo.List(ctx, "u1", "week-01-quiz")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.InDelta(t, 80, entries[0].Score, 0.0001)

	require.NoError(t, repo.Clear(ctx, "u1", "week-01-quiz"))
	entries, err = repo.List(ctx, "u1", "week-01-quiz")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestParticipationRepositoryAppendsInOrder(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewParticipationRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, "u1", models.ParticipationEvent{SectionID: "week-02-section-1", Week: 2}))
	require.NoError(t, repo.Append(ctx, "u1", models.ParticipationEvent{SectionID: "week-02-section-2", Week: 2}))

	events, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "week-02-section-1", events[0].SectionID)
}

func TestAuditRepositoryKeepsNewestThousand(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewAuditRepository(client)
	ctx := context.Background()

	for i := 0; i < AuditLogCap+1; i++ {
		require.NoError(t, repo.Append(ctx, models.AuditEntry{
			ID:     fmt.Sprintf("entry-%d", i),
			Action: models.OverrideActionScore,
			UserID: "u1",
		}))
	}

	length, err := client.LLen(ctx, auditKey).Result()
	require.NoError(t, err)
	require.Equal(t, int64(AuditLogCap), length)

	entries, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, AuditLogCap)
	require.Equal(t, fmt.Sprintf("entry-%d", AuditLogCap), entries[0].ID)
	require.Equal(t, "entry-1", entries[len(entries)-1].ID)

	limited, err := repo.List(ctx, 5)
	require.NoError(t, err)
	require.Len(t, limited, 5)
}

func TestProfileRepositoryMany(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewProfileRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, Profile{UserID: "u1", Name: "Ada Lovelace", Email: "ada@example.edu"}))

	profiles, err := repo.Many(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", profiles["u1"].Name)
	require.Empty(t, profiles["u2"].Name)
}
