package usagelog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/ports"
)

type historyStore interface {
	ports.UsageLog
	Broadcasts(ctx context.Context) ([]domain.BroadcastRecord, error)
}

var (
	alice = domain.Caller{ID: 1, ChatID: 100, FirstName: "Alice"}
	bob   = domain.Caller{ID: 2, ChatID: 200, Username: "bob"}
	ghost = domain.Caller{ID: 99, ChatID: 990}
)

// exerciseStore runs the same scenario against every backend. setClock pins
// the store's notion of now.
func exerciseStore(t *testing.T, store historyStore, setClock func(time.Time)) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	setClock(now)

	require.NoError(t, store.RecordRequest(ctx, ghost, "https://portfolio.hse.ru/Student/9"))
	require.NoError(t, store.RecordStart(ctx, alice))
	require.NoError(t, store.RecordStart(ctx, bob))
	require.NoError(t, store.RecordStart(ctx, domain.Caller{ID: 1, ChatID: 101, Username: "al"}))

	require.NoError(t, store.RecordRequest(ctx, alice, "https://portfolio.hse.ru/Student/1"))
	require.NoError(t, store.RecordRequest(ctx, alice, "https://portfolio.hse.ru/Student/2"))
	require.NoError(t, store.RecordRequest(ctx, bob, "https://portfolio.hse.ru/Student/3"))

	summary := domain.Summary{StudentName: "Иванов Иван", TotalProjects: 3, TotalLikes: 7, TotalViews: 120, AverageMark: 8.5}
	require.NoError(t, store.RecordSuccess(ctx, alice, 5, summary))
	require.NoError(t, store.RecordFailure(ctx, bob, "parsing_error"))
	require.NoError(t, store.RecordSuccess(ctx, ghost, 4, summary))

	stats, err := store.Stats(ctx, now)
	require.NoError(t, err)
	require.Equal(t, domain.UsageStats{
		TotalUsers:           2,
		ActiveUsers:          2,
		SuccessfulUsers:      1,
		TotalRequests:        4,
		TotalSuccessful:      1,
		TotalFailed:          1,
		TotalImages:          5,
		SuccessRate:          25,
		AverageImagesPerUser: 5,
	}, stats)

	later, err := store.Stats(ctx, now.Add(8*24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, later.ActiveUsers)

	top, err := store.TopUsers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)

	a := top[0]
	require.Equal(t, int64(1), a.ID)
	require.Equal(t, int64(101), a.ChatID)
	require.Equal(t, "Alice", a.FirstName)
	require.Equal(t, "al", a.Username)
	require.Equal(t, 2, a.StartCount)
	require.Equal(t, 2, a.PortfolioRequests)
	require.Equal(t, 1, a.SuccessfulRequests)
	require.Equal(t, 5, a.TotalImages)
	require.Equal(t, "https://portfolio.hse.ru/Student/2", a.LastPortfolioURL)
	require.Equal(t, "Иванов Иван", a.LastStudentName)
	require.NotNil(t, a.LastStudentStats)
	require.Equal(t, summary, *a.LastStudentStats)
	require.True(t, a.LastSeen.Equal(now))
	require.NotNil(t, a.LastSuccessTime)
	require.Nil(t, a.LastErrorTime)

	successful, err := store.Users(ctx, domain.UserFilter{HasSuccessfulRequests: true}, now)
	require.NoError(t, err)
	require.Len(t, successful, 1)
	require.Equal(t, int64(1), successful[0].ID)

	all, err := store.Users(ctx, domain.UserFilter{MinRequests: 1}, now)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, int64(2), all[1].ID)
	require.Equal(t, "parsing_error", all[1].LastError)
	require.NotNil(t, all[1].LastErrorTime)

	stale, err := store.Users(ctx, domain.UserFilter{ActiveDays: 7}, now.Add(8*24*time.Hour))
	require.NoError(t, err)
	require.Empty(t, stale)

	for i := 1; i <= maxBroadcasts+2; i++ {
		require.NoError(t, store.RecordBroadcast(ctx, domain.BroadcastRecord{
			Type:        "manual",
			SentCount:   i,
			TotalCount:  maxBroadcasts + 2,
			SuccessRate: 50,
			Timestamp:   now,
		}))
	}
	history, err := store.Broadcasts(ctx)
	require.NoError(t, err)
	require.Len(t, history, maxBroadcasts)
	require.Equal(t, 3, history[0].SentCount)
	require.Equal(t, maxBroadcasts+2, history[len(history)-1].SentCount)
}

func TestSummarizeRates(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	users := []domain.UserRecord{
		{ID: 1, LastSeen: now.Add(-time.Hour), SuccessfulRequests: 2, TotalImages: 9},
		{ID: 2, LastSeen: now.Add(-10 * 24 * time.Hour), SuccessfulRequests: 1, TotalImages: 2, FailedRequests: 1},
		{ID: 3, LastSeen: now.Add(-time.Minute)},
	}

	stats := summarize(users, 3, 7, now)
	require.Equal(t, 2, stats.ActiveUsers)
	require.Equal(t, 2, stats.SuccessfulUsers)
	require.Equal(t, 42.9, stats.SuccessRate)
	require.Equal(t, 5.5, stats.AverageImagesPerUser)

	empty := summarize(nil, 0, 0, now)
	require.Zero(t, empty.SuccessRate)
	require.Zero(t, empty.AverageImagesPerUser)
}

func TestTopUsersOrdering(t *testing.T) {
	t.Parallel()

	users := []domain.UserRecord{
		{ID: 3, PortfolioRequests: 1},
		{ID: 1, PortfolioRequests: 5},
		{ID: 2, PortfolioRequests: 5},
	}
	top := topUsers(users, 0)
	require.Equal(t, []int64{1, 2, 3}, []int64{top[0].ID, top[1].ID, top[2].ID})
	require.Len(t, topUsers(users, 2), 2)
	require.Equal(t, int64(3), users[0].ID, "input must stay untouched")
}

func TestApplyStartKeepsKnownNames(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var rec domain.UserRecord
	applyStart(&rec, false, domain.Caller{ID: 7, ChatID: 70, FirstName: "Ann", LastName: "Lee"}, now)
	applyStart(&rec, true, domain.Caller{ID: 7, ChatID: 71}, now.Add(time.Hour))

	require.Equal(t, "Ann", rec.FirstName)
	require.Equal(t, "Lee", rec.LastName)
	require.Equal(t, int64(71), rec.ChatID)
	require.Equal(t, 2, rec.StartCount)
	require.True(t, rec.FirstSeen.Equal(now))
	require.True(t, rec.LastSeen.Equal(now.Add(time.Hour)))
}
