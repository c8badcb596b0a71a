package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/logging"
)

var adminCaller = domain.Caller{ID: 1, ChatID: 1000}

func newTestAdmin(usage *fakeUsage, messenger *fakeMessenger, window time.Duration) *Admin {
	return NewAdmin(AdminDeps{
		AdminIDs:      []int64{adminCaller.ID},
		Messenger:     messenger,
		Usage:         usage,
		ConfirmWindow: window,
		SendGap:       time.Nanosecond,
		ProgressEvery: 2,
	})
}

func audience(now time.Time) []domain.UserRecord {
	return []domain.UserRecord{
		{ID: 10, ChatID: 100, FirstName: "Recent", LastSeen: now.Add(-time.Hour), PortfolioRequests: 5},
		{ID: 20, ChatID: 200, Username: "old", LastSeen: now.Add(-30 * 24 * time.Hour), PortfolioRequests: 2},
		{ID: 30, ChatID: 300, LastSeen: now.Add(-2 * 24 * time.Hour), PortfolioRequests: 1},
	}
}

func TestAdminRejectsStrangers(t *testing.T) {
	t.Parallel()

	messenger := &fakeMessenger{}
	usage := &fakeUsage{users: audience(time.Now())}
	a := newTestAdmin(usage, messenger, time.Minute)
	stranger := domain.Caller{ID: 99, ChatID: 990}
	ctx := context.Background()

	a.Stats(ctx, stranger)
	a.PrepareBroadcast(ctx, stranger, "hi")
	a.BroadcastActive(ctx, stranger, "hi")

	texts := messenger.textsTo(stranger.ChatID)
	require.Len(t, texts, 3)
	for _, text := range texts {
		require.True(t, strings.HasPrefix(text, "❌ У вас нет прав"), text)
	}
	require.False(t, a.Confirm(ctx, stranger, "ДА"))
	require.Empty(t, usage.broadcasts)
}

func TestAdminStats(t *testing.T) {
	t.Parallel()

	messenger := &fakeMessenger{}
	usage := &fakeUsage{
		users: audience(time.Now()),
		stats: domain.UsageStats{TotalUsers: 3, TotalRequests: 8, TotalSuccessful: 6, SuccessRate: 75},
	}
	a := newTestAdmin(usage, messenger, time.Minute)

	a.Stats(context.Background(), adminCaller)

	texts := messenger.textsTo(adminCaller.ChatID)
	require.Len(t, texts, 1)
	require.Contains(t, texts[0], "👥 Всего пользователей: 3")
	require.Contains(t, texts[0], "📊 Успешность: 75.0%")
	require.Contains(t, texts[0], "1. Recent: 5 запросов")
	require.Contains(t, texts[0], "3. User 30: 1 запросов")
}

func TestAdminBroadcastConfirmed(t *testing.T) {
	t.Parallel()

	messenger := &fakeMessenger{textErrFor: map[int64]bool{200: true}}
	usage := &fakeUsage{users: audience(time.Now())}
	a := newTestAdmin(usage, messenger, time.Minute)
	ctx := context.Background()

	a.PrepareBroadcast(ctx, adminCaller, "новая версия")
	prompt := messenger.textsTo(adminCaller.ChatID)
	require.Len(t, prompt, 1)
	require.Contains(t, prompt[0], "3 пользователям")

	require.True(t, a.Confirm(ctx, adminCaller, " да "))
	require.Equal(t, []string{"новая версия"}, messenger.textsTo(100))
	require.Equal(t, []string{"новая версия"}, messenger.textsTo(300))

	require.Len(t, usage.broadcasts, 1)
	rec := usage.broadcasts[0]
	require.Equal(t, BroadcastManual, rec.Type)
	require.Equal(t, 2, rec.SentCount)
	require.Equal(t, 3, rec.TotalCount)
	require.InDelta(t, 66.67, rec.SuccessRate, 0.01)

	// progress every 2 sends and once at the end
	require.Len(t, messenger.edits, 2)
	require.Contains(t, messenger.edits[1], "3/3 (100%)")

	final := messenger.textsTo(adminCaller.ChatID)
	require.Contains(t, final[len(final)-1], "✅ Успешно отправлено: 2")

	require.False(t, a.Confirm(ctx, adminCaller, "ДА"))
}

func TestAdminBroadcastCancelled(t *testing.T) {
	t.Parallel()

	messenger := &fakeMessenger{}
	usage := &fakeUsage{users: audience(time.Now())}
	a := newTestAdmin(usage, messenger, time.Minute)
	ctx := context.Background()

	a.PrepareBroadcast(ctx, adminCaller, "x")
	require.True(t, a.Confirm(ctx, adminCaller, "нет"))

	texts := messenger.textsTo(adminCaller.ChatID)
	require.Equal(t, "❌ Рассылка отменена.", texts[len(texts)-1])
	require.Empty(t, usage.broadcasts)
}

func TestAdminBroadcastConfirmationExpires(t *testing.T) {
	t.Parallel()

	messenger := &fakeMessenger{}
	usage := &fakeUsage{users: audience(time.Now())}
	a := newTestAdmin(usage, messenger, 10*time.Millisecond)
	ctx := context.Background()

	a.PrepareBroadcast(ctx, adminCaller, "x")
	time.Sleep(50 * time.Millisecond)

	require.False(t, a.Confirm(ctx, adminCaller, "ДА"))
	require.Empty(t, usage.broadcasts)
}

func TestAdminBroadcastActive(t *testing.T) {
	t.Parallel()

	messenger := &fakeMessenger{}
	usage := &fakeUsage{users: audience(time.Now())}
	a := newTestAdmin(usage, messenger, time.Minute)

	a.BroadcastActive(context.Background(), adminCaller, "hello")

	require.Equal(t, []domain.UserFilter{{ActiveDays: 7}}, usage.filters)
	require.Equal(t, []string{"hello"}, messenger.textsTo(100))
	require.Empty(t, messenger.textsTo(200))
	require.Len(t, usage.broadcasts, 1)
	require.Equal(t, BroadcastActive, usage.broadcasts[0].Type)
	require.Equal(t, 2, usage.broadcasts[0].TotalCount)
}

func TestAdminBroadcastNoAudience(t *testing.T) {
	t.Parallel()

	messenger := &fakeMessenger{}
	a := newTestAdmin(&fakeUsage{}, messenger, time.Minute)

	a.PrepareBroadcast(context.Background(), adminCaller, "x")
	require.Equal(t, []string{"📭 Нет пользователей для рассылки."}, messenger.textsTo(adminCaller.ChatID))
	require.False(t, a.Confirm(context.Background(), adminCaller, "ДА"))
}

func TestAdminBroadcastSurvivesProgressEditFailure(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	messenger := &fakeMessenger{editErr: errors.New("message is not modified")}
	usage := &fakeUsage{users: audience(time.Now())}
	a := NewAdmin(AdminDeps{
		AdminIDs:      []int64{adminCaller.ID},
		Messenger:     messenger,
		Usage:         usage,
		Logger:        logging.NewWriter(&logs, "debug"),
		SendGap:       time.Nanosecond,
		ProgressEvery: 1,
	})

	rec := a.Broadcast(context.Background(), adminCaller.ChatID, "привет", audience(time.Now()), BroadcastManual)

	require.Equal(t, 3, rec.SentCount)
	require.Len(t, messenger.edits, 3)
	require.Len(t, usage.broadcasts, 1)
	require.Contains(t, logs.String(), "broadcast progress edit failed")
	require.Contains(t, logs.String(), "message is not modified")

	final := messenger.textsTo(adminCaller.ChatID)
	require.Contains(t, final[len(final)-1], "✅ Успешно отправлено: 3")
}
