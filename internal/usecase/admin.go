package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/logging"
	"HSEWrapped/internal/pause"
	"HSEWrapped/internal/ports"
)

const (
	BroadcastManual = "manual"
	BroadcastActive = "active_users"

	ConfirmWord = "ДА"

	defaultConfirmWindow = 30 * time.Second
	defaultSendGap       = 100 * time.Millisecond
	defaultProgressEvery = 10
	activeDays           = 7
	topUsersShown        = 5
)

// AdminDeps wires the admin command handlers.
type AdminDeps struct {
	AdminIDs      []int64
	Messenger     ports.Messenger
	Usage         ports.UsageStore
	Logger        *slog.Logger
	ConfirmWindow time.Duration
	SendGap       time.Duration
	ProgressEvery int
	Clock         func() time.Time
}

type pendingBroadcast struct {
	chatID int64
	text   string
	users  []domain.UserRecord
}

// Admin serves the allow-listed operator commands.
type Admin struct {
	admins        map[int64]struct{}
	messenger     ports.Messenger
	usage         ports.UsageStore
	logger        *slog.Logger
	sendGap       time.Duration
	progressEvery int
	clock         func() time.Time

	pending *ttlcache.Cache[int64, pendingBroadcast]
}

// NewAdmin builds the handler set. Pending confirmations expire after the
// confirm window.
func NewAdmin(deps AdminDeps) *Admin {
	admins := make(map[int64]struct{}, len(deps.AdminIDs))
	for _, id := range deps.AdminIDs {
		admins[id] = struct{}{}
	}
	window := deps.ConfirmWindow
	if window <= 0 {
		window = defaultConfirmWindow
	}
	gap := deps.SendGap
	if gap <= 0 {
		gap = defaultSendGap
	}
	every := deps.ProgressEvery
	if every <= 0 {
		every = defaultProgressEvery
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Admin{
		admins:        admins,
		messenger:     deps.Messenger,
		usage:         deps.Usage,
		logger:        logger,
		sendGap:       gap,
		progressEvery: every,
		clock:         clock,
		pending: ttlcache.New[int64, pendingBroadcast](
			ttlcache.WithTTL[int64, pendingBroadcast](window),
			ttlcache.WithDisableTouchOnHit[int64, pendingBroadcast](),
		),
	}
}

// IsAdmin reports whether id is on the allow-list.
func (a *Admin) IsAdmin(id int64) bool {
	_, ok := a.admins[id]
	return ok
}

// Stats answers /stats.
func (a *Admin) Stats(ctx context.Context, caller domain.Caller) {
	if !a.IsAdmin(caller.ID) {
		a.send(ctx, caller.ChatID, "❌ У вас нет прав для просмотра статистики.")
		return
	}

	stats, err := a.usage.Stats(ctx, a.clock())
	if err != nil {
		a.log(ctx).Error("load usage stats", "err", err)
		a.send(ctx, caller.ChatID, "❌ Ошибка при получении статистики.")
		return
	}
	top, err := a.usage.TopUsers(ctx, topUsersShown)
	if err != nil {
		a.log(ctx).Warn("load top users", "err", err)
	}
	a.send(ctx, caller.ChatID, FormatUsageStats(stats, top))
}

// PrepareBroadcast answers /broadcast <text>: it stores the audience and asks
// the admin to confirm.
func (a *Admin) PrepareBroadcast(ctx context.Context, caller domain.Caller, text string) {
	if !a.IsAdmin(caller.ID) {
		a.send(ctx, caller.ChatID, "❌ У вас нет прав для рассылки.")
		return
	}

	users, err := a.usage.Users(ctx, domain.UserFilter{}, a.clock())
	if err != nil {
		a.log(ctx).Error("load broadcast audience", "err", err)
		a.send(ctx, caller.ChatID, "❌ Ошибка при подготовке рассылки.")
		return
	}
	if len(users) == 0 {
		a.send(ctx, caller.ChatID, "📭 Нет пользователей для рассылки.")
		return
	}

	a.pending.Set(caller.ID, pendingBroadcast{chatID: caller.ChatID, text: text, users: users}, ttlcache.DefaultTTL)
	a.send(ctx, caller.ChatID, fmt.Sprintf(
		"📢 Готов отправить сообщение %d пользователям:\n\n\"%s\"\n\nОтправьте \"%s\" для подтверждения или любое другое сообщение для отмены.",
		len(users), text, ConfirmWord))
}

// Confirm consumes a pending broadcast for caller. It reports false when
// nothing was pending, so the message should be routed elsewhere.
func (a *Admin) Confirm(ctx context.Context, caller domain.Caller, answer string) bool {
	item := a.pending.Get(caller.ID)
	if item == nil || item.IsExpired() {
		return false
	}
	pending := item.Value()
	if pending.chatID != caller.ChatID {
		return false
	}
	a.pending.Delete(caller.ID)

	if strings.ToUpper(strings.TrimSpace(answer)) != ConfirmWord {
		a.send(ctx, caller.ChatID, "❌ Рассылка отменена.")
		return true
	}
	a.Broadcast(ctx, caller.ChatID, pending.text, pending.users, BroadcastManual)
	return true
}

// BroadcastActive answers /broadcast_active <text> without confirmation.
func (a *Admin) BroadcastActive(ctx context.Context, caller domain.Caller, text string) {
	if !a.IsAdmin(caller.ID) {
		a.send(ctx, caller.ChatID, "❌ У вас нет прав для рассылки.")
		return
	}

	users, err := a.usage.Users(ctx, domain.UserFilter{ActiveDays: activeDays}, a.clock())
	if err != nil {
		a.log(ctx).Error("load active users", "err", err)
		a.send(ctx, caller.ChatID, "❌ Ошибка при рассылке.")
		return
	}
	if len(users) == 0 {
		a.send(ctx, caller.ChatID, "📭 Нет активных пользователей для рассылки.")
		return
	}

	a.send(ctx, caller.ChatID, fmt.Sprintf("📢 Отправляю сообщение %d активным пользователям (за последние %d дней)...", len(users), activeDays))
	a.Broadcast(ctx, caller.ChatID, text, users, BroadcastActive)
}

// Broadcast sends text to users one at a time and reports progress to the
// admin chat. Individual send failures are counted, not returned.
func (a *Admin) Broadcast(ctx context.Context, adminChatID int64, text string, users []domain.UserRecord, kind string) domain.BroadcastRecord {
	log := a.log(ctx)
	total := len(users)
	sent, failed := 0, 0

	progressID, err := a.messenger.SendText(ctx, adminChatID, fmt.Sprintf("📤 Отправка: 0/%d (0%%)", total))
	if err != nil {
		log.Warn("broadcast progress message failed", "err", err)
	}

	for i, u := range users {
		if ctx.Err() != nil {
			failed += total - i
			break
		}
		if _, err := a.messenger.SendText(ctx, u.ChatID, text); err != nil {
			log.Warn("broadcast send failed", "user_id", u.ID, "chat_id", u.ChatID, "err", err)
			failed++
		} else {
			sent++
		}

		done := i + 1
		if progressID != 0 && (done%a.progressEvery == 0 || done == total) {
			msg := fmt.Sprintf("📤 Отправка: %d/%d (%d%%)\n✅ Успешно: %d\n❌ Ошибок: %d", done, total, done*100/total, sent, failed)
			if err := a.messenger.EditText(ctx, adminChatID, progressID, msg); err != nil {
				log.Debug("broadcast progress edit failed", "err", err)
			}
		}

		if done < total {
			if err := pause.For(ctx, a.sendGap); err != nil {
				continue
			}
		}
	}

	rec := domain.BroadcastRecord{
		Type:       kind,
		SentCount:  sent,
		TotalCount: total,
		Timestamp:  a.clock(),
	}
	if total > 0 {
		rec.SuccessRate = float64(sent) * 100 / float64(total)
	}
	if err := a.usage.RecordBroadcast(ctx, rec); err != nil {
		log.Warn("record broadcast", "err", err)
	}
	log.Info("broadcast finished", "type", kind, "sent", sent, "total", total)

	a.send(ctx, adminChatID, fmt.Sprintf(
		"✅ Рассылка завершена!\n\n📊 Статистика:\n👥 Всего пользователей: %d\n✅ Успешно отправлено: %d\n❌ Ошибок: %d\n📈 Успешность: %.1f%%",
		total, sent, failed, rec.SuccessRate))
	return rec
}

// Close stops the confirmation cache.
func (a *Admin) Close() {
	a.pending.DeleteAll()
}

func (a *Admin) send(ctx context.Context, chatID int64, text string) {
	if _, err := a.messenger.SendText(ctx, chatID, text); err != nil {
		a.log(ctx).Warn("send message failed", "chat_id", chatID, "err", err)
	}
}

func (a *Admin) log(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, a.logger)
}
