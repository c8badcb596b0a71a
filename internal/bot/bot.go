// Package bot routes incoming Telegram messages to the request pipeline and
// the admin commands.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/infrastructure/portfolio"
	"HSEWrapped/internal/infrastructure/telegram"
	"HSEWrapped/internal/ports"
	"HSEWrapped/internal/usecase"
)

const (
	pollBackoff = 3 * time.Second

	msgBadLink = "❌ Неверный формат ссылки!\n\nПожалуйста, отправьте ссылку в формате:\nhttps://portfolio.hse.ru/Student/XXXXX\n\nГде XXXXX - это ваш ID студента."
)

// UpdateSource yields Telegram updates.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Requests runs one portfolio request.
type Requests interface {
	Handle(ctx context.Context, caller domain.Caller, subject domain.Subject) usecase.Result
}

// AdminCommands serves the allow-listed operator commands.
type AdminCommands interface {
	Stats(ctx context.Context, caller domain.Caller)
	PrepareBroadcast(ctx context.Context, caller domain.Caller, text string)
	Confirm(ctx context.Context, caller domain.Caller, answer string) bool
	BroadcastActive(ctx context.Context, caller domain.Caller, text string)
}

// Deps wires the router.
type Deps struct {
	Updates      UpdateSource
	Messenger    ports.Messenger
	Usage        ports.UsageRecorder
	Requests     Requests
	Admin        AdminCommands
	WelcomeVideo string
	PollTimeout  time.Duration
	Logger       *slog.Logger
}

// Bot long-polls for updates and handles each message in its own goroutine.
type Bot struct {
	updates      UpdateSource
	messenger    ports.Messenger
	usage        ports.UsageRecorder
	requests     Requests
	admin        AdminCommands
	welcomeVideo string
	pollTimeout  time.Duration
	logger       *slog.Logger

	ready    atomic.Bool
	inflight sync.WaitGroup
}

// New constructs the router.
func New(deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		updates:      deps.Updates,
		messenger:    deps.Messenger,
		usage:        deps.Usage,
		requests:     deps.Requests,
		admin:        deps.Admin,
		welcomeVideo: deps.WelcomeVideo,
		pollTimeout:  deps.PollTimeout,
		logger:       logger,
	}
}

// Ready reports whether the last poll succeeded.
func (b *Bot) Ready() bool {
	return b.ready.Load()
}

// Run polls until ctx is cancelled, then waits for running handlers.
func (b *Bot) Run(ctx context.Context) error {
	defer b.inflight.Wait()

	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := b.updates.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.ready.Store(false)
			wait := pollBackoff
			var apiErr *telegram.APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			b.logger.Warn("poll updates failed", "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		b.ready.Store(true)

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			if upd.Message == nil || upd.Message.From == nil {
				continue
			}
			msg := *upd.Message
			b.inflight.Add(1)
			go func() {
				defer b.inflight.Done()
				b.Dispatch(ctx, msg)
			}()
		}
	}
}

// Dispatch handles a single message.
func (b *Bot) Dispatch(ctx context.Context, msg telegram.Message) {
	caller := callerOf(msg)
	text := strings.TrimSpace(msg.Text)
	command, arg := splitCommand(text)

	switch command {
	case "/start":
		b.start(ctx, caller)
		return
	case "/stats":
		b.admin.Stats(ctx, caller)
		return
	case "/broadcast":
		if arg != "" {
			b.admin.PrepareBroadcast(ctx, caller, arg)
		}
		return
	case "/broadcast_active":
		if arg != "" {
			b.admin.BroadcastActive(ctx, caller, arg)
		}
		return
	}
	if strings.HasPrefix(text, "/") {
		return
	}

	if b.admin.Confirm(ctx, caller, text) {
		return
	}

	subject, err := portfolio.ParseSubject(text)
	if err != nil {
		b.send(ctx, caller.ChatID, msgBadLink)
		return
	}
	b.requests.Handle(ctx, caller, subject)
}

func (b *Bot) start(ctx context.Context, caller domain.Caller) {
	if err := b.usage.RecordStart(ctx, caller); err != nil {
		b.logger.Warn("usage record failed", "caller_id", caller.ID, "err", err)
	}

	welcome := welcomeMessage(caller)
	if b.welcomeVideo != "" {
		if _, err := os.Stat(b.welcomeVideo); err == nil {
			err := b.messenger.SendVideo(ctx, caller.ChatID, b.welcomeVideo, welcome)
			if err == nil {
				return
			}
			b.logger.Warn("welcome video failed", "err", err)
		}
	}
	b.send(ctx, caller.ChatID, welcome)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if _, err := b.messenger.SendText(ctx, chatID, text); err != nil {
		b.logger.Warn("send message failed", "chat_id", chatID, "err", err)
	}
}

func welcomeMessage(caller domain.Caller) string {
	greeting := "Привет!"
	switch {
	case caller.FirstName != "":
		greeting = fmt.Sprintf("Привет, %s!", caller.FirstName)
	case caller.Username != "":
		greeting = fmt.Sprintf("Привет, @%s!", caller.Username)
	}
	return "🎓 " + greeting + "\n\n" +
		"Этот бот сгенерирует тебе статистику твоего обучения во ВШЭ.\n\n" +
		"🔗 Отправь ссылку на твое старое портфолио ВШЭ:\n\n" +
		"Пример: https://portfolio.hse.ru/Student/17647\n\n" +
		"Убедись, что твоя ссылка выглядит именно так!"
}

// splitCommand separates "/cmd@bot arg" into "/cmd" and "arg".
func splitCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	command, arg := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i > 0 {
		command, arg = text[:i], text[i:]
	}
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	return strings.ToLower(command), strings.TrimSpace(arg)
}

func callerOf(msg telegram.Message) domain.Caller {
	c := domain.Caller{ChatID: msg.Chat.ID}
	if msg.From != nil {
		c.ID = msg.From.ID
		c.Username = msg.From.Username
		c.FirstName = msg.From.FirstName
		c.LastName = msg.From.LastName
	}
	return c
}
