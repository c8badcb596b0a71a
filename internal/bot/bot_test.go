package bot

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/infrastructure/telegram"
	"HSEWrapped/internal/usecase"
)

type recorder struct {
	mu       sync.Mutex
	calls    []string
	texts    []string
	videos   []string
	starts   int
	subjects []domain.Subject
	confirm  bool
	videoErr error
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) SendText(_ context.Context, _ int64, text string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return int64(len(r.texts)), nil
}
func (r *recorder) EditText(context.Context, int64, int64, string) error { return nil }
func (r *recorder) DeleteMessage(context.Context, int64, int64) error { return nil }
func (r *recorder) SendMediaGroup(context.Context, int64, []string, string) error { return nil }
func (r *recorder) SendPhoto(context.Context, int64, string) error { return nil }
func (r *recorder) SendVideo(_ context.Context, _ int64, path, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videos = append(r.videos, path)
	return r.videoErr
}

func (r *recorder) RecordStart(context.Context, domain.Caller) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return nil
}
func (r *recorder) RecordRequest(context.Context, domain.Caller, string) error { return nil }
func (r *recorder) RecordSuccess(context.Context, domain.Caller, int, domain.Summary) error {
	return nil
}
func (r *recorder) RecordFailure(context.Context, domain.Caller, string) error { return nil }
func (r *recorder) RecordBroadcast(context.Context, domain.BroadcastRecord) error {
	return nil
}

func (r *recorder) Handle(_ context.Context, _ domain.Caller, subject domain.Subject) usecase.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return usecase.Result{State: usecase.StateCompleted}
}

func (r *recorder) Stats(context.Context, domain.Caller) { r.add("stats") }
func (r *recorder) PrepareBroadcast(_ context.Context, _ domain.Caller, text string) {
	r.add("broadcast:" + text)
}
func (r *recorder) Confirm(_ context.Context, _ domain.Caller, answer string) bool {
	r.add("confirm:" + answer)
	return r.confirm
}
func (r *recorder) BroadcastActive(_ context.Context, _ domain.Caller, text string) {
	r.add("active:" + text)
}

func newTestBot(r *recorder, video string) *Bot {
	return New(Deps{Messenger: r, Usage: r, Requests: r, Admin: r, WelcomeVideo: video})
}

func message(text string) telegram.Message {
	return telegram.Message{
		MessageID: 1,
		From:      &telegram.User{ID: 5, FirstName: "Аня"},
		Chat:      telegram.Chat{ID: 50},
		Text:      text,
	}
}

func TestDispatchPortfolioLink(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	newTestBot(r, "").Dispatch(context.Background(), message("вот https://portfolio.hse.ru/Student/17647"))

	require.Len(t, r.subjects, 1)
	require.Equal(t, "17647", r.subjects[0].ID)
	require.Equal(t, []string{"confirm:вот https://portfolio.hse.ru/Student/17647"}, r.calls)
}

func TestDispatchBadLink(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	newTestBot(r, "").Dispatch(context.Background(), message("https://portfolio.hse.ru/Staff/1"))

	require.Empty(t, r.subjects)
	require.Equal(t, []string{msgBadLink}, r.texts)
}

func TestDispatchConfirmationWins(t *testing.T) {
	t.Parallel()

	r := &recorder{confirm: true}
	newTestBot(r, "").Dispatch(context.Background(), message("ДА"))

	require.Empty(t, r.subjects)
	require.Empty(t, r.texts)
}

func TestDispatchCommands(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	b := newTestBot(r, "")
	ctx := context.Background()

	b.Dispatch(ctx, message("/stats"))
	b.Dispatch(ctx, message("/broadcast@hse_wrapped_bot всем привет"))
	b.Dispatch(ctx, message("/broadcast_active\nновая версия"))
	b.Dispatch(ctx, message("/broadcast"))
	b.Dispatch(ctx, message("/unknown"))

	require.Equal(t, []string{"stats", "broadcast:всем привет", "active:новая версия"}, r.calls)
	require.Empty(t, r.texts)
}

func TestStartSendsWelcome(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	newTestBot(r, filepath.Join(t.TempDir(), "missing.mp4")).Dispatch(context.Background(), message("/start"))

	require.Equal(t, 1, r.starts)
	require.Empty(t, r.videos)
	require.Len(t, r.texts, 1)
	require.Contains(t, r.texts[0], "Привет, Аня!")
}

func TestStartPrefersVideo(t *testing.T) {
	t.Parallel()

	video := filepath.Join(t.TempDir(), "welcome.mp4")
	require.NoError(t, os.WriteFile(video, []byte("mp4"), 0o644))

	r := &recorder{}
	newTestBot(r, video).Dispatch(context.Background(), message("/start"))

	require.Equal(t, []string{video}, r.videos)
	require.Empty(t, r.texts)
}

type scriptedUpdates struct {
	mu      sync.Mutex
	batches [][]telegram.Update
	offsets []int64
}

func (s *scriptedUpdates) GetUpdates(ctx context.Context, offset int64, _ time.Duration) ([]telegram.Update, error) {
	s.mu.Lock()
	s.offsets = append(s.offsets, offset)
	if len(s.batches) > 0 {
		next := s.batches[0]
		s.batches = s.batches[1:]
		s.mu.Unlock()
		return next, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunAdvancesOffset(t *testing.T) {
	t.Parallel()

	link := message("https://portfolio.hse.ru/Student/1")
	source := &scriptedUpdates{batches: [][]telegram.Update{
		{{UpdateID: 10, Message: &link}, {UpdateID: 11}},
	}}
	r := &recorder{}
	b := New(Deps{Updates: source, Messenger: r, Usage: r, Requests: r, Admin: r})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return len(source.offsets) >= 2
	}, time.Second, 5*time.Millisecond)
	require.True(t, b.Ready())

	cancel()
	require.NoError(t, <-done)

	source.mu.Lock()
	require.Equal(t, []int64{0, 12}, source.offsets)
	source.mu.Unlock()
	require.Len(t, r.subjects, 1)
}
