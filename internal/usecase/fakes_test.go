package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/slides"
)

type fakeSource struct {
	items []domain.EnrichedItem
	err   error
	block bool
}

func (f *fakeSource) Aggregate(ctx context.Context, _ domain.Subject) ([]domain.EnrichedItem, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.items, f.err
}

type fakeRenderer struct {
	mu      sync.Mutex
	failOn  slides.Kind
	paths   []string
	kinds   []slides.Kind
	partial bool
}

func (f *fakeRenderer) Render(_ context.Context, slide slides.Slide, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, slide.Kind())
	f.paths = append(f.paths, path)
	if slide.Kind() == f.failOn {
		if f.partial {
			_ = os.WriteFile(path, []byte("half"), 0o644)
		}
		return errors.New("renderer crashed")
	}
	return os.WriteFile(path, []byte("png"), 0o644)
}

type sentText struct {
	chatID int64
	text   string
}

type fakeMessenger struct {
	mu          sync.Mutex
	nextID      int64
	texts       []sentText
	edits       []string
	deleted     []int64
	groups      [][]string
	photos      []string
	groupErr    error
	photoFails  map[int]bool
	photoCalls  int
	textErrFor  map[int64]bool
	editErr     error
	existingLog []bool
}

func (f *fakeMessenger) SendText(_ context.Context, chatID int64, text string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.textErrFor[chatID] {
		return 0, fmt.Errorf("chat %d blocked the bot", chatID)
	}
	f.nextID++
	f.texts = append(f.texts, sentText{chatID: chatID, text: text})
	return f.nextID, nil
}

func (f *fakeMessenger) EditText(_ context.Context, _, _ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return f.editErr
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, _, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeMessenger) SendMediaGroup(_ context.Context, _ int64, photos []string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, append([]string(nil), photos...))
	f.recordExisting(photos)
	return f.groupErr
}

func (f *fakeMessenger) SendPhoto(_ context.Context, _ int64, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.photoCalls
	f.photoCalls++
	f.recordExisting([]string{path})
	if f.photoFails[call] {
		return errors.New("photo rejected")
	}
	f.photos = append(f.photos, path)
	return nil
}

func (f *fakeMessenger) SendVideo(context.Context, int64, string, string) error {
	return errors.New("not supported")
}

// recordExisting notes whether each artifact existed at send time.
func (f *fakeMessenger) recordExisting(paths []string) {
	for _, p := range paths {
		_, err := os.Stat(p)
		f.existingLog = append(f.existingLog, err == nil)
	}
}

func (f *fakeMessenger) textsTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, t := range f.texts {
		if t.chatID == chatID {
			out = append(out, t.text)
		}
	}
	return out
}

type fakeUsage struct {
	mu         sync.Mutex
	requests   int
	successes  []int
	failures   []string
	summaries  []domain.Summary
	broadcasts []domain.BroadcastRecord
	users      []domain.UserRecord
	stats      domain.UsageStats
	filters    []domain.UserFilter
}

func (f *fakeUsage) RecordStart(context.Context, domain.Caller) error { return nil }

func (f *fakeUsage) RecordRequest(context.Context, domain.Caller, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return nil
}

func (f *fakeUsage) RecordSuccess(_ context.Context, _ domain.Caller, images int, summary domain.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, images)
	f.summaries = append(f.summaries, summary)
	return nil
}

func (f *fakeUsage) RecordFailure(_ context.Context, _ domain.Caller, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, kind)
	return nil
}

func (f *fakeUsage) RecordBroadcast(_ context.Context, rec domain.BroadcastRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, rec)
	return nil
}

func (f *fakeUsage) Stats(context.Context, time.Time) (domain.UsageStats, error) {
	return f.stats, nil
}

func (f *fakeUsage) TopUsers(_ context.Context, limit int) ([]domain.UserRecord, error) {
	if limit < len(f.users) {
		return f.users[:limit], nil
	}
	return f.users, nil
}

func (f *fakeUsage) Users(_ context.Context, filter domain.UserFilter, now time.Time) ([]domain.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	var out []domain.UserRecord
	for _, u := range f.users {
		if filter.Match(u, now) {
			out = append(out, u)
		}
	}
	return out, nil
}

func item(id int64, mark float64, views, likes int, linked bool, authors ...string) domain.EnrichedItem {
	e := domain.EnrichedItem{
		WorkItem: domain.WorkItem{
			ID:         id,
			Title:      fmt.Sprintf("Project %d", id),
			Mark:       mark,
			ModuleName: "Design",
			GroupName:  "БДЗ-21",
			CourseNum:  2,
			Views:      views,
			Authors:    authors,
		},
	}
	if linked {
		e.Enrichment = domain.Enrichment{Present: true, ExternalID: "abc", Likes: likes}
	}
	e.TotalViews = views
	return e
}
