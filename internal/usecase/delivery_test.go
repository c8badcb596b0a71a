package usecase

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"HSEWrapped/internal/apperr"
	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/slides"
)

// threeSlideReport plans main, projects and likes.
func threeSlideReport(t *testing.T) domain.Report {
	t.Helper()
	report, err := BuildReport(domain.Subject{ID: "1"}, []domain.EnrichedItem{
		item(1, 9, 0, 3, true, "Student"),
	}, time.Now())
	require.NoError(t, err)
	return report
}

func newTestDelivery(t *testing.T, renderer *fakeRenderer, messenger *fakeMessenger) (*Delivery, string) {
	t.Helper()
	dir := t.TempDir()
	return NewDelivery(DeliveryDeps{
		Renderer:  renderer,
		Messenger: messenger,
		OutputDir: dir,
	}), dir
}

func requireNoArtifacts(t *testing.T, dir string) {
	t.Helper()
	left, err := filepath.Glob(filepath.Join(dir, ArtifactPattern))
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestDeliverMediaGroup(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{}
	messenger := &fakeMessenger{}
	d, dir := newTestDelivery(t, renderer, messenger)

	var stages []State
	sent, err := d.Deliver(context.Background(), 7, threeSlideReport(t), "req", func(s State) { stages = append(stages, s) })
	require.NoError(t, err)
	require.Equal(t, 3, sent)
	require.Equal(t, []State{StateRendering, StateDelivering}, stages)
	require.Equal(t, []slides.Kind{slides.KindMain, slides.KindProjects, slides.KindLikes}, renderer.kinds)

	require.Len(t, messenger.groups, 1)
	require.Equal(t, filepath.Join(dir, "stats-main-req.png"), messenger.groups[0][0])
	require.Empty(t, messenger.photos)
	require.NotContains(t, messenger.existingLog, false)
	requireNoArtifacts(t, dir)
}

func TestDeliverFallbackPartialSuccess(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{}
	messenger := &fakeMessenger{
		groupErr:   errTest("media group too large"),
		photoFails: map[int]bool{1: true},
	}
	d, dir := newTestDelivery(t, renderer, messenger)

	sent, err := d.Deliver(context.Background(), 7, threeSlideReport(t), "req", nil)
	require.NoError(t, err)
	require.Equal(t, 2, sent)
	require.Equal(t, 3, messenger.photoCalls)
	require.NotContains(t, messenger.existingLog, false)
	requireNoArtifacts(t, dir)
}

func TestDeliverFallbackTotalFailure(t *testing.T) {
	t.Parallel()

	messenger := &fakeMessenger{
		groupErr:   errTest("network down"),
		photoFails: map[int]bool{0: true, 1: true, 2: true},
	}
	d, dir := newTestDelivery(t, &fakeRenderer{}, messenger)

	sent, err := d.Deliver(context.Background(), 7, threeSlideReport(t), "req", nil)
	require.Error(t, err)
	require.Zero(t, sent)
	require.Equal(t, apperr.Delivery, apperr.KindOf(err))
	requireNoArtifacts(t, dir)
}

func TestDeliverRenderErrorPurgesPartialArtifacts(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{failOn: slides.KindProjects, partial: true}
	messenger := &fakeMessenger{}
	d, dir := newTestDelivery(t, renderer, messenger)

	_, err := d.Deliver(context.Background(), 7, threeSlideReport(t), "req", nil)
	require.Error(t, err)
	require.Equal(t, apperr.Render, apperr.KindOf(err))
	require.Empty(t, messenger.groups)
	require.Equal(t, []slides.Kind{slides.KindMain, slides.KindProjects}, renderer.kinds)
	requireNoArtifacts(t, dir)
}

func TestArtifactName(t *testing.T) {
	t.Parallel()

	name := ArtifactName(slides.KindViews, "abc")
	require.Equal(t, "stats-views-abc.png", name)
	ok, err := filepath.Match(ArtifactPattern, name)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRemoveArtifactsIgnoresMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	existing := filepath.Join(dir, "stats-main-x.png")
	require.NoError(t, os.WriteFile(existing, nil, 0o644))

	err := removeArtifacts([]string{existing, filepath.Join(dir, "stats-team-x.png")})
	require.NoError(t, err)
	_, statErr := os.Stat(existing)
	require.True(t, os.IsNotExist(statErr))
}

type errTest string

func (e errTest) Error() string { return strings.TrimSpace(string(e)) }
