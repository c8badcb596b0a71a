package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"HSEWrapped/internal/apperr"
	"HSEWrapped/internal/domain"
)

func TestBuildReportHeader(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first := item(1, 10, 0, 0, false)
	first.GroupName = ""
	first.CourseNum = 0

	report, err := BuildReport(domain.Subject{ID: "9"}, []domain.EnrichedItem{first}, now)
	require.NoError(t, err)
	require.Equal(t, domain.UnknownValue, report.StudentName)
	require.Equal(t, domain.UnknownValue, report.GroupName)
	require.Equal(t, domain.UnknownValue, report.LearningForm)
	require.Equal(t, domain.UnknownValue, report.Course)
	require.Equal(t, now, report.ParsedAt)
	require.Equal(t, 1, report.Statistics.SoloProjects)
}

func TestBuildReportEmpty(t *testing.T) {
	t.Parallel()

	_, err := BuildReport(domain.Subject{}, nil, time.Now())
	require.Equal(t, apperr.NoData, apperr.KindOf(err))
}

func TestStateTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []State{StateRejected, StateCompleted, StateFailed, StateTimedOut} {
		require.True(t, s.Terminal(), s)
	}
	for _, s := range []State{StateAdmitted, StateAggregating, StateComputing, StateRendering, StateDelivering} {
		require.False(t, s.Terminal(), s)
	}
}
