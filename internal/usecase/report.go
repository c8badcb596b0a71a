package usecase

import (
	"strconv"
	"time"

	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/stats"
)

// BuildReport computes statistics for items and fills the subject header
// from the first listed project.
func BuildReport(subject domain.Subject, items []domain.EnrichedItem, now time.Time) (domain.Report, error) {
	statistics, err := stats.Compute(items)
	if err != nil {
		return domain.Report{}, err
	}

	first := items[0]
	course := domain.UnknownValue
	if first.CourseNum > 0 {
		course = strconv.Itoa(first.CourseNum)
	}

	return domain.Report{
		Subject:      subject,
		StudentName:  stats.SubjectName(items),
		GroupName:    orUnknown(first.GroupName),
		LearningForm: orUnknown(first.LearningForm),
		Course:       course,
		Items:        items,
		Statistics:   statistics,
		ParsedAt:     now,
	}, nil
}

func orUnknown(v string) string {
	if v == "" {
		return domain.UnknownValue
	}
	return v
}
