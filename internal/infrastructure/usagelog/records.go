// Package usagelog persists per-user usage counters for the bot.
package usagelog

import (
	"math"
	"sort"
	"time"

	"HSEWrapped/internal/domain"
)

const (
	maxBroadcasts    = 50
	activeWindowDays = 7
)

// Updates below only touch users that issued /start first. Requests from
// unknown users still count toward the global request total.

func applyStart(rec *domain.UserRecord, existed bool, caller domain.Caller, now time.Time) {
	if !existed {
		*rec = domain.UserRecord{
			ID:        caller.ID,
			Username:  caller.Username,
			FirstName: caller.FirstName,
			LastName:  caller.LastName,
			ChatID:    caller.ChatID,
			FirstSeen: now,
			LastSeen:  now,
		}
		rec.StartCount = 1
		return
	}

	rec.LastSeen = now
	rec.StartCount++
	rec.ChatID = caller.ChatID
	if caller.Username != "" {
		rec.Username = caller.Username
	}
	if caller.FirstName != "" {
		rec.FirstName = caller.FirstName
	}
	if caller.LastName != "" {
		rec.LastName = caller.LastName
	}
}

func applyRequest(rec *domain.UserRecord, portfolioURL string, now time.Time) {
	rec.PortfolioRequests++
	rec.LastSeen = now
	rec.LastPortfolioURL = portfolioURL
	rec.LastRequestTime = timePtr(now)
}

func applySuccess(rec *domain.UserRecord, images int, summary domain.Summary, now time.Time) {
	rec.SuccessfulRequests++
	rec.TotalImages += images
	rec.LastSeen = now
	rec.LastSuccessTime = timePtr(now)
	rec.LastStudentName = summary.StudentName
	rec.LastStudentStats = &summary
}

func applyFailure(rec *domain.UserRecord, kind string, now time.Time) {
	rec.FailedRequests++
	rec.LastSeen = now
	rec.LastError = kind
	rec.LastErrorTime = timePtr(now)
}

// summarize folds user records into the admin statistics. totalUsers and
// totalRequests come from the store counters, not from the records.
func summarize(users []domain.UserRecord, totalUsers, totalRequests int, now time.Time) domain.UsageStats {
	stats := domain.UsageStats{TotalUsers: totalUsers, TotalRequests: totalRequests}
	active := domain.UserFilter{ActiveDays: activeWindowDays}

	for _, u := range users {
		if active.Match(u, now) {
			stats.ActiveUsers++
		}
		if u.SuccessfulRequests > 0 {
			stats.SuccessfulUsers++
		}
		stats.TotalImages += u.TotalImages
		stats.TotalSuccessful += u.SuccessfulRequests
		stats.TotalFailed += u.FailedRequests
	}

	return withRates(stats)
}

// withRates fills the derived percentages from the raw totals.
func withRates(stats domain.UsageStats) domain.UsageStats {
	if stats.TotalRequests > 0 {
		stats.SuccessRate = round1(float64(stats.TotalSuccessful) / float64(stats.TotalRequests) * 100)
	}
	if stats.SuccessfulUsers > 0 {
		stats.AverageImagesPerUser = round1(float64(stats.TotalImages) / float64(stats.SuccessfulUsers))
	}
	return stats
}

func topUsers(users []domain.UserRecord, limit int) []domain.UserRecord {
	sorted := append([]domain.UserRecord(nil), users...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].PortfolioRequests != sorted[j].PortfolioRequests {
			return sorted[i].PortfolioRequests > sorted[j].PortfolioRequests
		}
		return sorted[i].ID < sorted[j].ID
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func filterUsers(users []domain.UserRecord, filter domain.UserFilter, now time.Time) []domain.UserRecord {
	out := make([]domain.UserRecord, 0, len(users))
	for _, u := range users {
		if filter.Match(u, now) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func timePtr(t time.Time) *time.Time {
	return &t
}
