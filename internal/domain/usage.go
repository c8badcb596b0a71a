package domain

import (
	"fmt"
	"time"
)

// Caller describes the messaging user that issued a request.
type Caller struct {
	ID        int64
	ChatID    int64
	Username  string
	FirstName string
	LastName  string
}

// DisplayName picks the friendliest available name for logs and greetings.
func (c Caller) DisplayName() string {
	switch {
	case c.FirstName != "":
		return c.FirstName
	case c.Username != "":
		return c.Username
	default:
		return ""
	}
}

// UserRecord is the persisted per-user usage counter set.
type UserRecord struct {
	ID                 int64      `json:"id"`
	Username           string     `json:"username,omitempty"`
	FirstName          string     `json:"firstName,omitempty"`
	LastName           string     `json:"lastName,omitempty"`
	ChatID             int64      `json:"chatId"`
	FirstSeen          time.Time  `json:"firstSeen"`
	LastSeen           time.Time  `json:"lastSeen"`
	StartCount         int        `json:"startCount"`
	PortfolioRequests  int        `json:"portfolioRequests"`
	SuccessfulRequests int        `json:"successfulRequests"`
	FailedRequests     int        `json:"failedRequests"`
	TotalImages        int        `json:"totalImages"`
	LastPortfolioURL   string     `json:"lastPortfolioUrl,omitempty"`
	LastRequestTime    *time.Time `json:"lastRequestTime,omitempty"`
	LastSuccessTime    *time.Time `json:"lastSuccessTime,omitempty"`
	LastStudentName    string     `json:"lastStudentName,omitempty"`
	LastStudentStats   *Summary   `json:"lastStudentStats,omitempty"`
	LastError          string     `json:"lastError,omitempty"`
	LastErrorTime      *time.Time `json:"lastErrorTime,omitempty"`
}

// Name mirrors Caller.DisplayName for stored users, falling back to the id.
func (u UserRecord) Name() string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return fmt.Sprintf("User %d", u.ID)
	}
}

// BroadcastRecord captures one completed admin broadcast.
type BroadcastRecord struct {
	Type        string    `json:"type"`
	SentCount   int       `json:"sentCount"`
	TotalCount  int       `json:"totalCount"`
	SuccessRate float64   `json:"successRate"`
	Timestamp   time.Time `json:"timestamp"`
}

// UsageStats is the aggregated view shown by the /stats command.
type UsageStats struct {
	TotalUsers           int
	ActiveUsers          int
	SuccessfulUsers      int
	TotalRequests        int
	TotalSuccessful      int
	TotalFailed          int
	TotalImages          int
	SuccessRate          float64
	AverageImagesPerUser float64
}

// UserFilter narrows the user list for broadcasts and reports.
type UserFilter struct {
	ActiveDays            int
	HasSuccessfulRequests bool
	MinRequests           int
}

// Match reports whether a user passes the filter at the given moment.
func (f UserFilter) Match(u UserRecord, now time.Time) bool {
	if f.ActiveDays > 0 {
		cutoff := now.Add(-time.Duration(f.ActiveDays) * 24 * time.Hour)
		if !u.LastSeen.After(cutoff) {
			return false
		}
	}
	if f.HasSuccessfulRequests && u.SuccessfulRequests == 0 {
		return false
	}
	if f.MinRequests > 0 && u.PortfolioRequests < f.MinRequests {
		return false
	}
	return true
}
