package domain

import (
	"strconv"
	"time"
)

// UnknownValue fills subject header fields the listing did not provide.
const UnknownValue = "Неизвестно"

// Subject identifies the student whose portfolio is evaluated.
type Subject struct {
	ID  string
	URL string
}

// WorkItem is one project as returned by the portfolio listing.
type WorkItem struct {
	ID           int64
	Title        string
	Mark         float64
	Rating       float64
	ModuleName   string
	GroupName    string
	CourseNum    int
	LearningForm string
	CoverURL     string
	Views        int
	Authors      []string
}

// MarkLabel formats the mark without trailing zeros: "9", "8.5".
func (w WorkItem) MarkLabel() string {
	return strconv.FormatFloat(w.Mark, 'f', -1, 64)
}

// TeamSize counts the authors, treating an empty list as a solo project.
func (w WorkItem) TeamSize() int {
	if len(w.Authors) == 0 {
		return 1
	}
	return len(w.Authors)
}

// Enrichment carries data discovered through the external design showcase.
type Enrichment struct {
	Present      bool
	ExternalID   string
	ExternalURL  string
	Likes        int
	AuthLikes    int
	AnonLikes    int
	ExternalView int
}

// EnrichedItem is a listed project merged with its optional enrichment.
type EnrichedItem struct {
	WorkItem
	Enrichment Enrichment
	TotalViews int
}

// Likes returns the enrichment like count or zero when the item has no link.
func (e EnrichedItem) Likes() int {
	if !e.Enrichment.Present {
		return 0
	}
	return e.Enrichment.Likes
}

// Listing is the raw listing payload after decoding.
type Listing struct {
	Items []WorkItem
}

// Report is the full result of one aggregation run.
type Report struct {
	Subject      Subject
	StudentName  string
	GroupName    string
	LearningForm string
	Course       string
	Items        []EnrichedItem
	Statistics   Statistics
	ParsedAt     time.Time
}
