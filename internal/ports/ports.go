package ports

import (
	"context"
	"time"

	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/slides"
)

// PortfolioSource produces the enriched project list for a subject.
type PortfolioSource interface {
	Aggregate(ctx context.Context, subject domain.Subject) ([]domain.EnrichedItem, error)
}

// PortfolioClient talks to the portfolio site itself.
type PortfolioClient interface {
	FetchListing(ctx context.Context, studentID string) (domain.Listing, error)
	// FetchShowcaseLink returns the external showcase URL from a project page,
	// or "" when the page carries none.
	FetchShowcaseLink(ctx context.Context, projectID int64) (string, error)
}

// ShowcaseClient reads engagement counters from the external design showcase.
type ShowcaseClient interface {
	FetchLikes(ctx context.Context, externalID string) (auth, anon int, err error)
	FetchViews(ctx context.Context, externalID string) (int, error)
}

// ViewScraper extracts the rendered view counter from a showcase page.
type ViewScraper interface {
	ScrapeViews(ctx context.Context, pageURL string) (int, error)
}

// Renderer turns one slide into an image file at path.
type Renderer interface {
	Render(ctx context.Context, slide slides.Slide, path string) error
}

// Messenger is the subset of the messaging transport the application uses.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) (int64, error)
	EditText(ctx context.Context, chatID, messageID int64, text string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	SendMediaGroup(ctx context.Context, chatID int64, photos []string, caption string) error
	SendPhoto(ctx context.Context, chatID int64, path string) error
	SendVideo(ctx context.Context, chatID int64, path, caption string) error
}

// UsageRecorder appends per-user counters.
type UsageRecorder interface {
	RecordStart(ctx context.Context, caller domain.Caller) error
	RecordRequest(ctx context.Context, caller domain.Caller, portfolioURL string) error
	RecordSuccess(ctx context.Context, caller domain.Caller, images int, summary domain.Summary) error
	RecordFailure(ctx context.Context, caller domain.Caller, kind string) error
	RecordBroadcast(ctx context.Context, rec domain.BroadcastRecord) error
}

// UsageReader answers admin queries over the usage log.
type UsageReader interface {
	Stats(ctx context.Context, now time.Time) (domain.UsageStats, error)
	TopUsers(ctx context.Context, limit int) ([]domain.UserRecord, error)
	Users(ctx context.Context, filter domain.UserFilter, now time.Time) ([]domain.UserRecord, error)
}

// UsageStore reads and writes usage counters.
type UsageStore interface {
	UsageRecorder
	UsageReader
}

// UsageLog is a UsageStore owning a connection or file handle.
type UsageLog interface {
	UsageStore
	Close() error
}

// Scheduler controls when periodic jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
