package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/logging"
	"HSEWrapped/internal/metrics"
	"HSEWrapped/internal/pause"
	"HSEWrapped/internal/ports"
)

// Aggregator implements PortfolioSource: a fatal listing fetch followed by
// best-effort, strictly sequential per-item enrichment.
type Aggregator struct {
	portfolio ports.PortfolioClient
	showcase  ports.ShowcaseClient
	scraper   ports.ViewScraper
	logger    *slog.Logger

	itemDelay       time.Duration
	enrichmentDelay time.Duration
}

var _ ports.PortfolioSource = (*Aggregator)(nil)

// AggregatorOptions tunes the pacing between upstream calls.
type AggregatorOptions struct {
	ItemDelay       time.Duration
	EnrichmentDelay time.Duration
}

// NewAggregator wires the listing client with the showcase counters. scraper
// may be nil, in which case a failed view API call degrades straight to zero.
func NewAggregator(portfolio ports.PortfolioClient, showcase ports.ShowcaseClient, scraper ports.ViewScraper, opts AggregatorOptions, log *slog.Logger) *Aggregator {
	return &Aggregator{
		portfolio:       portfolio,
		showcase:        showcase,
		scraper:         scraper,
		logger:          log,
		itemDelay:       opts.ItemDelay,
		enrichmentDelay: opts.EnrichmentDelay,
	}
}

// Aggregate returns the subject's items in listing order. Only the listing
// fetch and context cancellation abort the run.
func (a *Aggregator) Aggregate(ctx context.Context, subject domain.Subject) ([]domain.EnrichedItem, error) {
	if a.portfolio == nil {
		return nil, fmt.Errorf("portfolio client is not configured")
	}
	log := logging.FromContext(ctx, a.logger)

	listing, err := a.portfolio.FetchListing(ctx, subject.ID)
	if err != nil {
		return nil, err
	}
	log.Debug("listing fetched", "student_id", subject.ID, "items", len(listing.Items))

	enriched := make([]domain.EnrichedItem, 0, len(listing.Items))
	for i, item := range listing.Items {
		if i > 0 {
			if err := pause.For(ctx, a.itemDelay); err != nil {
				return nil, err
			}
		}

		record, err := a.enrich(ctx, log, item)
		if err != nil {
			return nil, err
		}
		enriched = append(enriched, domain.EnrichedItem{
			WorkItem:   item,
			Enrichment: record,
			TotalViews: item.Views + record.ExternalView,
		})
	}

	log.Debug("aggregation done", "items", len(enriched))
	return enriched, nil
}

// enrich only returns an error when ctx is done; upstream failures degrade
// the affected fields.
func (a *Aggregator) enrich(ctx context.Context, log *slog.Logger, item domain.WorkItem) (domain.Enrichment, error) {
	var record domain.Enrichment

	link, err := a.portfolio.FetchShowcaseLink(ctx, item.ID)
	metrics.RecordEnrichment("detail", err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return record, ctx.Err()
		}
		log.Warn("project page unavailable", "project_id", item.ID, "err", err)
		return record, nil
	}
	if link == "" {
		return record, nil
	}

	externalID := ShowcaseID(link)
	if externalID == "" {
		log.Warn("showcase link without project key", "project_id", item.ID, "link", link)
		return record, nil
	}

	record.Present = true
	record.ExternalID = externalID
	record.ExternalURL = link

	if a.showcase != nil {
		auth, anon, err := a.showcase.FetchLikes(ctx, externalID)
		metrics.RecordEnrichment("likes", err == nil)
		if err != nil {
			log.Warn("likes unavailable", "project_id", item.ID, "external_id", externalID, "err", err)
		} else {
			record.AuthLikes = auth
			record.AnonLikes = anon
			record.Likes = auth + anon
		}
	}

	record.ExternalView = a.views(ctx, log, item.ID, externalID, link)

	if err := pause.For(ctx, a.enrichmentDelay); err != nil {
		return record, err
	}
	return record, nil
}

func (a *Aggregator) views(ctx context.Context, log *slog.Logger, projectID int64, externalID, link string) int {
	if a.showcase != nil {
		views, err := a.showcase.FetchViews(ctx, externalID)
		metrics.RecordEnrichment("views", err == nil)
		if err == nil {
			return views
		}
		log.Warn("view api failed, trying page scrape", "project_id", projectID, "err", err)
	}

	if a.scraper == nil || ctx.Err() != nil {
		return 0
	}
	views, err := a.scraper.ScrapeViews(ctx, link)
	metrics.RecordEnrichment("scrape", err == nil)
	if err != nil {
		log.Warn("view scrape failed", "project_id", projectID, "err", err)
		return 0
	}
	return views
}
