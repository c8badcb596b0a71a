package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"HSEWrapped/internal/apperr"
	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/ports"
)

const (
	defaultBaseURL = "https://portfolio.hse.ru"
	userAgent      = "HSEWrapped/1.0"
	showcaseLink   = `.work-tags a[href*="hsedesign.ru"]`
)

var (
	subjectExpr    = regexp.MustCompile(`(?i)https?://portfolio\.hse\.ru/Student/(\d+)`)
	showcaseIDExpr = regexp.MustCompile(`/project/([a-f0-9]+)`)
)

// ParseSubject extracts the student identifier from a portfolio URL found in text.
func ParseSubject(text string) (domain.Subject, error) {
	match := subjectExpr.FindStringSubmatch(text)
	if match == nil {
		return domain.Subject{}, fmt.Errorf("no portfolio link in %q", text)
	}
	return domain.Subject{ID: match[1], URL: match[0]}, nil
}

// ShowcaseID extracts the showcase project key from a showcase URL.
func ShowcaseID(link string) string {
	match := showcaseIDExpr.FindStringSubmatch(link)
	if match == nil {
		return ""
	}
	return match[1]
}

// Client reads project listings and project pages from the portfolio site.
type Client struct {
	client  *http.Client
	baseURL string
}

var _ ports.PortfolioClient = (*Client)(nil)

// NewClient wires an HTTP client; baseURL defaults to the public portfolio site.
func NewClient(client *http.Client, baseURL string) *Client {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{client: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

type listingPayload struct {
	Projects *[]listingProject `json:"projects"`
}

type listingProject struct {
	ID               int64           `json:"id"`
	Title            string          `json:"title"`
	TotalMark        float64         `json:"totalMark"`
	Rating           float64         `json:"rating"`
	ModuleName       string          `json:"moduleName"`
	GroupName        string          `json:"groupName"`
	CourseNum        *int            `json:"courseNum"`
	LearningFormName string          `json:"learningFormName"`
	CoverImageURL    string          `json:"coverImageUrl"`
	Views            int             `json:"views"`
	Authors          []listingAuthor `json:"authors"`
}

type listingAuthor struct {
	Name string `json:"name"`
}

// FetchListing loads every project authored by studentID. A transport error or
// a payload without a project list is a listing failure.
func (c *Client) FetchListing(ctx context.Context, studentID string) (domain.Listing, error) {
	const op = "portfolio.FetchListing"

	listingURL, err := buildListingURL(c.baseURL, studentID)
	if err != nil {
		return domain.Listing{}, apperr.E(op, apperr.ListingFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		return domain.Listing{}, apperr.E(op, apperr.ListingFetch, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Listing{}, apperr.E(op, apperr.ListingFetch, fmt.Errorf("request listing: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Listing{}, apperr.E(op, apperr.ListingFetch, fmt.Errorf("portfolio returned %s", resp.Status))
	}

	var payload listingPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Listing{}, apperr.E(op, apperr.ListingFetch, fmt.Errorf("decode listing: %w", err))
	}
	if payload.Projects == nil {
		return domain.Listing{}, apperr.E(op, apperr.ListingFetch, fmt.Errorf("listing has no projects field"))
	}

	items := make([]domain.WorkItem, 0, len(*payload.Projects))
	for _, p := range *payload.Projects {
		items = append(items, toWorkItem(p))
	}
	return domain.Listing{Items: items}, nil
}

// FetchShowcaseLink loads the project page and returns the showcase link from
// its tag block, or "" when there is none.
func (c *Client) FetchShowcaseLink(ctx context.Context, projectID int64) (string, error) {
	doc, err := c.fetchDocument(ctx, fmt.Sprintf("%s/Project/%d", c.baseURL, projectID))
	if err != nil {
		return "", apperr.E("portfolio.FetchShowcaseLink", apperr.EnrichmentFetch, err)
	}
	href, _ := doc.Find(showcaseLink).First().Attr("href")
	return strings.TrimSpace(href), nil
}

func (c *Client) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("portfolio returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func toWorkItem(p listingProject) domain.WorkItem {
	authors := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		authors = append(authors, strings.TrimSpace(a.Name))
	}
	course := 0
	if p.CourseNum != nil {
		course = *p.CourseNum
	}
	return domain.WorkItem{
		ID:           p.ID,
		Title:        strings.TrimSpace(p.Title),
		Mark:         p.TotalMark,
		Rating:       p.Rating,
		ModuleName:   p.ModuleName,
		GroupName:    p.GroupName,
		CourseNum:    course,
		LearningForm: p.LearningFormName,
		CoverURL:     p.CoverImageURL,
		Views:        p.Views,
		Authors:      authors,
	}
}

func buildListingURL(base, studentID string) (string, error) {
	if _, err := strconv.ParseInt(studentID, 10, 64); err != nil {
		return "", fmt.Errorf("invalid student id %q", studentID)
	}

	parsed, err := url.Parse(base + "/Project/ProjectsDataWithDebts")
	if err != nil {
		return "", fmt.Errorf("invalid base url %s: %w", base, err)
	}

	query := url.Values{}
	for _, empty := range []string{"disciplineType", "disciplineId", "groupId", "year", "moduleId", "course", "searchString", "maxTotalMark", "curatorId"} {
		query.Set(empty, "")
	}
	query.Set("type", "1")
	query.Set("sortType", "5")
	query.Set("sortDirection", "1")
	query.Set("page", "1")
	query.Set("authorId", studentID)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
