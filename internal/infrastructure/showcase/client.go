package showcase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"HSEWrapped/internal/apperr"
	"HSEWrapped/internal/config"
	"HSEWrapped/internal/ports"
)

const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Client implements ports.ShowcaseClient against the showcase statistics API.
type Client struct {
	likesURL   string
	viewsURL   string
	origin     string
	appContext string
	httpClient *http.Client
}

var _ ports.ShowcaseClient = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.ShowcaseConfig) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		likesURL:   cfg.LikesURL,
		viewsURL:   cfg.ViewsURL,
		origin:     strings.TrimSuffix(cfg.Origin, "/"),
		appContext: cfg.Context,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type likesResponse struct {
	Count             int `json:"count"`
	NotAuthLikesCount int `json:"notAuthLikesCount"`
}

// FetchLikes returns the authenticated and anonymous like counters.
func (c *Client) FetchLikes(ctx context.Context, externalID string) (int, int, error) {
	const op = "showcase.FetchLikes"

	endpoint, err := url.Parse(c.likesURL)
	if err != nil {
		return 0, 0, apperr.E(op, apperr.EnrichmentFetch, fmt.Errorf("invalid likes url: %w", err))
	}
	query := endpoint.Query()
	query.Set("entityId", externalID)
	query.Set("entityType", "project")
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return 0, 0, apperr.E(op, apperr.EnrichmentFetch, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	var payload likesResponse
	if err := c.do(req, &payload); err != nil {
		return 0, 0, apperr.E(op, apperr.EnrichmentFetch, err)
	}
	return payload.Count, payload.NotAuthLikesCount, nil
}

type viewsResponse struct {
	Count *int `json:"count"`
}

// FetchViews registers a view through the counting API and returns the
// resulting total. The API rejects calls without the origin headers.
func (c *Client) FetchViews(ctx context.Context, externalID string) (int, error) {
	const op = "showcase.FetchViews"

	body, err := json.Marshal(map[string]string{
		"entityId":   externalID,
		"entityType": "project",
		"context":    c.appContext,
	})
	if err != nil {
		return 0, apperr.E(op, apperr.ViewFetch, fmt.Errorf("marshal views payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.viewsURL, bytes.NewReader(body))
	if err != nil {
		return 0, apperr.E(op, apperr.ViewFetch, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8")
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Origin", c.origin)
	req.Header.Set("Referer", c.origin+"/")
	req.Header.Set("Application-Context", c.appContext)

	var payload viewsResponse
	if err := c.do(req, &payload); err != nil {
		return 0, apperr.E(op, apperr.ViewFetch, err)
	}
	if payload.Count == nil {
		return 0, nil
	}
	return *payload.Count, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("showcase error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
