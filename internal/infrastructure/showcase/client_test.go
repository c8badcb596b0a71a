package showcase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"HSEWrapped/internal/apperr"
	"HSEWrapped/internal/config"
)

func newTestClient(serverURL string) *Client {
	return NewClient(config.ShowcaseConfig{
		LikesURL:    serverURL + "/likes",
		ViewsURL:    serverURL + "/views",
		Origin:      "https://hsedesign.ru/",
		Context:     "hsedesign",
		HTTPTimeout: time.Second,
	})
}

func TestFetchLikes(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.Method != http.MethodGet || q.Get("entityId") != "abc" || q.Get("entityType") != "project" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"count":4,"notAuthLikesCount":2}`))
	}))
	defer server.Close()

	auth, anon, err := newTestClient(server.URL).FetchLikes(context.Background(), "abc")
	if err != nil {
		t.Fatalf("FetchLikes error: %v", err)
	}
	if auth != 4 || anon != 2 {
		t.Fatalf("unexpected likes: %d %d", auth, anon)
	}
}

func TestFetchViewsSendsOriginHeaders(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Application-Context") != "hsedesign" ||
			r.Header.Get("Origin") != "https://hsedesign.ru" ||
			r.Header.Get("Referer") != "https://hsedesign.ru/" {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if body["entityId"] != "abc" || body["entityType"] != "project" || body["context"] != "hsedesign" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"count":100}`))
	}))
	defer server.Close()

	views, err := newTestClient(server.URL).FetchViews(context.Background(), "abc")
	if err != nil {
		t.Fatalf("FetchViews error: %v", err)
	}
	if views != 100 {
		t.Fatalf("expected 100 views, got %d", views)
	}
}

func TestFetchViewsErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	if _, err := client.FetchViews(context.Background(), "abc"); apperr.KindOf(err) != apperr.ViewFetch {
		t.Fatalf("expected view fetch error, got %v", err)
	}
	if _, _, err := client.FetchLikes(context.Background(), "abc"); apperr.KindOf(err) != apperr.EnrichmentFetch {
		t.Fatalf("expected enrichment fetch error, got %v", err)
	}
}

func TestFetchViewsMissingCount(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	views, err := newTestClient(server.URL).FetchViews(context.Background(), "abc")
	if err != nil || views != 0 {
		t.Fatalf("expected zero views without error, got %d, %v", views, err)
	}
}
