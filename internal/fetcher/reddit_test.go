package fetcher

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mrlerner/daily-briefing/internal/source"
)

func redditListingJSON(posts ...string) string {
	children := make([]string, 0, len(posts))
	for _, p := range posts {
		children = append(children, fmt.Sprintf(`{"data": %s}`, p))
	}
	return fmt.Sprintf(`{"data": {"children": [%s]}}`, strings.Join(children, ","))
}

func TestRedditAdapterTopWithKeywordFilter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-2 * time.Hour).Unix()
	stale := now.Add(-72 * time.Hour).Unix()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/r/golang/top.json") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(redditListingJSON(
			fmt.Sprintf(`{"id": "a", "title": "Go generics deep dive", "permalink": "/r/golang/a", "score": 120, "num_comments": 40, "author": "u1", "subreddit": "golang", "created_utc": %d}`, fresh),
			fmt.Sprintf(`{"id": "b", "title": "Unrelated meme", "permalink": "/r/golang/b", "score": 500, "created_utc": %d}`, fresh),
			fmt.Sprintf(`{"id": "c", "title": "Go release but stale", "permalink": "/r/golang/c", "score": 80, "created_utc": %d}`, stale),
		)))
	}))
	defer srv.Close()

	r := NewRedditAdapter(48 * time.Hour)
	r.baseURL = srv.URL
	r.now = func() time.Time { return now }

	items, err := r.Fetch(source.Decl{
		Name:     "r/golang",
		Kind:     source.KindReddit,
		Location: "golang",
		Keywords: []string{"go"},
	})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}

	// 关键词过滤掉无关帖，时间窗过滤掉过期帖
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1: %+v", len(items), items)
	}
	item := items[0]
	if item.Title != "Go generics deep dive" {
		t.Fatalf("wrong survivor: %q", item.Title)
	}
	if item.URL != "https://reddit.com/r/golang/a" {
		t.Fatalf("permalink not expanded: %q", item.URL)
	}
	if item.Extra["subreddit"] != "golang" {
		t.Fatalf("subreddit extra missing: %+v", item.Extra)
	}
}

func TestRedditAdapterSearchSkipsKeywordFilter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-1 * time.Hour).Unix()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/r/programming/search.json") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "memory safety" {
			t.Fatalf("q = %q, want search query", got)
		}
		if got := r.URL.Query().Get("restrict_sr"); got != "1" {
			t.Fatalf("restrict_sr = %q, want 1", got)
		}
		w.Write([]byte(redditListingJSON(
			fmt.Sprintf(`{"id": "x", "title": "Totally different words", "permalink": "/r/programming/x", "score": 10, "created_utc": %d}`, fresh),
		)))
	}))
	defer srv.Close()

	r := NewRedditAdapter(48 * time.Hour)
	r.baseURL = srv.URL
	r.now = func() time.Time { return now }

	items, err := r.Fetch(source.Decl{
		Name:     "r/programming",
		Kind:     source.KindReddit,
		Location: "programming",
		Query:    "memory safety",
		Keywords: []string{"golang"},
	})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	// 搜索模式不再套 catalog 关键词过滤
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
}

func TestRedditAdapterDeclMaxAgeOverridesDefault(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	aged := now.Add(-60 * time.Hour).Unix()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(redditListingJSON(
			fmt.Sprintf(`{"id": "a", "title": "Sixty hours old", "permalink": "/r/golang/a", "score": 40, "created_utc": %d}`, aged),
		)))
	}))
	defer srv.Close()

	r := NewRedditAdapter(48 * time.Hour)
	r.baseURL = srv.URL
	r.now = func() time.Time { return now }

	// 简报允许 72h 时，60h 的帖子必须保留，哪怕 adapter 默认窗口只有 48h
	items, err := r.Fetch(source.Decl{
		Name:     "r/golang",
		Kind:     source.KindReddit,
		Location: "golang",
		MaxAge:   72 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Sixty hours old" {
		t.Fatalf("got %+v, want the 60h-old post kept", items)
	}
}

func TestRedditAdapterErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	r := NewRedditAdapter(48 * time.Hour)
	r.baseURL = srv.URL
	if _, err := r.Fetch(source.Decl{Name: "r/golang", Location: "golang"}); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
