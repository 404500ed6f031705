package fetcher

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mrlerner/daily-briefing/internal/source"
)

func TestHNAdapterFetch(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "golang" {
			t.Fatalf("query param = %q, want golang", got)
		}
		if got := r.URL.Query().Get("tags"); got != "story" {
			t.Fatalf("tags param = %q, want story", got)
		}
		w.Write([]byte(`{"hits": [
			{"objectID": "1", "title": "Low points", "url": "https://example.com/low", "points": 10, "num_comments": 2, "author": "aa", "created_at_i": 1748770000},
			{"objectID": "2", "title": "High points", "url": "https://example.com/high", "points": 200, "num_comments": 50, "author": "bb", "created_at_i": 1748770000},
			{"objectID": "3", "title": "Ask HN: internal post", "url": "", "points": 80, "num_comments": 30, "author": "cc", "created_at_i": 1748770000},
			{"objectID": "4", "title": "", "url": "https://example.com/untitled", "points": 5, "created_at_i": 1748770000}
		]}`))
	}))
	defer srv.Close()

	h := NewHNAdapter(48 * time.Hour)
	h.baseURL = srv.URL
	h.now = func() time.Time { return now }

	items, err := h.Fetch(source.Decl{Name: "Hacker News", Kind: source.KindHN, Location: "golang"})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}

	// 无标题的条目丢弃，剩余按 points 降序
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[0].Title != "High points" || items[0].Points != 200 {
		t.Fatalf("not sorted by points: %+v", items[0])
	}

	// 站内帖落回讨论页链接
	for _, item := range items {
		if item.Title == "Ask HN: internal post" {
			if item.URL != "https://news.ycombinator.com/item?id=3" {
				t.Fatalf("ask hn url = %q, want discussion page", item.URL)
			}
		}
		if item.Extra["hn_id"] == "" {
			t.Fatalf("missing hn_id in extra: %+v", item.Extra)
		}
	}
}

func TestHNAdapterDeclMaxAgeOverridesDefault(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var gotFilter string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("numericFilters")
		w.Write([]byte(`{"hits": []}`))
	}))
	defer srv.Close()

	h := NewHNAdapter(48 * time.Hour)
	h.baseURL = srv.URL
	h.now = func() time.Time { return now }

	// 声明自带 72h 窗口时，查询截止点必须按声明算而不是 adapter 默认
	decl := source.Decl{Name: "Hacker News", Kind: source.KindHN, Location: "golang", MaxAge: 72 * time.Hour}
	if _, err := h.Fetch(decl); err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	want := fmt.Sprintf("created_at_i>%d", now.Add(-72*time.Hour).Unix())
	if gotFilter != want {
		t.Fatalf("numericFilters = %q, want %q", gotFilter, want)
	}
}

func TestHNAdapterErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	h := NewHNAdapter(48 * time.Hour)
	h.baseURL = srv.URL
	if _, err := h.Fetch(source.Decl{Name: "Hacker News", Location: "golang"}); err == nil {
		t.Fatal("expected error for 429 response")
	}
}
