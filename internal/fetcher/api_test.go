package fetcher

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mrlerner/daily-briefing/internal/source"
)

func TestAPIAdapterFieldMapping(t *testing.T) {
	body := `{
		"data": {
			"articles": [
				{"headline": "Big news", "href": "https://example.com/a", "ts": "2025-06-01T08:00:00Z", "blurb": "details"},
				{"headline": "More news", "href": "https://example.com/b"}
			]
		}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	a := NewAPIAdapter()
	items, err := a.Fetch(source.Decl{
		Name:     "News API",
		Kind:     source.KindAPI,
		Location: srv.URL,
		Fields: map[string]string{
			"items":     "data.articles",
			"title":     "headline",
			"url":       "href",
			"published": "ts",
			"summary":   "blurb",
		},
	})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Title != "Big news" || items[0].Summary != "details" {
		t.Fatalf("field mapping wrong: %+v", items[0])
	}
	want := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	if !items[0].Published.Equal(want) {
		t.Fatalf("published = %v, want %v", items[0].Published, want)
	}
	// 缺失字段降级为空，不丢整条
	if items[1].Summary != "" || !items[1].Published.IsZero() {
		t.Fatalf("missing fields should degrade to zero values: %+v", items[1])
	}
}

func TestAPIAdapterRootArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"t": "one", "u": "https://example.com/1"}]`))
	}))
	defer srv.Close()

	a := NewAPIAdapter()
	items, err := a.Fetch(source.Decl{
		Name:     "root",
		Location: srv.URL,
		Fields:   map[string]string{"title": "t", "url": "u"},
	})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 1 || items[0].Title != "one" {
		t.Fatalf("root array not handled: %+v", items)
	}
}

func TestAPIAdapterRejectsMissingMapping(t *testing.T) {
	a := NewAPIAdapter()
	if _, err := a.Fetch(source.Decl{Name: "no-fields", Location: "http://127.0.0.1:0"}); err == nil {
		t.Fatal("expected error when no field mapping declared")
	}
}

func TestAPIAdapterRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	a := NewAPIAdapter()
	_, err := a.Fetch(source.Decl{
		Name:     "html",
		Location: srv.URL,
		Fields:   map[string]string{"title": "t"},
	})
	if err == nil {
		t.Fatal("expected error for non-json response")
	}
}

func TestAPIAdapterRejectsNonArrayItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"articles": "oops"}}`))
	}))
	defer srv.Close()

	a := NewAPIAdapter()
	_, err := a.Fetch(source.Decl{
		Name:     "bad-path",
		Location: srv.URL,
		Fields:   map[string]string{"items": "data.articles", "title": "t"},
	})
	if err == nil {
		t.Fatal("expected error when items path is not an array")
	}
}

func TestParseAPITimeFormats(t *testing.T) {
	cases := []struct {
		json string
		want time.Time
	}{
		{`{"t": "2025-06-01T08:00:00Z"}`, time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
		{`{"t": "2025-06-01"}`, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{`{"t": 1748764800}`, time.Unix(1748764800, 0)},
		{`{"t": 1748764800000}`, time.UnixMilli(1748764800000)},
		{`{"t": "tuesday-ish"}`, time.Time{}},
	}
	for _, c := range cases {
		got := parseAPITime(gjson.Get(c.json, "t"))
		if !got.Equal(c.want) {
			t.Fatalf("parseAPITime(%s) = %v, want %v", c.json, got, c.want)
		}
	}
}
