package blocks

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mrlerner/daily-briefing/internal/config"
)

// wttrDay 生成一个小时段全是同一天气的预报日
func wttrDay(date, condition, high, low string) string {
	hours := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		hours = append(hours, `{"weatherDesc": [{"value": "`+condition+`"}]}`)
	}
	return `{"date": "` + date + `", "maxtempF": "` + high + `", "mintempF": "` + low + `", "hourly": [` + strings.Join(hours, ",") + `]}`
}

func TestWeatherBlockHighlightsAndSummary(t *testing.T) {
	body := `{"weather": [` +
		wttrDay("2025-06-02", "Sunny", "75", "58") + "," +
		wttrDay("2025-06-03", "Patchy rain nearby", "66", "55") + "," +
		wttrDay("2025-06-04", "Clear", "72", "57") +
		`]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "j1" {
			t.Fatalf("expected j1 format query, got %s", r.URL.RawQuery)
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	f := NewWeatherFetcher()
	f.baseURL = srv.URL

	payload, err := f.Fetch(config.BlockConfig{
		Type:      "weather",
		Location:  "Brooklyn",
		Days:      7,
		Highlight: "sunny",
	})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}

	days, ok := payload.Data["days"].([]map[string]any)
	if !ok || len(days) != 3 {
		t.Fatalf("days = %#v, want 3 entries", payload.Data["days"])
	}
	if days[0]["high"] != 75 || days[0]["low"] != 58 {
		t.Fatalf("temps not parsed: %+v", days[0])
	}

	// Sunny 和 Clear 两天命中高亮（2025-06-02 是周一）
	highlights, _ := payload.Data["highlights"].([]string)
	if len(highlights) != 2 || highlights[0] != "Mon" || highlights[1] != "Wed" {
		t.Fatalf("highlights = %v, want [Mon Wed]", highlights)
	}
	if payload.SummaryLine != "Sunny Mon and Wed — good days to be outside." {
		t.Fatalf("summary line = %q", payload.SummaryLine)
	}
}

func TestWeatherBlockRetriesOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"weather": [` + wttrDay("2025-06-02", "Cloudy", "60", "50") + `]}`))
	}))
	defer srv.Close()

	f := NewWeatherFetcher()
	f.baseURL = srv.URL

	payload, err := f.Fetch(config.BlockConfig{Location: "Brooklyn"})
	if err != nil {
		t.Fatalf("Fetch should succeed on retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want exactly one retry", calls)
	}
	if payload.SummaryLine != "No particularly sunny days in the forecast." {
		t.Fatalf("summary line = %q", payload.SummaryLine)
	}
}

func TestWeatherBlockRequiresLocation(t *testing.T) {
	f := NewWeatherFetcher()
	if _, err := f.Fetch(config.BlockConfig{Type: "weather"}); err == nil {
		t.Fatal("expected error when location missing")
	}
}

func TestWeatherSummaryForms(t *testing.T) {
	if got := weatherSummary(nil, "sunny"); got != "No particularly sunny days in the forecast." {
		t.Fatalf("empty form = %q", got)
	}
	if got := weatherSummary([]string{"Sat"}, "sunny"); got != "Sunny Sat — good day to be outside." {
		t.Fatalf("single form = %q", got)
	}
	if got := weatherSummary([]string{"Thu", "Fri", "Sat"}, "clear"); got != "Clear Thu, Fri and Sat — good days to be outside." {
		t.Fatalf("list form = %q", got)
	}
}

func TestDominantCondition(t *testing.T) {
	got := dominantCondition([]string{"Cloudy", "Sunny", "Sunny", "Rain"})
	if got != "Sunny" {
		t.Fatalf("dominantCondition = %q, want Sunny", got)
	}
	// 平局保留先出现的
	if got := dominantCondition([]string{"Rain", "Sunny"}); got != "Rain" {
		t.Fatalf("tie = %q, want first seen", got)
	}
	if got := dominantCondition(nil); got != "Unknown" {
		t.Fatalf("empty = %q, want Unknown", got)
	}
}
