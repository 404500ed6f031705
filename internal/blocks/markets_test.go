package blocks

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mrlerner/daily-briefing/internal/config"
)

func TestMarketsBlockFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/USD" {
			t.Fatalf("path = %s, want /USD", r.URL.Path)
		}
		w.Write([]byte(`{
			"tsj": 1748764800000,
			"items": [{"curr": "USD", "xauPrice": 2345.67, "xagPrice": 29.01, "pcXau": 1.23, "pcXag": -0.45}]
		}`))
	}))
	defer srv.Close()

	f := NewMarketsFetcher()
	f.baseURL = srv.URL

	payload, err := f.Fetch(config.BlockConfig{Type: "markets", Label: "Metals", Currency: "usd"})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}

	if payload.Label != "Metals" {
		t.Fatalf("label = %q", payload.Label)
	}
	if payload.Data["gold_price"] != 2345.67 || payload.Data["silver_price"] != 29.01 {
		t.Fatalf("prices wrong: %+v", payload.Data)
	}
	want := "Gold 2345.67 USD/oz (+1.23%), silver 29.01 (-0.45%)."
	if payload.SummaryLine != want {
		t.Fatalf("summary line = %q, want %q", payload.SummaryLine, want)
	}
}

func TestMarketsBlockDefaultsToUSD(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/USD" {
			t.Fatalf("path = %s, want default /USD", r.URL.Path)
		}
		w.Write([]byte(`{"items": [{"curr": "USD", "xauPrice": 1, "xagPrice": 1}]}`))
	}))
	defer srv.Close()

	f := NewMarketsFetcher()
	f.baseURL = srv.URL
	if _, err := f.Fetch(config.BlockConfig{Type: "markets"}); err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
}

func TestMarketsBlockEmptyQuotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items": []}`))
	}))
	defer srv.Close()

	f := NewMarketsFetcher()
	f.baseURL = srv.URL
	if _, err := f.Fetch(config.BlockConfig{Type: "markets"}); err == nil {
		t.Fatal("expected error for empty quote list")
	}
}
