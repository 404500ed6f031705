package blocks

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mrlerner/daily-briefing/internal/config"
)

const (
	wttrBaseURL          = "https://wttr.in"
	weatherClientTimeout = 20 * time.Second
	weatherMaxRespBytes  = 1 << 20 // 1MB，j1 响应可能很啰嗦
	weatherDefaultDays   = 7
)

// WeatherFetcher 从 wttr.in 拉多日天气预报（免费、无需 key）。
// wttr.in 偶发 503，这里做且仅做一次重试
type WeatherFetcher struct {
	baseURL string
	client  *http.Client
}

func NewWeatherFetcher() *WeatherFetcher {
	return &WeatherFetcher{
		baseURL: wttrBaseURL,
		client:  &http.Client{Timeout: weatherClientTimeout},
	}
}

func (w *WeatherFetcher) Type() string {
	return "weather"
}

// 对应 wttr.in ?format=j1 响应里我们关心的部分
type wttrResp struct {
	Weather []struct {
		Date     string `json:"date"`
		MaxTempF string `json:"maxtempF"`
		MinTempF string `json:"mintempF"`
		Hourly   []struct {
			WeatherDesc []struct {
				Value string `json:"value"`
			} `json:"weatherDesc"`
		} `json:"hourly"`
	} `json:"weather"`
}

func (w *WeatherFetcher) Fetch(cfg config.BlockConfig) (*Payload, error) {
	location := cfg.Location
	if location == "" {
		return nil, fmt.Errorf("weather: block config has no location")
	}
	numDays := cfg.Days
	if numDays <= 0 {
		numDays = weatherDefaultDays
	}
	highlight := cfg.Highlight
	if highlight == "" {
		highlight = "sunny"
	}
	label := cfg.Label
	if label == "" {
		label = "Weather"
	}

	data, err := w.fetchWttr(location)
	if err != nil {
		return nil, err
	}
	if len(data.Weather) == 0 {
		return nil, fmt.Errorf("weather: no forecast data for %q", location)
	}

	forecast := data.Weather
	if len(forecast) > numDays {
		forecast = forecast[:numDays]
	}

	days := make([]map[string]any, 0, len(forecast))
	var highlights []string
	matchWords := highlightKeywords(highlight)

	for _, d := range forecast {
		dayName := d.Date
		if t, err := time.Parse("2006-01-02", d.Date); err == nil {
			dayName = t.Format("Mon")
		}

		conditions := make([]string, 0, len(d.Hourly))
		for _, h := range d.Hourly {
			if len(h.WeatherDesc) > 0 {
				conditions = append(conditions, h.WeatherDesc[0].Value)
			}
		}

		days = append(days, map[string]any{
			"date":      d.Date,
			"day":       dayName,
			"high":      atoiOrZero(d.MaxTempF),
			"low":       atoiOrZero(d.MinTempF),
			"condition": dominantCondition(conditions),
		})

		// 一天里至少两个时段命中高亮条件才算"好天"
		matches := 0
		for _, c := range conditions {
			lower := strings.ToLower(c)
			for _, kw := range matchWords {
				if strings.Contains(lower, kw) {
					matches++
					break
				}
			}
		}
		if matches >= 2 {
			highlights = append(highlights, dayName)
		}
	}

	payload := &Payload{
		Type:  "weather",
		Label: label,
		Data: map[string]any{
			"location":   location,
			"days":       days,
			"highlights": highlights,
		},
		SummaryLine: weatherSummary(highlights, highlight),
	}

	log.Printf("weather %s: %d days, %d highlighted", location, len(days), len(highlights))
	return payload, nil
}

func (w *WeatherFetcher) fetchWttr(location string) (*wttrResp, error) {
	endpoint := w.baseURL + "/" + url.PathEscape(location) + "?format=j1"

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(3 * time.Second)
		}

		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("weather: build request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("weather %q: fetch: %w", location, err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("weather %q: unexpected status %d", location, resp.StatusCode)
			continue
		}

		var data wttrResp
		err = json.NewDecoder(io.LimitReader(resp.Body, weatherMaxRespBytes)).Decode(&data)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("weather %q: decode: %w", location, err)
			continue
		}
		return &data, nil
	}
	return nil, lastErr
}

// dominantCondition 取当天出现次数最多的天气描述；平局时取先出现的
func dominantCondition(conditions []string) string {
	if len(conditions) == 0 {
		return "Unknown"
	}
	counts := make(map[string]int, len(conditions))
	best := conditions[0]
	for _, c := range conditions {
		counts[c]++
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

func highlightKeywords(highlight string) []string {
	switch strings.ToLower(highlight) {
	case "sunny", "clear":
		return []string{"sunny", "clear", "fair"}
	default:
		return []string{strings.ToLower(highlight)}
	}
}

func weatherSummary(highlights []string, condition string) string {
	capitalized := strings.ToUpper(condition[:1]) + condition[1:]
	switch len(highlights) {
	case 0:
		return fmt.Sprintf("No particularly %s days in the forecast.", condition)
	case 1:
		return fmt.Sprintf("%s %s — good day to be outside.", capitalized, highlights[0])
	default:
		list := strings.Join(highlights[:len(highlights)-1], ", ") + " and " + highlights[len(highlights)-1]
		return fmt.Sprintf("%s %s — good days to be outside.", capitalized, list)
	}
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
