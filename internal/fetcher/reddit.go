package fetcher

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mrlerner/daily-briefing/internal/source"
)

const (
	redditClientTimeout    = 15 * time.Second
	redditMaxResponseBytes = 2 << 20 // 2MB
	redditTopLimit         = 30
	redditSearchLimit      = 15
	redditMaxSummaryRunes  = 300
)

// RedditAdapter 走 Reddit 公开 JSON 接口；一条声明对应一个子版块，
// Query 非空时走站内搜索，否则拉当日 top 并按 catalog 关键词过滤
type RedditAdapter struct {
	baseURL string
	client  *http.Client
	maxAge  time.Duration
	now     func() time.Time
}

func NewRedditAdapter(maxAge time.Duration) *RedditAdapter {
	return &RedditAdapter{
		baseURL: "https://www.reddit.com",
		client:  &http.Client{Timeout: redditClientTimeout},
		maxAge:  maxAge,
		now:     time.Now,
	}
}

func (r *RedditAdapter) Kind() string {
	return source.KindReddit
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Permalink  string  `json:"permalink"`
	Selftext   string  `json:"selftext"`
	Subreddit  string  `json:"subreddit"`
	Score      int     `json:"score"`
	NumComment int     `json:"num_comments"`
	Author     string  `json:"author"`
	CreatedUTC float64 `json:"created_utc"`
}

func (r *RedditAdapter) Fetch(src source.Decl) ([]RawItem, error) {
	sub := src.Location

	var endpoint string
	if src.Query != "" {
		q := url.Values{}
		q.Set("q", src.Query)
		q.Set("sort", "top")
		q.Set("t", "day")
		q.Set("limit", fmt.Sprintf("%d", redditSearchLimit))
		q.Set("restrict_sr", "1")
		endpoint = fmt.Sprintf("%s/r/%s/search.json?%s", r.baseURL, sub, q.Encode())
	} else {
		endpoint = fmt.Sprintf("%s/r/%s/top.json?t=day&limit=%d", r.baseURL, sub, redditTopLimit)
	}

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("reddit r/%s: build request: %w", sub, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reddit r/%s: fetch: %w", sub, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit r/%s: unexpected status %d", sub, resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(io.LimitReader(resp.Body, redditMaxResponseBytes)).Decode(&listing); err != nil {
		return nil, fmt.Errorf("reddit r/%s: decode: %w", sub, err)
	}

	maxAge := src.MaxAge
	if maxAge <= 0 {
		maxAge = r.maxAge
	}
	cutoff := r.now().Add(-maxAge).Unix()
	items := make([]RawItem, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Title == "" || int64(post.CreatedUTC) < cutoff {
			continue
		}
		// top 列表模式下套用 catalog 的共享关键词过滤；搜索结果本身已定向
		if src.Query == "" && len(src.Keywords) > 0 && !matchesKeywords(post.Title, src.Keywords) {
			continue
		}

		items = append(items, RawItem{
			Title:     strings.TrimSpace(post.Title),
			URL:       "https://reddit.com" + post.Permalink,
			Source:    src.Name,
			Kind:      source.KindReddit,
			Published: time.Unix(int64(post.CreatedUTC), 0),
			Summary:   truncateRunes(post.Selftext, redditMaxSummaryRunes),
			Points:    post.Score,
			Comments:  post.NumComment,
			Author:    post.Author,
			Extra: map[string]any{
				"subreddit": post.Subreddit,
			},
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Points > items[j].Points })

	log.Printf("reddit r/%s: fetched %d posts", sub, len(items))
	return items, nil
}

func matchesKeywords(title string, keywords []string) bool {
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
