package fetcher

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/mrlerner/daily-briefing/internal/source"
)

const (
	algoliaSearchURL   = "https://hn.algolia.com/api/v1/search"
	hnClientTimeout    = 10 * time.Second
	hnMaxResponseBytes = 1 << 20 // 1MB
	hnHitsPerPage      = 30
)

// HNAdapter 通过 Algolia 搜索 API 抓取 Hacker News；
// 每条源声明对应一个查询词，查询词的展开在 resolver 完成
type HNAdapter struct {
	baseURL string
	client  *http.Client
	maxAge  time.Duration
	now     func() time.Time
}

func NewHNAdapter(maxAge time.Duration) *HNAdapter {
	return &HNAdapter{
		baseURL: algoliaSearchURL,
		client:  &http.Client{Timeout: hnClientTimeout},
		maxAge:  maxAge,
		now:     time.Now,
	}
}

func (h *HNAdapter) Kind() string {
	return source.KindHN
}

type algoliaResp struct {
	Hits []struct {
		ObjectID    string `json:"objectID"`
		Title       string `json:"title"`
		URL         string `json:"url"`
		Points      int    `json:"points"`
		NumComments int    `json:"num_comments"`
		Author      string `json:"author"`
		CreatedAtI  int64  `json:"created_at_i"`
	} `json:"hits"`
}

func (h *HNAdapter) Fetch(src source.Decl) ([]RawItem, error) {
	maxAge := src.MaxAge
	if maxAge <= 0 {
		maxAge = h.maxAge
	}
	cutoff := h.now().Add(-maxAge).Unix()

	q := url.Values{}
	q.Set("query", src.Location)
	q.Set("tags", "story")
	q.Set("numericFilters", fmt.Sprintf("created_at_i>%d", cutoff))
	q.Set("hitsPerPage", fmt.Sprintf("%d", hnHitsPerPage))

	resp, err := h.client.Get(h.baseURL + "?" + q.Encode())
	if err != nil {
		return nil, fmt.Errorf("hn %q: search: %w", src.Location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hn %q: unexpected status %d", src.Location, resp.StatusCode)
	}

	var data algoliaResp
	if err := json.NewDecoder(io.LimitReader(resp.Body, hnMaxResponseBytes)).Decode(&data); err != nil {
		return nil, fmt.Errorf("hn %q: decode: %w", src.Location, err)
	}

	items := make([]RawItem, 0, len(data.Hits))
	for _, hit := range data.Hits {
		if hit.Title == "" {
			continue
		}
		discussionURL := "https://news.ycombinator.com/item?id=" + hit.ObjectID
		itemURL := hit.URL
		if itemURL == "" {
			// Ask HN 等站内帖没有外链，落回讨论页
			itemURL = discussionURL
		}
		items = append(items, RawItem{
			Title:     hit.Title,
			URL:       itemURL,
			Source:    src.Name,
			Kind:      source.KindHN,
			Published: time.Unix(hit.CreatedAtI, 0),
			Points:    hit.Points,
			Comments:  hit.NumComments,
			Author:    hit.Author,
			Extra: map[string]any{
				"hn_id":  hit.ObjectID,
				"hn_url": discussionURL,
			},
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Points > items[j].Points })

	log.Printf("hn %q: fetched %d stories", src.Location, len(items))
	return items, nil
}
