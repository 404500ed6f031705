package fetcher

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/mrlerner/daily-briefing/internal/source"
)

const (
	feedClientTimeout    = 15 * time.Second
	feedMaxResponseBytes = 4 << 20 // 4MB，足够容纳大号全文 feed
	feedMaxSummaryRunes  = 300
)

// FeedAdapter 抓取 RSS 2.0 / Atom 订阅源；两种格式由 gofeed 统一解析
type FeedAdapter struct {
	client *http.Client
	now    func() time.Time
}

func NewFeedAdapter() *FeedAdapter {
	return &FeedAdapter{
		client: &http.Client{Timeout: feedClientTimeout},
		now:    time.Now,
	}
}

func (f *FeedAdapter) Kind() string {
	return source.KindFeed
}

func (f *FeedAdapter) Fetch(src source.Decl) ([]RawItem, error) {
	req, err := http.NewRequest(http.MethodGet, src.Location, nil)
	if err != nil {
		return nil, fmt.Errorf("feed %s: build request: %w", src.Name, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed %s: fetch: %w", src.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s: unexpected status %d", src.Name, resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, feedMaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("feed %s: parse: %w", src.Name, err)
	}

	fetchedAt := f.now()
	items := make([]RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		title := strings.TrimSpace(entry.Title)
		link := strings.TrimSpace(entry.Link)
		if title == "" || link == "" {
			continue
		}

		summary := entry.Description
		if summary == "" {
			summary = entry.Content
		}
		summary = truncateRunes(stripHTML(summary), feedMaxSummaryRunes)

		// 源没有发布时间时用抓取时间兜底，保证后续时间过滤可用
		published := fetchedAt
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			published = *entry.UpdatedParsed
		}

		items = append(items, RawItem{
			Title:     title,
			URL:       link,
			Source:    src.Name,
			Kind:      source.KindFeed,
			Section:   src.Section,
			Published: published,
			Summary:   summary,
		})
	}

	log.Printf("feed %s: fetched %d items", src.Name, len(items))
	return items, nil
}

// stripHTML 把 feed 摘要中的 HTML 剥成纯文本；解析失败时原样返回
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(strings.Join(strings.Fields(doc.Text()), " "))
}

// truncateRunes 按 rune 数截断并追加省略号，避免把多字节字符切半
func truncateRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit-1]) + "…"
}
