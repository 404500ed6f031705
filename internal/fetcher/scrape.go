package fetcher

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/mrlerner/daily-briefing/internal/source"
)

const scrapeRequestTimeout = 10 * time.Second

// ScrapeAdapter 按声明的 CSS 选择器从 HTML 页面提取条目，是最后手段的兜底源。
// 页面结构随时可能变化，这里只做尽力而为的解析，失败绝不拖垮整次构建
type ScrapeAdapter struct {
	timeout time.Duration
}

func NewScrapeAdapter() *ScrapeAdapter {
	return &ScrapeAdapter{timeout: scrapeRequestTimeout}
}

func (s *ScrapeAdapter) Kind() string {
	return source.KindScrape
}

// Fetch 选择器约定：selectors.item 圈定条目容器，
// selectors.title / link / summary 在容器内取字段；link 取 href 属性
func (s *ScrapeAdapter) Fetch(src source.Decl) ([]RawItem, error) {
	itemSel := src.Selectors["item"]
	titleSel := src.Selectors["title"]
	linkSel := src.Selectors["link"]
	if itemSel == "" || titleSel == "" || linkSel == "" {
		return nil, fmt.Errorf("scrape %s: selectors need at least item, title and link", src.Name)
	}

	u, err := url.Parse(src.Location)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("scrape %s: invalid location %q", src.Name, src.Location)
	}

	c := colly.NewCollector(
		colly.AllowedDomains(u.Hostname()),
		colly.UserAgent(userAgent),
	)
	c.SetRequestTimeout(s.timeout)

	fetchedAt := time.Now()
	results := make([]RawItem, 0, 20)

	c.OnHTML(itemSel, func(e *colly.HTMLElement) {
		title := strings.TrimSpace(e.ChildText(titleSel))
		if title == "" {
			return
		}

		link := e.ChildAttr(linkSel, "href")
		if link == "" {
			return
		}
		link = e.Request.AbsoluteURL(link)

		summary := ""
		if sumSel := src.Selectors["summary"]; sumSel != "" {
			summary = truncateRunes(strings.TrimSpace(e.ChildText(sumSel)), feedMaxSummaryRunes)
		}

		results = append(results, RawItem{
			Title:     title,
			URL:       link,
			Source:    src.Name,
			Kind:      source.KindScrape,
			Section:   src.Section,
			Published: fetchedAt,
			Summary:   summary,
		})
	})

	if err := c.Visit(src.Location); err != nil {
		return nil, fmt.Errorf("scrape %s: visit: %w", src.Name, err)
	}

	if len(results) == 0 {
		log.Printf("scrape %s: got 0 items, selectors may be stale", src.Name)
	}
	return results, nil
}
