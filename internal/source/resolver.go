package source

import (
	"fmt"
	"time"

	"github.com/mrlerner/daily-briefing/internal/config"
)

// 源类型常量，与各 fetch adapter 的 Kind 一一对应
const (
	KindFeed   = "feed"
	KindAPI    = "api"
	KindScrape = "scrape"
	KindHN     = "hn"
	KindReddit = "reddit"
)

// Decl 是解析完成的单个可抓取端点：一次 adapter 调用对应一条 Decl。
// 一旦解析完成，本轮构建期间不再变化；身份是 (Name, Kind, Location)
type Decl struct {
	Name     string
	Kind     string
	Location string
	MaxAge   time.Duration // 本份简报的新鲜度窗口，0 表示用 adapter 默认

	// 可选的类型专属参数
	Section   string            // feed/api：条目在渲染时的分组
	Keywords  []string          // reddit：catalog 级共享关键词过滤
	Query     string            // reddit：搜索词（为空表示拉 top 列表）
	Fields    map[string]string // api：字段路径映射
	Selectors map[string]string // scrape：CSS 选择器
}

// Identity 用于 catalog 与行内源重叠时去重，避免同一端点拉两次
func (d Decl) Identity() string {
	return d.Name + "|" + d.Kind + "|" + d.Location
}

// Resolve 把 briefing 引用的 catalog 与行内 sources 合并成一份有序源列表。
// catalog 条目在前、行内条目在后；合并是纯追加，行内源永远不会覆盖 catalog 条目
func Resolve(b *config.Briefing, loader *config.Loader) ([]Decl, error) {
	var decls []Decl

	if b.SourcesFrom != "" {
		catalog, err := loader.LoadCatalog(b.SourcesFrom)
		if err != nil {
			return nil, err
		}
		decls = append(decls, flattenCatalog(catalog)...)
	}

	for _, s := range b.Sources {
		d, err := fromEntry(s, s.Type)
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}

	decls = dedupe(decls)

	// 时间窗跟简报走而不是跟 adapter 走，同一个源在不同简报里可以有不同窗口
	maxAge := time.Duration(b.Filters.MaxAgeHours) * time.Hour
	for i := range decls {
		decls[i].MaxAge = maxAge
	}
	return decls, nil
}

// flattenCatalog 按平台分组展开：HN 每个查询词一条，Reddit 为
// subreddits 加上 search_queries × search_subreddits 的笛卡尔积
func flattenCatalog(c *config.Catalog) []Decl {
	var decls []Decl

	for _, e := range c.Feeds {
		decls = append(decls, Decl{Name: e.Name, Kind: KindFeed, Location: e.URL, Section: e.Section})
	}
	for _, e := range c.APIs {
		decls = append(decls, Decl{Name: e.Name, Kind: KindAPI, Location: e.URL, Section: e.Section, Fields: e.Fields})
	}
	for _, e := range c.Scrapes {
		decls = append(decls, Decl{Name: e.Name, Kind: KindScrape, Location: e.URL, Section: e.Section, Selectors: e.Selectors})
	}

	for _, q := range c.HN.Queries {
		decls = append(decls, Decl{Name: "Hacker News", Kind: KindHN, Location: q})
	}

	for _, sub := range c.Reddit.Subreddits {
		decls = append(decls, Decl{
			Name:     "r/" + sub,
			Kind:     KindReddit,
			Location: sub,
			Keywords: c.Reddit.Keywords,
		})
	}
	searchSubs := c.Reddit.SearchSubreddits
	if len(searchSubs) == 0 && len(c.Reddit.Subreddits) > 0 {
		// 未配置搜索子版块时，沿用前两个订阅子版块
		searchSubs = c.Reddit.Subreddits
		if len(searchSubs) > 2 {
			searchSubs = searchSubs[:2]
		}
	}
	for _, q := range c.Reddit.SearchQueries {
		for _, sub := range searchSubs {
			decls = append(decls, Decl{
				Name:     "r/" + sub,
				Kind:     KindReddit,
				Location: sub,
				Query:    q,
			})
		}
	}

	return decls
}

func fromEntry(e config.SourceEntry, kind string) (Decl, error) {
	switch kind {
	case KindFeed:
		return Decl{Name: e.Name, Kind: KindFeed, Location: e.URL, Section: e.Section}, nil
	case KindAPI:
		return Decl{Name: e.Name, Kind: KindAPI, Location: e.URL, Section: e.Section, Fields: e.Fields}, nil
	case KindScrape:
		return Decl{Name: e.Name, Kind: KindScrape, Location: e.URL, Section: e.Section, Selectors: e.Selectors}, nil
	default:
		return Decl{}, &config.ConfigError{
			Field:  "sources." + e.Name + ".type",
			Reason: fmt.Sprintf("unsupported inline source type %q", kind),
		}
	}
}

// dedupe 按 (name, kind, location) 去重，保留第一次出现（即 catalog 优先）
func dedupe(decls []Decl) []Decl {
	seen := make(map[string]struct{}, len(decls))
	out := decls[:0]
	for _, d := range decls {
		// 同一子版块的 top 列表与搜索视为不同调用
		key := d.Identity() + "|" + d.Query
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}
