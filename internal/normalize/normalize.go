package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/mrlerner/daily-briefing/internal/fetcher"
)

// Item 是 Normalizer 与 Relevance Engine 之间的公共条目契约。
// TopicsMatched / Relevance 只由 rank 包填充
type Item struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	URL           string         `json:"url"`
	Source        string         `json:"source"`
	Kind          string         `json:"kind"`
	Section       string         `json:"section,omitempty"`
	Published     time.Time      `json:"published"`
	Summary       string         `json:"summary"`
	Points        int            `json:"points,omitempty"`
	Comments      int            `json:"comments,omitempty"`
	Author        string         `json:"author,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
	TopicsMatched []string       `json:"topics_matched"`
	Relevance     float64        `json:"relevance_score"`
}

// Items 把各 adapter 的原始条目规范化为公共格式并按 URL 指纹去重。
// 标题和 URL 都拿不到的条目直接丢弃——既没法排也没法渲
func Items(raw []fetcher.RawItem, fetchedAt time.Time) []Item {
	out := make([]Item, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, r := range raw {
		title := strings.TrimSpace(r.Title)
		rawURL := strings.TrimSpace(r.URL)
		if title == "" && rawURL == "" {
			continue
		}

		id := Fingerprint(rawURL)
		if id == "" {
			// 没有 URL 的条目退化为按标题取指纹，保证 ID 非空
			id = hashString(title)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		published := r.Published
		if published.IsZero() {
			published = fetchedAt
		}

		out = append(out, Item{
			ID:            id,
			Title:         title,
			URL:           rawURL,
			Source:        r.Source,
			Kind:          r.Kind,
			Section:       r.Section,
			Published:     published,
			Summary:       strings.TrimSpace(r.Summary),
			Points:        r.Points,
			Comments:      r.Comments,
			Author:        r.Author,
			Extra:         r.Extra,
			TopicsMatched: []string{},
		})
	}

	return out
}

// Fingerprint 对规范化后的 URL 取稳定哈希：同一资源的不同写法
// （末尾斜杠、跟踪参数、fragment）必须得到同一个 ID。
// 这是单轮构建内唯一的去重键
func Fingerprint(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	return hashString(CanonicalURL(rawURL))
}

// 纯跟踪用途的查询参数，对资源身份没有贡献
var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"source":  {},
}

// CanonicalURL 规范化：scheme/host 小写、去 fragment、去末尾斜杠、
// 去跟踪参数，剩余查询参数按 key 排序保证稳定
func CanonicalURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if _, ok := trackingParams[key]; ok {
				q.Del(key)
				continue
			}
			if strings.HasPrefix(key, "utm_") {
				q.Del(key)
			}
		}
		// Encode 本身按 key 排序
		u.RawQuery = q.Encode()
	}

	return u.String()
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:16]
}
