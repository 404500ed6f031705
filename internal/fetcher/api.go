package fetcher

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mrlerner/daily-briefing/internal/source"
)

const (
	apiClientTimeout    = 10 * time.Second
	apiMaxResponseBytes = 2 << 20 // 2MB
)

// APIAdapter 调通用 JSON 接口，靠源声明里的字段路径映射定位各字段。
// 新接口通过加一份映射接入，而不是加一条代码路径
type APIAdapter struct {
	client *http.Client
}

func NewAPIAdapter() *APIAdapter {
	return &APIAdapter{client: &http.Client{Timeout: apiClientTimeout}}
}

func (a *APIAdapter) Kind() string {
	return source.KindAPI
}

// Fetch 映射约定：fields.items 指向条目数组（为空表示响应本身就是数组），
// fields.title / url / published / summary 是条目内的相对路径。
// 某条路径取不到值时该字段降级为空串，不丢弃整条
func (a *APIAdapter) Fetch(src source.Decl) ([]RawItem, error) {
	if len(src.Fields) == 0 {
		return nil, fmt.Errorf("api %s: no field mapping declared", src.Name)
	}

	req, err := http.NewRequest(http.MethodGet, src.Location, nil)
	if err != nil {
		return nil, fmt.Errorf("api %s: build request: %w", src.Name, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api %s: fetch: %w", src.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api %s: unexpected status %d", src.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, apiMaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("api %s: read body: %w", src.Name, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("api %s: response is not valid json", src.Name)
	}

	root := gjson.ParseBytes(body)
	list := root
	if p := src.Fields["items"]; p != "" {
		list = root.Get(p)
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("api %s: items path %q does not resolve to an array", src.Name, src.Fields["items"])
	}

	var items []RawItem
	list.ForEach(func(_, entry gjson.Result) bool {
		item := RawItem{
			Title:   entry.Get(src.Fields["title"]).String(),
			URL:     entry.Get(src.Fields["url"]).String(),
			Source:  src.Name,
			Kind:    source.KindAPI,
			Section: src.Section,
			Summary: entry.Get(src.Fields["summary"]).String(),
		}
		if p := src.Fields["published"]; p != "" {
			item.Published = parseAPITime(entry.Get(p))
		}
		items = append(items, item)
		return true
	})

	log.Printf("api %s: fetched %d items", src.Name, len(items))
	return items, nil
}

// parseAPITime 兼容 RFC3339 字符串与 Unix 秒/毫秒时间戳，解析不了返回零值
func parseAPITime(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.String:
		for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v.String()); err == nil {
				return t
			}
		}
	case gjson.Number:
		n := v.Int()
		if n > 1e12 {
			return time.UnixMilli(n)
		}
		if n > 0 {
			return time.Unix(n, 0)
		}
	}
	return time.Time{}
}
