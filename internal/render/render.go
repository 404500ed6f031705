package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/mrlerner/daily-briefing/internal/blocks"
	"github.com/mrlerner/daily-briefing/internal/config"
	"github.com/mrlerner/daily-briefing/internal/normalize"
	"github.com/mrlerner/daily-briefing/internal/source"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var (
	htmlTmpl    = template.Must(template.ParseFS(templatesFS, "templates/briefing.html.tmpl"))
	summaryTmpl = texttemplate.Must(texttemplate.ParseFS(templatesFS, "templates/summary.txt.tmpl"))
)

// Entry 是单条新闻在模板里的视图
type Entry struct {
	Title    string
	URL      string
	Source   string
	TimeAgo  string
	Summary  string
	Points   int
	Comments int
}

// Section 是按来源类型分组后的展示区块
type Section struct {
	ID      string
	Name    string
	Icon    string
	Entries []Entry
}

type htmlData struct {
	Title    string
	Date     string
	Time     string
	Sections []Section
	Blocks   []blocks.Payload
}

// HTML 渲染完整简报页面。条目顺序就是最终展示顺序，这里只分组不再过滤
func HTML(items []normalize.Item, blockPayloads []blocks.Payload, b *config.Briefing, now time.Time) ([]byte, error) {
	data := htmlData{
		Title:    b.DisplayName,
		Date:     now.Format("January 02, 2006"),
		Time:     now.Format("15:04"),
		Sections: buildSections(items, now),
		Blocks:   blockPayloads,
	}

	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

type jsonDoc struct {
	Generated string           `json:"generated"`
	User      string           `json:"user"`
	Briefing  string           `json:"briefing"`
	Items     []normalize.Item `json:"items"`
	Blocks    []blocks.Payload `json:"blocks"`
}

// JSON 渲染结构化导出，供下游投递消费
func JSON(items []normalize.Item, blockPayloads []blocks.Payload, b *config.Briefing, now time.Time) ([]byte, error) {
	doc := jsonDoc{
		Generated: now.UTC().Format(time.RFC3339),
		User:      b.User.ID,
		Briefing:  b.BriefingName,
		Items:     items,
		Blocks:    blockPayloads,
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}
	return append(out, '\n'), nil
}

type summaryData struct {
	Blocks   []blocks.Payload
	TopItems []Entry
	URL      string
}

// Summary 渲染投递给聊天渠道的纯文本短摘要：block 摘要行 + 前几条新闻
func Summary(items []normalize.Item, blockPayloads []blocks.Payload, b *config.Briefing, briefingURL string, now time.Time) ([]byte, error) {
	count := b.Format.SummaryItems
	if count < 0 {
		count = 0
	}
	if count > len(items) {
		count = len(items)
	}

	top := make([]Entry, 0, count)
	for _, item := range items[:count] {
		top = append(top, Entry{Title: item.Title, URL: item.URL, Source: item.Source})
	}

	var buf bytes.Buffer
	err := summaryTmpl.Execute(&buf, summaryData{
		Blocks:   blockPayloads,
		TopItems: top,
		URL:      briefingURL,
	})
	if err != nil {
		return nil, fmt.Errorf("render summary: %w", err)
	}

	out := strings.TrimSpace(buf.String()) + "\n"
	return []byte(out), nil
}

// IndexRedirect 生成跳到最新一期的 index.html
func IndexRedirect(target string) []byte {
	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <meta http-equiv="refresh" content="0; url=%s">
  <title>Redirecting...</title>
</head>
<body>
  <p>Redirecting to <a href="%s">latest briefing</a>...</p>
</body>
</html>
`, template.HTMLEscapeString(target), template.HTMLEscapeString(target))
	return []byte(html)
}

// RootIndexEntry 是根索引页上一行构建结果
type RootIndexEntry struct {
	UserID   string
	Briefing string
	Items    int
	Blocks   int
}

// RootIndex 生成列出所有用户简报的根索引页
func RootIndex(entries []RootIndexEntry, now time.Time) []byte {
	var list strings.Builder
	if len(entries) == 0 {
		list.WriteString("    <li>No briefings built yet.</li>\n")
	}
	for _, e := range entries {
		href := template.HTMLEscapeString(e.UserID + "/" + e.Briefing + "/index.html")
		label := template.HTMLEscapeString(e.UserID + " / " + e.Briefing)
		fmt.Fprintf(&list, "    <li><a href=%q>%s</a> — %d items, %d blocks</li>\n",
			href, label, e.Items, e.Blocks)
	}

	html := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Daily Briefings</title>
  <style>
    body { font-family: -apple-system, sans-serif; max-width: 600px; margin: 40px auto; padding: 0 16px; color: #1e293b; }
    h1 { color: #0f172a; }
    a { color: #059669; }
    li { margin: 8px 0; }
    .date { color: #64748b; font-size: 14px; }
  </style>
</head>
<body>
  <h1>Daily Briefings</h1>
  <p class="date">Built %s</p>
  <ul>
%s  </ul>
</body>
</html>
`, now.Format("January 02, 2006 at 15:04"), list.String())
	return []byte(html)
}

// 固定的区块展示顺序与图标；feed/api/scrape 再按 catalog 的 section 细分
var kindSections = []struct {
	kind string
	name string
	icon string
}{
	{source.KindHN, "Hacker News", "🟠"},
	{source.KindReddit, "Reddit", "🔵"},
}

const defaultSectionName = "Headlines"

// buildSections 把排好序的条目按来源类型分组成展示区块，组内保持排名顺序
func buildSections(items []normalize.Item, now time.Time) []Section {
	byKind := make(map[string][]normalize.Item)
	for _, item := range items {
		byKind[item.Kind] = append(byKind[item.Kind], item)
	}

	var sections []Section
	for _, ks := range kindSections {
		group := byKind[ks.kind]
		if len(group) == 0 {
			continue
		}
		sections = append(sections, Section{
			ID:      ks.kind,
			Name:    ks.name,
			Icon:    ks.icon,
			Entries: toEntries(group, now),
		})
	}

	// 其余类型（feed/api/scrape）按 section 标签分组，顺序取首次出现
	var order []string
	bySection := make(map[string][]normalize.Item)
	for _, item := range items {
		if item.Kind == source.KindHN || item.Kind == source.KindReddit {
			continue
		}
		name := item.Section
		if name == "" {
			name = defaultSectionName
		}
		if _, ok := bySection[name]; !ok {
			order = append(order, name)
		}
		bySection[name] = append(bySection[name], item)
	}
	for _, name := range order {
		id := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
		sections = append(sections, Section{
			ID:      id,
			Name:    name,
			Icon:    "📰",
			Entries: toEntries(bySection[name], now),
		})
	}

	return sections
}

func toEntries(items []normalize.Item, now time.Time) []Entry {
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		entries = append(entries, Entry{
			Title:    item.Title,
			URL:      item.URL,
			Source:   item.Source,
			TimeAgo:  timeAgo(item.Published, now),
			Summary:  item.Summary,
			Points:   item.Points,
			Comments: item.Comments,
		})
	}
	return entries
}

// timeAgo 把发布时间转成 "3h ago" 式的相对时间
func timeAgo(published, now time.Time) string {
	if published.IsZero() {
		return ""
	}
	d := now.Sub(published)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
