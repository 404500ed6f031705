package fetcher

import (
	"time"

	"github.com/mrlerner/daily-briefing/internal/source"
)

const userAgent = "DailyBriefingBot/1.0"

// RawItem 各 adapter 采集后的基础结构，尚未规范化
type RawItem struct {
	Title     string
	URL       string
	Source    string
	Kind      string
	Section   string
	Published time.Time // 零值表示源没有给出发布时间
	Summary   string
	Points    int
	Comments  int
	Author    string
	Extra     map[string]any
}

// Adapter 抽象每一类数据源；一次 Fetch 对应一条源声明。
// Fetch 不向外抛 panic：任何失败都以 error 返回，由 builder 记成 Failure
type Adapter interface {
	Kind() string
	Fetch(src source.Decl) ([]RawItem, error)
}

// Failure 是单个源的结构化失败记录，随构建结果一起落入 outcome log
type Failure struct {
	Source string `json:"source"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// Registry 返回按 Kind 索引的全部 adapter；maxAge 是需要时间窗的源在
// 声明未携带 MaxAge 时的兜底窗口
func Registry(maxAge time.Duration) map[string]Adapter {
	adapters := []Adapter{
		NewFeedAdapter(),
		NewAPIAdapter(),
		NewScrapeAdapter(),
		NewHNAdapter(maxAge),
		NewRedditAdapter(maxAge),
	}
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Kind()] = a
	}
	return m
}
