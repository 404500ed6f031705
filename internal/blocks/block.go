package blocks

import (
	"github.com/mrlerner/daily-briefing/internal/config"
)

const userAgent = "DailyBriefingBot/1.0"

// Payload 是结构化 block 的输出：不参与排序，直接交给渲染层。
// SummaryLine 在抓取成功时必须非空——短摘要会直接引用它
type Payload struct {
	Type        string         `json:"type"`
	Label       string         `json:"label"`
	Data        map[string]any `json:"data"`
	SummaryLine string         `json:"summary_line"`
}

// Fetcher 抽象每一类 block；失败只记日志并在输出中省略，不影响构建
type Fetcher interface {
	Type() string
	Fetch(cfg config.BlockConfig) (*Payload, error)
}

// Registry 返回按类型索引的全部 block fetcher
func Registry() map[string]Fetcher {
	fetchers := []Fetcher{
		NewWeatherFetcher(),
		NewMarketsFetcher(),
		NewScoresFetcher(),
	}
	m := make(map[string]Fetcher, len(fetchers))
	for _, f := range fetchers {
		m[f.Type()] = f
	}
	return m
}
