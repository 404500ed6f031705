package builder

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mrlerner/daily-briefing/internal/blocks"
	"github.com/mrlerner/daily-briefing/internal/config"
	"github.com/mrlerner/daily-briefing/internal/fetcher"
	"github.com/mrlerner/daily-briefing/internal/normalize"
	"github.com/mrlerner/daily-briefing/internal/rank"
	"github.com/mrlerner/daily-briefing/internal/render"
	"github.com/mrlerner/daily-briefing/internal/source"
)

// Outcome 是单个用户简报一次构建的结果记录
type Outcome struct {
	User      string            `json:"user"`
	Briefing  string            `json:"briefing"`
	Status    string            `json:"status"`
	Fetched   int               `json:"fetched"`
	Filtered  int               `json:"filtered"`
	Ranked    int               `json:"ranked"`
	Blocks    int               `json:"blocks"`
	Failures  []fetcher.Failure `json:"failures"`
	Timestamp time.Time         `json:"timestamp"`
	ElapsedMS int64             `json:"elapsed_ms"`
}

const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Archiver 可选的构建结果落库接口
type Archiver interface {
	SaveItems(userID, briefing, date string, items []normalize.Item) error
	SaveRun(o Outcome) error
}

// Builder 串起配置解析、抓取、排序、渲染的完整流水线
type Builder struct {
	Loader      *config.Loader
	OutDir      string
	BaseURL     string
	MaxInFlight int
	Adapters    map[string]fetcher.Adapter
	Blocks      map[string]blocks.Fetcher
	Archive     Archiver
	Now         func() time.Time
}

// New 创建带默认依赖的 Builder，baseURL 为空则摘要里不带链接
func New(cfg *config.Config, archive Archiver) *Builder {
	loader := &config.Loader{Root: cfg.ConfigRoot}
	// 兜底窗口，正常路径上 resolver 会把简报自己的 filters 窗口写进每条声明
	maxAge := 48 * time.Hour
	return &Builder{
		Loader:      loader,
		OutDir:      cfg.OutDir,
		BaseURL:     cfg.BaseURL,
		MaxInFlight: cfg.MaxInFlight,
		Adapters:    fetcher.Registry(maxAge),
		Blocks:      blocks.Registry(),
		Archive:     archive,
		Now:         config.Now,
	}
}

// BuildOne 为单个用户的单份简报执行一次完整构建。
// 抓取失败只记录不致命，空结果也会产出合法制品；只有配置加载
// 和制品写盘失败才返回 error
func (b *Builder) BuildOne(userID, briefingName string) (Outcome, error) {
	start := b.Now()
	outcome := Outcome{
		User:      userID,
		Briefing:  briefingName,
		Failures:  []fetcher.Failure{},
		Timestamp: start,
	}

	briefing, err := b.Loader.LoadBriefing(userID, briefingName+".yaml")
	if err != nil {
		outcome.Status = StatusFailed
		return outcome, fmt.Errorf("load briefing %s/%s: %w", userID, briefingName, err)
	}

	decls, err := source.Resolve(briefing, b.Loader)
	if err != nil {
		outcome.Status = StatusFailed
		return outcome, fmt.Errorf("resolve sources %s/%s: %w", userID, briefingName, err)
	}

	log.Printf("Building %s/%s: %d sources, %d blocks", userID, briefingName, len(decls), len(briefing.Blocks))

	raw, blockPayloads, failures := b.fetchAll(decls, briefing.Blocks)
	outcome.Failures = failures
	outcome.Fetched = len(raw)
	outcome.Blocks = len(blockPayloads)

	items := normalize.Items(raw, start)
	rank.Score(items, briefing.Topics, start)
	items = rank.Filter(items, briefing.Filters, start)
	outcome.Filtered = len(items)
	items = rank.RankAndCap(items, briefing.Format.MaxItems)
	outcome.Ranked = len(items)

	if err := b.writeArtifacts(briefing, items, blockPayloads, start); err != nil {
		outcome.Status = StatusFailed
		outcome.ElapsedMS = b.Now().Sub(start).Milliseconds()
		return outcome, err
	}

	if b.Archive != nil {
		date := start.Format("2006-01-02")
		if err := b.Archive.SaveItems(userID, briefingName, date, items); err != nil {
			log.Printf("Archive items failed for %s/%s: %v", userID, briefingName, err)
		}
	}

	if len(failures) == 0 {
		outcome.Status = StatusOK
	} else {
		outcome.Status = StatusPartial
	}
	outcome.ElapsedMS = b.Now().Sub(start).Milliseconds()

	log.Printf("Built %s/%s: fetched=%d ranked=%d blocks=%d failures=%d elapsed=%dms",
		userID, briefingName, outcome.Fetched, outcome.Ranked, outcome.Blocks,
		len(outcome.Failures), outcome.ElapsedMS)
	return outcome, nil
}

// fetchAll 以有界并发同时抓取全部来源与挂件，单个失败互不影响
func (b *Builder) fetchAll(decls []source.Decl, blockCfgs []config.BlockConfig) ([]fetcher.RawItem, []blocks.Payload, []fetcher.Failure) {
	limit := b.MaxInFlight
	if limit <= 0 {
		limit = 8
	}
	sem := make(chan struct{}, limit)

	var mu sync.Mutex
	var raw []fetcher.RawItem
	var failures []fetcher.Failure
	payloads := make([]blocks.Payload, len(blockCfgs))
	got := make([]bool, len(blockCfgs))

	var wg sync.WaitGroup
	for _, decl := range decls {
		adapter, ok := b.Adapters[decl.Kind]
		if !ok {
			mu.Lock()
			failures = append(failures, fetcher.Failure{
				Source: decl.Name, Kind: decl.Kind,
				Reason: "no adapter registered",
			})
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(d source.Decl, a fetcher.Adapter) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			items, err := a.Fetch(d)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("Fetch %s (%s) failed: %v", d.Name, d.Kind, err)
				failures = append(failures, fetcher.Failure{
					Source: d.Name, Kind: d.Kind, Reason: err.Error(),
				})
				return
			}
			raw = append(raw, items...)
		}(decl, adapter)
	}

	for i, bc := range blockCfgs {
		bf, ok := b.Blocks[bc.Type]
		if !ok {
			mu.Lock()
			failures = append(failures, fetcher.Failure{
				Source: bc.Type, Kind: "block",
				Reason: "unknown block type",
			})
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(i int, cfg config.BlockConfig, f blocks.Fetcher) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			payload, err := f.Fetch(cfg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("Block %s failed: %v", cfg.Type, err)
				failures = append(failures, fetcher.Failure{
					Source: cfg.Type, Kind: "block", Reason: err.Error(),
				})
				return
			}
			payloads[i] = *payload
			got[i] = true
		}(i, bc, bf)
	}
	wg.Wait()

	// 挂件保持配置声明顺序，失败的跳过
	kept := make([]blocks.Payload, 0, len(blockCfgs))
	for i := range blockCfgs {
		if got[i] {
			kept = append(kept, payloads[i])
		}
	}
	return raw, kept, failures
}

// writeArtifacts 产出当日的全部静态制品并更新 index 跳转
func (b *Builder) writeArtifacts(briefing *config.Briefing, items []normalize.Item, blockPayloads []blocks.Payload, now time.Time) error {
	date := now.Format("2006-01-02")
	dir := filepath.Join(b.OutDir, briefing.User.ID, briefing.BriefingName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	html, err := render.HTML(items, blockPayloads, briefing, now)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, date+".html"), html, 0o644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}

	jsonOut, err := render.JSON(items, blockPayloads, briefing, now)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, date+".json"), jsonOut, 0o644); err != nil {
		return fmt.Errorf("write json: %w", err)
	}

	briefingURL := ""
	if b.BaseURL != "" {
		briefingURL = fmt.Sprintf("%s/%s/%s/%s.html", b.BaseURL, briefing.User.ID, briefing.BriefingName, date)
	}
	summary, err := render.Summary(items, blockPayloads, briefing, briefingURL, now)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, date+".summary.txt"), summary, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	redirect := render.IndexRedirect(date + ".html")
	if err := os.WriteFile(filepath.Join(dir, "index.html"), redirect, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// RunBatch 构建全部已发现的用户简报，随后写根索引与 build-log.json。
// 单份简报失败不会中断批次；只有用户枚举或日志写盘失败才返回 error
func (b *Builder) RunBatch() ([]Outcome, error) {
	targets, err := b.Loader.DiscoverTargets()
	if err != nil {
		return nil, fmt.Errorf("discover targets: %w", err)
	}
	if len(targets) == 0 {
		log.Println("No briefing targets found")
	}

	now := b.Now()
	outcomes := make([]Outcome, 0, len(targets))
	var indexEntries []render.RootIndexEntry
	for _, t := range targets {
		name := strings.TrimSuffix(t.File, ".yaml")
		outcome, err := b.BuildOne(t.UserID, name)
		if err != nil {
			log.Printf("Build %s/%s failed: %v", t.UserID, name, err)
		}
		outcomes = append(outcomes, outcome)
		if outcome.Status != StatusFailed {
			indexEntries = append(indexEntries, render.RootIndexEntry{
				UserID:   t.UserID,
				Briefing: name,
				Items:    outcome.Ranked,
				Blocks:   outcome.Blocks,
			})
		}
		if b.Archive != nil {
			if err := b.Archive.SaveRun(outcome); err != nil {
				log.Printf("Archive run failed for %s/%s: %v", t.UserID, name, err)
			}
		}
	}

	sort.Slice(indexEntries, func(i, j int) bool {
		if indexEntries[i].UserID != indexEntries[j].UserID {
			return indexEntries[i].UserID < indexEntries[j].UserID
		}
		return indexEntries[i].Briefing < indexEntries[j].Briefing
	})

	if err := os.MkdirAll(b.OutDir, 0o755); err != nil {
		return outcomes, fmt.Errorf("create output dir: %w", err)
	}
	rootIndex := render.RootIndex(indexEntries, now)
	if err := os.WriteFile(filepath.Join(b.OutDir, "index.html"), rootIndex, 0o644); err != nil {
		return outcomes, fmt.Errorf("write root index: %w", err)
	}

	logBytes, err := json.MarshalIndent(outcomes, "", "  ")
	if err != nil {
		return outcomes, fmt.Errorf("marshal build log: %w", err)
	}
	logBytes = append(logBytes, '\n')
	if err := os.WriteFile(filepath.Join(b.OutDir, "build-log.json"), logBytes, 0o644); err != nil {
		return outcomes, fmt.Errorf("write build log: %w", err)
	}

	log.Printf("Batch complete: %d briefings built", len(outcomes))
	return outcomes, nil
}
