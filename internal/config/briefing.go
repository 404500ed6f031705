package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultMaxAgeHours  = 48
	defaultMaxItems     = 15
	defaultSummaryItems = 4
)

// ConfigError 表示简报配置本身的问题：对该用户致命，对整批构建不致命
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// SourceEntry 既用于 catalog 里的条目，也用于用户行内 sources；
// Type 只有行内条目需要填（catalog 按分组区分类型）
type SourceEntry struct {
	Name      string            `yaml:"name"`
	Type      string            `yaml:"type"`
	URL       string            `yaml:"url"`
	Section   string            `yaml:"section"`
	Params    map[string]string `yaml:"params"`
	Fields    map[string]string `yaml:"fields"`
	Selectors map[string]string `yaml:"selectors"`
}

// Catalog 是按平台分组的共享源目录，随仓库配置维护，运行期只读
type Catalog struct {
	Catalog     string        `yaml:"catalog"`
	Description string        `yaml:"description"`
	Version     int           `yaml:"version"`
	Feeds       []SourceEntry `yaml:"rss"`
	APIs        []SourceEntry `yaml:"api"`
	Scrapes     []SourceEntry `yaml:"scrape"`
	HN          HNCatalog     `yaml:"hn"`
	Reddit      RedditCatalog `yaml:"reddit"`
}

type HNCatalog struct {
	Queries []string `yaml:"queries"`
}

type RedditCatalog struct {
	Subreddits       []string `yaml:"subreddits"`
	Keywords         []string `yaml:"keywords"`
	SearchQueries    []string `yaml:"search_queries"`
	SearchSubreddits []string `yaml:"search_subreddits"`
}

type UserInfo struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Topic struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Priority string   `yaml:"priority"`
}

type Filters struct {
	ExcludeKeywords []string `yaml:"exclude_keywords"`
	MaxAgeHours     int      `yaml:"max_age_hours"`
	MinRelevance    float64  `yaml:"min_relevance"`
}

type Format struct {
	Title        string `yaml:"title"`
	MaxItems     int    `yaml:"max_items"`
	SummaryItems int    `yaml:"summary_items"`
}

// BlockConfig 各 block 类型共用一个配置结构，不相关字段留空即可
type BlockConfig struct {
	Type      string   `yaml:"type"`
	Label     string   `yaml:"label"`
	Location  string   `yaml:"location"`
	Days      int      `yaml:"days"`
	Highlight string   `yaml:"highlight"`
	Currency  string   `yaml:"currency"`
	League    string   `yaml:"league"`
	Teams     []string `yaml:"teams"`
}

// Briefing 是一份解析完成的用户简报订阅（extends 已合并、默认值已补齐）。
// 构建期间视为只读
type Briefing struct {
	Version     int            `yaml:"version"`
	Name        string         `yaml:"name"`
	Extends     string         `yaml:"extends"`
	User        UserInfo       `yaml:"user"`
	Topics      []Topic        `yaml:"topics"`
	SourcesFrom string         `yaml:"sources_from"`
	Sources     []SourceEntry  `yaml:"sources"`
	Filters     Filters        `yaml:"filters"`
	Format      Format         `yaml:"format"`
	Blocks      []BlockConfig  `yaml:"blocks"`
	Delivery    map[string]any `yaml:"delivery"`

	// 运行期填充，不来自 YAML
	BriefingName string `yaml:"-"`
	DisplayName  string `yaml:"-"`
}

// Validate 做核心需要的防御性检查；schema 级校验由外部配置层负责
func (b *Briefing) Validate() error {
	if b.SourcesFrom == "" && len(b.Sources) == 0 && len(b.Blocks) == 0 {
		return &ConfigError{Field: "sources", Reason: "briefing declares no catalog, no inline sources and no blocks"}
	}
	for _, t := range b.Topics {
		switch t.Priority {
		case "", "high", "medium", "low":
		default:
			return &ConfigError{Field: "topics." + t.Name + ".priority", Reason: fmt.Sprintf("unknown priority %q", t.Priority)}
		}
	}
	for _, s := range b.Sources {
		if s.Type == "" || s.URL == "" {
			return &ConfigError{Field: "sources." + s.Name, Reason: "inline source needs type and url"}
		}
	}
	return nil
}

// Target 标识一次单用户构建：users/<UserID>/<File>
type Target struct {
	UserID string
	File   string
}

// Loader 从 ConfigRoot 读取 users/ briefings/ sources/ 三类 YAML
type Loader struct {
	Root string
}

func NewLoader(root string) *Loader {
	return &Loader{Root: root}
}

// LoadBriefing 读取用户订阅文件，解析 extends 继承并补齐默认值。
// extends 是一次性拷贝合并：合并后的 Briefing 与共享定义再无关联
func (l *Loader) LoadBriefing(userID, file string) (*Briefing, error) {
	path := filepath.Join(l.Root, "users", userID, file)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "briefing", Reason: fmt.Sprintf("cannot read %s: %v", path, err)}
	}

	var userDoc map[string]any
	if err := yaml.Unmarshal(raw, &userDoc); err != nil {
		return nil, &ConfigError{Field: "briefing", Reason: fmt.Sprintf("invalid yaml in %s: %v", path, err)}
	}
	if userDoc == nil {
		userDoc = map[string]any{}
	}

	doc := userDoc
	if extends, ok := userDoc["extends"].(string); ok && extends != "" {
		base, err := l.loadBriefingDefinition(extends)
		if err != nil {
			return nil, err
		}
		doc = mergeDocs(base, userDoc)
	}

	// map 合并后再反序列化成结构体，拿到和直接解析一致的类型
	merged, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("remarshal briefing: %w", err)
	}
	var b Briefing
	if err := yaml.Unmarshal(merged, &b); err != nil {
		return nil, &ConfigError{Field: "briefing", Reason: fmt.Sprintf("invalid briefing structure: %v", err)}
	}

	b.applyDefaults(userID, file)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadCatalog 读取 sources/<name>.yaml；整批构建期间可被多个用户共享（只读）
func (l *Loader) LoadCatalog(name string) (*Catalog, error) {
	path := filepath.Join(l.Root, "sources", name+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "sources_from", Reason: fmt.Sprintf("source catalog %q not found: %v", name, err)}
	}
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, &ConfigError{Field: "sources_from", Reason: fmt.Sprintf("malformed catalog %q: %v", name, err)}
	}
	if c.Catalog == "" {
		c.Catalog = name
	}
	return &c, nil
}

func (l *Loader) loadBriefingDefinition(name string) (map[string]any, error) {
	path := filepath.Join(l.Root, "briefings", name+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "extends", Reason: fmt.Sprintf("briefing definition %q not found: %v", name, err)}
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &ConfigError{Field: "extends", Reason: fmt.Sprintf("malformed briefing definition %q: %v", name, err)}
	}
	return doc, nil
}

// DiscoverTargets 扫描 users/ 目录下的全部订阅文件；按目录名、文件名排序保证批次顺序稳定。
// 下划线开头的目录（如 _cohorts 模板）跳过
func (l *Loader) DiscoverTargets() ([]Target, error) {
	usersDir := filepath.Join(l.Root, "users")
	entries, err := os.ReadDir(usersDir)
	if err != nil {
		return nil, fmt.Errorf("enumerate users in %s: %w", usersDir, err)
	}

	var targets []Target
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(usersDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("enumerate briefings for %s: %w", e.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".yaml") {
				continue
			}
			targets = append(targets, Target{UserID: e.Name(), File: f.Name()})
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].UserID != targets[j].UserID {
			return targets[i].UserID < targets[j].UserID
		}
		return targets[i].File < targets[j].File
	})
	return targets, nil
}

// mergeDocs 把用户覆盖项浅合并到共享定义之上；extends 键本身被消费掉
func mergeDocs(base, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		if k == "extends" {
			continue
		}
		merged[k] = v
	}
	return merged
}

func (b *Briefing) applyDefaults(userID, file string) {
	if b.Version == 0 {
		b.Version = 1
	}
	if b.User.ID == "" {
		b.User.ID = userID
	}
	if b.User.Name == "" {
		b.User.Name = titleCase(userID)
	}
	if b.Filters.MaxAgeHours == 0 {
		b.Filters.MaxAgeHours = defaultMaxAgeHours
	}
	if b.Format.MaxItems == 0 {
		b.Format.MaxItems = defaultMaxItems
	}
	if b.Format.SummaryItems == 0 {
		b.Format.SummaryItems = defaultSummaryItems
	}
	for i := range b.Topics {
		if b.Topics[i].Priority == "" {
			b.Topics[i].Priority = "medium"
		}
	}

	b.BriefingName = strings.TrimSuffix(file, ".yaml")
	switch {
	case b.Format.Title != "":
		b.DisplayName = b.Format.Title
	case b.Name != "":
		b.DisplayName = b.Name
	default:
		b.DisplayName = titleCase(strings.ReplaceAll(b.BriefingName, "-", " "))
	}
}

// titleCase 首字母大写，仅用于展示名兜底，不处理 Unicode 标题规则
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
