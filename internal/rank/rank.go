package rank

import (
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mrlerner/daily-briefing/internal/config"
	"github.com/mrlerner/daily-briefing/internal/normalize"
)

// 主题优先级权重
var priorityWeights = map[string]float64{
	"high":   1.0,
	"medium": 0.6,
	"low":    0.3,
}

const (
	// 时效加成：6 小时内线性衰减，最新条目最多 +0.15。
	// 衰减曲线选了线性——够简单，且保证"越新分越高"的单调性
	maxRecencyBoost = 0.15
	recencyWindow   = 6 * time.Hour

	// 社区热度加成：HN/Reddit 的投票已经做了一层人工筛选
	engagementBoost  = 0.1
	engagementLevel1 = 100
	engagementLevel2 = 500

	scoreCeiling = 2.0
)

// Score 按用户主题给每个条目打相关性分，就地写入 Relevance / TopicsMatched。
// 基础分取命中主题的最高权重；零命中记 0 分
func Score(items []normalize.Item, topics []config.Topic, now time.Time) {
	for i := range items {
		text := strings.ToLower(items[i].Title + " " + items[i].Summary)

		var matched []string
		base := 0.0
		for _, topic := range topics {
			if !anyKeyword(text, topic.Keywords) {
				continue
			}
			matched = append(matched, topic.Name)
			w := priorityWeights[topic.Priority]
			if w == 0 {
				w = priorityWeights["medium"]
			}
			if w > base {
				base = w
			}
		}

		score := base

		// 未来时间戳（源时钟不准）不给时效加成，避免负年龄刷分
		age := now.Sub(items[i].Published)
		if age >= 0 && age < recencyWindow {
			score += maxRecencyBoost * (1 - float64(age)/float64(recencyWindow))
		}

		if items[i].Points > engagementLevel1 {
			score += engagementBoost
		}
		if items[i].Points > engagementLevel2 {
			score += engagementBoost
		}

		if score > scoreCeiling {
			score = scoreCeiling
		}
		// 保留三位小数，保证序列化后的输出逐字节可复现
		items[i].Relevance = math.Round(score*1000) / 1000
		if matched == nil {
			matched = []string{}
		}
		items[i].TopicsMatched = matched
	}
}

// Filter 依次套用年龄过滤、排除词否决和相关性阈值。
// 排除词是绝对否决，分再高也丢
func Filter(items []normalize.Item, filters config.Filters, now time.Time) []normalize.Item {
	cutoff := now.Add(-time.Duration(filters.MaxAgeHours) * time.Hour)

	excludes := make([]string, 0, len(filters.ExcludeKeywords))
	for _, kw := range filters.ExcludeKeywords {
		excludes = append(excludes, strings.ToLower(kw))
	}

	result := make([]normalize.Item, 0, len(items))
	for _, item := range items {
		if item.Published.Before(cutoff) {
			continue
		}

		text := strings.ToLower(item.Title + " " + item.Summary)
		if containsAny(text, excludes) {
			continue
		}

		if item.Relevance < filters.MinRelevance {
			continue
		}

		result = append(result, item)
	}

	if dropped := len(items) - len(result); dropped > 0 {
		log.Printf("rank: filtered out %d items (excluded/old/low-relevance)", dropped)
	}
	return result
}

// RankAndCap 排序并截断到 maxItems，同时保证源类型多样性：
// 每个有幸存条目的类型先各占一个名额，剩余名额按全局分数高低补齐。
// 多平台都有高分内容时，单一平台刷不满整个列表
func RankAndCap(items []normalize.Item, maxItems int) []normalize.Item {
	if maxItems <= 0 || len(items) == 0 {
		return []normalize.Item{}
	}

	sorted := make([]normalize.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return lessRanked(sorted[i], sorted[j]) })

	if len(sorted) <= maxItems {
		return sorted
	}

	// 按类型分组；类型顺序 = 该类型最高分条目在全局排序中的位置，保证确定性
	var kindOrder []string
	byKind := make(map[string][]normalize.Item)
	for _, item := range sorted {
		if _, ok := byKind[item.Kind]; !ok {
			kindOrder = append(kindOrder, item.Kind)
		}
		byKind[item.Kind] = append(byKind[item.Kind], item)
	}

	picked := make([]normalize.Item, 0, maxItems)
	pickedIDs := make(map[string]struct{}, maxItems)

	// 第一轮：每个类型出它的最高分条目
	for _, kind := range kindOrder {
		if len(picked) >= maxItems {
			break
		}
		top := byKind[kind][0]
		picked = append(picked, top)
		pickedIDs[top.ID] = struct{}{}
	}

	// 其余名额按全局顺序补齐
	for _, item := range sorted {
		if len(picked) >= maxItems {
			break
		}
		if _, ok := pickedIDs[item.ID]; ok {
			continue
		}
		picked = append(picked, item)
		pickedIDs[item.ID] = struct{}{}
	}

	// 最终展示顺序仍按分数排，第一轮保底只影响入选不影响排序
	sort.SliceStable(picked, func(i, j int) bool { return lessRanked(picked[i], picked[j]) })

	counts := make([]string, 0, len(kindOrder))
	for _, kind := range kindOrder {
		counts = append(counts, kind+"="+strconv.Itoa(len(byKind[kind])))
	}
	log.Printf("rank: final %d items (%s)", len(picked), strings.Join(counts, ", "))
	return picked
}

// lessRanked 定义展示顺序：分数降序，平分时更新的在前，再按源名、ID 兜底，
// 确保同一份输入反复排序逐字节一致
func lessRanked(a, b normalize.Item) bool {
	if a.Relevance != b.Relevance {
		return a.Relevance > b.Relevance
	}
	if !a.Published.Equal(b.Published) {
		return a.Published.After(b.Published)
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return a.ID < b.ID
}

func anyKeyword(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
