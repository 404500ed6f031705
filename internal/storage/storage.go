package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mrlerner/daily-briefing/internal/builder"
	"github.com/mrlerner/daily-briefing/internal/normalize"
)

// Item 是入选简报的条目归档，读接口按 用户/简报/日期 查询
type Item struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Fingerprint string `gorm:"size:16;uniqueIndex:idx_item_run" json:"fingerprint"`
	UserID      string `gorm:"size:64;uniqueIndex:idx_item_run;index" json:"user"`
	Briefing    string `gorm:"size:64;uniqueIndex:idx_item_run" json:"briefing"`
	Date        string `gorm:"size:10;uniqueIndex:idx_item_run;index" json:"date"`

	Title   string `gorm:"size:512" json:"title"`
	URL     string `gorm:"size:1024" json:"url"`
	Source  string `gorm:"size:64;index" json:"source"`
	Kind    string `gorm:"size:16" json:"kind"`
	Section string `gorm:"size:64" json:"section"`
	// 摘要按 rune 截断，防止异常长文本导致入库失败
	Summary   string            `gorm:"size:600" json:"summary"`
	Points    int               `json:"points"`
	Comments  int               `json:"comments"`
	Published time.Time         `gorm:"index" json:"published"`
	Relevance float64           `gorm:"index" json:"relevance_score"`
	Topics    datatypes.JSON    `gorm:"type:jsonb" json:"topics_matched"`
	Extra     datatypes.JSONMap `gorm:"type:jsonb" json:"extra"`

	CreatedAt time.Time `json:"createdAt"`
}

// RunRecord 是一次构建的结果归档
type RunRecord struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	UserID   string `gorm:"size:64;index" json:"user"`
	Briefing string `gorm:"size:64;index" json:"briefing"`
	Date     string `gorm:"size:10;index" json:"date"`
	Status   string `gorm:"size:16" json:"status"`

	Fetched   int            `json:"fetched"`
	Filtered  int            `json:"filtered"`
	Ranked    int            `json:"ranked"`
	Blocks    int            `json:"blocks"`
	Failures  datatypes.JSON `gorm:"type:jsonb" json:"failures"`
	ElapsedMS int64          `json:"elapsed_ms"`

	CreatedAt time.Time `json:"createdAt"`
}

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewStore(dsn, redisAddr string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Item{}, &RunRecord{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("warn: redis ping failed: %v", err)
	}

	return &Store{DB: db, Redis: rdb}, nil
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

// truncateRunesDB 按 rune 数截断字符串，确保不会超过数据库字段长度
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

// SaveItems 归档一期简报的入选条目，同一期重复写入时按指纹幂等
func (s *Store) SaveItems(userID, briefing, date string, items []normalize.Item) error {
	for _, it := range items {
		topics, err := json.Marshal(it.TopicsMatched)
		if err != nil {
			topics = []byte("[]")
		}
		rec := &Item{
			Fingerprint: it.ID,
			UserID:      userID,
			Briefing:    briefing,
			Date:        date,
			Title:       toValidUTF8(it.Title),
			URL:         it.URL,
			Source:      it.Source,
			Kind:        it.Kind,
			Section:     it.Section,
			Summary:     truncateRunesDB(toValidUTF8(it.Summary), 600),
			Points:      it.Points,
			Comments:    it.Comments,
			Published:   it.Published,
			Relevance:   it.Relevance,
			Topics:      datatypes.JSON(topics),
			Extra:       datatypes.JSONMap(it.Extra),
		}

		// 以 (指纹, 用户, 简报, 日期) 作为幂等键，避免重跑时重复插入
		err = s.DB.Where("fingerprint = ? AND user_id = ? AND briefing = ? AND date = ?",
			it.ID, userID, briefing, date).FirstOrCreate(rec).Error
		if err != nil {
			return err
		}
	}

	// 不做按 key 通配删除，依赖短 TTL 的缓存自然过期
	return nil
}

// SaveRun 归档一次构建结果
func (s *Store) SaveRun(o builder.Outcome) error {
	failures, err := json.Marshal(o.Failures)
	if err != nil {
		failures = []byte("[]")
	}
	rec := &RunRecord{
		UserID:    o.User,
		Briefing:  o.Briefing,
		Date:      o.Timestamp.Format("2006-01-02"),
		Status:    o.Status,
		Fetched:   o.Fetched,
		Filtered:  o.Filtered,
		Ranked:    o.Ranked,
		Blocks:    o.Blocks,
		Failures:  datatypes.JSON(failures),
		ElapsedMS: o.ElapsedMS,
	}
	return s.DB.Create(rec).Error
}

const listCacheTTL = 5 * time.Minute

// ListItems 按用户、简报与可选日期返回归档条目，使用 Redis 做简单缓存
func (s *Store) ListItems(userID, briefing, date string, limit int) ([]Item, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	ctx := context.Background()
	cacheKey := fmt.Sprintf("briefing:items:%s:%s:%s:%d", userID, briefing, date, limit)

	// L2: Redis 缓存
	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []Item
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	// DB 兜底
	var list []Item
	db := s.DB.Model(&Item{})
	if userID != "" {
		db = db.Where("user_id = ?", userID)
	}
	if briefing != "" {
		db = db.Where("briefing = ?", briefing)
	}
	if date != "" {
		db = db.Where("date = ?", date)
	}
	err := db.Order("date DESC").Order("relevance DESC").Order("published DESC").
		Limit(limit).Find(&list).Error
	if err != nil {
		return nil, err
	}

	// 回写缓存，减轻每天首次打开时的 DB 压力
	if s.Redis != nil && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			_ = s.Redis.Set(ctx, cacheKey, bs, listCacheTTL).Err()
		}
	}

	return list, nil
}

// ListRuns 返回最近的构建记录（倒序）
func (s *Store) ListRuns(userID string, limit int) ([]RunRecord, error) {
	if limit <= 0 || limit > 365 {
		limit = 30
	}
	var list []RunRecord
	db := s.DB.Model(&RunRecord{})
	if userID != "" {
		db = db.Where("user_id = ?", userID)
	}
	if err := db.Order("created_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ListDates 返回有归档数据的日期列表（倒序），结果缓存 5 分钟
func (s *Store) ListDates(userID, briefing string, limit int) ([]string, error) {
	if limit <= 0 || limit > 365 {
		limit = 31
	}
	ctx := context.Background()
	cacheKey := fmt.Sprintf("briefing:dates:%s:%s:%d", userID, briefing, limit)
	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []string
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	db := s.DB.Model(&Item{}).Distinct("date")
	if userID != "" {
		db = db.Where("user_id = ?", userID)
	}
	if briefing != "" {
		db = db.Where("briefing = ?", briefing)
	}

	var dates []string
	if err := db.Order("date DESC").Limit(limit).Pluck("date", &dates).Error; err != nil {
		return nil, err
	}

	if s.Redis != nil && len(dates) > 0 {
		if bs, err := json.Marshal(dates); err == nil {
			_ = s.Redis.Set(ctx, cacheKey, bs, listCacheTTL).Err()
		}
	}
	return dates, nil
}
