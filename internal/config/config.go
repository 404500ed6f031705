package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string

	// ConfigRoot 下包含 users/ sources/ briefings/ 三个目录
	ConfigRoot string
	OutDir     string

	// BaseURL 是静态制品部署后的访问前缀，用于摘要里的回链
	BaseURL string

	// PostgresDSN 为空时不启用归档存储，只产出静态文件
	PostgresDSN string
	RedisAddr   string

	CronSpec    string
	MaxInFlight int

	BasicAuthUser string
	BasicAuthPass string
}

func Load() *Config {
	// .env 存在时自动加载，便于本地开发；线上直接用环境变量
	_ = godotenv.Load()

	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "9000"),
		ConfigRoot:    getEnv("BRIEFING_CONFIG_ROOT", "."),
		OutDir:        getEnv("BRIEFING_OUT_DIR", "out"),
		BaseURL:       getEnv("BRIEFING_BASE_URL", ""),
		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6380"),
		CronSpec:      getEnv("CRON_SPEC", "0 6 * * *"),
		MaxInFlight:   getEnvInt("MAX_INFLIGHT_FETCHES", 8),
		BasicAuthUser: getEnv("APP_BASIC_USER", ""),
		BasicAuthPass: getEnv("APP_BASIC_PASS", ""),
	}

	log.Printf("config loaded: root=%s out=%s cron=%s", cfg.ConfigRoot, cfg.OutDir, cfg.CronSpec)
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

// Now returns current time, 方便后续做可测试封装
func Now() time.Time {
	return time.Now()
}
