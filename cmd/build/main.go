package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/mrlerner/daily-briefing/internal/builder"
	"github.com/mrlerner/daily-briefing/internal/config"
	"github.com/mrlerner/daily-briefing/internal/storage"
)

func main() {
	var (
		userID   = flag.String("user", "", "build only this user (default: all discovered users)")
		briefing = flag.String("briefing", "", "build only this briefing (requires -user)")
	)
	flag.Parse()

	cfg := config.Load()

	// 归档存储可选：没配 DSN 就只产出静态文件
	var archive builder.Archiver
	if cfg.PostgresDSN != "" {
		store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
		if err != nil {
			log.Fatalf("init store failed: %v", err)
		}
		archive = store
	}

	b := builder.New(cfg, archive)

	if *userID != "" {
		buildUser(b, archive, *userID, *briefing)
		return
	}
	if *briefing != "" {
		log.Fatal("-briefing requires -user")
	}

	outcomes, err := b.RunBatch()
	if err != nil {
		log.Fatalf("batch failed: %v", err)
	}

	failed := 0
	for _, o := range outcomes {
		if o.Status == builder.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		log.Printf("%d briefing(s) failed", failed)
		os.Exit(1)
	}
}

// buildUser 构建单个用户：指定了 -briefing 只构建那一份，否则构建该用户全部简报
func buildUser(b *builder.Builder, archive builder.Archiver, userID, briefing string) {
	var names []string
	if briefing != "" {
		names = []string{briefing}
	} else {
		targets, err := b.Loader.DiscoverTargets()
		if err != nil {
			log.Fatalf("discover targets failed: %v", err)
		}
		for _, t := range targets {
			if t.UserID == userID {
				names = append(names, strings.TrimSuffix(t.File, ".yaml"))
			}
		}
		if len(names) == 0 {
			log.Fatalf("no briefings found for user %s", userID)
		}
	}

	failed := 0
	for _, name := range names {
		outcome, err := b.BuildOne(userID, name)
		if err != nil {
			log.Printf("build %s/%s failed: %v", userID, name, err)
		}
		if archive != nil {
			if err := archive.SaveRun(outcome); err != nil {
				log.Printf("archive run failed: %v", err)
			}
		}
		if outcome.Status == builder.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}
