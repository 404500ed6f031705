package scheduler

import (
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlerner/daily-briefing/internal/builder"
)

type Scheduler struct {
	cron    *cron.Cron
	builder *builder.Builder

	mu      sync.Mutex
	running bool
}

func New(spec string, b *builder.Builder) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:    c,
		builder: b,
	}

	_, err := c.AddFunc(spec, s.runOnce)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	// 延迟执行首轮构建，避免与服务启动时的首批请求争抢资源
	const startupDelay = 15 * time.Second
	time.AfterFunc(startupDelay, func() {
		go s.runOnce()
	})
}

// RunOnce 对外暴露的单次执行入口，方便手动触发构建
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

func (s *Scheduler) runOnce() {
	// 上一轮还没跑完就跳过本轮，防止慢源导致的构建堆积
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Println("build job still running, skip this round")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log.Println("start build job...")

	outcomes, err := s.builder.RunBatch()
	if err != nil {
		log.Printf("build job error: %v", err)
		return
	}

	failed := 0
	for _, o := range outcomes {
		if o.Status == builder.StatusFailed {
			failed++
		}
	}
	log.Printf("build job done: %d briefings, %d failed", len(outcomes), failed)
}
