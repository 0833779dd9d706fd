package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"ComicGen-server/config"

	"github.com/hibiken/asynq"
)

// Processor 消费视频任务队列，按配置并发执行
type Processor struct {
	Manager *VideoTaskManager
}

func NewProcessor(manager *VideoTaskManager) *Processor {
	return &Processor{Manager: manager}
}

func (p *Processor) Start(concurrency int) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     config.AppConfig.Redis.Addr,
			Password: config.AppConfig.Redis.Password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeVideoTask, p.HandleVideoTask)

	log.Printf("Starting Video Task Processor with concurrency %d...", concurrency)
	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("could not run task server: %v", err)
		}
	}()
}

func (p *Processor) HandleVideoTask(ctx context.Context, t *asynq.Task) error {
	var payload VideoTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	log.Printf("Processing Video Task: %s (project %s)", payload.TaskID, payload.ProjectID)
	return p.Manager.Execute(ctx, payload.ProjectID, payload.TaskID)
}
