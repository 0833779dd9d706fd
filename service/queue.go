package service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ComicGen-server/config"

	"github.com/hibiken/asynq"
)

const (
	TypeVideoTask = "video_task:execute"
)

type VideoTaskPayload struct {
	ProjectID string `json:"project_id"`
	TaskID    string `json:"task_id"`
}

var QueueClient *asynq.Client

func InitQueue() {
	QueueClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.Redis.Addr,
		Password: config.AppConfig.Redis.Password,
	})
}

// EnqueueVideoTask 视频任务入队。每个任务 id 只入队一次；
// 不做队列级重试——后端失败直接落任务终态，重试必须来自显式的新请求。
func EnqueueVideoTask(projectID, taskID string) error {
	payload, err := json.Marshal(VideoTaskPayload{ProjectID: projectID, TaskID: taskID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(TypeVideoTask, payload,
		asynq.MaxRetry(0),
		asynq.Timeout(35*time.Minute), // 视频生成较慢
		asynq.Retention(24*time.Hour), // 任务结果在 Redis 保留时间
	)

	info, err := QueueClient.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}

	log.Printf("[Queue] Video Task Enqueued: TaskID=%s, QueueID=%s", taskID, info.ID)
	return nil
}
