package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"sync"
	"time"

	"ComicGen-server/models"

	"github.com/google/uuid"
)

// 执行中任务的取消注册表（taskID -> cancelFunc）
var taskCancelRegistry = struct {
	sync.Mutex
	m map[string]context.CancelFunc
}{
	m: make(map[string]context.CancelFunc),
}

func registerTaskCancel(taskID string, cancel context.CancelFunc) {
	taskCancelRegistry.Lock()
	defer taskCancelRegistry.Unlock()
	taskCancelRegistry.m[taskID] = cancel
}

func unregisterTaskCancel(taskID string) {
	taskCancelRegistry.Lock()
	defer taskCancelRegistry.Unlock()
	delete(taskCancelRegistry.m, taskID)
}

func cancelRunningTask(taskID string) bool {
	taskCancelRegistry.Lock()
	defer taskCancelRegistry.Unlock()
	if cancel, ok := taskCancelRegistry.m[taskID]; ok {
		cancel()
		delete(taskCancelRegistry.m, taskID)
		return true
	}
	return false
}

// VideoTaskManager 帧级视频生成任务：批量创建、后台执行、变体选择。
type VideoTaskManager struct {
	Videos   GenerationService
	Locator  *Locator
	Store    ProjectStore
	Enqueue  func(projectID, taskID string) error // 默认 EnqueueVideoTask，测试可替换
	MaxBatch int                                  // 单次批量上限，0 不限制
}

// VideoTaskRequest 一次提交。BatchSize=N 产生 N 个独立任务。
type VideoTaskRequest struct {
	FrameID        string
	ImageURL       string
	Prompt         string
	NegativePrompt string
	Duration       int
	Seed           int64
	Resolution     string
	Model          string
	GenerateAudio  bool
	AudioURL       string
	PromptExtend   bool
	BatchSize      int
}

// CreateTasks 创建并入队 batch 个任务，立即返回（执行在后台）。
// 目标帧锁定时整批拒绝，且不触发任何后端调用。
func (m *VideoTaskManager) CreateTasks(projectID string, req VideoTaskRequest) ([]models.VideoTask, error) {
	if req.BatchSize <= 0 {
		req.BatchSize = 1
	}
	if m.MaxBatch > 0 && req.BatchSize > m.MaxBatch {
		req.BatchSize = m.MaxBatch
	}
	if req.Duration <= 0 {
		req.Duration = 5
	}
	if req.Resolution == "" {
		req.Resolution = "720p"
	}
	if req.Model == "" {
		req.Model = "wan2.5-i2v-preview"
	}

	var created []models.VideoTask
	_, err := m.Store.Update(projectID, func(p *models.Project) error {
		if req.FrameID != "" {
			frame := p.FindFrame(req.FrameID)
			if frame == nil {
				return fmt.Errorf("%w: frame %s", models.ErrNotFound, req.FrameID)
			}
			if frame.Locked {
				return fmt.Errorf("%w: frame %s", models.ErrLocked, req.FrameID)
			}
		}
		now := time.Now()
		for i := 0; i < req.BatchSize; i++ {
			task := models.VideoTask{
				ID:             uuid.NewString(),
				FrameID:        req.FrameID,
				ImageURL:       req.ImageURL,
				Prompt:         req.Prompt,
				NegativePrompt: req.NegativePrompt,
				Duration:       req.Duration,
				Seed:           req.Seed,
				Resolution:     req.Resolution,
				Model:          req.Model,
				GenerateAudio:  req.GenerateAudio,
				AudioURL:       req.AudioURL,
				PromptExtend:   req.PromptExtend,
				Status:         models.StatusPending,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			p.VideoTasks = append(p.VideoTasks, task)
			created = append(created, task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, task := range created {
		if err := m.Enqueue(projectID, task.ID); err != nil {
			log.Printf("视频任务 %s 入队失败: %v", task.ID, err)
			m.failTask(projectID, task.ID, fmt.Sprintf("enqueue failed: %v", err))
		}
	}
	return created, nil
}

// Execute 后台执行一个任务。生成调用不持有项目锁，
// 只有状态写入走 Store.Update；任何失败路径都落终态，结果不会静默丢失。
func (m *VideoTaskManager) Execute(ctx context.Context, projectID, taskID string) error {
	var source string
	_, err := m.Store.Update(projectID, func(p *models.Project) error {
		task := p.FindVideoTask(taskID)
		if task == nil {
			return fmt.Errorf("%w: video task %s", models.ErrNotFound, taskID)
		}
		if task.Status != models.StatusPending {
			// 同一任务不会被执行两次
			return fmt.Errorf("task %s already %s", taskID, task.Status)
		}
		task.Status = models.StatusProcessing
		task.UpdatedAt = time.Now()
		source = task.ImageURL
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		log.Printf("视频任务 %s 跳过执行: %v", taskID, err)
		return nil
	}

	execCtx, cancel := context.WithCancel(ctx)
	registerTaskCancel(taskID, cancel)
	defer unregisterTaskCancel(taskID)

	return m.run(execCtx, projectID, taskID, source)
}

func (m *VideoTaskManager) run(ctx context.Context, projectID, taskID, source string) error {
	if m.Videos == nil {
		m.failTask(projectID, taskID, "video worker not configured")
		return nil
	}
	// 源图要么本身是 URL，要么先上传换成后端可达的 URL
	imageURL, err := m.Locator.PublishRef(ctx, source)
	if err != nil {
		m.failTask(projectID, taskID, fmt.Sprintf("source image unavailable: %v", err))
		return nil
	}

	task, err := m.taskSnapshot(projectID, taskID)
	if err != nil {
		return err
	}

	rel := fmt.Sprintf("video/%s.mp4", taskID)
	params := map[string]interface{}{
		"img_url":        imageURL,
		"duration":       task.Duration,
		"resolution":     task.Resolution,
		"model":          task.Model,
		"prompt_extend":  task.PromptExtend,
		"generate_audio": task.GenerateAudio,
	}
	if task.Seed != 0 {
		params["seed"] = task.Seed
	}
	if task.AudioURL != "" {
		if audioURL, err := m.Locator.PublishRef(ctx, task.AudioURL); err == nil {
			params["audio_url"] = audioURL
		}
	}

	if _, _, err := m.Videos.Generate(ctx, GenerateRequest{
		Prompt:         task.Prompt,
		NegativePrompt: task.NegativePrompt,
		OutputPath:     m.Locator.LocalPath(rel),
		Params:         params,
	}); err != nil {
		m.failTask(projectID, taskID, err.Error())
		return nil
	}

	// 上传到对象存储时持久化的是 key，不是签名 URL
	resultRef := rel
	if key, ok := m.Locator.ResolveForUpload(ctx, m.Locator.LocalPath(rel), "video", path.Base(rel)); ok {
		resultRef = key
	}

	_, err = m.Store.Update(projectID, func(p *models.Project) error {
		t := p.FindVideoTask(taskID)
		if t == nil {
			return fmt.Errorf("%w: video task %s", models.ErrNotFound, taskID)
		}
		t.VideoURL = resultRef
		t.Status = models.StatusCompleted
		t.Error = ""
		t.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		log.Printf("视频任务 %s 结果落库失败: %v", taskID, err)
		return err
	}
	log.Printf("视频任务 %s 完成: %s", taskID, resultRef)
	return nil
}

func (m *VideoTaskManager) taskSnapshot(projectID, taskID string) (*models.VideoTask, error) {
	p, err := m.Store.Get(projectID)
	if err != nil {
		return nil, err
	}
	task := p.FindVideoTask(taskID)
	if task == nil {
		return nil, fmt.Errorf("%w: video task %s", models.ErrNotFound, taskID)
	}
	snapshot := *task
	return &snapshot, nil
}

// failTask 把任务落到 failed 终态；不写产物
func (m *VideoTaskManager) failTask(projectID, taskID, msg string) {
	_, err := m.Store.Update(projectID, func(p *models.Project) error {
		task := p.FindVideoTask(taskID)
		if task == nil {
			return fmt.Errorf("%w: video task %s", models.ErrNotFound, taskID)
		}
		task.Status = models.StatusFailed
		task.Error = msg
		task.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		log.Printf("视频任务 %s 失败状态落库失败: %v", taskID, err)
	}
}

// Cancel 取消任务：执行中的通过 cancelFunc 中断（随后由执行协程落 failed），
// 还在排队的直接落 failed。
func (m *VideoTaskManager) Cancel(projectID, taskID string) error {
	if cancelRunningTask(taskID) {
		log.Printf("视频任务 %s 已发出取消信号", taskID)
		return nil
	}
	_, err := m.Store.Update(projectID, func(p *models.Project) error {
		task := p.FindVideoTask(taskID)
		if task == nil {
			return fmt.Errorf("%w: video task %s", models.ErrNotFound, taskID)
		}
		if task.Status == models.StatusCompleted || task.Status == models.StatusFailed {
			return fmt.Errorf("task %s already %s", taskID, task.Status)
		}
		task.Status = models.StatusFailed
		task.Error = "cancelled"
		task.UpdatedAt = time.Now()
		return nil
	})
	return err
}

// SelectVideo 选定帧的视频变体。候选必须属于该帧且已完成，
// 否则 ErrNotFound 且不改动当前选择。
func (m *VideoTaskManager) SelectVideo(projectID, frameID, videoID string) (*models.Project, error) {
	return m.Store.Update(projectID, func(p *models.Project) error {
		frame := p.FindFrame(frameID)
		if frame == nil {
			return fmt.Errorf("%w: frame %s", models.ErrNotFound, frameID)
		}
		task := p.FindVideoTask(videoID)
		if task == nil || task.FrameID != frameID {
			return fmt.Errorf("%w: video %s is not a variant of frame %s", models.ErrNotFound, videoID, frameID)
		}
		if task.Status != models.StatusCompleted {
			return fmt.Errorf("%w: video %s is %s, not completed", models.ErrNotFound, videoID, task.Status)
		}
		frame.SelectedVideoID = videoID
		frame.VideoURL = task.VideoURL
		frame.UpdatedAt = time.Now()
		return nil
	})
}
