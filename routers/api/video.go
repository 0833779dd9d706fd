package api

import (
	"net/http"
	"time"

	"ComicGen-server/models"
	"ComicGen-server/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// 为分镜创建一批视频生成任务并入队
func CreateVideoTasks(c *gin.Context) {
	var req struct {
		FrameID        string `json:"frame_id"`
		ImageURL       string `json:"image_url"`
		Prompt         string `json:"prompt"`
		NegativePrompt string `json:"negative_prompt"`
		Duration       int    `json:"duration"`
		Seed           int64  `json:"seed"`
		Resolution     string `json:"resolution"`
		Model          string `json:"model"`
		GenerateAudio  bool   `json:"generate_audio"`
		AudioURL       string `json:"audio_url"`
		PromptExtend   bool   `json:"prompt_extend"`
		BatchSize      int    `json:"batch_size"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// frame_id 可空：不挂帧的任务用于独立素材生成（图生视频）
	tasks, err := Pipe.Video.CreateTasks(c.Param("project_id"), service.VideoTaskRequest{
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
		BatchSize:      req.BatchSize,
	})
	if err != nil {
		fail(c, err)
		return
	}

	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	c.JSON(http.StatusOK, gin.H{"task_ids": ids, "tasks": tasks})
}

// 查询单个视频任务状态
func GetVideoTask(c *gin.Context) {
	project, err := Pipe.GetProject(c.Param("project_id"))
	if err != nil {
		fail(c, err)
		return
	}
	task := project.FindVideoTask(c.Param("task_id"))
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务未找到"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

// 取消视频任务：运行中的中断生成，排队中的直接置失败
func CancelVideoTask(c *gin.Context) {
	if err := Pipe.Video.Cancel(c.Param("project_id"), c.Param("task_id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "任务已取消"})
}

// 从同一分镜的候选结果里选定一条视频
func SelectVideo(c *gin.Context) {
	var req struct {
		VideoID string `json:"video_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project, err := Pipe.Video.SelectVideo(c.Param("project_id"), c.Param("frame_id"), req.VideoID)
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}

// 视频任务进度 WebSocket 推送：每秒读库，状态变化时推送，终态后关闭
func TaskProgressWebSocket(c *gin.Context) {
	projectID := c.Param("project_id")
	taskID := c.Param("task_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "WebSocket升级失败"})
		return
	}
	defer conn.Close()

	snapshot := func() *models.VideoTask {
		p, err := Pipe.GetProject(projectID)
		if err != nil {
			return nil
		}
		return p.FindVideoTask(taskID)
	}

	task := snapshot()
	if task == nil {
		conn.WriteJSON(map[string]interface{}{"error": "task not found"})
		return
	}
	_ = conn.WriteJSON(task)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	prevStatus := task.Status
	for range ticker.C {
		cur := snapshot()
		if cur == nil {
			continue
		}
		if cur.Status != prevStatus {
			if err := conn.WriteJSON(cur); err != nil {
				break
			}
			prevStatus = cur.Status
		}
		if cur.Status == models.StatusCompleted || cur.Status == models.StatusFailed {
			_ = conn.WriteJSON(cur)
			break
		}
	}
}
