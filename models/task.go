package models

import "time"

// VideoTask 单帧视频生成任务。同一帧可挂多个任务（批量变体），
// 恰好一个会被选为该帧的正式视频。
type VideoTask struct {
	ID             string    `json:"id"`
	FrameID        string    `json:"frameId,omitempty"`
	ImageURL       string    `json:"imageUrl"` // 源图引用（本地相对路径 / 对象 key / 外部 URL）
	Prompt         string    `json:"prompt"`
	NegativePrompt string    `json:"negativePrompt,omitempty"`
	Duration       int       `json:"duration"`
	Seed           int64     `json:"seed,omitempty"`
	Resolution     string    `json:"resolution"`
	Model          string    `json:"model"`
	GenerateAudio  bool      `json:"generateAudio"`
	AudioURL       string    `json:"audioUrl,omitempty"`
	PromptExtend   bool      `json:"promptExtend"`
	VideoURL       string    `json:"videoUrl,omitempty"` // 结果引用，持久化的是对象 key 而非签名 URL
	Error          string    `json:"error,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
