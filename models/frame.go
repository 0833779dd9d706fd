package models

import "time"

// Scene 场景参考图，无派生链
type Scene struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Locked      bool   `json:"locked"`
	Status      string `json:"status"`
}

// Prop 道具参考图，无派生链
type Prop struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Locked      bool   `json:"locked"`
	Status      string `json:"status"`
}

// StoryboardFrame 分镜帧。Dialogue 可内嵌 [情绪] 标签，合成前剥离。
type StoryboardFrame struct {
	ID                string    `json:"id"`
	SceneID           string    `json:"sceneId"`
	CharacterIDs      []string  `json:"characterIds"`
	ActionDescription string    `json:"actionDescription"`
	CameraAngle       string    `json:"cameraAngle"`
	CameraMovement    string    `json:"cameraMovement,omitempty"`
	Dialogue          string    `json:"dialogue,omitempty"`
	ImagePrompt       string    `json:"imagePrompt,omitempty"`
	VideoPrompt       string    `json:"videoPrompt,omitempty"`
	ImageURL          string    `json:"imageUrl,omitempty"`
	VideoURL          string    `json:"videoUrl,omitempty"`
	AudioURL          string    `json:"audioUrl,omitempty"`
	SfxURL            string    `json:"sfxUrl,omitempty"`
	BgmURL            string    `json:"bgmUrl,omitempty"`
	SelectedVideoID   string    `json:"selectedVideoId,omitempty"` // 多变体中被选中的视频任务 id
	Locked            bool      `json:"locked"`
	Status            string    `json:"status"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
