package models

import "time"

// ImageSlot 一个生成图位：产物引用 + 所用 prompt + 最近更新时间
type ImageSlot struct {
	ImageURL  string    `json:"imageUrl"`
	Prompt    string    `json:"prompt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Character 角色。全身图是母版，三视图/头像由母版派生。
type Character struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	BaseCharacterID string    `json:"baseCharacterId,omitempty"` // 风格变体的母角色
	FullBody        ImageSlot `json:"fullBody"`
	ThreeView       ImageSlot `json:"threeView"`
	Headshot        ImageSlot `json:"headshot"`
	VoiceID         string    `json:"voiceId,omitempty"`
	VoiceName       string    `json:"voiceName,omitempty"`
	IsConsistent    bool      `json:"isConsistent"`
	Locked          bool      `json:"locked"`
	Status          string    `json:"status"`
}

// RecomputeConsistency 派生图时间戳均不早于全身图时间戳时视为一致
func (c *Character) RecomputeConsistency() {
	if c.FullBody.UpdatedAt.IsZero() {
		c.IsConsistent = false
		return
	}
	c.IsConsistent = !c.ThreeView.UpdatedAt.Before(c.FullBody.UpdatedAt) &&
		!c.Headshot.UpdatedAt.Before(c.FullBody.UpdatedAt) &&
		!c.ThreeView.UpdatedAt.IsZero() && !c.Headshot.UpdatedAt.IsZero()
}

// PreferredRefImage 分镜参考图优先用头像，其次三视图
func (c *Character) PreferredRefImage() string {
	if c.Headshot.ImageURL != "" {
		return c.Headshot.ImageURL
	}
	return c.ThreeView.ImageURL
}
