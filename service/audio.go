package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"ComicGen-server/models"
)

// Voice 可用音色
type Voice struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Gender string `json:"gender"`
}

// AudioGenerator 帧级音频：对白 TTS、音效、BGM。
// SFX/BGM 后端未接入，走桩产物但保持状态迁移纪律。
type AudioGenerator struct {
	Speech  GenerationService // 可为 nil（未配置 TTS worker）
	Locator *Locator
}

var defaultVoices = []Voice{
	{ID: "longxiaochun", Name: "龙小淳 (Sweet Female)", Gender: "Female"},
	{ID: "longyueyue", Name: "龙悦悦 (Gentle Female)", Gender: "Female"},
	{ID: "longxiaobai", Name: "龙小白 (Calm Male)", Gender: "Male"},
	{ID: "longfeiyan", Name: "龙飞燕 (Bright Female)", Gender: "Female"},
	{ID: "longxiaoxin", Name: "龙小新 (Narrator)", Gender: "Male"},
}

func (g *AudioGenerator) AvailableVoices() []Voice {
	return defaultVoices
}

var emotionTagRe = regexp.MustCompile(`\[(.*?)\]`)

// ExtractEmotion 剥离对白里的 [情绪] 标签，标签作为元数据保留
func ExtractEmotion(dialogue string) (text, emotion string) {
	emotion = "neutral"
	if m := emotionTagRe.FindStringSubmatch(dialogue); m != nil {
		emotion = strings.ToLower(m[1])
	}
	text = strings.TrimSpace(emotionTagRe.ReplaceAllString(dialogue, ""))
	return text, emotion
}

// GenerateDialogue 对白 TTS。无对白则 no-op；角色未绑定音色或
// TTS 未配置时走桩产物——桩文件名带 _stub 后缀，结果可辨识，绝不冒充真实合成。
func (g *AudioGenerator) GenerateDialogue(ctx context.Context, frame *models.StoryboardFrame, char *models.Character, speed, pitch float64) error {
	if frame.Dialogue == "" {
		return nil
	}
	frame.Status = models.StatusProcessing

	text, emotion := ExtractEmotion(frame.Dialogue)
	log.Printf("生成对白 %s: %q (emotion=%s, speed=%.1f, pitch=%.1f)", char.Name, text, emotion, speed, pitch)

	if g.Speech != nil && char.VoiceID != "" {
		rel := fmt.Sprintf("audio/dialogue/%s.mp3", frame.ID)
		_, _, err := g.Speech.Generate(ctx, GenerateRequest{
			Prompt:     text,
			OutputPath: g.Locator.LocalPath(rel),
			Params: map[string]interface{}{
				"voice":   char.VoiceID,
				"emotion": emotion,
				"speed":   speed,
				"pitch":   pitch,
			},
		})
		if err == nil {
			frame.AudioURL = rel
			frame.UpdatedAt = time.Now()
			frame.Status = models.StatusCompleted
			return nil
		}
		log.Printf("TTS 合成失败，回落桩产物: %v", err)
	}
	return g.stubDialogue(frame)
}

func (g *AudioGenerator) stubDialogue(frame *models.StoryboardFrame) error {
	rel := fmt.Sprintf("audio/dialogue/%s_stub.mp3", frame.ID)
	if err := g.writeStub(rel); err != nil {
		frame.Status = models.StatusFailed
		return err
	}
	frame.AudioURL = rel
	frame.UpdatedAt = time.Now()
	frame.Status = models.StatusCompleted
	return nil
}

// GenerateSfx 帧音效（桩后端）
func (g *AudioGenerator) GenerateSfx(_ context.Context, frame *models.StoryboardFrame) error {
	frame.Status = models.StatusProcessing
	log.Printf("生成音效: %s", frame.ActionDescription)

	rel := fmt.Sprintf("audio/sfx/%s.mp3", frame.ID)
	if err := g.writeStub(rel); err != nil {
		frame.Status = models.StatusFailed
		return err
	}
	frame.SfxURL = rel
	frame.UpdatedAt = time.Now()
	frame.Status = models.StatusCompleted
	return nil
}

// GenerateSfxFromVideo 视频驱动音效（V2A，桩后端）。帧没有视频则 no-op。
func (g *AudioGenerator) GenerateSfxFromVideo(_ context.Context, frame *models.StoryboardFrame) error {
	if frame.VideoURL == "" {
		return nil
	}
	log.Printf("从视频生成音效: frame %s", frame.ID)

	rel := fmt.Sprintf("audio/sfx/%s_v2a.mp3", frame.ID)
	if err := g.writeStub(rel); err != nil {
		return err
	}
	frame.SfxURL = rel
	frame.UpdatedAt = time.Now()
	return nil
}

// GenerateBgm 帧 BGM（桩后端）
func (g *AudioGenerator) GenerateBgm(_ context.Context, frame *models.StoryboardFrame) error {
	log.Printf("生成 BGM: frame %s", frame.ID)

	rel := fmt.Sprintf("audio/bgm/%s.mp3", frame.ID)
	if err := g.writeStub(rel); err != nil {
		return err
	}
	frame.BgmURL = rel
	frame.UpdatedAt = time.Now()
	return nil
}

func (g *AudioGenerator) writeStub(rel string) error {
	p := g.Locator.LocalPath(rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, []byte("stub audio content"), 0o644)
}
