package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"ComicGen-server/models"
)

// StoryboardGenerator 分镜帧生成：聚合角色/场景参考图与 prompt，
// 逐帧调用图像后端。
type StoryboardGenerator struct {
	Images  GenerationService
	Locator *Locator
}

// GenerateAll 为项目全部分镜生成画面。已完成且有产物的帧跳过，
// 整批重跑幂等、可断点续跑。锁定帧跳过并记日志。
// commit 在每帧生成后回调（成败都回调），调用方借此逐帧落库；可为 nil。
func (g *StoryboardGenerator) GenerateAll(ctx context.Context, p *models.Project, commit func(models.StoryboardFrame)) {
	total := len(p.Frames)
	for i := range p.Frames {
		frame := &p.Frames[i]
		if frame.Status == models.StatusCompleted && frame.ImageURL != "" {
			continue
		}
		if frame.Locked {
			log.Printf("分镜 %s 已锁定，跳过", frame.ID)
			continue
		}
		log.Printf("生成分镜 %d/%d: %s", i+1, total, frame.ID)
		scene := p.FindScene(frame.SceneID)
		if err := g.GenerateFrame(ctx, frame, p.Characters, scene, nil, ""); err != nil {
			log.Printf("分镜 %s 生成失败: %v", frame.ID, err)
		}
		if commit != nil {
			commit(*frame)
		}
	}
}

// GenerateFrame 生成单帧。extraRefs 是调用方附加的参考图（合成渲染用），
// prompt 为空时按动作/角色/场景/机位拼默认 prompt。
func (g *StoryboardGenerator) GenerateFrame(ctx context.Context, frame *models.StoryboardFrame, characters []models.Character, scene *models.Scene, extraRefs []string, prompt string) error {
	if g.Images == nil {
		return fmt.Errorf("%w: image worker not configured", models.ErrBackend)
	}
	frame.Status = models.StatusProcessing

	refs := make([]string, 0, len(extraRefs)+len(frame.CharacterIDs)+1)
	refs = append(refs, extraRefs...)

	var charDescriptions []string
	for _, charID := range frame.CharacterIDs {
		var char *models.Character
		for i := range characters {
			if characters[i].ID == charID {
				char = &characters[i]
				break
			}
		}
		if char == nil {
			continue
		}
		charDescriptions = append(charDescriptions, fmt.Sprintf("%s (%s)", char.Name, char.Description))
		if ref := char.PreferredRefImage(); ref != "" {
			refs = append(refs, ref)
		}
	}
	if scene != nil && scene.ImageURL != "" {
		refs = append(refs, scene.ImageURL)
	}

	if prompt == "" {
		var b strings.Builder
		fmt.Fprintf(&b, "Storyboard Frame: %s. ", frame.ActionDescription)
		if len(charDescriptions) > 0 {
			fmt.Fprintf(&b, "Characters: %s. ", strings.Join(charDescriptions, ", "))
		}
		if scene != nil {
			fmt.Fprintf(&b, "Location: %s, %s. ", scene.Name, scene.Description)
		}
		fmt.Fprintf(&b, "Camera: %s", frame.CameraAngle)
		if frame.CameraMovement != "" {
			fmt.Fprintf(&b, ", %s", frame.CameraMovement)
		}
		b.WriteString(".")
		prompt = b.String()
	}
	frame.ImagePrompt = prompt

	rel := fmt.Sprintf("storyboard/%s.png", frame.ID)
	if _, _, err := g.Images.Generate(ctx, GenerateRequest{
		Prompt:     prompt,
		OutputPath: g.Locator.LocalPath(rel),
		RefImages:  g.publishRefs(ctx, refs),
	}); err != nil {
		frame.Status = models.StatusFailed
		return err
	}
	frame.ImageURL = rel
	frame.UpdatedAt = time.Now()
	frame.Status = models.StatusCompleted
	return nil
}

// publishRefs 去重并转成后端可访问的 URL；本地引用文件不存在的丢弃
func (g *StoryboardGenerator) publishRefs(ctx context.Context, refs []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, ref := range refs {
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		if g.Locator.Classify(ref) == RefLocalRelative {
			if _, err := os.Stat(g.Locator.LocalPath(ref)); err != nil {
				continue
			}
		}
		published, err := g.Locator.PublishRef(ctx, ref)
		if err != nil {
			log.Printf("参考图发布失败，跳过 %s: %v", ref, err)
			continue
		}
		out = append(out, published)
	}
	return out
}
