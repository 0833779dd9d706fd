package service

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"ComicGen-server/models"
)

// AssetGenerator 角色/场景/道具生成。角色全身图是母版，
// 三视图与头像以全身图为风格参考派生。
type AssetGenerator struct {
	Images      GenerationService
	Locator     *Locator
	StyleSuffix string // 默认风格后缀
}

// CharacterOptions 单角色生成选项
type CharacterOptions struct {
	Mode           string // full_body / three_view / headshot / all
	Prompt         string // 显式 prompt，空则用模板默认值
	StylePrompt    string // 风格后缀覆盖，空则用默认
	NegativePrompt string
}

const (
	ModeFullBody  = "full_body"
	ModeThreeView = "three_view"
	ModeHeadshot  = "headshot"
	ModeAll       = "all"
)

// GenerateCharacter 按 mode 生成角色图位。base 是风格变体的母角色（可为 nil）。
// 派生模式要求全身图已存在（本角色或母角色），否则 ErrMissingDependency；
// 该检查先于任何后端调用。失败时已有产物不被覆盖。
func (g *AssetGenerator) GenerateCharacter(ctx context.Context, c *models.Character, base *models.Character, opts CharacterOptions) error {
	if c.Locked {
		return fmt.Errorf("%w: character %s", models.ErrLocked, c.ID)
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeAll
	}
	if g.Images == nil {
		return fmt.Errorf("%w: image worker not configured", models.ErrBackend)
	}

	// 派生前置：全身图必须存在
	if mode == ModeThreeView || mode == ModeHeadshot {
		if g.fullBodyRef(c, base) == "" {
			return fmt.Errorf("%w: full body image is required to generate %s for character %s",
				models.ErrMissingDependency, mode, c.ID)
		}
	}

	suffix := opts.StylePrompt
	if suffix == "" {
		suffix = g.StyleSuffix
	}

	c.Status = models.StatusProcessing

	// 1. 全身图（母版）
	if mode == ModeAll || mode == ModeFullBody {
		prompt := opts.Prompt
		if prompt == "" {
			prompt = fmt.Sprintf("Full body character design of %s, concept art. %s. "+
				"Standing pose, neutral expression, looking at viewer, isolated on white background, "+
				"high quality, masterpiece, best quality. %s", c.Name, c.Description, suffix)
		} else if suffix != "" && !strings.Contains(prompt, suffix) {
			prompt = prompt + ", " + suffix
		}

		var refs []string
		// 风格变体以母角色全身图为参考
		if base != nil && base.FullBody.ImageURL != "" {
			if ref, err := g.Locator.PublishRef(ctx, base.FullBody.ImageURL); err == nil {
				refs = append(refs, ref)
			}
		}

		rel := fmt.Sprintf("assets/characters/%s_fullbody.png", c.ID)
		if _, _, err := g.Images.Generate(ctx, GenerateRequest{
			Prompt:         prompt,
			NegativePrompt: opts.NegativePrompt,
			OutputPath:     g.Locator.LocalPath(rel),
			RefImages:      refs,
		}); err != nil {
			c.Status = models.StatusFailed
			return err
		}
		c.FullBody = models.ImageSlot{ImageURL: rel, Prompt: prompt, UpdatedAt: time.Now()}
		if mode == ModeFullBody {
			// 只重生成母版，派生图随即过期
			c.IsConsistent = false
		}
	}

	fullBodyRef := ""
	if r := g.fullBodyRef(c, base); r != "" {
		if ref, err := g.Locator.PublishRef(ctx, r); err == nil {
			fullBodyRef = ref
		}
	}

	// 2. 三视图（派生）
	if mode == ModeAll || mode == ModeThreeView {
		prompt := opts.Prompt
		if prompt == "" || mode == ModeAll {
			prompt = fmt.Sprintf("Character Reference Sheet for %s. %s. "+
				"Three-view character design: Front view, Side view, and Back view. "+
				"Full body, standing pose, neutral expression. Consistent clothing and details "+
				"across all views. Simple white background, clean lines, studio lighting, high quality. %s",
				c.Name, c.Description, suffix)
		} else if suffix != "" && !strings.Contains(prompt, suffix) {
			prompt = prompt + ", " + suffix
		}

		sheetNegative := opts.NegativePrompt +
			", background, scenery, landscape, shadows, complex background, text, watermark, messy, distorted, extra limbs"
		rel := fmt.Sprintf("assets/characters/%s_sheet.png", c.ID)
		if _, _, err := g.Images.Generate(ctx, GenerateRequest{
			Prompt:         prompt,
			NegativePrompt: sheetNegative,
			OutputPath:     g.Locator.LocalPath(rel),
			RefImages:      refList(fullBodyRef),
		}); err != nil {
			c.Status = models.StatusFailed
			return err
		}
		c.ThreeView = models.ImageSlot{ImageURL: rel, Prompt: prompt, UpdatedAt: time.Now()}
	}

	// 3. 头像（派生）
	if mode == ModeAll || mode == ModeHeadshot {
		prompt := opts.Prompt
		if prompt == "" || mode == ModeAll {
			prompt = fmt.Sprintf("Close-up portrait of the SAME character %s. %s. "+
				"Zoom in on face and shoulders, detailed facial features, neutral expression, "+
				"looking at viewer, high quality, masterpiece. %s", c.Name, c.Description, suffix)
		} else if suffix != "" && !strings.Contains(prompt, suffix) {
			prompt = prompt + ", " + suffix
		}

		rel := fmt.Sprintf("assets/characters/%s_avatar.png", c.ID)
		if _, _, err := g.Images.Generate(ctx, GenerateRequest{
			Prompt:         prompt,
			NegativePrompt: opts.NegativePrompt,
			OutputPath:     g.Locator.LocalPath(rel),
			RefImages:      refList(fullBodyRef),
		}); err != nil {
			c.Status = models.StatusFailed
			return err
		}
		c.Headshot = models.ImageSlot{ImageURL: rel, Prompt: prompt, UpdatedAt: time.Now()}
	}

	if mode == ModeAll {
		// 三图同批生成，直接视为一致
		c.IsConsistent = true
	} else {
		c.RecomputeConsistency()
	}
	c.Status = models.StatusCompleted
	return nil
}

// fullBodyRef 本角色全身图，缺失时回落母角色
func (g *AssetGenerator) fullBodyRef(c *models.Character, base *models.Character) string {
	if c.FullBody.ImageURL != "" {
		return c.FullBody.ImageURL
	}
	if base != nil {
		return base.FullBody.ImageURL
	}
	return ""
}

func refList(ref string) []string {
	if ref == "" {
		return nil
	}
	return []string{ref}
}

// GenerateScene 场景参考图。后端失败不阻断下游分镜：
// 记占位图并报 completed，失败只留日志。
func (g *AssetGenerator) GenerateScene(ctx context.Context, s *models.Scene, stylePrompt, negativePrompt string) error {
	if s.Locked {
		return fmt.Errorf("%w: scene %s", models.ErrLocked, s.ID)
	}
	s.Status = models.StatusProcessing

	suffix := stylePrompt
	if suffix == "" {
		suffix = g.StyleSuffix
	}
	prompt := fmt.Sprintf("Scene Concept Art: %s. %s. High quality, detailed. %s", s.Name, s.Description, suffix)

	if g.Images == nil {
		s.ImageURL = placeholderURL(s.Name)
		s.Status = models.StatusCompleted
		return nil
	}
	rel := fmt.Sprintf("assets/scenes/%s.png", s.ID)
	if _, _, err := g.Images.Generate(ctx, GenerateRequest{
		Prompt:         prompt,
		NegativePrompt: negativePrompt,
		OutputPath:     g.Locator.LocalPath(rel),
	}); err != nil {
		log.Printf("场景 %s 生成失败，使用占位图: %v", s.Name, err)
		s.ImageURL = placeholderURL(s.Name)
		s.Status = models.StatusCompleted
		return nil
	}
	s.ImageURL = rel
	s.Status = models.StatusCompleted
	return nil
}

// GenerateProp 道具参考图，失败策略同场景
func (g *AssetGenerator) GenerateProp(ctx context.Context, p *models.Prop, stylePrompt, negativePrompt string) error {
	if p.Locked {
		return fmt.Errorf("%w: prop %s", models.ErrLocked, p.ID)
	}
	p.Status = models.StatusProcessing

	suffix := stylePrompt
	if suffix == "" {
		suffix = g.StyleSuffix
	}
	prompt := fmt.Sprintf("Prop Design: %s. %s. Isolated on white background, high quality, detailed. %s",
		p.Name, p.Description, suffix)

	if g.Images == nil {
		p.ImageURL = placeholderURL(p.Name)
		p.Status = models.StatusCompleted
		return nil
	}
	rel := fmt.Sprintf("assets/props/%s.png", p.ID)
	if _, _, err := g.Images.Generate(ctx, GenerateRequest{
		Prompt:         prompt,
		NegativePrompt: negativePrompt,
		OutputPath:     g.Locator.LocalPath(rel),
	}); err != nil {
		log.Printf("道具 %s 生成失败，使用占位图: %v", p.Name, err)
		p.ImageURL = placeholderURL(p.Name)
		p.Status = models.StatusCompleted
		return nil
	}
	p.ImageURL = rel
	p.Status = models.StatusCompleted
	return nil
}

func placeholderURL(name string) string {
	return "https://placehold.co/1024x1024/1a1a1a/FFF?text=" + url.QueryEscape(name)
}
