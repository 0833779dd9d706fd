package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"ComicGen-server/models"

	"github.com/google/uuid"
)

// Pipeline 编排器：项目聚合的唯一写入方。
// 生成调用在聚合快照上执行，结果按实体 id 合并回写（项目锁内），
// 这样长生成调用不阻塞并发视频任务的状态回写。
type Pipeline struct {
	Store      ProjectStore
	Assets     *AssetGenerator
	Storyboard *StoryboardGenerator
	Video      *VideoTaskManager
	Audio      *AudioGenerator
	Export     *ExportManager
	Analyzer   TextAnalyzer
	Locator    *Locator
}

// CreateProject 从小说文本建项：解析出角色/场景/分镜
func (pl *Pipeline) CreateProject(ctx context.Context, title, text string, skipAnalysis bool) (*models.Project, error) {
	p := &models.Project{
		ID:          uuid.NewString(),
		Title:       title,
		Text:        text,
		StylePreset: "Cinematic",
	}
	if !skipAnalysis {
		outline, err := pl.Analyzer.AnalyzeScript(ctx, title, text)
		if err != nil {
			return nil, err
		}
		applyOutline(p, outline)
	}
	if err := pl.Store.Create(p); err != nil {
		return nil, err
	}
	log.Printf("项目已创建: %s (%d 角色, %d 场景, %d 分镜)",
		p.ID, len(p.Characters), len(p.Scenes), len(p.Frames))
	return p, nil
}

func applyOutline(p *models.Project, outline *ScriptOutline) {
	p.Characters = outline.Characters
	p.Scenes = outline.Scenes
	p.Props = outline.Props
	p.Frames = outline.Frames
}

// ReparseProject 重新解析文本，替换全部实体
func (pl *Pipeline) ReparseProject(ctx context.Context, id, text string) (*models.Project, error) {
	outline, err := pl.Analyzer.AnalyzeScript(ctx, "", text)
	if err != nil {
		return nil, err
	}
	return pl.Store.Update(id, func(p *models.Project) error {
		p.Text = text
		applyOutline(p, outline)
		return nil
	})
}

func (pl *Pipeline) GetProject(id string) (*models.Project, error) {
	return pl.Store.Get(id)
}

func (pl *Pipeline) DeleteProject(id string) error {
	return pl.Store.Delete(id)
}

func (pl *Pipeline) UpdateStyle(id, preset, prompt string) (*models.Project, error) {
	return pl.Store.Update(id, func(p *models.Project) error {
		p.StylePreset = preset
		if prompt != "" {
			p.StylePrompt = prompt
		}
		return nil
	})
}

func (pl *Pipeline) SaveArtDirection(id string, ad models.ArtDirection) (*models.Project, error) {
	return pl.Store.Update(id, func(p *models.Project) error {
		p.ArtDirection = ad
		return nil
	})
}

// ============================================================================
// 资产生成
// ============================================================================

// GenerateAssets 为项目全部角色/场景/道具生成参考图。
// 锁定实体跳过（批量操作不得覆盖用户已确认的产物）。
func (pl *Pipeline) GenerateAssets(ctx context.Context, id string) (*models.Project, error) {
	snapshot, err := pl.Store.Get(id)
	if err != nil {
		return nil, err
	}

	for i := range snapshot.Characters {
		c := &snapshot.Characters[i]
		if c.Locked {
			log.Printf("角色 %s 已锁定，跳过", c.Name)
			continue
		}
		base := snapshot.FindCharacter(c.BaseCharacterID)
		if err := pl.Assets.GenerateCharacter(ctx, c, base, CharacterOptions{
			Mode:        ModeAll,
			StylePrompt: snapshot.StylePrompt,
		}); err != nil {
			log.Printf("角色 %s 生成失败: %v", c.Name, err)
		}
		pl.mergeCharacter(id, *c)
	}
	for i := range snapshot.Scenes {
		s := &snapshot.Scenes[i]
		if s.Locked {
			continue
		}
		if err := pl.Assets.GenerateScene(ctx, s, snapshot.StylePrompt, ""); err != nil {
			log.Printf("场景 %s 生成失败: %v", s.Name, err)
		}
		pl.mergeScene(id, *s)
	}
	for i := range snapshot.Props {
		pr := &snapshot.Props[i]
		if pr.Locked {
			continue
		}
		if err := pl.Assets.GenerateProp(ctx, pr, snapshot.StylePrompt, ""); err != nil {
			log.Printf("道具 %s 生成失败: %v", pr.Name, err)
		}
		pl.mergeProp(id, *pr)
	}
	return pl.Store.Get(id)
}

// AssetRequest 单资产生成请求
type AssetRequest struct {
	AssetID        string
	AssetType      string // character / scene / prop
	Mode           string // 角色生成模式
	Prompt         string
	StylePrompt    string
	NegativePrompt string
}

// GenerateAsset 生成单个资产。锁定实体直接拒绝，不触发后端调用。
func (pl *Pipeline) GenerateAsset(ctx context.Context, id string, req AssetRequest) (*models.Project, error) {
	snapshot, err := pl.Store.Get(id)
	if err != nil {
		return nil, err
	}

	style := req.StylePrompt
	if style == "" {
		style = snapshot.StylePrompt
	}

	switch req.AssetType {
	case "character":
		c := snapshot.FindCharacter(req.AssetID)
		if c == nil {
			return nil, fmt.Errorf("%w: character %s", models.ErrNotFound, req.AssetID)
		}
		base := snapshot.FindCharacter(c.BaseCharacterID)
		if err := pl.Assets.GenerateCharacter(ctx, c, base, CharacterOptions{
			Mode:           req.Mode,
			Prompt:         req.Prompt,
			StylePrompt:    style,
			NegativePrompt: req.NegativePrompt,
		}); err != nil {
			if !errors.Is(err, models.ErrLocked) {
				// 失败状态也要落库
				pl.mergeCharacter(id, *c)
			}
			return nil, err
		}
		return pl.mergeCharacter(id, *c)
	case "scene":
		s := snapshot.FindScene(req.AssetID)
		if s == nil {
			return nil, fmt.Errorf("%w: scene %s", models.ErrNotFound, req.AssetID)
		}
		if s.Locked {
			return nil, fmt.Errorf("%w: scene %s", models.ErrLocked, s.ID)
		}
		if err := pl.Assets.GenerateScene(ctx, s, style, req.NegativePrompt); err != nil {
			return nil, err
		}
		return pl.mergeScene(id, *s)
	case "prop":
		pr := snapshot.FindProp(req.AssetID)
		if pr == nil {
			return nil, fmt.Errorf("%w: prop %s", models.ErrNotFound, req.AssetID)
		}
		if pr.Locked {
			return nil, fmt.Errorf("%w: prop %s", models.ErrLocked, pr.ID)
		}
		if err := pl.Assets.GenerateProp(ctx, pr, style, req.NegativePrompt); err != nil {
			return nil, err
		}
		return pl.mergeProp(id, *pr)
	}
	return nil, fmt.Errorf("%w: asset type %s", models.ErrNotFound, req.AssetType)
}

// 快照上生成的实体按 id 合并回聚合。期间被用户锁定的实体放弃合并。
func (pl *Pipeline) mergeCharacter(id string, c models.Character) (*models.Project, error) {
	return pl.Store.Update(id, func(p *models.Project) error {
		cur := p.FindCharacter(c.ID)
		if cur == nil {
			return fmt.Errorf("%w: character %s", models.ErrNotFound, c.ID)
		}
		if cur.Locked {
			log.Printf("角色 %s 在生成期间被锁定，丢弃生成结果", c.ID)
			return nil
		}
		*cur = c
		return nil
	})
}

func (pl *Pipeline) mergeScene(id string, s models.Scene) (*models.Project, error) {
	return pl.Store.Update(id, func(p *models.Project) error {
		cur := p.FindScene(s.ID)
		if cur == nil {
			return fmt.Errorf("%w: scene %s", models.ErrNotFound, s.ID)
		}
		if cur.Locked {
			return nil
		}
		*cur = s
		return nil
	})
}

func (pl *Pipeline) mergeProp(id string, pr models.Prop) (*models.Project, error) {
	return pl.Store.Update(id, func(p *models.Project) error {
		cur := p.FindProp(pr.ID)
		if cur == nil {
			return fmt.Errorf("%w: prop %s", models.ErrNotFound, pr.ID)
		}
		if cur.Locked {
			return nil
		}
		*cur = pr
		return nil
	})
}

func (pl *Pipeline) mergeFrame(id string, f models.StoryboardFrame) (*models.Project, error) {
	return pl.Store.Update(id, func(p *models.Project) error {
		cur := p.FindFrame(f.ID)
		if cur == nil {
			return fmt.Errorf("%w: frame %s", models.ErrNotFound, f.ID)
		}
		if cur.Locked {
			log.Printf("分镜 %s 在生成期间被锁定，丢弃生成结果", f.ID)
			return nil
		}
		*cur = f
		return nil
	})
}

// ToggleAssetLock 切换资产锁定状态
func (pl *Pipeline) ToggleAssetLock(id, assetType, assetID string) (*models.Project, error) {
	return pl.Store.Update(id, func(p *models.Project) error {
		switch assetType {
		case "character":
			if c := p.FindCharacter(assetID); c != nil {
				c.Locked = !c.Locked
				return nil
			}
		case "scene":
			if s := p.FindScene(assetID); s != nil {
				s.Locked = !s.Locked
				return nil
			}
		case "prop":
			if pr := p.FindProp(assetID); pr != nil {
				pr.Locked = !pr.Locked
				return nil
			}
		}
		return fmt.Errorf("%w: %s %s", models.ErrNotFound, assetType, assetID)
	})
}

// UpdateAssetImage 手工替换资产图（上传的文件）
func (pl *Pipeline) UpdateAssetImage(id, assetType, assetID, imageURL string) (*models.Project, error) {
	return pl.Store.Update(id, func(p *models.Project) error {
		now := time.Now()
		switch assetType {
		case "character":
			if c := p.FindCharacter(assetID); c != nil {
				c.FullBody = models.ImageSlot{ImageURL: imageURL, UpdatedAt: now}
				c.RecomputeConsistency()
				c.Status = models.StatusCompleted
				return nil
			}
		case "scene":
			if s := p.FindScene(assetID); s != nil {
				s.ImageURL = imageURL
				s.Status = models.StatusCompleted
				return nil
			}
		case "prop":
			if pr := p.FindProp(assetID); pr != nil {
				pr.ImageURL = imageURL
				pr.Status = models.StatusCompleted
				return nil
			}
		}
		return fmt.Errorf("%w: %s %s", models.ErrNotFound, assetType, assetID)
	})
}

// UpdateAssetDescription 更新资产描述
func (pl *Pipeline) UpdateAssetDescription(id, assetType, assetID, description string) (*models.Project, error) {
	return pl.Store.Update(id, func(p *models.Project) error {
		switch assetType {
		case "character":
			if c := p.FindCharacter(assetID); c != nil {
				c.Description = description
				return nil
			}
		case "scene":
			if s := p.FindScene(assetID); s != nil {
				s.Description = description
				return nil
			}
		case "prop":
			if pr := p.FindProp(assetID); pr != nil {
				pr.Description = description
				return nil
			}
		}
		return fmt.Errorf("%w: %s %s", models.ErrNotFound, assetType, assetID)
	})
}

// ============================================================================
// 分镜
// ============================================================================

// GenerateStoryboard 整批分镜绘制，已完成的帧跳过（幂等重跑）。
// 生成在快照上执行，每帧结束即合并落库。
func (pl *Pipeline) GenerateStoryboard(ctx context.Context, id string) (*models.Project, error) {
	snapshot, err := pl.Store.Get(id)
	if err != nil {
		return nil, err
	}
	pl.Storyboard.GenerateAll(ctx, snapshot, func(f models.StoryboardFrame) {
		pl.mergeFrame(id, f)
	})
	return pl.Store.Get(id)
}

// RenderFrame 带显式 prompt 与参考图合成渲染单帧
func (pl *Pipeline) RenderFrame(ctx context.Context, id, frameID, prompt string, refs []string) (*models.Project, error) {
	snapshot, err := pl.Store.Get(id)
	if err != nil {
		return nil, err
	}
	frame := snapshot.FindFrame(frameID)
	if frame == nil {
		return nil, fmt.Errorf("%w: frame %s", models.ErrNotFound, frameID)
	}
	if frame.Locked {
		return nil, fmt.Errorf("%w: frame %s", models.ErrLocked, frameID)
	}
	scene := snapshot.FindScene(frame.SceneID)
	if err := pl.Storyboard.GenerateFrame(ctx, frame, snapshot.Characters, scene, refs, prompt); err != nil {
		pl.mergeFrame(id, *frame)
		return nil, err
	}
	return pl.mergeFrame(id, *frame)
}

func (pl *Pipeline) ToggleFrameLock(id, frameID string) (*models.Project, error) {
	return pl.Store.Update(id, func(p *models.Project) error {
		frame := p.FindFrame(frameID)
		if frame == nil {
			return fmt.Errorf("%w: frame %s", models.ErrNotFound, frameID)
		}
		frame.Locked = !frame.Locked
		return nil
	})
}

// ============================================================================
// 音频
// ============================================================================

func (pl *Pipeline) BindVoice(id, charID, voiceID, voiceName string) (*models.Project, error) {
	return pl.Store.Update(id, func(p *models.Project) error {
		c := p.FindCharacter(charID)
		if c == nil {
			return fmt.Errorf("%w: character %s", models.ErrNotFound, charID)
		}
		c.VoiceID = voiceID
		c.VoiceName = voiceName
		return nil
	})
}

// GenerateAudio 为全部分镜生成对白/音效/BGM。
// 有视频的帧音效走视频驱动（V2A）。锁定帧跳过。
func (pl *Pipeline) GenerateAudio(ctx context.Context, id string) (*models.Project, error) {
	snapshot, err := pl.Store.Get(id)
	if err != nil {
		return nil, err
	}
	for i := range snapshot.Frames {
		frame := &snapshot.Frames[i]
		if frame.Locked {
			continue
		}
		if frame.Dialogue != "" && len(frame.CharacterIDs) > 0 {
			if char := snapshot.FindCharacter(frame.CharacterIDs[0]); char != nil {
				if err := pl.Audio.GenerateDialogue(ctx, frame, char, 1.0, 1.0); err != nil {
					log.Printf("分镜 %s 对白生成失败: %v", frame.ID, err)
				}
			}
		}
		if frame.VideoURL != "" {
			if err := pl.Audio.GenerateSfxFromVideo(ctx, frame); err != nil {
				log.Printf("分镜 %s V2A 生成失败: %v", frame.ID, err)
			}
		} else {
			if err := pl.Audio.GenerateSfx(ctx, frame); err != nil {
				log.Printf("分镜 %s 音效生成失败: %v", frame.ID, err)
			}
		}
		if err := pl.Audio.GenerateBgm(ctx, frame); err != nil {
			log.Printf("分镜 %s BGM 生成失败: %v", frame.ID, err)
		}
		pl.mergeFrame(id, *frame)
	}
	return pl.Store.Get(id)
}

// GenerateDialogueLine 给单帧生成对白音频
func (pl *Pipeline) GenerateDialogueLine(ctx context.Context, id, frameID string, speed, pitch float64) (*models.Project, error) {
	snapshot, err := pl.Store.Get(id)
	if err != nil {
		return nil, err
	}
	frame := snapshot.FindFrame(frameID)
	if frame == nil {
		return nil, fmt.Errorf("%w: frame %s", models.ErrNotFound, frameID)
	}
	if frame.Locked {
		return nil, fmt.Errorf("%w: frame %s", models.ErrLocked, frameID)
	}
	if frame.Dialogue == "" || len(frame.CharacterIDs) == 0 {
		return snapshot, nil
	}
	char := snapshot.FindCharacter(frame.CharacterIDs[0])
	if char == nil {
		return nil, fmt.Errorf("%w: character %s", models.ErrNotFound, frame.CharacterIDs[0])
	}
	if err := pl.Audio.GenerateDialogue(ctx, frame, char, speed, pitch); err != nil {
		return nil, err
	}
	return pl.mergeFrame(id, *frame)
}

// ============================================================================
// 导出与分析
// ============================================================================

// MergeVideos 导出整片，产物引用写回项目
func (pl *Pipeline) MergeVideos(ctx context.Context, id string, opts ExportOptions) (*models.Project, error) {
	snapshot, err := pl.Store.Get(id)
	if err != nil {
		return nil, err
	}
	ref, err := pl.Export.Render(ctx, snapshot, opts)
	if err != nil {
		return nil, err
	}
	return pl.Store.Update(id, func(p *models.Project) error {
		p.ExportURL = ref
		return nil
	})
}

func (pl *Pipeline) AnalyzeStyles(ctx context.Context, id, text string) ([]StyleRecommendation, error) {
	if _, err := pl.Store.Get(id); err != nil {
		return nil, err
	}
	return pl.Analyzer.RecommendStyles(ctx, text)
}

func (pl *Pipeline) PolishPrompt(ctx context.Context, draft string, refs []string) (string, error) {
	return pl.Analyzer.PolishPrompt(ctx, draft, refs)
}

// DisplayDocument 生成对外响应文档：聚合序列化后对象 key 换签名 URL。
// 改写发生在副本上，持久化状态不变。
func (pl *Pipeline) DisplayDocument(ctx context.Context, p *models.Project) (map[string]interface{}, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	pl.Locator.WalkDisplay(ctx, doc)
	return doc, nil
}
