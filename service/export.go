package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"time"

	"ComicGen-server/models"
)

// ExportOptions 成片导出选项
type ExportOptions struct {
	Resolution   string // 默认 1080p
	Format       string // 默认 mp4
	Subtitles    string // burn-in / none
	AllowMissing bool   // 容忍未选视频的帧（跳过而不是报错）
}

// ExportManager 把各帧选定的视频/音频合成整片。
// 拼接/混音/字幕烧录交给外部 mixer worker。
type ExportManager struct {
	Mixer   GenerationService // 可为 nil（未配置）
	Locator *Locator
}

// Render 导出整片，返回产物引用。输出文件名带时间戳，重跑安全。
// 默认要求每帧都已选定视频变体，缺失时报错并指出帧 id。
func (m *ExportManager) Render(ctx context.Context, p *models.Project, opts ExportOptions) (string, error) {
	if opts.Resolution == "" {
		opts.Resolution = "1080p"
	}
	if opts.Format == "" {
		opts.Format = "mp4"
	}

	var clips []string
	var audio []string
	for i := range p.Frames {
		frame := &p.Frames[i]
		if frame.SelectedVideoID == "" {
			if opts.AllowMissing {
				log.Printf("分镜 %s 未选视频，跳过", frame.ID)
				continue
			}
			return "", fmt.Errorf("%w: frame %s has no selected video", models.ErrMissingDependency, frame.ID)
		}
		task := p.FindVideoTask(frame.SelectedVideoID)
		if task == nil || task.VideoURL == "" {
			return "", fmt.Errorf("%w: selected video for frame %s", models.ErrNotFound, frame.ID)
		}
		clipURL, err := m.Locator.PublishRef(ctx, task.VideoURL)
		if err != nil {
			return "", err
		}
		clips = append(clips, clipURL)
		for _, ref := range []string{frame.AudioURL, frame.SfxURL, frame.BgmURL} {
			if ref == "" {
				continue
			}
			if url, err := m.Locator.PublishRef(ctx, ref); err == nil {
				audio = append(audio, url)
			}
		}
	}
	if len(clips) == 0 {
		return "", fmt.Errorf("%w: no frame has a selected video", models.ErrMissingDependency)
	}

	rel := fmt.Sprintf("export/%s_%d.%s", p.ID, time.Now().Unix(), opts.Format)
	outputPath := m.Locator.LocalPath(rel)

	if m.Mixer != nil {
		if _, _, err := m.Mixer.Generate(ctx, GenerateRequest{
			OutputPath: outputPath,
			Params: map[string]interface{}{
				"clips":      clips,
				"audio":      audio,
				"resolution": opts.Resolution,
				"subtitles":  opts.Subtitles,
				"format":     opts.Format,
			},
		}); err != nil {
			return "", err
		}
	} else {
		// mixer 未配置：落桩文件，导出仍可走通
		log.Printf("Mixer worker 未配置，导出为桩文件: %s", rel)
		if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(outputPath, []byte("stub export content"), 0o644); err != nil {
			return "", err
		}
	}

	if key, ok := m.Locator.ResolveForUpload(ctx, outputPath, "export", path.Base(rel)); ok {
		return key, nil
	}
	return rel, nil
}
