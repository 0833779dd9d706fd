package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"ComicGen-server/models"
)

func newPipeline(t *testing.T) (*Pipeline, *fakeGen) {
	t.Helper()
	store := newMemStore()
	locator := testLocator(t.TempDir())
	images := &fakeGen{}
	video := &VideoTaskManager{
		Videos:  &fakeGen{},
		Locator: locator,
		Store:   store,
		Enqueue: func(projectID, taskID string) error { return nil },
	}
	return &Pipeline{
		Store:      store,
		Assets:     &AssetGenerator{Images: images, Locator: locator, StyleSuffix: "cinematic"},
		Storyboard: &StoryboardGenerator{Images: images, Locator: locator},
		Video:      video,
		Audio:      &AudioGenerator{Locator: locator},
		Export:     &ExportManager{Locator: locator},
		Analyzer:   &LocalAnalyzer{},
		Locator:    locator,
	}, images
}

func TestCreateProjectParsesStory(t *testing.T) {
	pl, _ := newPipeline(t)
	p, err := pl.CreateProject(context.Background(), "Ruins", "Alex entered the ruins. Luna appeared.", false)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if len(p.Characters) != 2 || len(p.Scenes) < 1 || len(p.Frames) != 2 {
		t.Fatalf("解析结果错误: %d 角色 %d 场景 %d 帧",
			len(p.Characters), len(p.Scenes), len(p.Frames))
	}
	both := false
	for _, f := range p.Frames {
		if len(f.CharacterIDs) == 2 {
			both = true
		}
	}
	if !both {
		t.Fatal("应有一帧同时引用两个角色")
	}

	got, err := pl.GetProject(p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Title != "Ruins" {
		t.Fatalf("项目标题错误: %q", got.Title)
	}
}

func TestCreateProjectSkipAnalysis(t *testing.T) {
	pl, _ := newPipeline(t)
	p, err := pl.CreateProject(context.Background(), "Empty", "some text", true)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if len(p.Characters) != 0 || len(p.Frames) != 0 {
		t.Fatal("skip_analysis 不应解析实体")
	}
}

func TestReparseReplacesEntities(t *testing.T) {
	pl, _ := newPipeline(t)
	p, _ := pl.CreateProject(context.Background(), "T", "Alex entered the ruins.", false)

	updated, err := pl.ReparseProject(context.Background(), p.ID, "Mira reached the tower.")
	if err != nil {
		t.Fatalf("ReparseProject: %v", err)
	}
	if len(updated.Characters) != 1 || updated.Characters[0].Name != "Mira" {
		t.Fatalf("重解析应替换角色: %+v", updated.Characters)
	}
	if updated.Text != "Mira reached the tower." {
		t.Fatal("重解析应更新文本")
	}
}

func TestGenerateAssetsSkipsLocked(t *testing.T) {
	pl, images := newPipeline(t)
	p, _ := pl.CreateProject(context.Background(), "T", "Alex entered the ruins. Luna appeared.", false)
	lockedID := p.Characters[0].ID
	if _, err := pl.ToggleAssetLock(p.ID, "character", lockedID); err != nil {
		t.Fatalf("ToggleAssetLock: %v", err)
	}

	updated, err := pl.GenerateAssets(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GenerateAssets: %v", err)
	}
	locked := updated.FindCharacter(lockedID)
	if locked.FullBody.ImageURL != "" {
		t.Fatal("锁定角色不应生成")
	}
	other := updated.FindCharacter(p.Characters[1].ID)
	if other.FullBody.ImageURL == "" {
		t.Fatal("未锁定角色应生成")
	}
	// 每个未锁定角色 3 次（全身/三视图/头像），场景走同一个后端
	if images.callCount() < 3 {
		t.Fatalf("生成调用次数异常: %d", images.callCount())
	}
}

func TestGenerateAssetLockedRejectedBeforeBackend(t *testing.T) {
	pl, images := newPipeline(t)
	p, _ := pl.CreateProject(context.Background(), "T", "Alex entered the ruins.", false)
	charID := p.Characters[0].ID
	if _, err := pl.ToggleAssetLock(p.ID, "character", charID); err != nil {
		t.Fatalf("ToggleAssetLock: %v", err)
	}

	_, err := pl.GenerateAsset(context.Background(), p.ID, AssetRequest{
		AssetID: charID, AssetType: "character", Mode: ModeAll,
	})
	if !errors.Is(err, models.ErrLocked) {
		t.Fatalf("锁定资产应报 ErrLocked，实际 %v", err)
	}
	if images.callCount() != 0 {
		t.Fatalf("锁定拒绝应先于后端调用，实际 %d 次", images.callCount())
	}
}

func TestUpdateAssetImageRecomputesConsistency(t *testing.T) {
	pl, _ := newPipeline(t)
	p, _ := pl.CreateProject(context.Background(), "T", "Alex entered the ruins.", false)
	charID := p.Characters[0].ID
	if _, err := pl.GenerateAsset(context.Background(), p.ID, AssetRequest{
		AssetID: charID, AssetType: "character", Mode: ModeAll,
	}); err != nil {
		t.Fatalf("初始生成: %v", err)
	}

	// 手工换全身图，派生图随即过期
	updated, err := pl.UpdateAssetImage(p.ID, "character", charID, "uploads/custom.png")
	if err != nil {
		t.Fatalf("UpdateAssetImage: %v", err)
	}
	char := updated.FindCharacter(charID)
	if char.FullBody.ImageURL != "uploads/custom.png" {
		t.Fatalf("全身图未替换: %q", char.FullBody.ImageURL)
	}
	if char.IsConsistent {
		t.Fatal("替换全身图后角色不应再标记为一致")
	}
}

func TestGenerateStoryboardAndLocks(t *testing.T) {
	pl, images := newPipeline(t)
	p, _ := pl.CreateProject(context.Background(), "T", "Alex entered the ruins. Luna appeared.", false)
	frameID := p.Frames[0].ID
	if _, err := pl.ToggleFrameLock(p.ID, frameID); err != nil {
		t.Fatalf("ToggleFrameLock: %v", err)
	}

	updated, err := pl.GenerateStoryboard(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GenerateStoryboard: %v", err)
	}
	if updated.FindFrame(frameID).ImageURL != "" {
		t.Fatal("锁定帧不应生成")
	}
	if updated.FindFrame(p.Frames[1].ID).ImageURL == "" {
		t.Fatal("未锁定帧应生成")
	}
	if images.callCount() != 1 {
		t.Fatalf("应只为未锁定帧调用后端，实际 %d 次", images.callCount())
	}

	// 锁定帧的手工渲染同样被拒
	_, err = pl.RenderFrame(context.Background(), p.ID, frameID, "custom", nil)
	if !errors.Is(err, models.ErrLocked) {
		t.Fatalf("锁定帧渲染应报 ErrLocked，实际 %v", err)
	}
}

func TestGenerateAudioPipeline(t *testing.T) {
	pl, _ := newPipeline(t)
	p, _ := pl.CreateProject(context.Background(), "T", `Alex entered the ruins. Alex said "Who is there".`, false)

	updated, err := pl.GenerateAudio(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GenerateAudio: %v", err)
	}
	var withDialogue *models.StoryboardFrame
	for i := range updated.Frames {
		if updated.Frames[i].Dialogue != "" {
			withDialogue = &updated.Frames[i]
		}
	}
	if withDialogue == nil {
		t.Fatal("前置条件: 应有带对白的帧")
	}
	if withDialogue.AudioURL == "" {
		t.Fatal("带对白的帧应有语音产物")
	}
	for i := range updated.Frames {
		if updated.Frames[i].SfxURL == "" || updated.Frames[i].BgmURL == "" {
			t.Fatalf("帧 %s 缺少音效或 BGM", updated.Frames[i].ID)
		}
	}
}

func TestBindVoice(t *testing.T) {
	pl, _ := newPipeline(t)
	p, _ := pl.CreateProject(context.Background(), "T", "Alex entered the ruins.", false)
	charID := p.Characters[0].ID

	updated, err := pl.BindVoice(p.ID, charID, "longxiaochun", "龙小淳")
	if err != nil {
		t.Fatalf("BindVoice: %v", err)
	}
	char := updated.FindCharacter(charID)
	if char.VoiceID != "longxiaochun" || char.VoiceName != "龙小淳" {
		t.Fatalf("音色绑定错误: %s / %s", char.VoiceID, char.VoiceName)
	}

	if _, err := pl.BindVoice(p.ID, "nonexistent", "v", "n"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("绑定不存在的角色应报 ErrNotFound，实际 %v", err)
	}
}

func TestMergeVideosWritesExportRef(t *testing.T) {
	pl, _ := newPipeline(t)
	p, _ := pl.CreateProject(context.Background(), "T", "Alex entered the ruins.", false)
	frameID := p.Frames[0].ID

	tasks, err := pl.Video.CreateTasks(p.ID, VideoTaskRequest{FrameID: frameID, ImageURL: "https://example.com/f.png"})
	if err != nil {
		t.Fatalf("CreateTasks: %v", err)
	}
	if err := pl.Video.Execute(context.Background(), p.ID, tasks[0].ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := pl.Video.SelectVideo(p.ID, frameID, tasks[0].ID); err != nil {
		t.Fatalf("SelectVideo: %v", err)
	}

	updated, err := pl.MergeVideos(context.Background(), p.ID, ExportOptions{})
	if err != nil {
		t.Fatalf("MergeVideos: %v", err)
	}
	if !strings.HasPrefix(updated.ExportURL, "export/") {
		t.Fatalf("导出引用应写回项目: %q", updated.ExportURL)
	}
}

func TestDisplayDocumentSignsKeysOnly(t *testing.T) {
	pl, _ := newPipeline(t)
	store := newFakeObjectStore()
	store.Put(context.Background(), "/tmp/a.png", "comic/uploads/a.png")
	pl.Locator.Store = store

	p, _ := pl.CreateProject(context.Background(), "T", "Alex entered the ruins.", false)
	updated, err := pl.UpdateAssetImage(p.ID, "character", p.Characters[0].ID, "comic/uploads/a.png")
	if err != nil {
		t.Fatalf("UpdateAssetImage: %v", err)
	}

	doc, err := pl.DisplayDocument(context.Background(), updated)
	if err != nil {
		t.Fatalf("DisplayDocument: %v", err)
	}
	raw, _ := json.Marshal(doc)
	if !strings.Contains(string(raw), "signature=") {
		t.Fatal("展示文档应包含签名 URL")
	}

	// 持久化状态保持对象 key
	persisted, _ := pl.GetProject(p.ID)
	if persisted.FindCharacter(p.Characters[0].ID).FullBody.ImageURL != "comic/uploads/a.png" {
		t.Fatal("展示解析不应改写持久化引用")
	}
}

func TestDeleteProject(t *testing.T) {
	pl, _ := newPipeline(t)
	p, _ := pl.CreateProject(context.Background(), "T", "Alex entered the ruins.", false)

	if err := pl.DeleteProject(p.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := pl.GetProject(p.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("删除后应报 ErrNotFound，实际 %v", err)
	}
}
