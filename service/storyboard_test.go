package service

import (
	"context"
	"strings"
	"testing"

	"ComicGen-server/models"
)

func storyboardProject() *models.Project {
	alex := models.Character{ID: "c1", Name: "Alex", Description: "a young explorer"}
	alex.FullBody.ImageURL = "https://example.com/alex_fullbody.png"
	alex.Headshot.ImageURL = "https://example.com/alex_avatar.png"
	return &models.Project{
		ID:         "p1",
		Characters: models.CharacterList{alex},
		Scenes: models.SceneList{
			{ID: "s1", Name: "Ruins", Description: "ancient stone ruins", ImageURL: "https://example.com/ruins.png"},
		},
		Frames: models.FrameList{
			{ID: "f1", SceneID: "s1", CharacterIDs: []string{"c1"}, ActionDescription: "Alex enters", CameraAngle: "wide shot"},
			{ID: "f2", SceneID: "s1", CharacterIDs: []string{"c1"}, ActionDescription: "Alex looks around", CameraAngle: "close up"},
		},
	}
}

func TestGenerateAllSkipsCompleted(t *testing.T) {
	images := &fakeGen{}
	g := &StoryboardGenerator{Images: images, Locator: testLocator(t.TempDir())}
	p := storyboardProject()
	p.Frames[0].Status = models.StatusCompleted
	p.Frames[0].ImageURL = "storyboard/f1.png"

	var committed []string
	g.GenerateAll(context.Background(), p, func(f models.StoryboardFrame) {
		committed = append(committed, f.ID)
	})
	if images.callCount() != 1 {
		t.Fatalf("已完成的帧应跳过，应只调用 1 次，实际 %d", images.callCount())
	}
	if len(committed) != 1 || committed[0] != p.Frames[1].ID {
		t.Fatalf("应只回调第二帧，实际 %v", committed)
	}
	if p.Frames[1].Status != models.StatusCompleted {
		t.Fatalf("第二帧应完成，实际 %s", p.Frames[1].Status)
	}
}

func TestGenerateAllSkipsLocked(t *testing.T) {
	images := &fakeGen{}
	g := &StoryboardGenerator{Images: images, Locator: testLocator(t.TempDir())}
	p := storyboardProject()
	p.Frames[0].Locked = true

	g.GenerateAll(context.Background(), p, nil)
	if images.callCount() != 1 {
		t.Fatalf("锁定帧应跳过，实际调用 %d 次", images.callCount())
	}
	if p.Frames[0].ImageURL != "" {
		t.Fatal("锁定帧不应被改写")
	}
}

func TestGenerateFrameDefaultPrompt(t *testing.T) {
	images := &fakeGen{}
	g := &StoryboardGenerator{Images: images, Locator: testLocator(t.TempDir())}
	p := storyboardProject()
	frame := &p.Frames[0]

	if err := g.GenerateFrame(context.Background(), frame, p.Characters, &p.Scenes[0], nil, ""); err != nil {
		t.Fatalf("GenerateFrame: %v", err)
	}
	prompt := images.reqs[0].Prompt
	for _, want := range []string{"Alex enters", "Alex", "Ruins", "wide shot"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("默认 prompt 缺少 %q: %q", want, prompt)
		}
	}
	if frame.ImagePrompt != prompt {
		t.Fatal("使用的 prompt 应记录在帧上")
	}
	if frame.ImageURL != "storyboard/f1.png" {
		t.Fatalf("产物路径错误: %q", frame.ImageURL)
	}
}

func TestGenerateFrameRefsPreferHeadshot(t *testing.T) {
	images := &fakeGen{}
	g := &StoryboardGenerator{Images: images, Locator: testLocator(t.TempDir())}
	p := storyboardProject()

	if err := g.GenerateFrame(context.Background(), &p.Frames[0], p.Characters, &p.Scenes[0], nil, ""); err != nil {
		t.Fatalf("GenerateFrame: %v", err)
	}
	refs := images.reqs[0].RefImages
	hasHeadshot, hasScene := false, false
	for _, r := range refs {
		if r == "https://example.com/alex_avatar.png" {
			hasHeadshot = true
		}
		if r == "https://example.com/ruins.png" {
			hasScene = true
		}
	}
	if !hasHeadshot {
		t.Errorf("参考图应优先角色头像: %v", refs)
	}
	if !hasScene {
		t.Errorf("参考图应包含场景图: %v", refs)
	}
}

func TestGenerateFrameRefsDeduped(t *testing.T) {
	images := &fakeGen{}
	g := &StoryboardGenerator{Images: images, Locator: testLocator(t.TempDir())}
	p := storyboardProject()

	dup := "https://example.com/alex_avatar.png"
	if err := g.GenerateFrame(context.Background(), &p.Frames[0], p.Characters, &p.Scenes[0], []string{dup, dup}, "custom prompt"); err != nil {
		t.Fatalf("GenerateFrame: %v", err)
	}
	refs := images.reqs[0].RefImages
	count := 0
	for _, r := range refs {
		if r == dup {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("参考图应去重，%q 出现 %d 次", dup, count)
	}
	if images.reqs[0].Prompt != "custom prompt" {
		t.Fatalf("显式 prompt 应原样使用: %q", images.reqs[0].Prompt)
	}
}
