package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ComicGen-server/models"
)

func newVideoFixture(t *testing.T) (*VideoTaskManager, *fakeGen, *memStore, *models.Project) {
	t.Helper()
	store := newMemStore()
	videos := &fakeGen{}
	m := &VideoTaskManager{
		Videos:  videos,
		Locator: testLocator(t.TempDir()),
		Store:   store,
		Enqueue: func(projectID, taskID string) error { return nil },
	}
	p := &models.Project{
		ID:    "p1",
		Title: "test",
		Frames: models.FrameList{
			{ID: "f1", ActionDescription: "Alex walks in", ImageURL: "https://example.com/f1.png"},
		},
	}
	if err := store.Create(p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return m, videos, store, p
}

func TestCreateTasksBatch(t *testing.T) {
	m, _, store, _ := newVideoFixture(t)

	tasks, err := m.CreateTasks("p1", VideoTaskRequest{
		FrameID:   "f1",
		ImageURL:  "https://example.com/f1.png",
		Prompt:    "walking",
		BatchSize: 3,
	})
	if err != nil {
		t.Fatalf("CreateTasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("batch=3 应创建 3 个任务，实际 %d", len(tasks))
	}
	seen := map[string]bool{}
	for _, task := range tasks {
		if seen[task.ID] {
			t.Fatalf("任务 id 重复: %s", task.ID)
		}
		seen[task.ID] = true
		if task.Status != models.StatusPending {
			t.Fatalf("新任务状态应为 pending，实际 %s", task.Status)
		}
	}

	p, _ := store.Get("p1")
	if len(p.VideoTasks) != 3 {
		t.Fatalf("任务应落库，实际 %d", len(p.VideoTasks))
	}
}

func TestCreateTasksCappedByMaxBatch(t *testing.T) {
	m, _, _, _ := newVideoFixture(t)
	m.MaxBatch = 4

	tasks, err := m.CreateTasks("p1", VideoTaskRequest{FrameID: "f1", BatchSize: 99})
	if err != nil {
		t.Fatalf("CreateTasks: %v", err)
	}
	if len(tasks) != 4 {
		t.Fatalf("批量应被上限截断到 4，实际 %d", len(tasks))
	}
}

func TestCreateTasksLockedFrameRejected(t *testing.T) {
	m, videos, store, _ := newVideoFixture(t)
	if _, err := store.Update("p1", func(p *models.Project) error {
		p.Frames[0].Locked = true
		return nil
	}); err != nil {
		t.Fatalf("lock frame: %v", err)
	}

	_, err := m.CreateTasks("p1", VideoTaskRequest{FrameID: "f1", BatchSize: 2})
	if !errors.Is(err, models.ErrLocked) {
		t.Fatalf("锁定分镜应报 ErrLocked，实际 %v", err)
	}
	if videos.callCount() != 0 {
		t.Fatal("锁定拒绝不应触发后端调用")
	}
	p, _ := store.Get("p1")
	if len(p.VideoTasks) != 0 {
		t.Fatal("拒绝的批量不应落库")
	}
}

func TestExecuteLifecycle(t *testing.T) {
	m, _, store, _ := newVideoFixture(t)
	tasks, err := m.CreateTasks("p1", VideoTaskRequest{FrameID: "f1", ImageURL: "https://example.com/f1.png"})
	if err != nil {
		t.Fatalf("CreateTasks: %v", err)
	}
	taskID := tasks[0].ID

	if err := m.Execute(context.Background(), "p1", taskID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	p, _ := store.Get("p1")
	task := p.FindVideoTask(taskID)
	if task.Status != models.StatusCompleted {
		t.Fatalf("任务应完成，实际 %s (err=%s)", task.Status, task.Error)
	}
	if task.VideoURL == "" {
		t.Fatal("完成的任务应有视频产物引用")
	}
	if strings.Contains(task.VideoURL, "signature") {
		t.Fatalf("持久化引用不能是签名 URL: %q", task.VideoURL)
	}
}

func TestExecuteNoDoubleStart(t *testing.T) {
	m, videos, store, _ := newVideoFixture(t)
	tasks, _ := m.CreateTasks("p1", VideoTaskRequest{FrameID: "f1", ImageURL: "https://example.com/f1.png"})
	taskID := tasks[0].ID

	if err := m.Execute(context.Background(), "p1", taskID); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	calls := videos.callCount()

	// 已终态的任务重复投递直接跳过
	if err := m.Execute(context.Background(), "p1", taskID); err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if videos.callCount() != calls {
		t.Fatal("重复执行不应再次调用后端")
	}
	p, _ := store.Get("p1")
	if p.FindVideoTask(taskID).Status != models.StatusCompleted {
		t.Fatal("重复执行不应改变终态")
	}
}

func TestExecuteBackendFailure(t *testing.T) {
	m, videos, store, _ := newVideoFixture(t)
	videos.err = errors.New("render failed")
	tasks, _ := m.CreateTasks("p1", VideoTaskRequest{FrameID: "f1", ImageURL: "https://example.com/f1.png"})
	taskID := tasks[0].ID

	if err := m.Execute(context.Background(), "p1", taskID); err != nil {
		t.Fatalf("Execute 失败应落库而非上抛: %v", err)
	}
	p, _ := store.Get("p1")
	task := p.FindVideoTask(taskID)
	if task.Status != models.StatusFailed {
		t.Fatalf("后端失败任务应为 failed，实际 %s", task.Status)
	}
	if task.Error == "" {
		t.Fatal("失败任务应记录错误信息")
	}
}

func TestCancelPendingTask(t *testing.T) {
	m, _, store, _ := newVideoFixture(t)
	tasks, _ := m.CreateTasks("p1", VideoTaskRequest{FrameID: "f1"})
	taskID := tasks[0].ID

	if err := m.Cancel("p1", taskID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	p, _ := store.Get("p1")
	task := p.FindVideoTask(taskID)
	if task.Status != models.StatusFailed {
		t.Fatalf("取消的排队任务应为 failed，实际 %s", task.Status)
	}
}

func TestSelectVideo(t *testing.T) {
	m, _, store, _ := newVideoFixture(t)
	tasks, _ := m.CreateTasks("p1", VideoTaskRequest{FrameID: "f1", ImageURL: "https://example.com/f1.png", BatchSize: 2})
	for _, task := range tasks {
		if err := m.Execute(context.Background(), "p1", task.ID); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}

	p, err := m.SelectVideo("p1", "f1", tasks[0].ID)
	if err != nil {
		t.Fatalf("SelectVideo: %v", err)
	}
	frame := p.FindFrame("f1")
	if frame.SelectedVideoID != tasks[0].ID {
		t.Fatalf("选定 id 错误: %s", frame.SelectedVideoID)
	}
	if frame.VideoURL == "" {
		t.Fatal("选定后分镜应带视频引用")
	}

	// 重新选择覆盖旧选择
	p, err = m.SelectVideo("p1", "f1", tasks[1].ID)
	if err != nil {
		t.Fatalf("reselect: %v", err)
	}
	if p.FindFrame("f1").SelectedVideoID != tasks[1].ID {
		t.Fatal("重选应覆盖旧选择")
	}

	// 非法选择失败且不影响已有选择
	if _, err := m.SelectVideo("p1", "f1", "nonexistent"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("选不存在的任务应报 ErrNotFound，实际 %v", err)
	}
	cur, _ := store.Get("p1")
	if cur.FindFrame("f1").SelectedVideoID != tasks[1].ID {
		t.Fatal("失败的选择不应改变已有选择")
	}
}
