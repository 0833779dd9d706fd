package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"ComicGen-server/models"
)

// memStore 内存版 ProjectStore，语义对齐数据库实现：
// Get 返回深拷贝，Update 在锁内整体替换。
type memStore struct {
	mu       sync.Mutex
	projects map[string]*models.Project
}

func newMemStore() *memStore {
	return &memStore{projects: map[string]*models.Project{}}
}

func (s *memStore) Create(p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = clone(p)
	return nil
}

func (s *memStore) Get(id string) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", models.ErrNotFound, id)
	}
	return clone(p), nil
}

func (s *memStore) Update(id string, fn func(p *models.Project) error) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", models.ErrNotFound, id)
	}
	next := clone(p)
	if err := fn(next); err != nil {
		return nil, err
	}
	s.projects[id] = next
	return clone(next), nil
}

func (s *memStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return fmt.Errorf("%w: project %s", models.ErrNotFound, id)
	}
	delete(s.projects, id)
	return nil
}

func clone(p *models.Project) *models.Project {
	raw, _ := json.Marshal(p)
	var cp models.Project
	_ = json.Unmarshal(raw, &cp)
	return &cp
}

// fakeGen 可编程生成后端：记录调用次数与请求，失败可注入
type fakeGen struct {
	mu    sync.Mutex
	calls int
	reqs  []GenerateRequest
	err   error
}

func (f *fakeGen) Generate(_ context.Context, req GenerateRequest) (string, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", 0, f.err
	}
	return req.OutputPath, 0.5, nil
}

func (f *fakeGen) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeObjectStore 内存对象存储
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string]string // key -> 本地源路径
	signErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string]string{}}
}

func (f *fakeObjectStore) Configured() bool { return true }

func (f *fakeObjectStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeObjectStore) Put(_ context.Context, localPath, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = localPath
	return key, nil
}

func (f *fakeObjectStore) SignForDisplay(_ context.Context, key string) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://oss.example.com/" + key + "?signature=abc", nil
}

func (f *fakeObjectStore) List(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		keys = append(keys, k)
	}
	return keys, nil
}

func testLocator(dir string) *Locator {
	return &Locator{
		BasePrefix: "comic",
		LocalMount: "/files/",
		OutputDir:  dir,
	}
}
