package models

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Store 项目聚合存取层。所有写入走 Update 的 read-modify-write，
// 同一项目的写互斥串行，避免整行覆盖丢失并发任务回写。
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// 按项目 id 的互斥锁注册表
var projectLocks = struct {
	sync.Mutex
	m map[string]*sync.Mutex
}{
	m: make(map[string]*sync.Mutex),
}

func lockFor(id string) *sync.Mutex {
	projectLocks.Lock()
	defer projectLocks.Unlock()
	mu, ok := projectLocks.m[id]
	if !ok {
		mu = &sync.Mutex{}
		projectLocks.m[id] = mu
	}
	return mu
}

func (s *Store) Create(p *Project) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	return s.db.Create(p).Error
}

func (s *Store) Get(id string) (*Project, error) {
	var p Project
	if err := s.db.First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: project %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &p, nil
}

// Update 在项目锁内执行 fn 并整行回写。fn 返回错误时不落库。
func (s *Store) Update(id string, fn func(p *Project) error) (*Project, error) {
	mu := lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = time.Now()
	if err := s.db.Save(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) Delete(id string) error {
	mu := lockFor(id)
	mu.Lock()
	defer mu.Unlock()
	res := s.db.Delete(&Project{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	return nil
}
