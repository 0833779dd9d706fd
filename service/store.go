package service

import "ComicGen-server/models"

// ProjectStore 项目聚合存取。models.Store 是 MySQL 实现，
// 测试用内存实现。Update 必须保证同项目写互斥。
type ProjectStore interface {
	Create(p *models.Project) error
	Get(id string) (*models.Project, error)
	Update(id string, fn func(p *models.Project) error) (*models.Project, error)
	Delete(id string) error
}
