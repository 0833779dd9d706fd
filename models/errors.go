package models

import "errors"

// 错误分类：handler 层通过 errors.Is 映射为 HTTP 状态码
var (
	// ErrNotFound 未知的项目/资产/分镜/任务 id
	ErrNotFound = errors.New("not found")
	// ErrMissingDependency 派生资产的前置（全身图）不存在
	ErrMissingDependency = errors.New("missing dependency")
	// ErrLocked 实体已锁定，拒绝生成请求
	ErrLocked = errors.New("locked")
	// ErrBackend 外部生成后端调用失败
	ErrBackend = errors.New("generation backend error")
	// ErrSigning 对象存储未配置或签名失败
	ErrSigning = errors.New("signing failed")
)
