package service

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"

	"ComicGen-server/models"
)

// RefClass 产物引用的分类结果
type RefClass int

const (
	RefExternal RefClass = iota // http(s)/data 等外部 URL，永不改写
	RefLocalRelative            // 本地产物根目录下的相对路径
	RefObjectKey                // 对象存储 key
)

// 识别为本地产物的路径前缀（outputs/videos/ 是历史遗留）
var localPrefixes = []string{
	"assets/", "storyboard/", "video/", "audio/", "export/", "uploads/",
	"outputs/videos/",
}

var externalSchemes = []string{"http://", "https://", "data:", "blob:"}

// Locator 产物引用定位器：分类、展示解析、上传。无共享状态，并发安全。
type Locator struct {
	BasePrefix string // 对象 key 前缀，如 "comic"
	LocalMount string // 本地静态挂载，如 "/files/"
	OutputDir  string // 本地产物根目录
	Store      ObjectStore
}

// Classify 对任意非空引用串给出唯一分类。
// 规则按序：外部 scheme > 本地前缀 > 配置的对象 key 前缀 > 默认本地
// （默认本地兼容历史上未加前缀的路径）。
func (l *Locator) Classify(ref string) RefClass {
	for _, s := range externalSchemes {
		if strings.HasPrefix(ref, s) {
			return RefExternal
		}
	}
	for _, p := range localPrefixes {
		if strings.HasPrefix(ref, p) {
			return RefLocalRelative
		}
	}
	if l.BasePrefix != "" && strings.HasPrefix(ref, l.BasePrefix+"/") {
		return RefObjectKey
	}
	return RefLocalRelative
}

// ResolveForDisplay 把引用转成前端可直接使用的 URL。
// 外部 URL 原样返回（幂等）；对象 key 换成短时效签名 URL。
func (l *Locator) ResolveForDisplay(ctx context.Context, ref string) (string, error) {
	switch l.Classify(ref) {
	case RefExternal:
		return ref, nil
	case RefObjectKey:
		if l.Store == nil || !l.Store.Configured() {
			return "", fmt.Errorf("%w: object store not configured for key %s", models.ErrSigning, ref)
		}
		url, err := l.Store.SignForDisplay(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrSigning, err)
		}
		return url, nil
	default:
		return l.LocalMount + ref, nil
	}
}

// ResolveForUpload 把本地文件上传到对象存储，返回对象 key。
// 签名 URL 短时效，绝不作为返回值持久化。存储未配置时返回 ("", false)，
// 调用方回落到本地文件直出。
func (l *Locator) ResolveForUpload(ctx context.Context, localPath, subPath, filename string) (string, bool) {
	if l.Store == nil || !l.Store.Configured() {
		return "", false
	}
	key := path.Join(l.BasePrefix, subPath, filename)
	if _, err := l.Store.Put(ctx, localPath, key); err != nil {
		log.Printf("上传对象存储失败，回落本地: %v", err)
		return "", false
	}
	return key, true
}

// LocalPath 把本地相对引用解析为磁盘绝对路径
func (l *Locator) LocalPath(ref string) string {
	return filepath.Join(l.OutputDir, filepath.FromSlash(ref))
}

// PublishRef 把引用转成生成后端可访问的 URL：
// 外部 URL 原样；对象 key 签名；本地文件先上传（uploads/ 下）再给 key 的签名 URL，
// 存储未配置时退回本地静态地址（仅本机 worker 可达）。
func (l *Locator) PublishRef(ctx context.Context, ref string) (string, error) {
	switch l.Classify(ref) {
	case RefExternal:
		return ref, nil
	case RefObjectKey:
		return l.ResolveForDisplay(ctx, ref)
	default:
		if key, ok := l.ResolveForUpload(ctx, l.LocalPath(ref), "uploads", path.Base(ref)); ok {
			return l.ResolveForDisplay(ctx, key)
		}
		return l.LocalMount + ref, nil
	}
}

// WalkDisplay 递归遍历 JSON 文档（map/slice/string），把对象 key 字段
// 就地替换为签名 URL。只改写 key：外部 URL 与本地相对路径原样保留，
// 持久化状态不受影响（调用方传入的是响应副本）。
func (l *Locator) WalkDisplay(ctx context.Context, v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, item := range val {
			val[k] = l.WalkDisplay(ctx, item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = l.WalkDisplay(ctx, item)
		}
		return val
	case string:
		if val != "" && l.Classify(val) == RefObjectKey {
			if url, err := l.ResolveForDisplay(ctx, val); err == nil {
				return url
			} else {
				log.Printf("签名失败，保留原始 key %s: %v", val, err)
			}
		}
		return val
	default:
		return v
	}
}
