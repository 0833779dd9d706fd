package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 上传图片/音频文件，优先转存对象存储，返回可持久化引用
func UploadFile(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 file 字段: " + err.Error()})
		return
	}

	ext := filepath.Ext(file.Filename)
	name := uuid.NewString() + ext
	rel := filepath.ToSlash(filepath.Join("uploads", name))
	dst := Pipe.Locator.LocalPath(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建上传目录失败: " + err.Error()})
		return
	}
	if err := c.SaveUploadedFile(file, dst); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存文件失败: " + err.Error()})
		return
	}

	// 转存成功返回对象 key，失败退回本地相对路径
	ref := rel
	if key, ok := Pipe.Locator.ResolveForUpload(c.Request.Context(), dst, "uploads", name); ok {
		ref = key
	}
	display, err := Pipe.Locator.ResolveForDisplay(c.Request.Context(), ref)
	if err != nil {
		display = ""
	}
	c.JSON(http.StatusOK, gin.H{"ref": ref, "url": display, "filename": file.Filename})
}
