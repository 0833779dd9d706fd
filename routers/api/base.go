package api

import (
	"errors"
	"net/http"

	"ComicGen-server/models"
	"ComicGen-server/service"

	"github.com/gin-gonic/gin"
)

// Pipe 由 main 初始化后注入
var Pipe *service.Pipeline

// 业务错误 → HTTP 状态码
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrMissingDependency):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrLocked):
		c.JSON(http.StatusLocked, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrBackend), errors.Is(err, models.ErrSigning):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// respondProject 输出展示文档：对象 key 已换成签名 URL
func respondProject(c *gin.Context, p *models.Project) {
	doc, err := Pipe.DisplayDocument(c.Request.Context(), p)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "序列化项目失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": doc})
}
