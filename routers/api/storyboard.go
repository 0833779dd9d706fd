package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 批量生成分镜图，已完成的帧跳过
func GenerateStoryboard(c *gin.Context) {
	project, err := Pipe.GenerateStoryboard(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}

// 带自定义 prompt 与参考图重绘单帧
func RenderFrame(c *gin.Context) {
	var req struct {
		Prompt    string   `json:"prompt"`
		RefImages []string `json:"ref_images"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project, err := Pipe.RenderFrame(c.Request.Context(), c.Param("project_id"), c.Param("frame_id"), req.Prompt, req.RefImages)
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}

// 切换分镜锁定状态
func ToggleFrameLock(c *gin.Context) {
	project, err := Pipe.ToggleFrameLock(c.Param("project_id"), c.Param("frame_id"))
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}
