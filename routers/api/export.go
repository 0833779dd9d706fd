package api

import (
	"net/http"

	"ComicGen-server/service"

	"github.com/gin-gonic/gin"
)

// 合成整片：拼接选定视频与音轨，产物引用写回项目
func MergeVideos(c *gin.Context) {
	var req struct {
		Resolution   string `json:"resolution"`
		Format       string `json:"format"`
		Subtitles    string `json:"subtitles"` // burn-in / none
		AllowMissing bool   `json:"allow_missing"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project, err := Pipe.MergeVideos(c.Request.Context(), c.Param("project_id"), service.ExportOptions{
		Resolution:   req.Resolution,
		Format:       req.Format,
		Subtitles:    req.Subtitles,
		AllowMissing: req.AllowMissing,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}
