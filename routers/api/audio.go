package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 全量音频生成：对白 TTS + 音效/V2A + BGM
func GenerateAudio(c *gin.Context) {
	project, err := Pipe.GenerateAudio(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}

// 单帧对白重新合成，可调语速与音调
func GenerateDialogueLine(c *gin.Context) {
	var req struct {
		Speed float64 `json:"speed"`
		Pitch float64 `json:"pitch"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Speed == 0 {
		req.Speed = 1.0
	}
	if req.Pitch == 0 {
		req.Pitch = 1.0
	}
	project, err := Pipe.GenerateDialogueLine(c.Request.Context(), c.Param("project_id"), c.Param("frame_id"), req.Speed, req.Pitch)
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}
