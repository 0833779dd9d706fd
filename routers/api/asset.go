package api

import (
	"net/http"

	"ComicGen-server/service"

	"github.com/gin-gonic/gin"
)

// 批量生成全部资产参考图（角色/场景/道具），锁定项跳过
func GenerateAssets(c *gin.Context) {
	project, err := Pipe.GenerateAssets(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}

// 生成单个资产
func GenerateAsset(c *gin.Context) {
	var req struct {
		AssetType      string `json:"asset_type"`
		Mode           string `json:"mode"`
		Prompt         string `json:"prompt"`
		StylePrompt    string `json:"style_prompt"`
		NegativePrompt string `json:"negative_prompt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.AssetType == "" {
		req.AssetType = "character"
	}
	project, err := Pipe.GenerateAsset(c.Request.Context(), c.Param("project_id"), service.AssetRequest{
		AssetID:        c.Param("asset_id"),
		AssetType:      req.AssetType,
		Mode:           req.Mode,
		Prompt:         req.Prompt,
		StylePrompt:    req.StylePrompt,
		NegativePrompt: req.NegativePrompt,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}

// 切换资产锁定状态
func ToggleAssetLock(c *gin.Context) {
	var req struct {
		AssetType string `json:"asset_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project, err := Pipe.ToggleAssetLock(c.Param("project_id"), req.AssetType, c.Param("asset_id"))
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}

// 手工替换资产图片（指向上传产物的引用）
func UpdateAssetImage(c *gin.Context) {
	var req struct {
		AssetType string `json:"asset_type"`
		ImageURL  string `json:"image_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ImageURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_url 不能为空"})
		return
	}
	project, err := Pipe.UpdateAssetImage(c.Param("project_id"), req.AssetType, c.Param("asset_id"), req.ImageURL)
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}

// 更新资产描述
func UpdateAssetDescription(c *gin.Context) {
	var req struct {
		AssetType   string `json:"asset_type"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project, err := Pipe.UpdateAssetDescription(c.Param("project_id"), req.AssetType, c.Param("asset_id"), req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}

// 角色绑定音色
func BindVoice(c *gin.Context) {
	var req struct {
		VoiceID   string `json:"voice_id"`
		VoiceName string `json:"voice_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project, err := Pipe.BindVoice(c.Param("project_id"), c.Param("asset_id"), req.VoiceID, req.VoiceName)
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}

// 可选音色列表
func ListVoices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"voices": Pipe.Audio.AvailableVoices()})
}
