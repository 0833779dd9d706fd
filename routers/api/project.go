package api

import (
	"net/http"
	"time"

	"ComicGen-server/models"
	"ComicGen-server/service"

	"github.com/gin-gonic/gin"
)

// 创建项目：解析小说文本生成角色/场景/分镜草稿
func CreateProject(c *gin.Context) {
	var req struct {
		Title        string `json:"title"`
		Text         string `json:"text"`
		SkipAnalysis bool   `json:"skip_analysis"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text 不能为空"})
		return
	}
	if req.Title == "" {
		req.Title = "Untitled"
	}

	project, err := Pipe.CreateProject(c.Request.Context(), req.Title, req.Text, req.SkipAnalysis)
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}

// 获取项目详情
func GetProject(c *gin.Context) {
	project, err := Pipe.GetProject(c.Param("project_id"))
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}

// 重新解析文本，替换项目内全部实体
func ReparseProject(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text 不能为空"})
		return
	}
	project, err := Pipe.ReparseProject(c.Request.Context(), c.Param("project_id"), req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}

// 删除项目
func DeleteProject(c *gin.Context) {
	if err := Pipe.DeleteProject(c.Param("project_id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"deleteAt": time.Now(),
		"message":  "项目已删除",
	})
}

// 更新项目风格
func UpdateStyle(c *gin.Context) {
	var req struct {
		StylePreset string `json:"style_preset"`
		StylePrompt string `json:"style_prompt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project, err := Pipe.UpdateStyle(c.Param("project_id"), req.StylePreset, req.StylePrompt)
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}

// 保存美术指导配置
func SaveArtDirection(c *gin.Context) {
	var req models.ArtDirection
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project, err := Pipe.SaveArtDirection(c.Param("project_id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	respondProject(c, project)
}

// 为项目文本推荐美术风格
func AnalyzeStyles(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recs, err := Pipe.AnalyzeStyles(c.Request.Context(), c.Param("project_id"), req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

// 内置画风预设列表
func ListStylePresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": service.StylePresets()})
}

// 润色生成 prompt
func PolishPrompt(c *gin.Context) {
	var req struct {
		Draft     string   `json:"draft"`
		RefImages []string `json:"ref_images"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	polished, err := Pipe.PolishPrompt(c.Request.Context(), req.Draft, req.RefImages)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompt": polished})
}
