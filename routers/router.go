package routers

import (
	"ComicGen-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter(outputDir string) *gin.Engine {
	r := gin.Default()
	r.Static("/files", outputDir)
	v1 := r.Group("/v1/api")
	{
		v1.POST("/projects", api.CreateProject)
		v1.GET("/projects/:project_id", api.GetProject)
		v1.DELETE("/projects/:project_id", api.DeleteProject)
		v1.POST("/projects/:project_id/reparse", api.ReparseProject)
		v1.PUT("/projects/:project_id/style", api.UpdateStyle)
		v1.PUT("/projects/:project_id/art-direction", api.SaveArtDirection)
		v1.POST("/projects/:project_id/styles/analyze", api.AnalyzeStyles)
		v1.GET("/styles/presets", api.ListStylePresets)
		v1.POST("/prompts/polish", api.PolishPrompt)

		v1.POST("/projects/:project_id/assets/generate", api.GenerateAssets)
		v1.POST("/projects/:project_id/assets/:asset_id/generate", api.GenerateAsset)
		v1.POST("/projects/:project_id/assets/:asset_id/lock", api.ToggleAssetLock)
		v1.PUT("/projects/:project_id/assets/:asset_id/image", api.UpdateAssetImage)
		v1.PUT("/projects/:project_id/assets/:asset_id/description", api.UpdateAssetDescription)
		v1.PUT("/projects/:project_id/assets/:asset_id/voice", api.BindVoice)
		v1.GET("/voices", api.ListVoices)

		v1.POST("/projects/:project_id/storyboard/generate", api.GenerateStoryboard)
		v1.POST("/projects/:project_id/frames/:frame_id/render", api.RenderFrame)
		v1.POST("/projects/:project_id/frames/:frame_id/lock", api.ToggleFrameLock)
		v1.POST("/projects/:project_id/frames/:frame_id/video/select", api.SelectVideo)

		v1.POST("/projects/:project_id/video-tasks", api.CreateVideoTasks)
		v1.GET("/projects/:project_id/video-tasks/:task_id", api.GetVideoTask)
		v1.POST("/projects/:project_id/video-tasks/:task_id/cancel", api.CancelVideoTask)

		v1.POST("/projects/:project_id/audio/generate", api.GenerateAudio)
		v1.POST("/projects/:project_id/frames/:frame_id/dialogue", api.GenerateDialogueLine)

		v1.POST("/projects/:project_id/export", api.MergeVideos)
		v1.POST("/upload", api.UploadFile)
	}
	r.GET("/projects/:project_id/tasks/:task_id/wss", api.TaskProgressWebSocket)
	return r
}
