package main

import (
	"fmt"
	"os"

	"ComicGen-server/config"
	"ComicGen-server/models"
	"ComicGen-server/routers"
	"ComicGen-server/routers/api"
	"ComicGen-server/service"
)

func main() {
	config.InitConfig()
	cfg := config.AppConfig
	fmt.Println("Server starting on port", cfg.Server.Port)

	if err := os.MkdirAll(cfg.Server.OutputDir, 0o755); err != nil {
		fmt.Println("创建输出目录失败:", err)
		os.Exit(1)
	}

	models.InitDB()
	fmt.Println("Database initialized")

	service.InitQueue()
	fmt.Println("Queue initialized")

	oss := service.NewMinioStore(cfg)
	if oss.Configured() {
		fmt.Println("MinIO initialized")
	} else {
		fmt.Println("MinIO not configured, falling back to local references")
	}

	locator := &service.Locator{
		BasePrefix: cfg.MinIO.BasePrefix,
		LocalMount: "/files/",
		OutputDir:  cfg.Server.OutputDir,
		Store:      oss,
	}
	store := models.NewStore(models.GormDB)

	video := &service.VideoTaskManager{
		Videos:   service.NewWorkerClient("video", cfg.Worker.VideoAPI),
		Locator:  locator,
		Store:    store,
		Enqueue:  service.EnqueueVideoTask,
		MaxBatch: cfg.Defaults.MaxBatchSize,
	}

	api.Pipe = &service.Pipeline{
		Store: store,
		Assets: &service.AssetGenerator{
			Images:      service.NewWorkerClient("image", cfg.Worker.ImageAPI),
			Locator:     locator,
			StyleSuffix: cfg.Defaults.StyleSuffix,
		},
		Storyboard: &service.StoryboardGenerator{
			Images:  service.NewWorkerClient("image", cfg.Worker.ImageAPI),
			Locator: locator,
		},
		Video: video,
		Audio: &service.AudioGenerator{
			Speech:  service.NewWorkerClient("tts", cfg.Worker.TTSAPI),
			Locator: locator,
		},
		Export: &service.ExportManager{
			Mixer:   service.NewWorkerClient("mixer", cfg.Worker.MixerAPI),
			Locator: locator,
		},
		Analyzer: service.NewAnalyzer(cfg.Worker.LLMAPI),
		Locator:  locator,
	}

	processor := service.NewProcessor(video)
	processor.Start(cfg.Defaults.Concurrency)

	r := routers.InitRouter(cfg.Server.OutputDir)
	r.Run(cfg.Server.Port)
}
