package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// 配置优先级约定：显式函数参数 > 配置文件 > 环境变量默认值。
// InitConfig 只负责后两级，显式参数由调用方覆盖。
type Config struct {
	Server struct {
		Port      string `yaml:"port"`
		OutputDir string `yaml:"output_dir"` // 本地产物根目录，挂载到 /files
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	Worker struct {
		ImageAPI string `yaml:"image_api"`
		VideoAPI string `yaml:"video_api"`
		TTSAPI   string `yaml:"tts_api"`
		LLMAPI   string `yaml:"llm_api"`
		MixerAPI string `yaml:"mixer_api"` // 成片合成（拼接/混音/字幕）外部工具
	} `yaml:"worker"`
	MinIO struct {
		Endpoint    string `yaml:"endpoint"`
		AccessKey   string `yaml:"access_key"`
		SecretKey   string `yaml:"secret_key"`
		Bucket      string `yaml:"bucket"`
		UseSSL      bool   `yaml:"use_ssl"`
		BasePrefix  string `yaml:"base_prefix"`    // 对象 key 前缀，例如 "comic"
		SignTTLMin  int    `yaml:"sign_ttl_min"`   // 签名 URL 有效期（分钟）
		SignTimeout int    `yaml:"sign_timeout_s"` // 签名调用客户端超时（秒）
	} `yaml:"minio"`
	Defaults struct {
		StyleSuffix  string `yaml:"style_suffix"`
		Concurrency  int    `yaml:"concurrency"`
		MaxBatchSize int    `yaml:"max_batch_size"`
	} `yaml:"defaults"`
}

var AppConfig *Config

func InitConfig() {
	AppConfig = &Config{}
	f, err := os.Open("config/config.yaml")
	if err != nil {
		log.Printf("配置文件读取失败，使用环境变量默认值: %v", err)
	} else {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(AppConfig); err != nil {
			log.Fatalf("配置文件解析失败: %v", err)
		}
	}
	applyEnvDefaults(AppConfig)
}

// applyEnvDefaults 对未在配置文件中给出的字段回落到环境变量
func applyEnvDefaults(c *Config) {
	fill(&c.Server.Port, "SERVER_PORT", ":8000")
	fill(&c.Server.OutputDir, "OUTPUT_DIR", "output")
	fill(&c.MySQL.DSN, "MYSQL_DSN", "")
	fill(&c.Redis.Addr, "REDIS_ADDR", "127.0.0.1:6379")
	fill(&c.Redis.Password, "REDIS_PASSWORD", "")
	fill(&c.Worker.ImageAPI, "IMAGE_WORKER_ADDR", "")
	fill(&c.Worker.VideoAPI, "VIDEO_WORKER_ADDR", "")
	fill(&c.Worker.TTSAPI, "TTS_WORKER_ADDR", "")
	fill(&c.Worker.LLMAPI, "LLM_WORKER_ADDR", "")
	fill(&c.Worker.MixerAPI, "MIXER_WORKER_ADDR", "")
	fill(&c.MinIO.Endpoint, "OSS_ENDPOINT", "")
	fill(&c.MinIO.AccessKey, "OSS_ACCESS_KEY_ID", "")
	fill(&c.MinIO.SecretKey, "OSS_ACCESS_KEY_SECRET", "")
	fill(&c.MinIO.Bucket, "OSS_BUCKET_NAME", "")
	fill(&c.MinIO.BasePrefix, "OSS_BASE_PATH", "comic")
	if c.MinIO.SignTTLMin <= 0 {
		c.MinIO.SignTTLMin = 60
	}
	if c.MinIO.SignTimeout <= 0 {
		c.MinIO.SignTimeout = 5
	}
	fill(&c.Defaults.StyleSuffix, "STYLE_SUFFIX",
		"cinematic lighting, movie still, 8k, highly detailed, realistic")
	if c.Defaults.Concurrency <= 0 {
		c.Defaults.Concurrency = 5
	}
	if c.Defaults.MaxBatchSize <= 0 {
		c.Defaults.MaxBatchSize = 4
	}
}

func fill(dst *string, env, def string) {
	if *dst != "" {
		return
	}
	if v := os.Getenv(env); v != "" {
		*dst = v
		return
	}
	*dst = def
}

func (c *Config) SignTTL() time.Duration {
	return time.Duration(c.MinIO.SignTTLMin) * time.Minute
}

func (c *Config) SignTimeoutDuration() time.Duration {
	return time.Duration(c.MinIO.SignTimeout) * time.Second
}
