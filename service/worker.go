package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"ComicGen-server/models"
)

// GenerateRequest 一次生成调用：prompt + 可选参考媒体 + 输出目标
type GenerateRequest struct {
	Prompt         string
	NegativePrompt string
	OutputPath     string                 // 本地落盘绝对路径
	RefImages      []string               // 参考媒体 URL（本地引用需先 PublishRef）
	Params         map[string]interface{} // 后端特定参数（duration/resolution/seed/voice 等）
}

// GenerationService 生成能力：每种媒体类型（图/视频/语音/合成）一个实例，
// 由配置选择 worker 端点。返回产物本地路径与后端耗时（秒）。
type GenerationService interface {
	Generate(ctx context.Context, req GenerateRequest) (string, float64, error)
}

// WorkerClient 通用 worker 客户端：提交生成请求拿 job id，
// 轮询 job 状态，完成后把资源下载到 OutputPath。
type WorkerClient struct {
	kind     string // image / video / tts / mixer，仅用于日志
	endpoint string
	http     *http.Client
}

// NewWorkerClient 无端点时返回 nil 接口，调用方以 nil 判断该能力是否可用
func NewWorkerClient(kind, endpoint string) GenerationService {
	if endpoint == "" {
		return nil
	}
	return &WorkerClient{
		kind:     kind,
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type workerJob struct {
	ID          string `json:"id"`
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Error       string `json:"error"`
	ResourceURL string `json:"resource_url"`
}

func (w *WorkerClient) Generate(ctx context.Context, req GenerateRequest) (string, float64, error) {
	start := time.Now()

	jobID, err := w.submit(ctx, req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", models.ErrBackend, err)
	}
	log.Printf("[%s] job submitted: %s", w.kind, jobID)

	resourceURL, err := w.poll(ctx, jobID)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", models.ErrBackend, err)
	}

	if err := downloadFile(ctx, resourceURL, req.OutputPath); err != nil {
		return "", 0, fmt.Errorf("%w: download: %v", models.ErrBackend, err)
	}
	return req.OutputPath, time.Since(start).Seconds(), nil
}

func (w *WorkerClient) submit(ctx context.Context, req GenerateRequest) (string, error) {
	body := map[string]interface{}{
		"prompt":          req.Prompt,
		"negative_prompt": req.NegativePrompt,
		"ref_images":      req.RefImages,
		"parameters":      req.Params,
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request failed: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.endpoint+"/v1/generate", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("worker status code: %d", resp.StatusCode)
	}

	var job workerJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return "", fmt.Errorf("decode response failed: %v", err)
	}
	if job.ID != "" {
		return job.ID, nil
	}
	if job.JobID != "" {
		return job.JobID, nil
	}
	return "", fmt.Errorf("response missing 'id'")
}

// poll 轮询 GET /v1/jobs/{job_id} 直到终态，返回资源 URL
func (w *WorkerClient) poll(ctx context.Context, jobID string) (string, error) {
	jobURL := fmt.Sprintf("%s/v1/jobs/%s", w.endpoint, jobID)

	timeout := time.After(30 * time.Minute)
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return "", fmt.Errorf("polling timeout")
		case <-ctx.Done():
			return "", fmt.Errorf("polling canceled: %v", ctx.Err())
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, jobURL, nil)
			if err != nil {
				return "", err
			}
			resp, err := w.http.Do(req)
			if err != nil {
				log.Printf("[%s] 轮询网络错误(重试中): %v", w.kind, err)
				continue
			}
			var job workerJob
			err = json.NewDecoder(resp.Body).Decode(&job)
			resp.Body.Close()
			if err != nil {
				log.Printf("[%s] 解析响应失败(重试中): %v", w.kind, err)
				continue
			}

			switch job.Status {
			case "finished", "success", "completed", "succeeded":
				if job.ResourceURL == "" {
					return "", fmt.Errorf("job finished but resource_url is empty")
				}
				return job.ResourceURL, nil
			case "failed", "error":
				return "", fmt.Errorf("worker reported failure: %s", job.Error)
			}
			// 其他状态继续轮询
		}
	}
}

// downloadFile 带指数退避重试下载资源，临时文件写完再原子重命名。
// 429/5xx 重试，其余状态码直接失败。
func downloadFile(ctx context.Context, url, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	tempPath := outputPath + ".tmp"

	client := &http.Client{Timeout: 60 * time.Second}
	backoff := time.Second
	var lastErr error

	for attempt := 0; attempt < 5; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("download status: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("download status: %d", resp.StatusCode)
		}

		f, err := os.Create(tempPath)
		if err != nil {
			resp.Body.Close()
			return err
		}
		_, err = io.Copy(f, resp.Body)
		resp.Body.Close()
		f.Close()
		if err != nil {
			os.Remove(tempPath)
			lastErr = err
			continue
		}
		return os.Rename(tempPath, outputPath)
	}
	return fmt.Errorf("download failed after retries: %v", lastErr)
}
