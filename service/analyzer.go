package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"ComicGen-server/models"

	"github.com/google/uuid"
)

// StyleRecommendation 风格推荐结果
type StyleRecommendation struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
	Reason string `json:"reason"`
}

// ScriptOutline 文本解析产出的实体集合
type ScriptOutline struct {
	Characters []models.Character       `json:"characters"`
	Scenes     []models.Scene           `json:"scenes"`
	Props      []models.Prop            `json:"props"`
	Frames     []models.StoryboardFrame `json:"frames"`
}

// TextAnalyzer 文本分析能力：建项解析、风格推荐、prompt 润色
type TextAnalyzer interface {
	AnalyzeScript(ctx context.Context, title, text string) (*ScriptOutline, error)
	RecommendStyles(ctx context.Context, text string) ([]StyleRecommendation, error)
	PolishPrompt(ctx context.Context, draft string, refs []string) (string, error)
}

// NewAnalyzer LLM worker 配置了就走远端，否则用本地启发式解析
func NewAnalyzer(llmEndpoint string) TextAnalyzer {
	if llmEndpoint == "" {
		return &LocalAnalyzer{}
	}
	return &LLMAnalyzer{
		endpoint: llmEndpoint,
		http:     &http.Client{Timeout: 60 * time.Second},
		fallback: &LocalAnalyzer{},
	}
}

// ============================================================================
// LLM worker 实现
// ============================================================================

type LLMAnalyzer struct {
	endpoint string
	http     *http.Client
	fallback *LocalAnalyzer
}

func (a *LLMAnalyzer) post(ctx context.Context, path string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrBackend, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: llm worker status %d", models.ErrBackend, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *LLMAnalyzer) AnalyzeScript(ctx context.Context, title, text string) (*ScriptOutline, error) {
	var outline ScriptOutline
	err := a.post(ctx, "/v1/analyze_script", map[string]string{"title": title, "text": text}, &outline)
	if err != nil {
		// 解析失败不阻断建项，退回启发式
		return a.fallback.AnalyzeScript(ctx, title, text)
	}
	for i := range outline.Characters {
		if outline.Characters[i].ID == "" {
			outline.Characters[i].ID = uuid.NewString()
		}
		outline.Characters[i].Status = models.StatusPending
	}
	return &outline, nil
}

func (a *LLMAnalyzer) RecommendStyles(ctx context.Context, text string) ([]StyleRecommendation, error) {
	var out struct {
		Recommendations []StyleRecommendation `json:"recommendations"`
	}
	if err := a.post(ctx, "/v1/recommend_styles", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return out.Recommendations, nil
}

func (a *LLMAnalyzer) PolishPrompt(ctx context.Context, draft string, refs []string) (string, error) {
	var out struct {
		Polished string `json:"polished_prompt"`
	}
	err := a.post(ctx, "/v1/polish_prompt", map[string]interface{}{"draft": draft, "refs": refs}, &out)
	if err != nil {
		return "", err
	}
	return out.Polished, nil
}

// ============================================================================
// 本地启发式实现（无 LLM 时的确定性解析）
// ============================================================================

type LocalAnalyzer struct{}

var sentenceSplit = regexp.MustCompile(`[.!?。！？]+`)
var wordRe = regexp.MustCompile(`[A-Za-z]+`)
var locationRe = regexp.MustCompile(`(?i)(?:entered|enter|inside|into|in|at|reached)\s+(?:the\s+|a\s+|an\s+)?([a-z][a-z ]*?)(?:[,.!?]|$)`)
var dialogueRe = regexp.MustCompile(`["“]([^"”]+)["”]`)

// 句首大写词里排除掉的常见非人名
var nameStopwords = map[string]bool{
	"The": true, "A": true, "An": true, "He": true, "She": true, "It": true,
	"They": true, "I": true, "We": true, "You": true, "Then": true, "But": true,
	"And": true, "At": true, "In": true, "On": true, "His": true, "Her": true,
	"Their": true, "There": true, "This": true, "That": true, "When": true,
	"Suddenly": true, "Meanwhile": true, "Later": true, "After": true, "Before": true,
}

func (a *LocalAnalyzer) AnalyzeScript(_ context.Context, title, text string) (*ScriptOutline, error) {
	outline := &ScriptOutline{}

	sentences := []string{}
	for _, s := range sentenceSplit.Split(text, -1) {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}

	charByName := map[string]*models.Character{}
	sceneByName := map[string]*models.Scene{}
	currentScene := ""

	for _, sentence := range sentences {
		// 人名：首字母大写且不在停用词表里
		var names []string
		for _, w := range wordRe.FindAllString(sentence, -1) {
			if w[0] < 'A' || w[0] > 'Z' || nameStopwords[w] {
				continue
			}
			if _, ok := charByName[w]; !ok {
				c := &models.Character{
					ID:          uuid.NewString(),
					Name:        w,
					Description: sentence,
					Status:      models.StatusPending,
				}
				charByName[w] = c
				outline.Characters = append(outline.Characters, *c)
			}
			names = append(names, w)
		}

		// 地点短语 → 场景，场景随叙事推进切换
		if m := locationRe.FindStringSubmatch(sentence); m != nil {
			name := capitalize(strings.TrimSpace(m[1]))
			if _, ok := sceneByName[name]; !ok {
				s := &models.Scene{
					ID:          uuid.NewString(),
					Name:        name,
					Description: sentence,
					Status:      models.StatusPending,
				}
				sceneByName[name] = s
				outline.Scenes = append(outline.Scenes, *s)
			}
			currentScene = name
		}
		if currentScene == "" {
			name := "Opening"
			if _, ok := sceneByName[name]; !ok {
				s := &models.Scene{
					ID:          uuid.NewString(),
					Name:        name,
					Description: firstOr(sentences, title),
					Status:      models.StatusPending,
				}
				sceneByName[name] = s
				outline.Scenes = append(outline.Scenes, *s)
			}
			currentScene = name
		}

		// 每句一帧。帧引用当前场景里到此为止出场的所有角色，
		// 这样同场景的后续帧能把先出场的角色带进来。
		var charIDs []string
		for _, c := range outline.Characters {
			if sceneMentions(sentences, sentence, c.Name) {
				charIDs = append(charIDs, charByName[c.Name].ID)
			}
		}
		dialogue := ""
		if m := dialogueRe.FindStringSubmatch(sentence); m != nil {
			dialogue = m[1]
		}
		outline.Frames = append(outline.Frames, models.StoryboardFrame{
			ID:                uuid.NewString(),
			SceneID:           sceneByName[currentScene].ID,
			CharacterIDs:      charIDs,
			ActionDescription: sentence,
			CameraAngle:       "medium shot",
			Dialogue:          dialogue,
			Status:            models.StatusPending,
		})
	}

	return outline, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func firstOr(ss []string, def string) string {
	if len(ss) > 0 {
		return ss[0]
	}
	return def
}

// sceneMentions 角色是否在当前句或之前的句子中出现过
func sceneMentions(sentences []string, upto, name string) bool {
	for _, s := range sentences {
		if strings.Contains(s, name) {
			return true
		}
		if s == upto {
			break
		}
	}
	return false
}

// StylePresets 返回内置画风预设的副本
func StylePresets() []StyleRecommendation {
	out := make([]StyleRecommendation, len(builtinStyles))
	copy(out, builtinStyles)
	return out
}

var builtinStyles = []StyleRecommendation{
	{ID: "cinematic", Name: "Cinematic", Prompt: "cinematic lighting, movie still, 8k, highly detailed, realistic"},
	{ID: "dark_fantasy", Name: "Dark Fantasy", Prompt: "dark fantasy, dramatic shadows, ancient atmosphere, oil painting style"},
	{ID: "anime", Name: "Anime", Prompt: "anime style, vibrant colors, clean lines, studio quality"},
	{ID: "cyberpunk", Name: "Cyberpunk", Prompt: "cyberpunk, neon lights, rain-slicked streets, high contrast"},
}

func (a *LocalAnalyzer) RecommendStyles(_ context.Context, text string) ([]StyleRecommendation, error) {
	lower := strings.ToLower(text)
	var recs []StyleRecommendation
	switch {
	case strings.Contains(lower, "ruins") || strings.Contains(lower, "castle") || strings.Contains(lower, "sword"):
		recs = append(recs, withReason(builtinStyles[1], "ancient/fantasy setting detected"))
	case strings.Contains(lower, "neon") || strings.Contains(lower, "android") || strings.Contains(lower, "city"):
		recs = append(recs, withReason(builtinStyles[3], "futuristic urban setting detected"))
	}
	recs = append(recs, withReason(builtinStyles[0], "general-purpose default"))
	return recs, nil
}

func withReason(s StyleRecommendation, reason string) StyleRecommendation {
	s.Reason = reason
	return s
}

func (a *LocalAnalyzer) PolishPrompt(_ context.Context, draft string, refs []string) (string, error) {
	draft = strings.TrimSpace(draft)
	if draft == "" {
		return "", nil
	}
	if len(refs) > 0 {
		return fmt.Sprintf("%s. Featuring: %s.", strings.TrimSuffix(draft, "."), strings.Join(refs, ", ")), nil
	}
	return draft, nil
}
