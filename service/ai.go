package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marcussviniciusa/lyz-sub000/config"
	"github.com/marcussviniciusa/lyz-sub000/model"
)

const analysisSystemPrompt = `You are a clinical laboratory analysis assistant. Analyze the lab report content and respond with JSON containing:
"summary": a short clinician-readable overview,
"outOfRange": an array of out-of-range values, each with "name", "value", "unit", "referenceRange", "interpretation",
"recommendations": an array of actionable recommendation strings.
Respond with JSON only.`

// Analyzer is the opaque AI invocation collaborator: content in,
// unstructured JSON or text out. The normalizer deals with whatever shape
// comes back.
type Analyzer interface {
	AnalyzeText(ctx context.Context, text string) (any, error)
	AnalyzeImage(ctx context.Context, data []byte, mimeType string) (any, error)
}

// OpenAIService calls the chat completions API for report analysis
type OpenAIService struct {
	apiURL      string
	apiKey      string
	model       string
	visionModel string
	reqTimeout  time.Duration
	httpClient  *http.Client
}

func NewOpenAIService(cfg *config.AIConfig) *OpenAIService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &OpenAIService{
		apiURL:      strings.TrimRight(cfg.APIURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		visionModel: cfg.VisionModel,
		reqTimeout:  timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// AnalyzeText submits extracted report text for analysis.
func (s *OpenAIService) AnalyzeText(ctx context.Context, text string) (any, error) {
	payload := map[string]any{
		"model": s.model,
		"messages": []map[string]any{
			{"role": "system", "content": analysisSystemPrompt},
			{"role": "user", "content": text},
		},
		"temperature": 0.2,
	}
	return s.complete(ctx, payload)
}

// AnalyzeImage submits a scanned report image for vision analysis.
func (s *OpenAIService) AnalyzeImage(ctx context.Context, data []byte, mimeType string) (any, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))

	payload := map[string]any{
		"model": s.visionModel,
		"messages": []map[string]any{
			{"role": "system", "content": analysisSystemPrompt},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": "Analyze this lab report image."},
				{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
			}},
		},
		"temperature": 0.2,
	}
	return s.complete(ctx, payload)
}

// complete performs one chat completion call. The returned value is the raw
// message content: decoded JSON when the model produced valid JSON, the raw
// string otherwise. Errors are always *model.AnalysisError.
func (s *OpenAIService) complete(ctx context.Context, payload map[string]any) (any, error) {
	if strings.TrimSpace(s.apiKey) == "" {
		return nil, model.NewAnalysisError(model.AnalysisUpstreamUnavailable,
			errors.New("ai api key is not configured"))
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return nil, model.NewAnalysisError(model.AnalysisMalformedResponse,
			fmt.Errorf("encode payload: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, s.reqTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/chat/completions", buf)
	if err != nil {
		return nil, model.NewAnalysisError(model.AnalysisUpstreamUnavailable,
			fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, model.NewAnalysisError(model.AnalysisTimeout, err)
		}
		return nil, model.NewAnalysisError(model.AnalysisUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewAnalysisError(model.AnalysisUpstreamUnavailable,
			fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, s.classifyAPIError(resp.StatusCode, body)
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, model.NewAnalysisError(model.AnalysisMalformedResponse,
			fmt.Errorf("decode response: %w", err))
	}
	if len(response.Choices) == 0 {
		return nil, model.NewAnalysisError(model.AnalysisMalformedResponse,
			errors.New("no choices returned"))
	}

	content := strings.TrimSpace(response.Choices[0].Message.Content)
	content = stripCodeFence(content)

	// Models sometimes wrap JSON in prose; pass the raw string through and
	// let the normalizer handle it
	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return content, nil
	}
	return decoded, nil
}

func (s *OpenAIService) classifyAPIError(status int, body []byte) *model.AnalysisError {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}

	msg := string(body)
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "context length") || strings.Contains(lower, "token"):
		return model.NewAnalysisError(model.AnalysisTokenLimit,
			fmt.Errorf("status %d: %s", status, msg))
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return model.NewAnalysisError(model.AnalysisUpstreamUnavailable,
			fmt.Errorf("status %d: %s", status, msg))
	default:
		return model.NewAnalysisError(model.AnalysisMalformedResponse,
			fmt.Errorf("status %d: %s", status, msg))
	}
}

// stripCodeFence removes a markdown ```json fence if the model added one.
func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
