package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/digkill/LetterDesk/internal/models"
)

type TaskConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
	PollInterval   time.Duration
	MaxAttempts    int
}

// TaskGenerator drafts letters through an asynchronous task API: it creates a
// job, then polls the job record until the text is ready.
type TaskGenerator struct {
	apiKey       string
	baseURL      string
	model        string
	pollInterval time.Duration
	maxAttempts  int
	httpClient   *http.Client
	log          *slog.Logger
}

func NewTaskGenerator(cfg TaskConfig, log *slog.Logger) *TaskGenerator {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 30
	}
	return &TaskGenerator{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		model:        cfg.Model,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		httpClient:   &http.Client{Timeout: timeout},
		log:          log,
	}
}

func (c *TaskGenerator) Generate(ctx context.Context, docType models.DocType, fields map[string]string) (string, error) {
	payload := map[string]any{
		"model": c.model,
		"input": map[string]any{
			"prompt":            BuildPrompt(docType, fields),
			"temperature":       Temperature,
			"max_output_tokens": MaxOutputTokens,
		},
	}
	taskID, err := c.createTask(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	text, err := c.pollTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (c *TaskGenerator) endpoint(path string, query url.Values) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if query != nil {
		ref.RawQuery = query.Encode()
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *TaskGenerator) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status=%d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("task api request failed", "status", resp.StatusCode, "path", req.URL.Path, "body", truncateBody(rawBody))
		}
		return nil, fmt.Errorf("task api error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}
	return rawBody, nil
}

func (c *TaskGenerator) createTask(ctx context.Context, payload map[string]any) (string, error) {
	fullURL, err := c.endpoint("/api/v1/jobs/createTask", nil)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	rawBody, err := c.do(req)
	if err != nil {
		return "", err
	}

	var createResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			TaskID string `json:"taskId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &createResp); err != nil {
		return "", fmt.Errorf("decode create task response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if createResp.Code == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: %s", ErrRateLimited, createResp.Msg)
	}
	if createResp.Code != http.StatusOK {
		return "", fmt.Errorf("create task failed: code=%d msg=%s", createResp.Code, createResp.Msg)
	}
	if createResp.Data.TaskID == "" {
		return "", fmt.Errorf("empty taskId in response")
	}
	if c.log != nil {
		c.log.Info("generation task created", "task_id", createResp.Data.TaskID, "model", c.model)
	}
	return createResp.Data.TaskID, nil
}

func (c *TaskGenerator) pollTask(ctx context.Context, taskID string) (string, error) {
	fullURL, err := c.endpoint("/api/v1/jobs/recordInfo", url.Values{"taskId": {taskID}})
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return "", fmt.Errorf("new request: %w", err)
		}
		rawBody, err := c.do(req)
		if err != nil {
			return "", fmt.Errorf("get task status: %w", err)
		}

		var statusResp struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
			Data struct {
				State      string `json:"state"`
				ResultJSON string `json:"resultJson"`
				FailCode   string `json:"failCode"`
				FailMsg    string `json:"failMsg"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rawBody, &statusResp); err != nil {
			return "", fmt.Errorf("decode status response: %w (body=%s)", err, truncateBody(rawBody))
		}
		if statusResp.Code != http.StatusOK {
			return "", fmt.Errorf("get task status failed: code=%d msg=%s", statusResp.Code, statusResp.Msg)
		}

		switch statusResp.Data.State {
		case "success":
			if statusResp.Data.ResultJSON == "" {
				return "", ErrEmptyResponse
			}
			var result struct {
				ResultText string `json:"resultText"`
			}
			if err := json.Unmarshal([]byte(statusResp.Data.ResultJSON), &result); err != nil {
				return "", fmt.Errorf("parse resultJson: %w", err)
			}
			if c.log != nil {
				c.log.Info("generation task completed", "task_id", taskID, "attempt", attempt+1)
			}
			return result.ResultText, nil

		case "fail":
			failMsg := statusResp.Data.FailMsg
			if failMsg == "" {
				failMsg = "unknown error"
			}
			if statusResp.Data.FailCode == "429" {
				return "", fmt.Errorf("%w: %s", ErrRateLimited, failMsg)
			}
			return "", fmt.Errorf("task failed: %s (code: %s)", failMsg, statusResp.Data.FailCode)

		case "waiting", "generating", "processing", "queued", "queueing":
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.pollInterval):
			}

		default:
			return "", fmt.Errorf("unknown task state: %s", statusResp.Data.State)
		}
	}

	return "", fmt.Errorf("task timeout after %d attempts", c.maxAttempts)
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
