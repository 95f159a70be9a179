package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Request 一次补全请求里与后端无关的部分
type Request struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
	JSON        bool
}

// Provider 一种 AI 接口的线格式。新增后端只需要实现这三个方法并注册。
type Provider interface {
	Name() string
	BuildPayload(req Request) ([]byte, error)
	BuildHeaders(apiKey string) http.Header
	ExtractText(body []byte) (string, error)
}

// ErrEmptyCompletion 后端返回成功但没有任何文本
var ErrEmptyCompletion = errors.New("AI 返回内容为空")

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func userMessage(prompt string) []message {
	return []message{{Role: "user", Content: prompt}}
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Provider{
		"openai":    func() Provider { return openAIProvider{} },
		"anthropic": func() Provider { return anthropicProvider{} },
		"qwen":      func() Provider { return qwenProvider{} },
	}
)

// RegisterProvider 注册新的线格式，同名覆盖
func RegisterProvider(name string, factory func() Provider) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = factory
}

// NewProvider 按名字查找线格式，配置阶段调用
func NewProvider(name string) (Provider, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("未知的 AI provider %q，可选: %s", name, strings.Join(providerNames(), ", "))
	}
	return factory(), nil
}

func providerNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --- OpenAI 兼容 (OpenAI / DeepSeek / Ollama 等) ---

type openAIProvider struct{}

type openAIPayload struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (openAIProvider) Name() string { return "openai" }

func (openAIProvider) BuildPayload(req Request) ([]byte, error) {
	payload := openAIPayload{
		Model:       req.Model,
		Messages:    userMessage(req.Prompt),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return json.Marshal(payload)
}

// BuildHeaders 没有 key 时不带 Authorization，本地 Ollama 之类不需要
func (openAIProvider) BuildHeaders(apiKey string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
	return h
}

func (openAIProvider) ExtractText(body []byte) (string, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("解析 openai 响应失败: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

// --- Anthropic messages ---

type anthropicProvider struct{}

const anthropicVersion = "2023-06-01"

type anthropicPayload struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (anthropicProvider) Name() string { return "anthropic" }

// BuildPayload messages 接口没有 JSON 模式开关，靠提示词约束
func (anthropicProvider) BuildPayload(req Request) ([]byte, error) {
	return json.Marshal(anthropicPayload{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Messages:    userMessage(req.Prompt),
		Temperature: req.Temperature,
	})
}

func (anthropicProvider) BuildHeaders(apiKey string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("x-api-key", apiKey)
	h.Set("anthropic-version", anthropicVersion)
	return h
}

// ExtractText 取第一个 text 块
func (anthropicProvider) ExtractText(body []byte) (string, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("解析 anthropic 响应失败: %w", err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			return block.Text, nil
		}
	}
	return "", ErrEmptyCompletion
}

// --- 通义千问 DashScope (input/parameters 信封) ---

type qwenProvider struct{}

type qwenPayload struct {
	Model      string         `json:"model"`
	Input      qwenInput      `json:"input"`
	Parameters qwenParameters `json:"parameters"`
}

type qwenInput struct {
	Messages []message `json:"messages"`
}

type qwenParameters struct {
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	ResultFormat string  `json:"result_format"`
}

type qwenResponse struct {
	Output struct {
		Text    string `json:"text"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
}

func (qwenProvider) Name() string { return "qwen" }

func (qwenProvider) BuildPayload(req Request) ([]byte, error) {
	return json.Marshal(qwenPayload{
		Model: req.Model,
		Input: qwenInput{Messages: userMessage(req.Prompt)},
		Parameters: qwenParameters{
			Temperature:  req.Temperature,
			MaxTokens:    req.MaxTokens,
			ResultFormat: "message",
		},
	})
}

func (qwenProvider) BuildHeaders(apiKey string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", "Bearer "+apiKey)
	return h
}

// ExtractText message 格式优先，老的 text 格式兜底
func (qwenProvider) ExtractText(body []byte) (string, error) {
	var resp qwenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("解析 qwen 响应失败: %w", err)
	}
	if len(resp.Output.Choices) > 0 && strings.TrimSpace(resp.Output.Choices[0].Message.Content) != "" {
		return resp.Output.Choices[0].Message.Content, nil
	}
	if strings.TrimSpace(resp.Output.Text) != "" {
		return resp.Output.Text, nil
	}
	return "", ErrEmptyCompletion
}
