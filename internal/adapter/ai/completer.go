package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github-star-rank/internal/common"
	"github-star-rank/internal/config"
	"github-star-rank/internal/domain"
	"github-star-rank/pkg/logger"

	"github.com/sirupsen/logrus"
)

// slowCallThreshold 超过这个耗时打 warn
const slowCallThreshold = 30 * time.Second

// HTTPCompleter 通过 HTTP 调用 OpenAI/Anthropic/Qwen 风格的接口，实现 port.Completer
type HTTPCompleter struct {
	provider Provider
	cfg      config.AIConfig
	client   *http.Client
	logger   logrus.FieldLogger
}

// CompleterOption 调整 HTTPCompleter
type CompleterOption func(*HTTPCompleter)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(client *http.Client) CompleterOption {
	return func(c *HTTPCompleter) {
		if client != nil {
			c.client = client
		}
	}
}

// WithCompleterLogger 注入 logger
func WithCompleterLogger(l logrus.FieldLogger) CompleterOption {
	return func(c *HTTPCompleter) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewHTTPCompleter 按 cfg.Provider 选择线格式
func NewHTTPCompleter(cfg config.AIConfig, opts ...CompleterOption) (*HTTPCompleter, error) {
	provider, err := NewProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, common.NewError(common.ErrCodeInvalidInput, "AI 模型配置不完整")
	}

	c := &HTTPCompleter{
		provider: provider,
		cfg:      cfg,
		client:   &http.Client{},
		logger:   logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithFields(logrus.Fields{"provider": provider.Name(), "model": cfg.Model})
	return c, nil
}

// Complete 发送单条用户消息，瞬时错误按固定间隔重试
func (c *HTTPCompleter) Complete(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error) {
	payload, err := c.provider.BuildPayload(Request{
		Model:       c.cfg.Model,
		Prompt:      prompt,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		JSON:        opts.JSON,
	})
	if err != nil {
		return "", common.WrapError(common.ErrCodeAIProcessing, "构造请求失败", err)
	}

	var text string
	attempt := 0
	err = common.Do(ctx, func() error {
		attempt++
		start := time.Now()

		out, callErr := c.post(ctx, payload)
		elapsed := time.Since(start)
		if callErr != nil {
			c.logger.WithError(callErr).WithFields(logrus.Fields{
				"attempt":  attempt,
				"duration": elapsed.String(),
			}).Warn("⚠️ AI 接口调用失败")
			return callErr
		}

		entry := c.logger.WithFields(logrus.Fields{"attempt": attempt, "duration": elapsed.String()})
		if elapsed > slowCallThreshold {
			entry.Warn("🐢 AI 调用耗时过长")
		} else {
			entry.Debug("AI 调用成功")
		}
		text = out
		return nil
	},
		common.WithMaxAttempts(c.cfg.RetryAttempts),
		common.WithFixedBackoff(c.cfg.RetryBackoff),
		common.WithRetryIf(common.IsTransient),
	)
	if err != nil {
		return "", common.WrapError(common.ErrCodeAIProcessing, "AI 接口调用失败", err)
	}
	return text, nil
}

func (c *HTTPCompleter) post(ctx context.Context, payload []byte) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header = c.provider.BuildHeaders(c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &common.HTTPStatusError{
			StatusCode: resp.StatusCode,
			URL:        c.cfg.BaseURL,
			Body:       truncate(strings.TrimSpace(string(body)), 300),
		}
	}

	text, err := c.provider.ExtractText(body)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.provider.Name(), err)
	}
	return text, nil
}

// truncate 按 rune 截断，日志里不会出现半个汉字
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
