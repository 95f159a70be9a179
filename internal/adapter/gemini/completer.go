package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github-star-rank/internal/common"
	"github-star-rank/internal/config"
	"github-star-rank/internal/domain"
	"github-star-rank/pkg/logger"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrEmptyResponse Gemini 没有返回任何文本
var ErrEmptyResponse = errors.New("gemini 返回内容为空")

// generator 抽出 GenerativeModel 的调用方法，测试里可以替换
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Completer 通过 Gemini SDK 实现 port.Completer
type Completer struct {
	client    *genai.Client
	textModel generator
	jsonModel generator
	cfg       config.AIConfig
	logger    logrus.FieldLogger
}

// NewCompleter 创建 Gemini 客户端。JSON 模式用单独的模型实例，避免并发调用互相改配置。
func NewCompleter(ctx context.Context, cfg config.AIConfig, log logrus.FieldLogger) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, common.NewError(common.ErrCodeInvalidInput, "缺少 GEMINI_API_KEY")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, common.WrapError(common.ErrCodeAIProcessing, "创建 Gemini 客户端失败", err)
	}

	c := newCompleter(cfg, newModel(client, cfg, false), newModel(client, cfg, true), log)
	c.client = client
	return c, nil
}

func newCompleter(cfg config.AIConfig, textModel, jsonModel generator, log logrus.FieldLogger) *Completer {
	return &Completer{
		textModel: textModel,
		jsonModel: jsonModel,
		cfg:       cfg,
		logger:    logger.OrDefault(log).WithFields(logrus.Fields{"provider": "gemini", "model": cfg.Model}),
	}
}

func newModel(client *genai.Client, cfg config.AIConfig, jsonMode bool) *genai.GenerativeModel {
	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(float32(cfg.Temperature))
	model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	if jsonMode {
		model.ResponseMIMEType = "application/json"
	}
	return model
}

// Close 释放底层连接
func (c *Completer) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Complete 单轮生成，瞬时错误按固定间隔重试
func (c *Completer) Complete(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error) {
	model := c.textModel
	if opts.JSON {
		model = c.jsonModel
	}

	var text string
	attempt := 0
	err := common.Do(ctx, func() error {
		attempt++
		start := time.Now()

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		resp, callErr := model.GenerateContent(callCtx, genai.Text(prompt))
		if callErr == nil {
			text, callErr = responseText(resp)
		}
		if callErr != nil {
			c.logger.WithError(callErr).WithField("attempt", attempt).Warn("⚠️ Gemini 调用失败")
			return classify(callErr)
		}
		c.logger.WithFields(logrus.Fields{"attempt": attempt, "duration": time.Since(start).String()}).Debug("Gemini 调用成功")
		return nil
	},
		common.WithMaxAttempts(c.cfg.RetryAttempts),
		common.WithFixedBackoff(c.cfg.RetryBackoff),
		common.WithRetryIf(common.IsTransient),
	)
	if err != nil {
		return "", common.WrapError(common.ErrCodeAIProcessing, "Gemini 调用失败", err)
	}
	return text, nil
}

// responseText 拼接第一个候选里的全部文本片段
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// sdkError 把 SDK 的错误纳入 common.IsTransient 的判断
type sdkError struct {
	err       error
	transient bool
}

func (e *sdkError) Error() string   { return e.err.Error() }
func (e *sdkError) Unwrap() error   { return e.err }
func (e *sdkError) Transient() bool { return e.transient }

func classify(err error) error {
	if errors.Is(err, ErrEmptyResponse) {
		return err
	}
	return &sdkError{err: err, transient: isTransient(err)}
}

// isTransient REST 错误看状态码，gRPC 错误看 code，其余交给通用判断
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return common.IsTransientStatus(apiErr.Code) || apiErr.Code == http.StatusInternalServerError
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal:
			return true
		default:
			return false
		}
	}
	return common.IsTransient(err)
}
