package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github-star-rank/internal/common"
	"github-star-rank/internal/domain"
	"github-star-rank/internal/port"
	"github-star-rank/pkg/logger"

	"github.com/sirupsen/logrus"
)

// ErrAssessmentUnscored 重试后仍拿不到总分，该候选不能入库
var ErrAssessmentUnscored = errors.New("AI 商业分析失败：重试后仍无法得到总分")

// Enricher 实现了 port.Enricher 接口
type Enricher struct {
	completer port.Completer
	cache     port.TranslationCache
	logger    logrus.FieldLogger
}

// NewEnricher cache 可以为 nil，此时每次翻译都会调用 AI
func NewEnricher(completer port.Completer, cache port.TranslationCache, log logrus.FieldLogger) *Enricher {
	return &Enricher{
		completer: completer,
		cache:     cache,
		logger:    logger.OrDefault(log),
	}
}

// Translate 先查缓存，未命中调用一次 AI 并写回缓存。失败时返回原文，不写缓存。
func (e *Enricher) Translate(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	if e.cache != nil {
		cached, ok, err := e.cache.Get(ctx, text)
		switch {
		case err != nil:
			e.logger.WithError(err).Warn("⚠️ 读取翻译缓存失败，按未命中处理")
		case ok:
			return cached
		}
	}

	resp, err := e.completer.Complete(ctx, TranslationPrompt(text), domain.CompletionOptions{})
	if err != nil {
		e.logger.WithError(err).Warn("⚠️ 翻译失败，使用原文")
		return text
	}
	translated := strings.TrimSpace(resp)
	if translated == "" {
		e.logger.Warn("⚠️ 翻译结果为空，使用原文")
		return text
	}

	if e.cache != nil {
		if err := e.cache.Put(ctx, text, translated); err != nil {
			e.logger.WithError(err).Warn("⚠️ 写入翻译缓存失败")
		}
	}
	e.logger.WithField("original", truncate(text, 30)).Debugf("翻译完成: %s", truncate(translated, 30))
	return translated
}

// Summarize 生成结构化的中文项目介绍，失败直接返回错误
func (e *Enricher) Summarize(ctx context.Context, c *domain.Candidate, translated string) (string, error) {
	resp, err := e.completer.Complete(ctx, ProjectIntroPrompt(c, translated), domain.CompletionOptions{})
	if err != nil {
		return "", common.WrapError(common.ErrCodeAIProcessing, "项目介绍生成失败", err)
	}
	intro := strings.TrimSpace(resp)
	if intro == "" {
		return "", common.WrapError(common.ErrCodeAIProcessing, "项目介绍生成失败", ErrEmptyCompletion)
	}
	e.logger.WithField("repo", c.FullName).Debug("已生成项目介绍")
	return intro, nil
}

// AssessBusinessValue 第一次要求严格 JSON；解析不出总分时重申结构再试一次，仍失败返回 ErrAssessmentUnscored。
// 接口错误直接返回，completer 已经重试过瞬时错误。
func (e *Enricher) AssessBusinessValue(ctx context.Context, c *domain.Candidate, translated string) (*domain.BusinessAssessment, error) {
	base := BusinessPrompt(c, translated)
	log := e.logger.WithField("repo", c.FullName)

	first, err := e.completer.Complete(ctx, base+strictJSONInstruction, domain.CompletionOptions{JSON: true})
	if err != nil {
		return nil, common.WrapError(common.ErrCodeAIProcessing, "商业分析调用失败", err)
	}
	if a, ok := e.scored(first); ok {
		log.Debug("商业分析完成")
		return ApplyHeuristics(c, translated, a), nil
	}

	log.Warn("⚠️ 商业分析响应缺少总分，重申结构后重试")
	second, err := e.completer.Complete(ctx, base+schemaHint, domain.CompletionOptions{JSON: true})
	if err != nil {
		return nil, common.WrapError(common.ErrCodeAIProcessing, "商业分析重试调用失败", err)
	}
	if a, ok := e.scored(second); ok {
		log.Debug("商业分析完成（重试成功）")
		return ApplyHeuristics(c, translated, a), nil
	}

	log.WithFields(logrus.Fields{
		"response_1": truncate(first, 500),
		"response_2": truncate(second, 500),
	}).Error("❌ AI 响应 JSON 解析失败（重试后仍失败）")
	return nil, fmt.Errorf("%s: %w", c.FullName, ErrAssessmentUnscored)
}

func (e *Enricher) scored(raw string) (*domain.BusinessAssessment, bool) {
	a, err := ParseAssessment(raw)
	if err != nil {
		e.logger.WithError(err).Debug("商业分析 JSON 解析失败")
		return nil, false
	}
	return a, a.Scored()
}
