package service

import (
	"context"
	"time"

	"github-star-rank/internal/common"
	"github-star-rank/internal/domain"
	"github-star-rank/internal/port"
	"github-star-rank/pkg/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CrawlService 一次趋势榜运行：抓取 → 去重 → AI 增强 → 入库，候选之间严格串行
type CrawlService struct {
	fetcher  port.TrendingFetcher
	enricher port.Enricher
	store    port.RepositoryStore
	seen     *SeenSet
	logger   logrus.FieldLogger
}

// NewCrawlService seen 为 nil 时使用新的空集合
func NewCrawlService(
	fetcher port.TrendingFetcher,
	enricher port.Enricher,
	store port.RepositoryStore,
	seen *SeenSet,
	log logrus.FieldLogger,
) *CrawlService {
	if seen == nil {
		seen = NewSeenSet()
	}
	return &CrawlService{
		fetcher:  fetcher,
		enricher: enricher,
		store:    store,
		seen:     seen,
		logger:   logger.OrDefault(log),
	}
}

// Seen 返回去重集合
func (s *CrawlService) Seen() *SeenSet {
	return s.seen
}

// Run 处理一个时间段的榜单。榜单拉取失败时整次运行失败，单个候选失败只计入统计。
func (s *CrawlService) Run(ctx context.Context, period domain.Period, language string, limit int) (*domain.CrawlResult, error) {
	result := &domain.CrawlResult{
		RunID:     uuid.NewString(),
		Period:    period,
		Language:  language,
		Limit:     limit,
		Persisted: []*domain.RepositoryRecord{},
		StartedAt: time.Now(),
	}
	log := s.logger.WithFields(logrus.Fields{"run_id": result.RunID, "period": period, "language": language})
	log.Infof("🚀 开始抓取趋势榜 (limit=%d)", limit)

	candidates, err := s.fetcher.FetchTrending(ctx, period, language, limit)
	if err != nil {
		log.WithError(err).Error("❌ 获取趋势榜失败")
		return nil, err
	}
	result.Stats.Total = len(candidates)
	log.Infof("✅ 成功获取 %d 个候选项目", len(candidates))

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			log.Warnf("⏰ 运行被取消，已处理 %d/%d", i, len(candidates))
			result.FinishedAt = time.Now()
			return result, err
		}

		outcome, record := s.process(ctx, log.WithField("repo", c.FullName), c, period)
		result.Stats.Record(outcome)
		if record != nil {
			result.Persisted = append(result.Persisted, record)
		}
	}

	result.FinishedAt = time.Now()
	log.WithFields(logrus.Fields{
		"total":            result.Stats.Total,
		"new_processed":    result.Stats.NewProcessed,
		"skipped_existing": result.Stats.SkippedExisting,
		"failed":           result.Stats.Failed,
		"duration":         result.FinishedAt.Sub(result.StartedAt).String(),
	}).Info("🎉 本轮抓取完成")
	return result, nil
}

// process 单个候选的状态机，返回终态和入库的记录
func (s *CrawlService) process(ctx context.Context, log logrus.FieldLogger, c *domain.Candidate, period domain.Period) (domain.CandidateOutcome, *domain.RepositoryRecord) {
	url := c.CanonicalURL()

	if s.seen.Has(url) {
		refreshed, err := s.store.RefreshMetadata(ctx, c)
		if err != nil {
			s.fail(log, c, "刷新已存在项目的元数据失败", err)
			return domain.OutcomeSkippedFailed, nil
		}
		if refreshed {
			log.Debug("⏭️ 项目已处理过，仅刷新元数据")
			return domain.OutcomeSkippedExisting, nil
		}
		// 集合里有但库里没有，按新项目走完整流程
		s.seen.Remove(url)
	}

	existing, err := s.store.FindByURL(ctx, url)
	if err != nil {
		s.fail(log, c, "查询项目是否存在失败", err)
		return domain.OutcomeSkippedFailed, nil
	}
	if existing != nil {
		if _, err := s.store.RefreshMetadata(ctx, c); err != nil {
			log.WithError(err).Warn("⚠️ 刷新元数据失败")
		}
		s.seen.Add(url)
		log.Debug("⏭️ 项目已存在")
		return domain.OutcomeSkippedExisting, nil
	}

	enriched, err := s.enrich(ctx, c)
	if err != nil {
		s.fail(log, c, "AI 增强失败", err)
		return domain.OutcomeSkippedFailed, nil
	}

	record := domain.NewRepositoryRecord(c, enriched, period)
	if record == nil {
		s.fail(log, c, "商业分析没有总分，不入库", common.NewError(common.ErrCodeAIProcessing, "缺少 overall_score"))
		return domain.OutcomeSkippedFailed, nil
	}

	if err := s.store.Upsert(ctx, record); err != nil {
		s.fail(log, c, "保存项目失败", err)
		return domain.OutcomeSkippedFailed, nil
	}
	s.seen.Add(url)

	log.WithField("score", *record.OverallScore).Info("💾 项目已入库")
	return domain.OutcomePersisted, record
}

// enrich 翻译失败不影响后续，介绍和商业分析任一失败即整体失败
func (s *CrawlService) enrich(ctx context.Context, c *domain.Candidate) (*domain.EnrichmentResult, error) {
	translated := s.enricher.Translate(ctx, c.Description)

	summary, err := s.enricher.Summarize(ctx, c, translated)
	if err != nil {
		return nil, err
	}

	assessment, err := s.enricher.AssessBusinessValue(ctx, c, translated)
	if err != nil {
		return nil, err
	}

	return &domain.EnrichmentResult{
		TranslatedDescription: translated,
		ProjectSummary:        summary,
		Assessment:            assessment,
	}, nil
}

// AnalyzeRepository 按需分析单个仓库，已存在也会重新增强并覆盖 AI 结果
func (s *CrawlService) AnalyzeRepository(ctx context.Context, owner, name string) (*domain.RepositoryRecord, error) {
	log := s.logger.WithField("repo", owner+"/"+name)
	log.Info("🔍 开始单项目分析")

	c, err := s.fetcher.FetchRepository(ctx, owner, name)
	if err != nil {
		return nil, err
	}

	period := domain.PeriodDaily
	existing, err := s.store.FindByURL(ctx, c.CanonicalURL())
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Period != "" {
		period = existing.Period
	}

	enriched, err := s.enrich(ctx, c)
	if err != nil {
		s.fail(log, c, "AI 增强失败", err)
		return nil, err
	}

	record := domain.NewRepositoryRecord(c, enriched, period)
	if record == nil {
		return nil, common.NewError(common.ErrCodeAIProcessing, "商业分析没有总分，不入库")
	}
	if err := s.store.Upsert(ctx, record); err != nil {
		return nil, err
	}
	s.seen.Add(record.CanonicalURL)

	log.WithField("score", *record.OverallScore).Info("✅ 单项目分析完成")
	return record, nil
}

func (s *CrawlService) fail(log logrus.FieldLogger, c *domain.Candidate, msg string, err error) {
	log.WithFields(logrus.Fields(c.LogFields())).WithError(err).Error("❌ " + msg)
}
