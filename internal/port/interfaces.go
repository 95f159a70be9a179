package port

import (
	"context"

	"github-star-rank/internal/domain"
)

// TrendingFetcher (侦察兵): 负责从 GitHub 趋势榜发现项目并补全元数据
type TrendingFetcher interface {
	// 比如：FetchTrending(ctx, domain.PeriodWeekly, "go", 50)
	FetchTrending(ctx context.Context, period domain.Period, language string, limit int) ([]*domain.Candidate, error)

	// FetchRepository 按需获取单个仓库的详情和预览图
	FetchRepository(ctx context.Context, owner, name string) (*domain.Candidate, error)
}

// Completer 单次 AI 调用：一条用户消息进，一段文本出
// 实现方自己负责瞬时错误重试
type Completer interface {
	Complete(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error)
}

// Enricher (鉴定师): 翻译、总结、商业价值评估
type Enricher interface {
	// Translate 尽力而为，失败时返回原文
	Translate(ctx context.Context, text string) string

	Summarize(ctx context.Context, c *domain.Candidate, translated string) (string, error)

	// AssessBusinessValue 拿不到总分时返回 ErrAssessmentUnscored
	AssessBusinessValue(ctx context.Context, c *domain.Candidate, translated string) (*domain.BusinessAssessment, error)
}

// RepositoryStore (仓库管理员): 以 canonical_url 为唯一键的存储
type RepositoryStore interface {
	// FindByURL 不存在时返回 nil, nil
	FindByURL(ctx context.Context, canonicalURL string) (*domain.RepositoryRecord, error)

	// Upsert 按 canonical_url 插入或更新，不会产生第二行
	Upsert(ctx context.Context, record *domain.RepositoryRecord) error

	// RefreshMetadata 只更新镜像的元数据字段，返回是否命中已有记录
	RefreshMetadata(ctx context.Context, c *domain.Candidate) (bool, error)
}

// TranslationCache 翻译缓存，只追加
type TranslationCache interface {
	Get(ctx context.Context, original string) (string, bool, error)
	Put(ctx context.Context, original, translated string) error
}

// Notifier (信使): 运行结束后推送报告 (飞书)
type Notifier interface {
	NotifyRun(ctx context.Context, result *domain.CrawlResult) error
}
