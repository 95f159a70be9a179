package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github-star-rank/internal/common"
	"github-star-rank/internal/config"
	"github-star-rank/internal/domain"
	"github-star-rank/pkg/logger"

	"github.com/google/go-github/v53/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Option 调整 Fetcher 的依赖，主要给测试用
type Option func(*Fetcher)

// WithHTTPClient 抓页面和 README 用的 http.Client
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.getter.client = client
		}
	}
}

// WithListingParser 替换榜单解析器
func WithListingParser(p ListingParser) Option {
	return func(f *Fetcher) {
		if p != nil {
			f.parser = p
		}
	}
}

// WithDetailSource 替换详情来源
func WithDetailSource(s DetailSource) Option {
	return func(f *Fetcher) {
		if s != nil {
			f.detail = s
		}
	}
}

// WithLogger 注入 logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// Fetcher 实现了 port.TrendingFetcher 接口
type Fetcher struct {
	cfg     config.GitHubConfig
	getter  *pageGetter
	parser  ListingParser
	detail  DetailSource
	limiter *rate.Limiter
	logger  logrus.FieldLogger
}

// NewFetcher 按配置组装榜单抓取、详情来源和 README 抓取
func NewFetcher(cfg config.GitHubConfig, opts ...Option) (*Fetcher, error) {
	retry := retryPolicy{attempts: cfg.RetryAttempts, backoff: cfg.RetryBackoff}

	f := &Fetcher{
		cfg: cfg,
		getter: &pageGetter{
			client:    &http.Client{},
			userAgent: cfg.UserAgent,
			retry:     retry,
		},
		parser:  NewHTMLListingParser(),
		limiter: newThrottle(cfg),
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.detail == nil {
		switch cfg.DetailSource {
		case "page":
			f.detail = &PageDetailSource{getter: f.getter, baseURL: cfg.PageBaseURL, timeout: cfg.ScrapeTimeout}
		default:
			client, err := newAPIClient(cfg)
			if err != nil {
				return nil, err
			}
			f.detail = &APIDetailSource{client: client, retry: retry, timeout: cfg.ScrapeTimeout}
		}
	}
	return f, nil
}

// newAPIClient 初始化 GitHub 客户端，没有 token 就是匿名访问，限制 60次/小时
func newAPIClient(cfg config.GitHubConfig) (*github.Client, error) {
	var client *github.Client
	if cfg.Token == "" {
		client = github.NewClient(nil)
	} else {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		client = github.NewClient(oauth2.NewClient(context.Background(), ts))
	}

	if cfg.APIBaseURL != "" {
		base := cfg.APIBaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("无效的 GitHub API 地址 %q: %w", cfg.APIBaseURL, err)
		}
		client.BaseURL = u
	}
	return client, nil
}

// newThrottle 详情请求之间的固定间隔，首个请求不等待
func newThrottle(cfg config.GitHubConfig) *rate.Limiter {
	if cfg.Throttle <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(cfg.Throttle), 1)
}

// FetchTrending 抓取一页榜单并逐个补全详情，单个仓库失败只降级不中断
func (f *Fetcher) FetchTrending(ctx context.Context, period domain.Period, language string, limit int) ([]*domain.Candidate, error) {
	listURL := TrendingURL(f.cfg.TrendingBaseURL, period, language)
	f.logger.WithField("url", listURL).Info("🔥 正在抓取 GitHub Trending")

	body, err := f.getter.get(ctx, listURL, f.cfg.ScrapeTimeout, acceptHTML)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeGitHubAPI, "抓取趋势榜失败", err)
	}

	ids, err := f.parser.Parse(body)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeGitHubAPI, "解析趋势榜失败", err)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	f.logger.WithFields(logrus.Fields{"period": period, "count": len(ids)}).Info("📊 榜单解析完成")

	candidates := make([]*domain.Candidate, 0, len(ids))
	for _, id := range ids {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("等待请求间隔时中断: %w", err)
		}
		candidates = append(candidates, f.describe(ctx, id))
	}
	return candidates, nil
}

// FetchRepository 单个仓库的详情和预览图，详情失败直接返回错误
func (f *Fetcher) FetchRepository(ctx context.Context, owner, name string) (*domain.Candidate, error) {
	c, err := f.detail.Detail(ctx, owner, name)
	if err != nil {
		if isNotFound(err) {
			return nil, common.WrapError(common.ErrCodeNotFound, "仓库不存在: "+owner+"/"+name, err)
		}
		return nil, common.WrapError(common.ErrCodeGitHubAPI, "获取仓库详情失败", err)
	}
	c.PreviewImage = f.previewImage(ctx, c)
	return c, nil
}

// describe 详情拿不到时退回只有 owner/name 的候选
func (f *Fetcher) describe(ctx context.Context, id Identity) *domain.Candidate {
	c, err := f.detail.Detail(ctx, id.Owner, id.Name)
	if err != nil {
		f.logger.WithError(err).WithField("repo", id.FullName()).Warn("⚠️ 获取详情失败，使用基本信息")
		c = domain.NewCandidate(id.Owner, id.Name)
	}
	c.PreviewImage = f.previewImage(ctx, c)
	return c
}

// previewImage 依次尝试默认分支、main、master 下的 README.md
func (f *Fetcher) previewImage(ctx context.Context, c *domain.Candidate) string {
	for _, branch := range readmeBranches(c.DefaultBranch) {
		readmeURL := fmt.Sprintf("%s/%s/%s/%s/README.md", strings.TrimRight(f.cfg.RawBaseURL, "/"), c.Owner, c.Name, branch)
		body, err := f.getter.get(ctx, readmeURL, f.cfg.ReadmeTimeout, acceptText)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ""
			}
			entry := f.logger.WithError(err).WithField("repo", c.FullName)
			if isNotFound(err) {
				entry.Debugf("分支 %s 没有 README", branch)
			} else {
				entry.Warnf("⚠️ 获取 %s 分支 README 失败", branch)
			}
			continue
		}

		if c.DefaultBranch == "" {
			c.DefaultBranch = branch
		}
		return ExtractFirstImage(string(body), f.cfg.RawBaseURL, c.Owner, c.Name, branch)
	}
	return ""
}

func readmeBranches(defaultBranch string) []string {
	branches := make([]string, 0, 3)
	for _, b := range []string{defaultBranch, "main", "master"} {
		if b == "" {
			continue
		}
		dup := false
		for _, existing := range branches {
			if existing == b {
				dup = true
				break
			}
		}
		if !dup {
			branches = append(branches, b)
		}
	}
	return branches
}
