package github

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github-star-rank/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-github/v53/github"
)

// DetailSource 补全单个仓库的元数据
type DetailSource interface {
	Detail(ctx context.Context, owner, name string) (*domain.Candidate, error)
}

// APIDetailSource 走 GitHub REST API
type APIDetailSource struct {
	client  *github.Client
	retry   retryPolicy
	timeout time.Duration
}

// Detail 调用 GET /repos/{owner}/{repo}
func (s *APIDetailSource) Detail(ctx context.Context, owner, name string) (*domain.Candidate, error) {
	var repo *github.Repository
	err := s.retry.do(ctx, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		var apiErr error
		repo, _, apiErr = s.client.Repositories.Get(attemptCtx, owner, name)
		return classifyAPIError(apiErr)
	})
	if err != nil {
		return nil, fmt.Errorf("GitHub API 获取 %s/%s 失败: %w", owner, name, err)
	}
	return candidateFromRepository(repo, owner, name), nil
}

// candidateFromRepository 把 go-github 的结构转换为候选 (DTO 转换)
func candidateFromRepository(repo *github.Repository, owner, name string) *domain.Candidate {
	if login := repo.GetOwner().GetLogin(); login != "" {
		owner = login
	}
	if repo.GetName() != "" {
		name = repo.GetName()
	}

	c := domain.NewCandidate(owner, name)
	c.DetailLoaded = true
	if repo.GetHTMLURL() != "" {
		c.HTMLURL = repo.GetHTMLURL()
	}
	if repo.GetFullName() != "" {
		c.FullName = repo.GetFullName()
	}
	c.GitHubID = repo.GetID()
	c.Description = repo.GetDescription()
	c.Language = repo.GetLanguage()
	c.Stars = repo.GetStargazersCount()
	c.Forks = repo.GetForksCount()
	c.Watchers = repo.GetWatchersCount()
	c.OpenIssues = repo.GetOpenIssuesCount()
	c.SizeKB = repo.GetSize()
	c.Topics = repo.Topics
	c.License = repo.GetLicense().GetName()
	c.IsFork = repo.GetFork()
	c.Homepage = repo.GetHomepage()
	c.DefaultBranch = repo.GetDefaultBranch()
	c.RepoCreatedAt = timestampPtr(repo.CreatedAt)
	c.RepoUpdatedAt = timestampPtr(repo.UpdatedAt)
	c.PushedAt = timestampPtr(repo.PushedAt)
	return c
}

func timestampPtr(ts *github.Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.Time
	return &t
}

// PageDetailSource 不依赖 API 配额，直接解析仓库 HTML 页面
type PageDetailSource struct {
	getter  *pageGetter
	baseURL string
	timeout time.Duration
}

// Detail 抓取 {base}/{owner}/{name}
func (s *PageDetailSource) Detail(ctx context.Context, owner, name string) (*domain.Candidate, error) {
	pageURL := strings.TrimRight(s.baseURL, "/") + "/" + owner + "/" + name
	body, err := s.getter.get(ctx, pageURL, s.timeout, acceptHTML)
	if err != nil {
		return nil, err
	}
	return ParseRepositoryPage(body, owner, name)
}

// ParseRepositoryPage 从仓库页面提取描述、语言、计数、标签和许可证
func ParseRepositoryPage(body []byte, owner, name string) (*domain.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("解析仓库页面失败: %w", err)
	}

	c := domain.NewCandidate(owner, name)
	c.DetailLoaded = true

	c.Description = cleanText(doc.Find(".BorderGrid p.f4").First().Text())
	if c.Description == "" {
		c.Description = strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", ""))
	}

	c.Language = cleanText(doc.Find(`[itemprop="programmingLanguage"]`).First().Text())
	if c.Language == "" {
		c.Language = cleanText(doc.Find("span.color-fg-default.text-bold.mr-1").First().Text())
	}

	c.Stars = counterValue(doc.Find("#repo-stars-counter-star"))
	c.Forks = counterValue(doc.Find("#repo-network-counter"))
	c.OpenIssues = counterValue(doc.Find("#issues-repo-tab-count"))
	c.Watchers = parseCountOrZero(cleanText(doc.Find(`a[href$="/watchers"] strong`).First().Text()))

	doc.Find("a.topic-tag").Each(func(_ int, tag *goquery.Selection) {
		if topic := cleanText(tag.Text()); topic != "" {
			c.Topics = append(c.Topics, topic)
		}
	})

	license := cleanText(doc.Find("svg.octicon-law").First().Parent().Text())
	c.License = strings.TrimSpace(strings.TrimSuffix(license, " license"))

	c.Homepage = strings.TrimSpace(doc.Find(`.BorderGrid a.text-bold[rel~="nofollow"]`).First().AttrOr("href", ""))
	c.DefaultBranch = cleanText(doc.Find("#branch-picker-repos-header-ref-selector .css-truncate-target").First().Text())

	return c, nil
}

// counterValue 计数器的 title 是精确值 ("112,846")，文本是缩写 ("112k")
func counterValue(sel *goquery.Selection) int {
	if title, ok := sel.First().Attr("title"); ok {
		if n, err := ParseCount(title); err == nil {
			return n
		}
	}
	return parseCountOrZero(cleanText(sel.First().Text()))
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
