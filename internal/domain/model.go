package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Period 趋势榜的时间段
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ErrInvalidPeriod 时间段不是 daily/weekly/monthly 之一
var ErrInvalidPeriod = errors.New("invalid trending period")

// Periods 按调度顺序返回全部时间段
func Periods() []Period {
	return []Period{PeriodDaily, PeriodWeekly, PeriodMonthly}
}

// ParsePeriod 解析时间段，空串视为 daily
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodDaily, nil
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
}

const githubHost = "https://github.com"

// CanonicalURL 去重键：owner/name 统一小写，榜单和 API 大小写不一致也不会拆成两条
func CanonicalURL(owner, name string) string {
	return githubHost + "/" + strings.ToLower(owner) + "/" + strings.ToLower(name)
}

// Candidate 从榜单发现、尚未入库的仓库
type Candidate struct {
	Owner         string
	Name          string
	FullName      string // 例如 "gohugoio/hugo"
	HTMLURL       string
	GitHubID      int64 // 抓取页面时拿不到，0 表示未知
	Description   string
	Language      string
	Stars         int
	Forks         int
	Watchers      int
	OpenIssues    int
	SizeKB        int
	Topics        []string
	License       string
	IsFork        bool
	RepoCreatedAt *time.Time
	RepoUpdatedAt *time.Time
	PushedAt      *time.Time
	Homepage      string
	DefaultBranch string
	PreviewImage  string
	// DetailLoaded 详情接口或详情页成功返回；为 false 时只有 owner/name 可信
	DetailLoaded bool
}

// NewCandidate 只知道 owner/name 时的最小候选
func NewCandidate(owner, name string) *Candidate {
	return &Candidate{
		Owner:    owner,
		Name:     name,
		FullName: owner + "/" + name,
		HTMLURL:  githubHost + "/" + owner + "/" + name,
	}
}

// CanonicalURL 返回候选的去重键
func (c *Candidate) CanonicalURL() string {
	return CanonicalURL(c.Owner, c.Name)
}

// LogFields 失败日志需要带上的完整上下文
func (c *Candidate) LogFields() map[string]interface{} {
	return map[string]interface{}{
		"repo":        c.FullName,
		"url":         c.CanonicalURL(),
		"description": c.Description,
		"language":    c.Language,
		"topics":      strings.Join(c.Topics, ","),
	}
}

// SubAssessment 单项商业评估
type SubAssessment struct {
	Score       *float64 `json:"score"`
	Description string   `json:"description"`
}

// AnalysisBreakdown 五个维度的子评估
type AnalysisBreakdown struct {
	TechnicalValue  SubAssessment `json:"technical_value"`
	MarketPotential SubAssessment `json:"market_potential"`
	BusinessModel   SubAssessment `json:"business_model"`
	RiskAssessment  SubAssessment `json:"risk_assessment"`
	InvestmentValue SubAssessment `json:"investment_value"`
}

// BusinessAssessment 商业价值评估，OverallScore 为 0-10 可带小数
type BusinessAssessment struct {
	OverallScore *float64          `json:"overall_score"`
	Analysis     AnalysisBreakdown `json:"analysis"`
	Summary      string            `json:"summary"`
}

// Scored 没有总分的评估视为整体失败
func (a *BusinessAssessment) Scored() bool {
	return a != nil && a.OverallScore != nil
}

// EnrichmentResult 一个候选的完整 AI 增强结果
type EnrichmentResult struct {
	TranslatedDescription string
	ProjectSummary        string
	Assessment            *BusinessAssessment
}

// Valid 只有带总分的结果才允许入库
func (r *EnrichmentResult) Valid() bool {
	return r != nil && r.Assessment.Scored()
}

// RepositoryRecord 持久化的仓库记录，每个 CanonicalURL 一行
type RepositoryRecord struct {
	ID            uint     `json:"id" gorm:"primaryKey"`
	CanonicalURL  string   `json:"canonical_url" gorm:"size:512;uniqueIndex;not null"`
	HTMLURL       string   `json:"html_url" gorm:"size:512"`
	GitHubID      int64    `json:"github_id"`
	Owner         string   `json:"owner" gorm:"size:255"`
	Name          string   `json:"name" gorm:"size:255"`
	FullName      string   `json:"full_name" gorm:"size:512;index"`
	Description   string   `json:"description" gorm:"type:text"`
	Language      string   `json:"language" gorm:"size:64"`
	Stars         int      `json:"stars"`
	Forks         int      `json:"forks"`
	Watchers      int      `json:"watchers"`
	OpenIssues    int      `json:"open_issues"`
	SizeKB        int      `json:"size_kb"`
	Topics        []string `json:"topics" gorm:"serializer:json;type:text"`
	License       string   `json:"license" gorm:"size:255"`
	IsFork        bool     `json:"is_fork"`
	Homepage      string   `json:"homepage" gorm:"size:512"`
	DefaultBranch string   `json:"default_branch" gorm:"size:255"`
	PreviewImage  string   `json:"preview_image" gorm:"size:1024"`

	RepoCreatedAt *time.Time `json:"repo_created_at"`
	RepoUpdatedAt *time.Time `json:"repo_updated_at"`
	PushedAt      *time.Time `json:"pushed_at"`

	// --- AI 增强结果 ---
	TranslatedDescription string              `json:"translated_description" gorm:"type:text"`
	ProjectSummary        string              `json:"project_summary" gorm:"type:text"`
	Assessment            *BusinessAssessment `json:"assessment" gorm:"serializer:json;type:text"`
	OverallScore          *float64            `json:"overall_score" gorm:"index"`

	Period      Period    `json:"period" gorm:"size:16"`
	CollectedAt time.Time `json:"collected_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 仓库表名
func (RepositoryRecord) TableName() string {
	return "repositories"
}

// NewRepositoryRecord 由候选和增强结果组装记录，结果无效时返回 nil
func NewRepositoryRecord(c *Candidate, result *EnrichmentResult, period Period) *RepositoryRecord {
	if c == nil || !result.Valid() {
		return nil
	}
	record := &RepositoryRecord{Period: period}
	record.ApplyCandidate(c)
	score := *result.Assessment.OverallScore
	record.TranslatedDescription = result.TranslatedDescription
	record.ProjectSummary = result.ProjectSummary
	record.Assessment = result.Assessment
	record.OverallScore = &score
	return record
}

// ApplyCandidate 用最新抓取的元数据覆盖镜像字段
func (r *RepositoryRecord) ApplyCandidate(c *Candidate) {
	r.CanonicalURL = c.CanonicalURL()
	r.HTMLURL = c.HTMLURL
	r.GitHubID = c.GitHubID
	r.Owner = c.Owner
	r.Name = c.Name
	r.FullName = c.FullName
	r.Description = c.Description
	r.Language = c.Language
	r.Stars = c.Stars
	r.Forks = c.Forks
	r.Watchers = c.Watchers
	r.OpenIssues = c.OpenIssues
	r.SizeKB = c.SizeKB
	r.Topics = c.Topics
	r.License = c.License
	r.IsFork = c.IsFork
	r.Homepage = c.Homepage
	r.DefaultBranch = c.DefaultBranch
	r.PreviewImage = c.PreviewImage
	r.RepoCreatedAt = c.RepoCreatedAt
	r.RepoUpdatedAt = c.RepoUpdatedAt
	r.PushedAt = c.PushedAt
}

// TranslationCacheEntry 翻译缓存，只追加不覆盖
type TranslationCacheEntry struct {
	ID             uint      `gorm:"primaryKey"`
	TextHash       string    `gorm:"size:64;index;not null"` // sha256(original_text)
	OriginalText   string    `gorm:"type:text;not null"`
	TranslatedText string    `gorm:"type:text"`
	Source         string    `gorm:"size:32"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

// TableName 翻译缓存表名
func (TranslationCacheEntry) TableName() string {
	return "translation_cache"
}

// CandidateOutcome 单个候选在一次运行中的终态
type CandidateOutcome string

const (
	OutcomePersisted       CandidateOutcome = "persisted"
	OutcomeSkippedExisting CandidateOutcome = "skipped_existing"
	OutcomeSkippedFailed   CandidateOutcome = "skipped_failed"
)

// CrawlRunStats 一次运行的统计，不落库
type CrawlRunStats struct {
	Total           int `json:"total"`
	NewProcessed    int `json:"new_processed"`
	Skipped         int `json:"skipped"`
	SkippedExisting int `json:"skipped_existing"`
	Failed          int `json:"failed"`
}

// Record 按终态累加计数
func (s *CrawlRunStats) Record(outcome CandidateOutcome) {
	switch outcome {
	case OutcomePersisted:
		s.NewProcessed++
	case OutcomeSkippedExisting:
		s.SkippedExisting++
		s.Skipped++
	case OutcomeSkippedFailed:
		s.Failed++
		s.Skipped++
	}
}

// CrawlResult 一次运行返回给调用方的内容
type CrawlResult struct {
	RunID      string              `json:"run_id"`
	Period     Period              `json:"period"`
	Language   string              `json:"language,omitempty"`
	Limit      int                 `json:"limit"`
	Stats      CrawlRunStats       `json:"stats"`
	Persisted  []*RepositoryRecord `json:"persisted"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

// CompletionOptions 单次 AI 调用的选项
type CompletionOptions struct {
	// JSON 要求后端返回结构化 JSON（支持时开启 JSON 模式）
	JSON bool
}
