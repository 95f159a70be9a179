package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "STAR_RANK_CONFIG"

	githubTokenEnv   = "GITHUB_TOKEN"
	detailSourceEnv  = "GITHUB_DETAIL_SOURCE"
	aiProviderEnv    = "AI_PROVIDER"
	aiBaseURLEnv     = "AI_BASE_URL"
	aiAPIKeyEnv      = "AI_API_KEY"
	aiModelEnv       = "AI_MODEL"
	geminiAPIKeyEnv  = "GEMINI_API_KEY"
	dbDriverEnv      = "DB_DRIVER"
	databaseDSNEnv   = "DATABASE_DSN"
	feishuWebhookEnv = "FEISHU_WEBHOOK"
	logLevelEnv      = "LOG_LEVEL"
	logFormatEnv     = "LOG_FORMAT"
	startupSweepEnv  = "STARTUP_SWEEP"
)

const (
	defaultModel       = "deepseek-chat"
	defaultGeminiModel = "gemini-2.5-flash-lite"
)

// 支持的 AI 后端
var knownProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"qwen":      true,
	"gemini":    true,
}

// Config 整个进程的配置
type Config struct {
	GitHub    GitHubConfig    `yaml:"github"`
	AI        AIConfig        `yaml:"ai"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Feishu    FeishuConfig    `yaml:"feishu"`
	Log       LogConfig       `yaml:"log"`
}

// GitHubConfig 趋势榜、详情和 README 的抓取参数
type GitHubConfig struct {
	Token           string `yaml:"token"`
	TrendingBaseURL string `yaml:"trendingBaseUrl"`
	RawBaseURL      string `yaml:"rawBaseUrl"`
	PageBaseURL     string `yaml:"pageBaseUrl"`
	// APIBaseURL 为空时使用 go-github 默认的 api.github.com
	APIBaseURL string `yaml:"apiBaseUrl"`
	// DetailSource "api" 走 REST，"page" 抓详情页
	DetailSource  string        `yaml:"detailSource"`
	UserAgent     string        `yaml:"userAgent"`
	Throttle      time.Duration `yaml:"throttle"`
	RetryAttempts int           `yaml:"retryAttempts"`
	RetryBackoff  time.Duration `yaml:"retryBackoff"`
	ScrapeTimeout time.Duration `yaml:"scrapeTimeout"`
	ReadmeTimeout time.Duration `yaml:"readmeTimeout"`
}

// AIConfig AI 后端配置
type AIConfig struct {
	Provider      string        `yaml:"provider"`
	BaseURL       string        `yaml:"baseUrl"`
	APIKey        string        `yaml:"apiKey"`
	Model         string        `yaml:"model"`
	MaxTokens     int           `yaml:"maxTokens"`
	Temperature   float64       `yaml:"temperature"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retryAttempts"`
	RetryBackoff  time.Duration `yaml:"retryBackoff"`
}

// DatabaseConfig driver 为 postgres 或 sqlite
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// JobConfig 一个时间段的定时任务。主榜单跑完后依次跑 Languages 里的语言榜单
type JobConfig struct {
	Cron          string   `yaml:"cron"`
	Limit         int      `yaml:"limit"`
	Language      string   `yaml:"language"`
	Languages     []string `yaml:"languages"`
	LanguageLimit int      `yaml:"languageLimit"`
	Disabled      bool     `yaml:"disabled"`
}

// SchedulerConfig 三个时间段各自独立配置
type SchedulerConfig struct {
	Daily         JobConfig     `yaml:"daily"`
	Weekly        JobConfig     `yaml:"weekly"`
	Monthly       JobConfig     `yaml:"monthly"`
	StartupSweep  bool          `yaml:"startupSweep"`
	SweepPause    time.Duration `yaml:"sweepPause"`
	LanguagePause time.Duration `yaml:"languagePause"`
}

// defaultLanguages 热门语言的前五个
var defaultLanguages = []string{"JavaScript", "Python", "Java", "TypeScript", "Go"}

const defaultLanguageLimit = 20

func defaultJob(cronExpr string, limit int) JobConfig {
	return JobConfig{
		Cron:          cronExpr,
		Limit:         limit,
		Languages:     append([]string(nil), defaultLanguages...),
		LanguageLimit: defaultLanguageLimit,
	}
}

// FeishuConfig 运行报告推送
type FeishuConfig struct {
	Webhook string `yaml:"webhook"`
}

// LogConfig 日志
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default 返回内置默认值
func Default() Config {
	return Config{
		GitHub: GitHubConfig{
			TrendingBaseURL: "https://github.com/trending",
			RawBaseURL:      "https://raw.githubusercontent.com",
			PageBaseURL:     "https://github.com",
			DetailSource:    "api",
			UserAgent:       "Mozilla/5.0 (compatible; star-rank/1.0)",
			Throttle:        200 * time.Millisecond,
			RetryAttempts:   3,
			RetryBackoff:    2 * time.Second,
			ScrapeTimeout:   30 * time.Second,
			ReadmeTimeout:   15 * time.Second,
		},
		AI: AIConfig{
			Provider:      "openai",
			BaseURL:       "https://api.deepseek.com/v1/chat/completions",
			Model:         defaultModel,
			MaxTokens:     2000,
			Temperature:   0.7,
			Timeout:       3 * time.Minute,
			RetryAttempts: 3,
			RetryBackoff:  2 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "postgres",
			DSN:    "host=localhost user=postgres password=123456 dbname=star_rank port=5432 sslmode=disable TimeZone=Asia/Shanghai",
		},
		Scheduler: SchedulerConfig{
			Daily:         defaultJob("0 3 * * *", 50),
			Weekly:        defaultJob("0 4 * * 1", 100),
			Monthly:       defaultJob("0 5 1 * *", 200),
			SweepPause:    5 * time.Second,
			LanguagePause: time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load 默认值 -> YAML 文件 -> .env / 环境变量，后者覆盖前者
func Load() (Config, error) {
	cfg := Default()

	// .env 不存在是正常情况
	_ = godotenv.Load()

	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// mergeFile 直接解到已有默认值上，文件里没写的字段保持不变
func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setString(&c.GitHub.Token, githubTokenEnv)
	setString(&c.GitHub.DetailSource, detailSourceEnv)
	setString(&c.AI.Provider, aiProviderEnv)
	setString(&c.AI.BaseURL, aiBaseURLEnv)
	setString(&c.AI.APIKey, aiAPIKeyEnv)
	setString(&c.AI.Model, aiModelEnv)
	setString(&c.Database.Driver, dbDriverEnv)
	setString(&c.Database.DSN, databaseDSNEnv)
	setString(&c.Feishu.Webhook, feishuWebhookEnv)
	setString(&c.Log.Level, logLevelEnv)
	setString(&c.Log.Format, logFormatEnv)

	// gemini 后端沿用 GEMINI_API_KEY，没指定模型时不能用 OpenAI 兼容的默认模型
	if strings.EqualFold(c.AI.Provider, "gemini") {
		setString(&c.AI.APIKey, geminiAPIKeyEnv)
		if c.AI.Model == defaultModel {
			c.AI.Model = defaultGeminiModel
		}
	}

	if v := os.Getenv(startupSweepEnv); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Scheduler.StartupSweep = b
		}
	}

	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	c.GitHub.DetailSource = strings.ToLower(strings.TrimSpace(c.GitHub.DetailSource))
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Jobs 以时间段名为键返回任务配置
func (s SchedulerConfig) Jobs() map[string]JobConfig {
	return map[string]JobConfig{
		"daily":   s.Daily,
		"weekly":  s.Weekly,
		"monthly": s.Monthly,
	}
}

// Validate 检查配置的一致性，所有问题一次性返回
func (c Config) Validate() error {
	var errs []error

	if !knownProviders[c.AI.Provider] {
		errs = append(errs, fmt.Errorf("未知的 AI provider: %q", c.AI.Provider))
	}
	if c.AI.Provider != "gemini" && c.AI.BaseURL == "" {
		errs = append(errs, errors.New("ai.baseUrl 不能为空"))
	}
	if c.AI.Model == "" {
		errs = append(errs, errors.New("ai.model 不能为空"))
	}
	if c.AI.MaxTokens <= 0 {
		errs = append(errs, errors.New("ai.maxTokens 必须大于 0"))
	}
	if c.AI.RetryAttempts < 1 {
		errs = append(errs, errors.New("ai.retryAttempts 至少为 1"))
	}

	switch c.GitHub.DetailSource {
	case "api", "page":
	default:
		errs = append(errs, fmt.Errorf("未知的 github.detailSource: %q", c.GitHub.DetailSource))
	}
	if c.GitHub.RetryAttempts < 1 {
		errs = append(errs, errors.New("github.retryAttempts 至少为 1"))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("未知的 database.driver: %q", c.Database.Driver))
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, job := range c.Scheduler.Jobs() {
		if job.Disabled {
			continue
		}
		if _, err := parser.Parse(job.Cron); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.%s.cron 无效: %w", name, err))
		}
		if job.Limit <= 0 {
			errs = append(errs, fmt.Errorf("scheduler.%s.limit 必须大于 0", name))
		}
		if len(job.Languages) > 0 && job.LanguageLimit <= 0 {
			errs = append(errs, fmt.Errorf("scheduler.%s.languageLimit 必须大于 0", name))
		}
	}

	return errors.Join(errs...)
}
