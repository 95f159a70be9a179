package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github-star-rank/internal/adapter/ai"
	"github-star-rank/internal/adapter/feishu"
	"github-star-rank/internal/adapter/github"
	"github-star-rank/internal/adapter/repository"
	"github-star-rank/internal/config"
	"github-star-rank/internal/domain"
	"github-star-rank/internal/port"
	"github-star-rank/internal/service"
	"github-star-rank/pkg/logger"
)

func main() {
	// 1. 定义命令行参数
	mode := flag.String("mode", "schedule", "运行模式: schedule (定时) / run (单次抓取) / analyze (单项目分析)")
	periodFlag := flag.String("period", "daily", "趋势榜时间段: daily / weekly / monthly (仅 run 模式)")
	lang := flag.String("lang", "", "按语言过滤趋势榜，例如 go (仅 run 模式)")
	limit := flag.Int("limit", 0, "本次最多处理的项目数，0 表示使用该时间段的默认值")
	repoArg := flag.String("repo", "", "要分析的仓库，格式 owner/name (仅 analyze 模式)")
	flag.Parse()

	// 2. 加载配置并初始化日志
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ 配置加载失败: %v", err)
	}
	appLog := logger.Init(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化数据库
	db, err := repository.OpenDB(cfg.Database, appLog)
	if err != nil {
		log.Fatalf("❌ DB 初始化失败: %v", err)
	}
	store := repository.NewStore(db)

	// 4. 初始化 AI
	completer, closeCompleter, err := newCompleter(ctx, cfg.AI, appLog)
	if err != nil {
		log.Fatalf("❌ AI 初始化失败: %v", err)
	}
	defer closeCompleter()
	enricher := ai.NewEnricher(completer, repository.NewTranslationCache(db, cfg.AI.Provider), appLog)

	// 5. 初始化 GitHub 抓取
	fetcher, err := github.NewFetcher(cfg.GitHub, github.WithLogger(appLog))
	if err != nil {
		log.Fatalf("❌ GitHub 客户端初始化失败: %v", err)
	}

	var notifier port.Notifier
	if cfg.Feishu.Webhook != "" {
		notifier = feishu.NewNotifier(cfg.Feishu.Webhook, appLog)
	}

	crawler := service.NewCrawlService(fetcher, enricher, store, service.NewSeenSet(), appLog)
	scheduler := service.NewScheduler(crawler, notifier, cfg.Scheduler, appLog)

	// 6. 根据模式分流
	switch *mode {
	case "schedule":
		if err := scheduler.Start(ctx); err != nil {
			log.Fatalf("❌ 调度器启动失败: %v", err)
		}
		appLog.Info("⏰ 定时模式已启动，按下 Ctrl+C 可以优雅停止程序")
		<-ctx.Done()
		appLog.Info("👋 收到停止信号，正在退出...")
		scheduler.Stop()

	case "run":
		period, err := domain.ParsePeriod(*periodFlag)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		job := cfg.Scheduler.Jobs()[string(period)]
		language := job.Language
		if *lang != "" {
			language = *lang
		}
		n := job.Limit
		if *limit > 0 {
			n = *limit
		}

		result, err := scheduler.TriggerRun(ctx, period, language, n)
		if err != nil {
			log.Fatalf("❌ 抓取失败: %v", err)
		}
		printJSON(result.Stats)

	case "analyze":
		owner, name, err := parseRepoArg(*repoArg)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		record, err := scheduler.TriggerAnalysis(ctx, owner, name)
		if err != nil {
			log.Fatalf("❌ 分析失败: %v", err)
		}
		fmt.Printf("✅ %s 总分 %.1f/10\n\n%s\n", record.FullName, *record.OverallScore, record.ProjectSummary)

	default:
		fmt.Println("❌ 未知模式，请使用 -mode=schedule、-mode=run 或 -mode=analyze")
		os.Exit(2)
	}
}

func printJSON(v interface{}) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
