package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github-star-rank/internal/adapter/ai"
	"github-star-rank/internal/adapter/gemini"
	"github-star-rank/internal/adapter/github"
	"github-star-rank/internal/config"
	"github-star-rank/internal/domain"
	"github-star-rank/internal/port"
	"github-star-rank/pkg/logger"
)

func main() {
	periodFlag := flag.String("period", "weekly", "趋势榜时间段")
	lang := flag.String("lang", "", "按语言过滤")
	n := flag.Int("n", 3, "分析前 n 个项目")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ 配置加载失败: %v", err)
	}
	appLog := logger.Init(cfg.Log.Level, "text")
	ctx := context.Background()

	period, err := domain.ParsePeriod(*periodFlag)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	fetcher, err := github.NewFetcher(cfg.GitHub, github.WithLogger(appLog))
	if err != nil {
		log.Fatalf("❌ GitHub 客户端初始化失败: %v", err)
	}

	var completer port.Completer
	if strings.EqualFold(cfg.AI.Provider, "gemini") {
		g, err := gemini.NewCompleter(ctx, cfg.AI, appLog)
		if err != nil {
			log.Fatalf("❌ AI 初始化失败: %v", err)
		}
		defer g.Close()
		completer = g
	} else {
		completer, err = ai.NewHTTPCompleter(cfg.AI, ai.WithCompleterLogger(appLog))
		if err != nil {
			log.Fatalf("❌ AI 初始化失败: %v", err)
		}
	}
	// 调试模式不落库，也不读写翻译缓存
	enricher := ai.NewEnricher(completer, nil, appLog)

	fmt.Println("🔍 调试模式：获取并分析项目（不入库）")

	// 1. 获取一些项目用于测试
	fmt.Printf("📥 正在抓取 GitHub Trending (%s) 项目...\n", period)
	candidates, err := fetcher.FetchTrending(ctx, period, *lang, *n)
	if err != nil {
		log.Printf("❌ 获取 trending repos 失败: %v", err)
		return
	}
	fmt.Printf("✅ 成功获取 %d 个 trending 项目\n", len(candidates))

	// 2. 逐个增强
	for i, c := range candidates {
		fmt.Printf("\n  分析项目 #%d: %s ⭐ %d\n", i+1, c.FullName, c.Stars)
		if c.PreviewImage != "" {
			fmt.Printf("    预览图: %s\n", c.PreviewImage)
		}

		translated := enricher.Translate(ctx, c.Description)
		fmt.Printf("    中文描述: %s\n", translated)

		intro, err := enricher.Summarize(ctx, c, translated)
		if err != nil {
			log.Printf("    ⚠️ 介绍生成失败: %v", err)
			continue
		}
		fmt.Printf("    项目介绍:\n%s\n", indent(intro, "      "))

		assessment, err := enricher.AssessBusinessValue(ctx, c, translated)
		if err != nil {
			log.Printf("    ⚠️ 商业分析失败: %v", err)
			continue
		}
		fmt.Printf("    商业总分: %.1f/10\n", *assessment.OverallScore)
		fmt.Printf("    总结: %s\n", assessment.Summary)
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
