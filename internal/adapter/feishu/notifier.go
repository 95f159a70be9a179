package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github-star-rank/internal/common"
	"github-star-rank/internal/domain"
	"github-star-rank/pkg/logger"

	"github.com/sirupsen/logrus"
)

// maxListed 卡片里最多列出的项目数
const maxListed = 10

// Notifier 实现了 port.Notifier 接口，把每次运行的入库结果推送到飞书群
type Notifier struct {
	webhookURL string
	client     *http.Client
	retries    int
	backoff    time.Duration // 首次重试前的等待，之后每次翻倍
	maxBackoff time.Duration
	logger     logrus.FieldLogger
}

func NewNotifier(webhook string, log logrus.FieldLogger) *Notifier {
	n := &Notifier{
		webhookURL: webhook,
		client:     &http.Client{Timeout: 10 * time.Second},
		retries:    2,
		backoff:    500 * time.Millisecond,
		maxBackoff: 4 * time.Second,
		logger:     logger.OrDefault(log),
	}
	if webhook == "" {
		n.logger.Warn("⚠️ 警告: 飞书 Webhook 为空，推送功能将无法工作！")
	}
	return n
}

// NotifyRun 发送飞书卡片消息 (Schema 2.0)
func (n *Notifier) NotifyRun(ctx context.Context, result *domain.CrawlResult) error {
	if n.webhookURL == "" {
		return common.NewError(common.ErrCodeNotification, "Webhook URL 为空")
	}
	if result == nil {
		return common.NewError(common.ErrCodeInvalidInput, "运行结果为空")
	}

	body, err := json.Marshal(buildCard(result))
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "构造卡片失败", err)
	}

	err = common.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode != http.StatusOK {
			return &common.HTTPStatusError{StatusCode: resp.StatusCode, URL: "feishu webhook"}
		}
		return nil
	},
		common.WithMaxRetries(n.retries),
		common.WithInitialDelay(n.backoff),
		common.WithMaxDelay(n.maxBackoff),
		common.WithMultiplier(2),
		common.WithRetryIf(common.IsTransient),
	)
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "飞书 API 报错", err)
	}

	n.logger.WithFields(logrus.Fields{"run_id": result.RunID, "persisted": len(result.Persisted)}).Info("📨 运行报告已推送到飞书")
	return nil
}

func buildCard(result *domain.CrawlResult) map[string]interface{} {
	title := fmt.Sprintf("📈 %s 趋势榜新入库 %d 个项目", periodLabel(result.Period), result.Stats.NewProcessed)
	if result.Language != "" {
		title += " · " + result.Language
	}

	trendingURL := "https://github.com/trending"
	if result.Language != "" {
		trendingURL += "/" + strings.ToLower(result.Language)
	}
	if result.Period != domain.PeriodDaily {
		trendingURL += "?since=" + string(result.Period)
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"schema": "2.0",
			"config": map[string]interface{}{
				"update_multi": true,
			},
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": title,
				},
				"template": "blue",
			},
			"body": map[string]interface{}{
				"direction": "vertical",
				"elements": []map[string]interface{}{
					{
						"tag":       "markdown",
						"content":   markdown(result),
						"text_size": "normal",
					},
					{
						"tag": "button",
						"text": map[string]interface{}{
							"tag":     "plain_text",
							"content": "🔗 查看趋势榜",
						},
						"type": "primary",
						"behaviors": []map[string]interface{}{
							{
								"type":        "open_url",
								"default_url": trendingURL,
							},
						},
					},
				},
			},
		},
	}
}

func markdown(result *domain.CrawlResult) string {
	var b strings.Builder
	s := result.Stats
	fmt.Fprintf(&b, "**📊 本次运行:** 共 %d 个 | 新入库 %d | 已存在 %d | 失败 %d\n", s.Total, s.NewProcessed, s.SkippedExisting, s.Failed)
	fmt.Fprintf(&b, "**⏱ 耗时:** %s\n", result.FinishedAt.Sub(result.StartedAt).Round(time.Second))

	records := make([]*domain.RepositoryRecord, 0, len(result.Persisted))
	for _, r := range result.Persisted {
		if r != nil && r.OverallScore != nil {
			records = append(records, r)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return *records[i].OverallScore > *records[j].OverallScore
	})
	if len(records) > maxListed {
		records = records[:maxListed]
	}

	if len(records) > 0 {
		b.WriteString("\n**🏆 商业价值排行:**\n")
	}
	for i, r := range records {
		fmt.Fprintf(&b, "%d. [%s](%s) **%.1f/10** ⭐ %d", i+1, r.FullName, r.HTMLURL, *r.OverallScore, r.Stars)
		if r.Language != "" {
			fmt.Fprintf(&b, " · %s", r.Language)
		}
		b.WriteString("\n")
		if desc := firstNonEmpty(r.TranslatedDescription, r.Description); desc != "" {
			fmt.Fprintf(&b, "   %s\n", shorten(desc, 80))
		}
	}
	return b.String()
}

func periodLabel(p domain.Period) string {
	switch p {
	case domain.PeriodWeekly:
		return "本周"
	case domain.PeriodMonthly:
		return "本月"
	default:
		return "今日"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func shorten(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
