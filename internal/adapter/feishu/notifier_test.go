package feishu

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github-star-rank/internal/common"
	"github-star-rank/internal/domain"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feishuServer 模拟的飞书 Webhook，按顺序返回状态码并记录收到的卡片
type feishuServer struct {
	*httptest.Server
	mu       sync.Mutex
	calls    int
	payloads []map[string]interface{}
}

func mockFeishuServer(t *testing.T, statuses []int) *feishuServer {
	fs := &feishuServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		_ = json.Unmarshal(body, &payload)

		fs.mu.Lock()
		i := fs.calls
		fs.calls++
		if r.Method == http.MethodPost && r.Header.Get("Content-Type") == "application/json" {
			fs.payloads = append(fs.payloads, payload)
		}
		fs.mu.Unlock()

		status := statuses[len(statuses)-1]
		if i < len(statuses) {
			status = statuses[i]
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"code": 0, "msg": "success"}`))
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feishuServer) received() []map[string]interface{} {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]map[string]interface{}(nil), fs.payloads...)
}

func (fs *feishuServer) callCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.calls
}

func newTestNotifier(url string) *Notifier {
	log, _ := test.NewNullLogger()
	n := NewNotifier(url, log)
	n.backoff = time.Millisecond
	return n
}

func score(f float64) *float64 { return &f }

func testResult() *domain.CrawlResult {
	start := time.Date(2026, 10, 14, 3, 0, 0, 0, time.UTC)
	return &domain.CrawlResult{
		RunID:    "run-1",
		Period:   domain.PeriodWeekly,
		Language: "Go",
		Limit:    100,
		Stats:    domain.CrawlRunStats{Total: 3, NewProcessed: 2, Skipped: 1, SkippedExisting: 1},
		Persisted: []*domain.RepositoryRecord{
			{FullName: "junegunn/fzf", HTMLURL: "https://github.com/junegunn/fzf", Stars: 60000, OverallScore: score(6), Description: "A command-line fuzzy finder"},
			{FullName: "gohugoio/hugo", HTMLURL: "https://github.com/gohugoio/hugo", Stars: 76102, Language: "Go", OverallScore: score(8.5), TranslatedDescription: "世界上最快的建站框架"},
		},
		StartedAt:  start,
		FinishedAt: start.Add(95 * time.Second),
	}
}

func cardElements(t *testing.T, payload map[string]interface{}) (map[string]interface{}, []interface{}) {
	card, ok := payload["card"].(map[string]interface{})
	require.True(t, ok)
	body, ok := card["body"].(map[string]interface{})
	require.True(t, ok)
	elements, ok := body["elements"].([]interface{})
	require.True(t, ok)
	return card, elements
}

func TestNotifier_NotifyRun(t *testing.T) {
	srv := mockFeishuServer(t, []int{http.StatusOK})

	err := newTestNotifier(srv.URL).NotifyRun(context.Background(), testResult())
	require.NoError(t, err)
	require.Equal(t, 1, srv.callCount())
	payloads := srv.received()
	require.Len(t, payloads, 1)

	payload := payloads[0]
	assert.Equal(t, "interactive", payload["msg_type"])
	card, elements := cardElements(t, payload)
	assert.Equal(t, "2.0", card["schema"])

	header := card["header"].(map[string]interface{})
	title := header["title"].(map[string]interface{})
	assert.Equal(t, "📈 本周 趋势榜新入库 2 个项目 · Go", title["content"])

	require.Len(t, elements, 2)
	content := elements[0].(map[string]interface{})["content"].(string)
	assert.Contains(t, content, "共 3 个 | 新入库 2 | 已存在 1 | 失败 0")
	assert.Contains(t, content, "1m35s")
	// 按总分倒序
	assert.Less(t, strings.Index(content, "gohugoio/hugo"), strings.Index(content, "junegunn/fzf"))
	assert.Contains(t, content, "**8.5/10**")
	assert.Contains(t, content, "世界上最快的建站框架")
	assert.Contains(t, content, "A command-line fuzzy finder")

	button := elements[1].(map[string]interface{})
	behavior := button["behaviors"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "https://github.com/trending/go?since=weekly", behavior["default_url"])
}

func TestNotifier_NotifyRun_Retry(t *testing.T) {
	tests := []struct {
		name          string
		statuses      []int
		expectError   bool
		expectedCalls int
	}{
		{name: "503 后成功", statuses: []int{http.StatusServiceUnavailable, http.StatusOK}, expectedCalls: 2},
		{name: "一直 429", statuses: []int{http.StatusTooManyRequests}, expectError: true, expectedCalls: 3},
		{name: "400 不重试", statuses: []int{http.StatusBadRequest}, expectError: true, expectedCalls: 1},
		{name: "403 不重试", statuses: []int{http.StatusForbidden}, expectError: true, expectedCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := mockFeishuServer(t, tt.statuses)
			err := newTestNotifier(srv.URL).NotifyRun(context.Background(), testResult())

			if tt.expectError {
				require.Error(t, err)
				assert.Equal(t, common.ErrCodeNotification, common.CodeOf(err))
				assert.Contains(t, err.Error(), "飞书 API 报错")
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedCalls, srv.callCount())
		})
	}
}

func TestNotifier_NotifyRun_BackoffDoubles(t *testing.T) {
	srv := mockFeishuServer(t, []int{http.StatusServiceUnavailable})
	n := newTestNotifier(srv.URL)
	n.backoff = 20 * time.Millisecond

	start := time.Now()
	err := n.NotifyRun(context.Background(), testResult())
	require.Error(t, err)
	assert.Equal(t, 3, srv.callCount())
	// 20ms + 40ms，固定间隔只会等 40ms
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestNotifier_NotifyRun_InvalidInput(t *testing.T) {
	err := newTestNotifier("").NotifyRun(context.Background(), testResult())
	assert.Contains(t, err.Error(), "Webhook URL 为空")

	err = newTestNotifier("http://127.0.0.1:1").NotifyRun(context.Background(), nil)
	assert.Equal(t, common.ErrCodeInvalidInput, common.CodeOf(err))
}

func TestBuildCard_DailyWithoutLanguage(t *testing.T) {
	result := testResult()
	result.Period = domain.PeriodDaily
	result.Language = ""
	for i := 0; i < 15; i++ {
		result.Persisted = append(result.Persisted, &domain.RepositoryRecord{FullName: "x/y", OverallScore: score(1)})
	}

	raw, err := json.Marshal(buildCard(result))
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))

	card, elements := cardElements(t, payload)
	title := card["header"].(map[string]interface{})["title"].(map[string]interface{})
	assert.Equal(t, "📈 今日 趋势榜新入库 2 个项目", title["content"])

	content := elements[0].(map[string]interface{})["content"].(string)
	assert.Contains(t, content, "10. ")
	assert.NotContains(t, content, "11. ")

	behavior := elements[1].(map[string]interface{})["behaviors"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "https://github.com/trending", behavior["default_url"])
}
