package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github-star-rank/internal/common"

	"github.com/google/go-github/v53/github"
)

const (
	acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptText = "text/plain,text/markdown;q=0.9,*/*;q=0.5"

	// 页面体积上限，防止异常响应撑爆内存
	maxBodyBytes = 8 << 20
)

// retryPolicy 所有抓取共用：固定间隔，只重试瞬时错误
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	return common.Do(ctx, fn,
		common.WithMaxAttempts(p.attempts),
		common.WithFixedBackoff(p.backoff),
		common.WithRetryIf(common.IsTransient),
	)
}

// pageGetter 抓 HTML 页面和 raw README
type pageGetter struct {
	client    *http.Client
	userAgent string
	retry     retryPolicy
}

// get 每次尝试单独计时，超时算瞬时错误
func (g *pageGetter) get(ctx context.Context, rawURL string, timeout time.Duration, accept string) ([]byte, error) {
	var body []byte
	err := g.retry.do(ctx, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", g.userAgent)
		req.Header.Set("Accept", accept)
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")

		resp, err := g.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return &common.HTTPStatusError{
				StatusCode: resp.StatusCode,
				URL:        rawURL,
				Body:       strings.TrimSpace(string(snippet)),
			}
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	return body, nil
}

// isNotFound 404 在 README 分支回退里是正常情况
func isNotFound(err error) bool {
	var statusErr *common.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusNotFound
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

// apiError 给 go-github 的错误加上瞬时/永久的分类
type apiError struct {
	err error
}

func (e *apiError) Error() string { return e.err.Error() }

func (e *apiError) Unwrap() error { return e.err }

// Transient 二级限流 (abuse) 会很快恢复，可以重试；主限流要等到整点重置，直接失败
func (e *apiError) Transient() bool {
	var abuseErr *github.AbuseRateLimitError
	if errors.As(e.err, &abuseErr) {
		return true
	}
	var rateErr *github.RateLimitError
	if errors.As(e.err, &rateErr) {
		return false
	}
	var respErr *github.ErrorResponse
	if errors.As(e.err, &respErr) && respErr.Response != nil {
		return common.IsTransientStatus(respErr.Response.StatusCode)
	}
	return common.IsTransient(e.err)
}

func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}
	return &apiError{err: err}
}
