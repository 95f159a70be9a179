package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// HTTPStatusError 表示对端返回了非预期的 HTTP 状态码
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, e.Body)
	}
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// transientStatus 是可以重试的状态码集合，其余 4xx/5xx 立即失败
var transientStatus = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// IsTransientStatus 判断状态码是否属于可重试集合
func IsTransientStatus(code int) bool {
	return transientStatus[code]
}

// TransientClassifier 让适配器把自己的错误类型（例如 go-github 的错误）纳入判断
type TransientClassifier interface {
	Transient() bool
}

// IsTransient 判断错误是否为瞬时网络错误：连接重置、DNS 失败、超时以及可重试的状态码。
// 调用方的 context 被取消时永远返回 false。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var classified TransientClassifier
	if errors.As(err, &classified) {
		return classified.Transient()
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return IsTransientStatus(statusErr.StatusCode)
	}

	// http.Client 的超时会以 DeadlineExceeded 或 net.Error.Timeout() 的形式出现
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
