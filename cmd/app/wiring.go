package main

import (
	"context"
	"fmt"
	"strings"

	"github-star-rank/internal/adapter/ai"
	"github-star-rank/internal/adapter/gemini"
	"github-star-rank/internal/config"
	"github-star-rank/internal/port"

	"github.com/sirupsen/logrus"
)

// newCompleter gemini 走 SDK，其余走 HTTP 线格式；返回的关闭函数总是可以调用
func newCompleter(ctx context.Context, cfg config.AIConfig, log logrus.FieldLogger) (port.Completer, func(), error) {
	if strings.EqualFold(cfg.Provider, "gemini") {
		c, err := gemini.NewCompleter(ctx, cfg, log)
		if err != nil {
			return nil, func() {}, err
		}
		return c, func() { _ = c.Close() }, nil
	}

	c, err := ai.NewHTTPCompleter(cfg, ai.WithCompleterLogger(log))
	if err != nil {
		return nil, func() {}, err
	}
	return c, func() {}, nil
}

// parseRepoArg 接受 owner/name 或完整的 GitHub 地址
func parseRepoArg(s string) (string, string, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "github.com/")
	s = strings.TrimSuffix(strings.TrimSuffix(s, "/"), ".git")

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("仓库格式应为 owner/name，实际为 %q", s)
	}
	return parts[0], parts[1], nil
}
