package github

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseCount 解析页面上的计数，支持 "57"、"1,234"、"12.2k"、"3m" 这几种写法
func ParseCount(s string) (int, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return 0, fmt.Errorf("empty count")
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(raw, "k"):
		multiplier = 1_000
		raw = strings.TrimSuffix(raw, "k")
	case strings.HasSuffix(raw, "m"):
		multiplier = 1_000_000
		raw = strings.TrimSuffix(raw, "m")
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || n < 0 || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, fmt.Errorf("invalid count %q", s)
	}
	// 12.2 * 1000 浮点误差会得到 12199.999...
	return int(math.Round(n * multiplier)), nil
}

// parseCountOrZero 页面抓取里计数缺失很常见，按 0 处理
func parseCountOrZero(s string) int {
	n, err := ParseCount(s)
	if err != nil {
		return 0
	}
	return n
}
