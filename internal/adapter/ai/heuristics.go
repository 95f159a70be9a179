package ai

import (
	"math"
	"regexp"
	"strings"

	"github-star-rank/internal/domain"
)

const (
	crackPenalty    = 3.0
	pureTechPenalty = 1.0

	crackWarning    = "注意：该项目疑似涉及破解/授权码相关，商业合规性较差，不建议商用。"
	pureTechWarning = "该项目偏纯技术基础设施，直接商业化难度较高，更适合作为技术组件或内部能力。"
)

var (
	crackPattern = regexp.MustCompile(`(?i)\bcrack|\bkeygen\b|license[ -]?keys?\b|\bserial[ -]?(?:keys?|numbers?|codes?)\b|\bactivation[ -]?(?:keys?|codes?)\b|破解|授权码|注册码|激活码|补丁`)

	pureTechPattern = regexp.MustCompile(`(?i)\bsdks?\b|\bframeworks?\b|\blib|\bdrivers?\b|\balgorithms?\b|\bcompilers?\b|\bprotocols?\b|\bmiddlewares?\b|算法|内核|驱动|编译器|协议|规范|中间件`)
)

// ApplyHeuristics 在 AI 打分之后做确定性修正：
// 破解/授权码类 -3 并追加合规提示，纯技术基础设施类 -1 并追加说明。
// 两条规则互相独立，每一步不低于 0，最后限制在 [0, 10]。
func ApplyHeuristics(c *domain.Candidate, translated string, a *domain.BusinessAssessment) *domain.BusinessAssessment {
	if !a.Scored() {
		return a
	}

	text := strings.Join([]string{c.Name, c.FullName, c.Description, translated}, " ")
	adjusted := *a
	score := *a.OverallScore

	if crackPattern.MatchString(text) {
		score = math.Max(0, score-crackPenalty)
		adjusted.Summary = appendLine(adjusted.Summary, crackWarning)
	}
	if pureTechPattern.MatchString(text) {
		score = math.Max(0, score-pureTechPenalty)
		adjusted.Summary = appendLine(adjusted.Summary, pureTechWarning)
	}

	score = math.Min(10, math.Max(0, score))
	adjusted.OverallScore = &score
	return &adjusted
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	return s + "\n" + line
}
