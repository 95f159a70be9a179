package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github-star-rank/internal/domain"
)

// errNoJSON 响应里找不到 JSON 对象
var errNoJSON = errors.New("响应中没有 JSON 对象")

var (
	codeFencePattern     = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
	leadingNumberPattern = regexp.MustCompile(`^-?\d+(?:\.\d+)?`)
)

// flexFloat 模型经常把数字写成字符串 ("7.5"、"8/10"、"8分")，解析不了就当缺失
type flexFloat struct {
	value *float64
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		f.value = &n
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if m := leadingNumberPattern.FindString(strings.TrimSpace(s)); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			f.value = &v
		}
	}
	return nil
}

// flexString description/summary 偶尔会被写成数组或对象
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var parts []string
	if err := json.Unmarshal(data, &parts); err == nil {
		*f = flexString(strings.Join(parts, "\n"))
		return nil
	}
	if !bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = flexString(bytes.TrimSpace(data))
	}
	return nil
}

type rawSubAssessment struct {
	Score       flexFloat  `json:"score"`
	Description flexString `json:"description"`
}

// UnmarshalJSON 子评估写成 "低" 或 6 这种标量时分别当描述或分数，其他形状忽略
func (r *rawSubAssessment) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return nil
	case data[0] == '{':
		type plain rawSubAssessment
		var p plain
		if err := json.Unmarshal(data, &p); err == nil {
			*r = rawSubAssessment(p)
		}
	case data[0] == '"':
		_ = r.Description.UnmarshalJSON(data)
		_ = r.Score.UnmarshalJSON(data)
		if r.Score.value != nil && strings.TrimSpace(string(r.Description)) == strconv.FormatFloat(*r.Score.value, 'f', -1, 64) {
			r.Description = ""
		}
	default:
		_ = r.Score.UnmarshalJSON(data)
	}
	return nil
}

type rawAnalysis struct {
	TechnicalValue  rawSubAssessment `json:"technical_value"`
	MarketPotential rawSubAssessment `json:"market_potential"`
	BusinessModel   rawSubAssessment `json:"business_model"`
	RiskAssessment  rawSubAssessment `json:"risk_assessment"`
	InvestmentValue rawSubAssessment `json:"investment_value"`
}

// UnmarshalJSON analysis 不是对象时整段丢弃，总分照样保留
func (r *rawAnalysis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil
	}
	type plain rawAnalysis
	var p plain
	if err := json.Unmarshal(data, &p); err == nil {
		*r = rawAnalysis(p)
	}
	return nil
}

type rawAssessment struct {
	OverallScore flexFloat   `json:"overall_score"`
	Analysis     rawAnalysis `json:"analysis"`
	Summary      flexString  `json:"summary"`
}

func (r rawSubAssessment) toDomain() domain.SubAssessment {
	return domain.SubAssessment{Score: r.Score.value, Description: string(r.Description)}
}

// ParseAssessment 宽松解析商业评估：容忍代码块、前后说明文字、注释、尾逗号和字符串形式的数字。
// 返回的评估可能没有总分，调用方用 Scored() 判断。
func ParseAssessment(raw string) (*domain.BusinessAssessment, error) {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var parsed rawAssessment
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		cleaned := trailingCommaPattern.ReplaceAllString(stripJSONComments(obj), "$1")
		if err2 := json.Unmarshal([]byte(cleaned), &parsed); err2 != nil {
			return nil, err
		}
	}

	return &domain.BusinessAssessment{
		OverallScore: parsed.OverallScore.value,
		Analysis: domain.AnalysisBreakdown{
			TechnicalValue:  parsed.Analysis.TechnicalValue.toDomain(),
			MarketPotential: parsed.Analysis.MarketPotential.toDomain(),
			BusinessModel:   parsed.Analysis.BusinessModel.toDomain(),
			RiskAssessment:  parsed.Analysis.RiskAssessment.toDomain(),
			InvestmentValue: parsed.Analysis.InvestmentValue.toDomain(),
		},
		Summary: strings.TrimSpace(string(parsed.Summary)),
	}, nil
}

// extractJSONObject 先剥掉 ``` 代码块，再取第一个 { 到最后一个 }
func extractJSONObject(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if m := codeFencePattern.FindStringSubmatch(content); m != nil && strings.Contains(m[1], "{") {
		content = m[1]
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return "", errNoJSON
	}
	return content[start : end+1], nil
}

// stripJSONComments 去掉字符串外的 // 和 /* */ 注释
func stripJSONComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch {
		case ch == '"':
			inString = true
			b.WriteByte(ch)
		case ch == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
		case ch == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end == -1 {
				return b.String()
			}
			i += end + 3
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
