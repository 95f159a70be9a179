package ai

import (
	"fmt"
	"strings"
	"time"

	"github-star-rank/internal/domain"
)

// TranslationPrompt 固定的翻译模板
func TranslationPrompt(text string) string {
	return fmt.Sprintf("请将以下英文文本翻译成专业、准确的中文，保持技术术语的准确性：\n\n%s\n\n要求：语言自然流畅，只返回翻译结果。", text)
}

// ProjectIntroPrompt 结构化的项目介绍
func ProjectIntroPrompt(c *domain.Candidate, translated string) string {
	description := orDefault(translated, orDefault(c.Description, "无描述"))
	return fmt.Sprintf(`
你是一个专业的技术项目分析师，请根据以下GitHub项目信息，生成一份完整的中文项目介绍。

项目信息：
项目名称: %[1]s
描述: %[2]s
主要语言: %[3]s
许可证: %[4]s
Star数: %[5]d
Fork数: %[6]d
创建时间: %[7]s
最后更新: %[8]s
主题标签: %[9]s

请按以下结构生成项目介绍：

## 1. 基础信息
- **项目名称**: %[1]s（保持英文原名）
- **一句话简介**: [用项目自己的定位描述，说明它是什么、解决什么问题]
- **开发语言/核心技术栈**: [基于项目信息推断的技术栈]

## 2. 核心功能与价值
- **解决的问题**: [分析项目的应用场景和目标用户]
- **核心功能**: [根据描述和标签推断的主要功能点]
- **项目特色**: [与同类项目的可能差异和优势]

## 3. 如何使用
- **安装方式**: [根据语言推断常见的安装方法]
- **快速上手**: [提供基本的使用指导]

## 4. 项目现状与生态
- **当前状态**: [根据Star数、Fork数、更新时间分析项目活跃度]
- **使用建议**: [根据项目成熟度给出使用建议]

## 5. 合规性信息
- **开源许可证**: %[4]s
- **注意事项**: [根据项目信息提醒可能的使用限制]

要求：
1. 语言专业、准确、自然流畅
2. 基于实际项目信息进行分析，不要编造具体功能
3. 技术术语使用标准中文表达
4. 保持客观中性的介绍风格
`,
		c.Name,
		description,
		orDefault(c.Language, "未知"),
		orDefault(c.License, "未知"),
		c.Stars,
		c.Forks,
		formatTime(c.RepoCreatedAt),
		formatTime(c.RepoUpdatedAt),
		orDefault(strings.Join(c.Topics, ", "), "无"),
	)
}

// BusinessPrompt 商业价值评估，要求返回固定结构的 JSON
func BusinessPrompt(c *domain.Candidate, translated string) string {
	isFork := "否"
	if c.IsFork {
		isFork = "是"
	}

	return fmt.Sprintf(`
你是一个懂技术的创业老司机，专门帮个人站长、小商家、小团队找赚钱机会。现在有个GitHub项目，帮我评估它的商业价值。

项目名称: %s
描述: %s
中文描述: %s
编程语言: %s
Star数: %d
Fork数: %d
开放问题数: %d
项目大小: %d KB
主题标签: %s
许可证: %s
是否为Fork: %s
创建时间: %s
最后更新: %s

从五个维度打分（0-10，可带小数）并说明理由：
1. technical_value 技术价值：解决什么问题，比现有方案好在哪
2. market_potential 市场潜力：谁会买单，市场够不够大
3. business_model 商业模式：卖成品、卖服务、卖教程还是卖定制
4. risk_assessment 风险评估：许可证是否允许商用、技术门槛、同行竞争（分数越高风险越低）
5. investment_value 投入产出：需要多少时间和资金，多久能见到回报

最后给出 overall_score 总分（0-10，可带小数）和一段接地气的 summary。

返回格式（必须是有效JSON）：
%s
`,
		c.FullName,
		orDefault(c.Description, "无描述"),
		orDefault(translated, "无"),
		orDefault(c.Language, "未知"),
		c.Stars,
		c.Forks,
		c.OpenIssues,
		c.SizeKB,
		orDefault(strings.Join(c.Topics, ", "), "无"),
		orDefault(c.License, "未知"),
		isFork,
		formatTime(c.RepoCreatedAt),
		formatTime(c.RepoUpdatedAt),
		assessmentExample,
	)
}

const assessmentExample = `{
    "overall_score": 7.5,
    "analysis": {
        "technical_value": {"score": 8, "description": "..."},
        "market_potential": {"score": 7, "description": "..."},
        "business_model": {"score": 6.5, "description": "..."},
        "risk_assessment": {"score": 7, "description": "..."},
        "investment_value": {"score": 7, "description": "..."}
    },
    "summary": "..."
}`

// strictJSONInstruction 第一次请求追加
const strictJSONInstruction = "\n\n请仅返回严格的 JSON（UTF-8），不要包含任何解释、Markdown、反引号、前后缀或多余文本。"

// schemaHint 第一次解析失败后重申结构
const schemaHint = `

仅输出如下结构的 JSON（不要代码块、不要反引号、不要多余字段）：
{
  "overall_score": number, // 0-10，可带小数
  "analysis": {
    "technical_value": { "score": number, "description": string },
    "market_potential": { "score": number, "description": string },
    "business_model": { "score": number, "description": string },
    "risk_assessment": { "score": number, "description": string },
    "investment_value": { "score": number, "description": string }
  },
  "summary": string
}

现在仅输出 JSON。`

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "未知"
	}
	return t.Format("2006-01-02")
}
