package github

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github-star-rank/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

// ErrEmptyListing 榜单页面解析不出任何仓库，通常意味着页面结构变了
var ErrEmptyListing = errors.New("trending listing contained no repositories")

// Identity 榜单上的一个仓库
type Identity struct {
	Owner string
	Name  string
}

// FullName owner/name
func (i Identity) FullName() string {
	return i.Owner + "/" + i.Name
}

// ListingParser 把榜单页面解析成有序、去重的仓库列表。
// 上游页面改版是预期内的故障，测试基于 testdata 下保存的页面。
type ListingParser interface {
	Parse(body []byte) ([]Identity, error)
}

// reservedSections 两段路径但不是仓库的站点栏目
var reservedSections = map[string]bool{
	"about":            true,
	"apps":             true,
	"codespaces":       true,
	"collections":      true,
	"customer-stories": true,
	"enterprise":       true,
	"events":           true,
	"explore":          true,
	"features":         true,
	"issues":           true,
	"join":             true,
	"login":            true,
	"logout":           true,
	"marketplace":      true,
	"notifications":    true,
	"orgs":             true,
	"organizations":    true,
	"pricing":          true,
	"pulls":            true,
	"readme":           true,
	"resources":        true,
	"search":           true,
	"security":         true,
	"settings":         true,
	"signup":           true,
	"site":             true,
	"solutions":        true,
	"sponsors":         true,
	"team":             true,
	"topics":           true,
	"trending":         true,
	"users":            true,
}

// HTMLListingParser 用 goquery 解析趋势榜页面
type HTMLListingParser struct{}

// NewHTMLListingParser 默认的榜单解析器
func NewHTMLListingParser() *HTMLListingParser {
	return &HTMLListingParser{}
}

// Parse 收集榜单行 (article) 里的链接，没有榜单行时退化为整页扫描
func (p *HTMLListingParser) Parse(body []byte) ([]Identity, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("解析榜单 HTML 失败: %w", err)
	}

	scope := doc.Find("article")
	if scope.Length() == 0 {
		scope = doc.Selection
	}

	seen := make(map[string]bool)
	var ids []Identity
	scope.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		id, ok := identityFromHref(href)
		if !ok {
			return
		}
		key := domain.CanonicalURL(id.Owner, id.Name)
		if seen[key] {
			return
		}
		seen[key] = true
		ids = append(ids, id)
	})

	if len(ids) == 0 {
		return nil, ErrEmptyListing
	}
	return ids, nil
}

// identityFromHref 只接受形如 /owner/name 的链接：两段非空路径，没有 query 和 fragment
func identityFromHref(href string) (Identity, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.ContainsAny(href, "?#") {
		return Identity{}, false
	}

	u, err := url.Parse(href)
	if err != nil {
		return Identity{}, false
	}
	if u.Host != "" && !isGitHubHost(u.Host) {
		return Identity{}, false
	}
	if u.Host == "" && !strings.HasPrefix(u.Path, "/") {
		return Identity{}, false
	}

	segments := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return Identity{}, false
	}
	if reservedSections[strings.ToLower(segments[0])] {
		return Identity{}, false
	}
	return Identity{Owner: segments[0], Name: segments[1]}, true
}

func isGitHubHost(host string) bool {
	host = strings.ToLower(host)
	return host == "github.com" || host == "www.github.com"
}

// TrendingURL 拼出榜单地址，daily 是默认值不带 since 参数
func TrendingURL(base string, period domain.Period, language string) string {
	u := strings.TrimRight(base, "/")
	if lang := strings.ToLower(strings.TrimSpace(language)); lang != "" {
		u += "/" + url.PathEscape(lang)
	}
	if period != "" && period != domain.PeriodDaily {
		u += "?since=" + url.QueryEscape(string(period))
	}
	return u
}
