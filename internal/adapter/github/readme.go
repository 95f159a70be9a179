package github

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
)

var (
	markdownImagePattern  = regexp.MustCompile(`!\[[^\]]*\]\(\s*<?([^)\s>]+)>?(?:\s+["'][^"']*["'])?\s*\)`)
	htmlImagePattern      = regexp.MustCompile(`(?i)<img\b[^>]*?\bsrc\s*=\s*["']([^"']+)["']`)
	referenceImagePattern = regexp.MustCompile(`(?m)^[ \t]{0,3}!?\[[^\]]+\]:[ \t]*<?([^\s>]+)>?`)
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".bmp", ".avif"}

// badgeHosts 徽章服务，README 顶部几乎都是这些，不能当预览图
var badgeHosts = []string{
	"img.shields.io",
	"shields.io",
	"badge.fury.io",
	"badgen.net",
	"travis-ci.org",
	"travis-ci.com",
	"circleci.com",
	"codecov.io",
	"coveralls.io",
	"goreportcard.com",
	"pkg.go.dev",
	"godoc.org",
	"app.codacy.com",
	"api.codacy.com",
	"api.netlify.com",
	"snyk.io",
	"bestpractices.coreinfrastructure.org",
	"deepwiki.com",
}

type imageRef struct {
	pos int
	raw string
}

// ExtractFirstImage 返回 README 里位置最靠前的可用图片地址，找不到返回空串。
// 相对路径基于 {rawBase}/{owner}/{repo}/{branch}/ 解析。
func ExtractFirstImage(readme, rawBase, owner, repo, branch string) string {
	var refs []imageRef
	for _, pattern := range []*regexp.Regexp{markdownImagePattern, htmlImagePattern, referenceImagePattern} {
		for _, m := range pattern.FindAllStringSubmatchIndex(readme, -1) {
			refs = append(refs, imageRef{pos: m[0], raw: readme[m[2]:m[3]]})
		}
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].pos < refs[j].pos })

	for _, ref := range refs {
		resolved, ok := resolveImageURL(ref.raw, rawBase, owner, repo, branch)
		if !ok {
			continue
		}
		if isBadge(resolved) || !isImageURL(resolved) {
			continue
		}
		return resolved
	}
	return ""
}

func resolveImageURL(raw, rawBase, owner, repo, branch string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	switch u.Scheme {
	case "http", "https":
		return rewriteBlobURL(u, rawBase), true
	case "":
	default:
		// data:、mailto: 之类
		return "", false
	}

	// 相对路径：../ 和 ./ 都按仓库根目录处理
	rel := u.Path
	for {
		trimmed := strings.TrimPrefix(strings.TrimPrefix(rel, "./"), "../")
		trimmed = strings.TrimPrefix(trimmed, "/")
		if trimmed == rel {
			break
		}
		rel = trimmed
	}
	rel = path.Clean("/" + rel)
	if rel == "/" {
		return "", false
	}

	resolved := strings.TrimRight(rawBase, "/") + "/" + owner + "/" + repo + "/" + branch + rel
	if u.RawQuery != "" {
		resolved += "?" + u.RawQuery
	}
	return resolved, true
}

// rewriteBlobURL github.com/{o}/{r}/blob/{branch}/x.png 换成 raw 地址，否则拿到的是 HTML 页面
func rewriteBlobURL(u *url.URL, rawBase string) string {
	if !isGitHubHost(u.Host) {
		return u.String()
	}
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 4)
	if len(parts) < 4 || parts[2] != "blob" {
		return u.String()
	}
	return strings.TrimRight(rawBase, "/") + "/" + parts[0] + "/" + parts[1] + "/" + parts[3]
}

func isBadge(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, badge := range badgeHosts {
		if host == badge || strings.HasSuffix(host, "."+badge) {
			return true
		}
	}
	p := strings.ToLower(u.Path)
	return strings.HasSuffix(p, "/badge.svg") || strings.Contains(p, "/badges/") || strings.Contains(p, "/badge/")
}

func isImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	host := strings.ToLower(u.Hostname())
	// 拖进 issue/README 的附件没有扩展名
	if host == "user-images.githubusercontent.com" || host == "private-user-images.githubusercontent.com" {
		return true
	}
	return isGitHubHost(host) && strings.HasPrefix(p, "/user-attachments/assets/")
}
