package fetcher

import (
	"bytes"
	"net/http"
	"strings"
)

// BlockType names the anti-bot wall a page was served from.
type BlockType string

// Block types. BlockNone means the page looks like real content.
const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// Size limits for body markers. Full municipal pages often embed a
// reCAPTCHA contact form, so captcha markers only count on short pages.
const (
	captchaPageMax = 16 << 10
	shellPageMax   = 2000
)

var bodyMarkers = []struct {
	block   BlockType
	maxSize int
	markers []string
}{
	{BlockCloudflare, 0, []string{"checking your browser", "cf-browser-verification", "cf-challenge"}},
	{BlockCaptcha, captchaPageMax, []string{"captcha", "are you a robot"}},
	{BlockJSShell, shellPageMax, []string{`meta http-equiv="refresh"`}},
}

// DetectBlock returns the kind of anti-bot page resp and body look like, or
// BlockNone.
func DetectBlock(resp *http.Response, body []byte) BlockType {
	if resp == nil {
		return BlockNone
	}
	if isCloudflareRefusal(resp) {
		return BlockCloudflare
	}

	lower := bytes.ToLower(body)
	for _, m := range bodyMarkers {
		if m.maxSize > 0 && len(body) >= m.maxSize {
			continue
		}
		for _, marker := range m.markers {
			if bytes.Contains(lower, []byte(marker)) {
				return m.block
			}
		}
	}
	// A noscript nag on an otherwise empty page.
	if len(body) < shellPageMax && bytes.Contains(lower, []byte("<noscript")) && bytes.Contains(lower, []byte("javascript")) {
		return BlockJSShell
	}
	return BlockNone
}

func isCloudflareRefusal(resp *http.Response) bool {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusServiceUnavailable {
		return false
	}
	return resp.Header.Get("Cf-Ray") != "" ||
		resp.Header.Get("Cf-Mitigated") != "" ||
		strings.EqualFold(resp.Header.Get("Server"), "cloudflare")
}
