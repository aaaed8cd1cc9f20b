package ledger

import (
	"net/url"
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Slug derives the artifact file stem for a source URL: the URL path with
// leading and trailing slashes trimmed, runs of non-alphanumerics replaced
// by "-", lowercased. A URL that does not parse is slugged whole.
func Slug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.ToLower(nonAlnum.ReplaceAllString(rawURL, "-"))
	}
	p := strings.TrimPrefix(u.EscapedPath(), "/")
	p = strings.TrimSuffix(p, "/")
	return strings.ToLower(nonAlnum.ReplaceAllString(p, "-"))
}

// FileName is the artifact file name for a source URL.
func FileName(rawURL string) string {
	return Slug(rawURL) + ".html"
}
