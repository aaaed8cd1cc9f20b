package extract

import (
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

var metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?([a-z0-9_\-]+)`)

// Decode converts a saved page to UTF-8 using the charset its <meta> tag
// declares. Pages that declare nothing, or declare UTF-8, are returned
// unchanged; an unknown charset falls back to the raw bytes.
func Decode(body []byte) string {
	head := body
	if len(head) > 4096 {
		head = head[:4096]
	}
	m := metaCharsetRe.FindSubmatch(head)
	if m == nil {
		return string(body)
	}
	name := strings.ToLower(string(m[1]))
	if name == "utf-8" || name == "utf8" {
		return string(body)
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return string(body)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil || !utf8.Valid(out) {
		return string(body)
	}
	return string(out)
}

// ReadPage reads a saved page artifact and decodes it to UTF-8.
func ReadPage(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "extract: read %s", path)
	}
	return Decode(b), nil
}
