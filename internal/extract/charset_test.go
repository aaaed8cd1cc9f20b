package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Latin1(t *testing.T) {
	t.Parallel()

	// "Fryslân" with â as a single ISO-8859-1 byte.
	body := []byte("<html><head><meta charset=\"iso-8859-1\"></head><body>Frysl\xe2n</body></html>")
	assert.Contains(t, Decode(body), "Fryslân")
}

func TestDecode_HTTPEquiv(t *testing.T) {
	t.Parallel()

	body := []byte("<meta http-equiv=\"Content-Type\" content=\"text/html; charset=windows-1252\">caf\xe9")
	assert.Contains(t, Decode(body), "café")
}

func TestDecode_UTF8Untouched(t *testing.T) {
	t.Parallel()

	body := []byte(`<meta charset="utf-8">Fryslân`)
	assert.Equal(t, string(body), Decode(body))
	assert.Equal(t, "plain", Decode([]byte("plain")))
	assert.Equal(t, `<meta charset="klingon">x`, Decode([]byte(`<meta charset="klingon">x`)))
}

func TestReadPage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte("<p>hoi</p>"), 0o644))

	got, err := ReadPage(path)
	require.NoError(t, err)
	assert.Equal(t, "<p>hoi</p>", got)

	_, err = ReadPage(filepath.Join(t.TempDir(), "missing.html"))
	assert.Error(t, err)
}
