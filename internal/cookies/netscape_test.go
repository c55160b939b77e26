package cookies

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCookies(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFile(t *testing.T) {
	content := "# Netscape HTTP Cookie File\n" +
		"# This is a comment\n" +
		"\n" +
		".fc2.com\tTRUE\t/\tTRUE\t1999999999\tl_ortkn\tsecrettoken\n" +
		"#HttpOnly_.fc2.com\tTRUE\t/\tTRUE\t1999999999\tFCSID\tsessionvalue\n" +
		"live.fc2.com\tFALSE\t/\tFALSE\t0\tlang\tja\n"

	cookies, err := ParseFile(writeCookies(t, content))
	require.NoError(t, err)
	require.Len(t, cookies, 3)

	assert.Equal(t, "l_ortkn", cookies[0].Name)
	assert.Equal(t, "secrettoken", cookies[0].Value)
	assert.Equal(t, "fc2.com", cookies[0].Domain)
	assert.True(t, cookies[0].Secure)
	assert.False(t, cookies[0].HttpOnly)
	assert.False(t, cookies[0].Expires.IsZero())

	assert.Equal(t, "FCSID", cookies[1].Name)
	assert.True(t, cookies[1].HttpOnly)

	assert.Equal(t, "lang", cookies[2].Name)
	assert.Equal(t, "live.fc2.com", cookies[2].Domain)
	assert.False(t, cookies[2].Secure)
	assert.True(t, cookies[2].Expires.IsZero())
}

func TestParseFileBadFieldCount(t *testing.T) {
	_, err := ParseFile(writeCookies(t, "too\tfew\tfields\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 7 tab-separated fields")
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestNewJar(t *testing.T) {
	t.Run("empty path yields empty jar", func(t *testing.T) {
		jar, err := NewJar("")
		require.NoError(t, err)
		u, _ := url.Parse("https://live.fc2.com/")
		assert.Empty(t, jar.Cookies(u))
	})

	t.Run("loads cookies scoped to domain", func(t *testing.T) {
		content := ".fc2.com\tTRUE\t/\tTRUE\t1999999999\tl_ortkn\tsecrettoken\n"
		jar, err := NewJar(writeCookies(t, content))
		require.NoError(t, err)

		u, _ := url.Parse("https://live.fc2.com/")
		cookies := jar.Cookies(u)
		require.Len(t, cookies, 1)
		assert.Equal(t, "l_ortkn", cookies[0].Name)
		assert.Equal(t, "secrettoken", cookies[0].Value)
	})
}
