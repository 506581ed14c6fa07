package watch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookies_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")

	// Browser cookies routinely omit SameSite and Priority; loading
	// them back must not depend on those fields being set.
	cookies := []*network.Cookie{
		{Name: "auth_token", Value: "secret", Domain: ".x.com", Path: "/", Secure: true, HTTPOnly: true},
		{Name: "ct0", Value: "csrf", Domain: ".x.com", Path: "/", SameSite: network.CookieSameSiteLax},
	}
	require.NoError(t, SaveCookies(path, cookies))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	stored, err := LoadCookies(path)
	require.NoError(t, err)
	require.Len(t, stored.Cookies, 2)
	assert.Equal(t, "auth_token", stored.Cookies[0].Name)
	assert.Equal(t, "secret", stored.Cookies[0].Value)
	assert.Empty(t, stored.Cookies[0].SameSite)
	assert.Equal(t, "Lax", stored.Cookies[1].SameSite)
	assert.False(t, stored.CapturedAt.IsZero())
}

func TestLoadCookies_Missing(t *testing.T) {
	_, err := LoadCookies(filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadCookies_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := LoadCookies(path)
	assert.ErrorContains(t, err, "failed to parse cookie file")
}
