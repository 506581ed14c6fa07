package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	m := NewMemory()

	assert.Equal(t, "fallback", m.Get("missing", "fallback"))

	m.Set("k", "v")
	assert.Equal(t, "v", m.Get("k", "fallback"))

	m.Set("k", "")
	assert.Equal(t, "", m.Get("k", "fallback"), "empty stored value is not the default")
}

func TestSQLite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "test.db")

	s, err := NewSQLite(path)
	require.NoError(t, err, "parent directory is created on open")
	defer s.Close()

	assert.Equal(t, "def", s.Get("missing", "def"))

	s.Set(KeyRatings, `{"1":{"score":5}}`)
	assert.Equal(t, `{"1":{"score":5}}`, s.Get(KeyRatings, "{}"))

	// Upsert overwrites.
	s.Set(KeyRatings, "{}")
	assert.Equal(t, "{}", s.Get(KeyRatings, "def"))
}

func TestSQLite_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLite(path)
	require.NoError(t, err)
	s.Set(KeyBlacklistedHandles, "alice\nbob")
	require.NoError(t, s.Close())

	s2, err := NewSQLite(path)
	require.NoError(t, err)
	defer s2.Close()
	assert.Equal(t, "alice\nbob", s2.Get(KeyBlacklistedHandles, ""))
}
