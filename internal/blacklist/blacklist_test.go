package blacklist

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/obsxrver/tweetfilter/internal/storage"
)

func TestBlacklist_AddContainsRemove(t *testing.T) {
	l := Load(storage.NewMemory())

	assert.False(t, l.Contains("alice"))

	l.Add("alice")
	assert.True(t, l.Contains("alice"))
	assert.True(t, l.Contains("@alice"))
	assert.True(t, l.Contains("ALICE"))
	assert.Equal(t, 1, l.Size())

	l.Remove("@ALICE")
	assert.False(t, l.Contains("alice"))
	assert.Equal(t, 0, l.Size())
}

func TestBlacklist_NormalizesOnAdd(t *testing.T) {
	l := Load(storage.NewMemory())

	l.Add("  @Bob_Smith  ")
	assert.True(t, l.Contains("bob_smith"))
	assert.Equal(t, []string{"bob_smith"}, l.All())

	// Duplicates collapse.
	l.Add("bob_smith")
	l.Add("@BOB_SMITH")
	assert.Equal(t, 1, l.Size())
}

func TestBlacklist_EmptyHandleIgnored(t *testing.T) {
	l := Load(storage.NewMemory())
	l.Add("")
	l.Add("  @  ")
	assert.False(t, l.Contains(""))
	assert.Equal(t, 0, l.Size())
}

func TestBlacklist_PersistsAcrossLoads(t *testing.T) {
	kv := storage.NewMemory()

	l := Load(kv)
	l.Add("alice")
	l.Add("bob")

	reloaded := Load(kv)
	assert.True(t, reloaded.Contains("alice"))
	assert.True(t, reloaded.Contains("bob"))
	assert.Equal(t, 2, reloaded.Size())
}

func TestBlacklist_LoadsLegacyFormats(t *testing.T) {
	kv := storage.NewMemory()
	kv.Set(storage.KeyBlacklistedHandles, "Alice\n@bob\n\n  carol  \n")

	l := Load(kv)
	assert.True(t, l.Contains("alice"))
	assert.True(t, l.Contains("bob"))
	assert.True(t, l.Contains("carol"))
	assert.Equal(t, 3, l.Size())
}
