package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore_LoadMissingYieldsEmptyState(t *testing.T) {
	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)

	st, err := store.Load("never-ran")
	require.NoError(t, err)
	assert.Empty(t, st.SeenFingerprints)
	assert.True(t, st.LastRunAt.IsZero())
}

func TestStateStore_SaveThenLoadRoundTrip(t *testing.T) {
	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)

	st, err := store.Load("defense-hiring")
	require.NoError(t, err)
	st.SeenFingerprints = append(st.SeenFingerprints, "fp-a", "fp-b")
	st.LastRunAt = time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save("defense-hiring", st))

	loaded, err := store.Load("defense-hiring")
	require.NoError(t, err)
	assert.Equal(t, []string{"fp-a", "fp-b"}, loaded.SeenFingerprints)
	assert.True(t, loaded.LastRunAt.Equal(st.LastRunAt))
}

func TestStateStore_SaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStateStore(dir)
	require.NoError(t, err)

	st, _ := store.Load("m")
	st.SeenFingerprints = []string{"fp"}
	require.NoError(t, store.Save("m", st))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m.state", entries[0].Name())
}

func TestStateStore_CorruptStateSurfacesError(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStateStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.state"), []byte("{not json"), 0o644))

	_, err = store.Load("broken")
	assert.Error(t, err)
}

func TestStateStore_MonitorsAreIsolated(t *testing.T) {
	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)

	a, _ := store.Load("a")
	a.SeenFingerprints = []string{"only-a"}
	require.NoError(t, store.Save("a", a))

	b, err := store.Load("b")
	require.NoError(t, err)
	assert.Empty(t, b.SeenFingerprints)
}
