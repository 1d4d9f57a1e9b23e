package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollbackModifyRestoresPreviousContent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)

	target := filepath.Join(dir, "src", "app.ts")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
	require.NoError(t, os.WriteFile(target, []byte("A"), 0644))

	snap, err := store.Capture(target, OpModify)
	require.NoError(t, err)
	require.NotNil(t, snap.PreviousContent)
	assert.Equal(t, "A", *snap.PreviousContent)

	require.NoError(t, os.WriteFile(target, []byte("B"), 0644))
	require.NoError(t, store.Finalize(snap.ID))
	assert.Equal(t, "B", store.Get(snap.ID).Content)

	result := store.Rollback(snap.ID)
	require.True(t, result.Success, result.Message)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "A", string(data))
}

func TestRollbackCreateDeletesFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)

	target := filepath.Join(dir, "new.ts")
	snap, err := store.Capture(target, OpCreate)
	require.NoError(t, err)
	assert.Nil(t, snap.PreviousContent)

	require.NoError(t, os.WriteFile(target, []byte("created"), 0644))
	require.NoError(t, store.Finalize(snap.ID))

	result := store.Rollback(snap.ID)
	require.True(t, result.Success, result.Message)

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr), "file should be deleted by rollback of create")
}

func TestRollbackCreateOfAlreadyMissingFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)

	snap, err := store.Capture(filepath.Join(dir, "never-written.ts"), OpCreate)
	require.NoError(t, err)

	// The operation failed before writing anything; rollback is a no-op.
	result := store.Rollback(snap.ID)
	assert.True(t, result.Success, result.Message)
}

func TestRollbackNeverReturnsError(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	result := store.Rollback("no-such-id")
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "not found")

	result = store.RollbackFile("no/snapshots/here.ts")
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "no snapshots recorded")
}

func TestRollbackFileUsesMostRecentSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)

	target := filepath.Join(dir, "app.ts")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0644))

	_, err = store.Capture(target, OpModify)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(target, []byte("v2"), 0644))

	_, err = store.Capture(target, OpModify)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(target, []byte("v3"), 0644))

	result := store.RollbackFile(target)
	require.True(t, result.Success, result.Message)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data), "most recent snapshot captured v2")
}

func TestRollbackRecreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)

	target := filepath.Join(dir, "src", "deep", "mod.ts")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
	require.NoError(t, os.WriteFile(target, []byte("content"), 0644))

	snap, err := store.Capture(target, OpModify)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(dir, "src")))

	result := store.Rollback(snap.ID)
	require.True(t, result.Success, result.Message)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestStoreReload(t *testing.T) {
	dir := t.TempDir()
	snapDir := filepath.Join(dir, "snapshots")

	store, err := NewStore(snapDir)
	require.NoError(t, err)

	target := filepath.Join(dir, "app.ts")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0644))
	snap, err := store.Capture(target, OpModify)
	require.NoError(t, err)

	reloaded, err := NewStore(snapDir)
	require.NoError(t, err)

	got := reloaded.Get(snap.ID)
	require.NotNil(t, got, "snapshot should survive a reload")
	assert.Equal(t, target, got.FilePath)
	require.NotNil(t, got.PreviousContent)
	assert.Equal(t, "original", *got.PreviousContent)

	require.NoError(t, os.WriteFile(target, []byte("changed"), 0644))
	result := reloaded.RollbackFile(target)
	require.True(t, result.Success, result.Message)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestListCaptureOrder(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)

	a := filepath.Join(dir, "a.ts")
	b := filepath.Join(dir, "b.ts")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0644))

	first, err := store.Capture(a, OpModify)
	require.NoError(t, err)
	second, err := store.Capture(b, OpModify)
	require.NoError(t, err)

	all := store.List()
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
}

func TestCorruptSnapshotDocumentIgnored(t *testing.T) {
	snapDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(snapDir, "junk.json"), []byte("{not json"), 0644))

	store, err := NewStore(snapDir)
	require.NoError(t, err)
	assert.Empty(t, store.List())
}
