package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash(t *testing.T) {
	assert.Equal(t, ContentHash("a"), ContentHash("a"))
	assert.NotEqual(t, ContentHash("a"), ContentHash("b"))
	assert.Len(t, ContentHash(""), 64)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	_, ok := store.Lookup("t1", "h1")
	assert.False(t, ok)

	require.NoError(t, store.Save(Entry{ThreadID: "t1", Hash: "h1", Summary: "s"}))
	require.NoError(t, store.Save(Entry{ThreadID: "", Hash: "h1", Summary: "ignored"}))

	got, ok := store.Lookup("t1", "h1")
	require.True(t, ok)
	assert.Equal(t, "s", got.Summary)

	_, ok = store.Lookup("t1", "h2")
	assert.False(t, ok, "changed content must miss")
	assert.Equal(t, Snapshot{Stored: 1}, store.Snapshot())
}

func TestFileStore_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	store, err := NewFileStore(dir, true)
	require.NoError(t, err)
	require.NoError(t, store.Save(Entry{ThreadID: "t2", Hash: "h2", Summary: "second", Status: "ok", CreatedAt: created}))
	require.NoError(t, store.Save(Entry{ThreadID: "t1", Hash: "h1", Summary: "first", Status: "ok", CreatedAt: created}))
	// identical entry is not written twice
	require.NoError(t, store.Save(Entry{ThreadID: "t1", Hash: "h1", Summary: "first", Status: "ok", CreatedAt: created}))
	require.NoError(t, store.Close())

	data, err := os.ReadFile(filepath.Join(dir, "summaries.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(data))

	reloaded, err := NewFileStore(dir, false)
	require.NoError(t, err)
	defer reloaded.Close()

	got, ok := reloaded.Lookup("t1", "h1")
	require.True(t, ok)
	assert.Equal(t, Entry{ThreadID: "t1", Hash: "h1", Summary: "first", Status: "ok", CreatedAt: created}, got)

	entries := reloaded.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "t1", entries[0].ThreadID)
	assert.Equal(t, "t2", entries[1].ThreadID)
}

func TestFileStore_LaterLinesWin(t *testing.T) {
	dir := t.TempDir()
	content := `{"thread_id":"t1","hash":"h","summary":"old","status":"ok"}

{"thread_id":"t1","hash":"h","summary":"new","status":"ok"}
{"thread_id":"","hash":"h","summary":"skipped"}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summaries.jsonl"), []byte(content), 0o600))

	store, err := NewFileStore(dir, false)
	require.NoError(t, err)

	got, ok := store.Lookup("t1", "h")
	require.True(t, ok)
	assert.Equal(t, "new", got.Summary)
	assert.Equal(t, 1, store.Snapshot().Stored)
}

func TestFileStore_CorruptLine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summaries.jsonl"), []byte("{not json\n"), 0o600))

	_, err := NewFileStore(dir, false)
	assert.ErrorContains(t, err, "parse state line 1")
}

func TestNewFileStore_EmptyDir(t *testing.T) {
	_, err := NewFileStore("  ", true)
	assert.Error(t, err)
}

func countLines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
