package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayReturnsNilForMissingDirectory(t *testing.T) {
	tables, err := Replay(filepath.Join(t.TempDir(), "does-not-exist"), 0)
	require.NoError(t, err)
	assert.Nil(t, tables)
}

func TestReplayOrdersByIDAndFiltersFromID(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, false, nil)
	require.NoError(t, err)

	for i, table := range []string{"a", "b", "c"} {
		_, err := w.Append([]TableSegment{{Table: table, Len: i + 1}})
		require.NoError(t, err)
	}

	tables, err := Replay(dir, 1)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "b", tables[0].Table)
	assert.Equal(t, "c", tables[1].Table)
}

func TestReplaySkipsCorruptSegmentsBestEffort(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, false, nil)
	require.NoError(t, err)

	_, err = w.Append([]TableSegment{{Table: "good", Len: 1}})
	require.NoError(t, err)

	id1, err := w.Append([]TableSegment{{Table: "will-be-corrupted", Len: 1}})
	require.NoError(t, err)

	_, err = w.Append([]TableSegment{{Table: "also-good", Len: 1}})
	require.NoError(t, err)

	// Overwrite the already-committed second segment file in place to
	// simulate on-disk corruption, since Append itself refuses to
	// clobber an existing segment id.
	corruptPath := filepath.Join(dir, fmt.Sprintf("%020d", id1))
	require.NoError(t, os.WriteFile(corruptPath, []byte("not valid json"), 0o644))

	tables, err := Replay(dir, 0)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "good", tables[0].Table)
	assert.Equal(t, "also-good", tables[1].Table)
}
