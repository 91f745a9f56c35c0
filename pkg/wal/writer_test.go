package wal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterAppendAssignsIncreasingIDs(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, false, nil)
	require.NoError(t, err)

	id0, err := w.Append([]TableSegment{{Table: "t", Len: 1}})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id0)

	id1, err := w.Append([]TableSegment{{Table: "t", Len: 1}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id1)

	assert.Equal(t, uint64(2), w.NextID())
}

func TestNewWriterResumesAfterHighestSegment(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, false, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := w.Append([]TableSegment{{Table: "t", Len: 1}})
		require.NoError(t, err)
	}

	reopened, err := NewWriter(dir, false, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), reopened.NextID())
}

func TestWriterGCRemovesSegmentsBelowWatermark(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, false, nil)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := w.Append([]TableSegment{{Table: "t", Len: 1}})
		require.NoError(t, err)
	}

	require.NoError(t, w.GC(2))

	entries, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	remaining, err := Replay(dir, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestWriterAppendFsyncsWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, true, nil)
	require.NoError(t, err)
	_, err = w.Append([]TableSegment{{Table: "t", Len: 1}})
	require.NoError(t, err)
}
