// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildArchiveFile(t *testing.T, dir, name string, files map[string]string, opts ...BuilderOption) string {
	t.Helper()
	path := filepath.Join(dir, name)
	b := NewBuilder(opts...)
	for p, content := range files {
		b.Add(p, []byte(content))
	}
	require.NoError(t, b.Build(path))
	return path
}

func TestOverlayHigherPriorityWins(t *testing.T) {
	dir := t.TempDir()
	basePath := buildArchiveFile(t, dir, "base.mpq", map[string]string{
		"Data\\Shared.txt": "base version",
		"Data\\BaseOnly.txt": "only in base",
	})
	patchPath := buildArchiveFile(t, dir, "patch.mpq", map[string]string{
		"Data\\Shared.txt": "patch version",
	})

	o := NewOverlay()
	require.NoError(t, o.Add(basePath, 0))
	require.NoError(t, o.Add(patchPath, 10))
	defer o.Close()

	data, err := o.Read("Data\\Shared.txt")
	require.NoError(t, err)
	assert.Equal(t, "patch version", string(data))

	data, err = o.Read("Data\\BaseOnly.txt")
	require.NoError(t, err)
	assert.Equal(t, "only in base", string(data))
}

func TestOverlayDeleteMarkerMasksLowerLayer(t *testing.T) {
	dir := t.TempDir()
	basePath := buildArchiveFile(t, dir, "base.mpq", map[string]string{
		"Data\\Gone.txt": "still here in base",
	})
	patchPath := filepath.Join(dir, "patch.mpq")
	pb := NewBuilder()
	pb.Delete("Data\\Gone.txt")
	require.NoError(t, pb.Build(patchPath))

	o := NewOverlay()
	require.NoError(t, o.Add(basePath, 0))
	require.NoError(t, o.Add(patchPath, 10))
	defer o.Close()

	assert.False(t, o.HasFile("Data\\Gone.txt"))
	_, err := o.Read("Data\\Gone.txt")
	assert.Error(t, err)
}

func TestOverlayResortsOnAdd(t *testing.T) {
	dir := t.TempDir()
	lowPath := buildArchiveFile(t, dir, "low.mpq", map[string]string{"Data\\X.txt": "low"})
	highPath := buildArchiveFile(t, dir, "high.mpq", map[string]string{"Data\\X.txt": "high"})

	o := NewOverlay()
	require.NoError(t, o.Add(lowPath, 1))
	require.NoError(t, o.Add(highPath, 100))
	defer o.Close()

	data, err := o.Read("Data\\X.txt")
	require.NoError(t, err)
	assert.Equal(t, "high", string(data))
}

func TestOverlayAddArchiveNotOwned(t *testing.T) {
	dir := t.TempDir()
	path := buildArchiveFile(t, dir, "solo.mpq", map[string]string{"Data\\X.txt": "hi"})

	a, err := Open(path)
	require.NoError(t, err)

	o := NewOverlay()
	o.AddArchive(a, 5)

	require.NoError(t, o.Close())
	// caller still owns a; it must remain usable after Overlay.Close.
	data, err := a.Read("Data\\X.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
	require.NoError(t, a.Close())
}

func TestOverlayList(t *testing.T) {
	dir := t.TempDir()
	basePath := buildArchiveFile(t, dir, "base.mpq", map[string]string{
		"Data\\A.txt": "a",
		"Data\\B.txt": "b",
	})
	patchPath := buildArchiveFile(t, dir, "patch.mpq", map[string]string{
		"Data\\C.txt": "c",
	})

	o := NewOverlay()
	require.NoError(t, o.Add(basePath, 0))
	require.NoError(t, o.Add(patchPath, 1))
	defer o.Close()

	files, err := o.List()
	require.NoError(t, err)
	assert.Contains(t, files, "Data\\A.txt")
	assert.Contains(t, files, "Data\\B.txt")
	assert.Contains(t, files, "Data\\C.txt")
}

func TestOverlayRemove(t *testing.T) {
	dir := t.TempDir()
	path := buildArchiveFile(t, dir, "one.mpq", map[string]string{"Data\\X.txt": "x"})

	o := NewOverlay()
	require.NoError(t, o.Add(path, 0))
	require.NoError(t, o.Remove(path))

	assert.False(t, o.HasFile("Data\\X.txt"))
}
