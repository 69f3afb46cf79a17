// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderAllFormatVersions(t *testing.T) {
	versions := []int{FormatVersion1, FormatVersion2, FormatVersion3, FormatVersion4}
	for _, v := range versions {
		dir := t.TempDir()
		path := filepath.Join(dir, "out.mpq")

		b := NewBuilder(WithVersion(v))
		b.Add("Data\\File.txt", []byte("content for version check"))
		require.NoError(t, b.Build(path))

		a, err := Open(path)
		require.NoError(t, err)
		assert.Equal(t, v, a.Info().Version)

		data, err := a.Read("Data\\File.txt")
		require.NoError(t, err)
		assert.Equal(t, "content for version check", string(data))
		require.NoError(t, a.Close())
	}
}

func TestBuilderCodecOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bz2.mpq")

	b := NewBuilder(WithCodec(codecBzip2))
	content := sampleSectorData(8192)
	b.Add("Data\\Compressed.dat", content)
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	data, err := a.Read("Data\\Compressed.dat")
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestBuilderWithoutListfileOrAttributes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bare.mpq")

	b := NewBuilder(WithListfile(false), WithAttributes(false))
	b.Add("Data\\File.txt", []byte("hidden from listfile"))
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.HasFile("Data\\File.txt"))
	assert.False(t, a.HasFile("(listfile)"))
	assert.False(t, a.HasFile("(attributes)"))
}

func TestBuilderHiBlockTableOnlyWhenNeeded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "small.mpq")

	b := NewBuilder(WithVersion(FormatVersion2))
	b.Add("Data\\File.txt", []byte("small archive, no hi-block table needed"))
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.bt.hiOffset)
}

func TestBuilderDedupReusesCompiledBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dedup.mpq")

	content := sampleSectorData(2048)
	b := NewBuilder(WithDedup(true))
	b.Add("Data\\First.dat", content)
	b.Add("Data\\Second.dat", content)
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	d1, err := a.Read("Data\\First.dat")
	require.NoError(t, err)
	d2, err := a.Read("Data\\Second.dat")
	require.NoError(t, err)
	assert.Equal(t, content, d1)
	assert.Equal(t, content, d2)
}

func TestBuilderDeleteMarkerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "del.mpq")

	b := NewBuilder()
	b.Add("Data\\Live.txt", []byte("still here"))
	b.Delete("Data\\Gone.txt")
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.HasFile("Data\\Live.txt"))
	assert.True(t, a.IsDeleteMarker("Data\\Gone.txt"))
}

func TestBuilderPatchFileFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patch.mpq")

	b := NewBuilder()
	b.AddPatchFile("Data\\Patch.txt", []byte("patch data"))
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.IsPatchFile("Data\\Patch.txt"))
}
