// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestArchive(t *testing.T, opts ...BuilderOption) (*Archive, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.mpq")

	b := NewBuilder(opts...)
	b.Add("Data\\Test1.txt", []byte("Hello, World! This is test file 1 with some content."))
	b.Add("Data\\SubDir\\Test2.txt", []byte("Test file 2 contains different data for the archive."))
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, path
}

func TestCreateAndRead(t *testing.T) {
	a, _ := buildTestArchive(t)

	assert.True(t, a.HasFile("Data\\Test1.txt"))
	assert.True(t, a.HasFile("Data/SubDir/Test2.txt"), "forward slashes must normalize")
	assert.False(t, a.HasFile("Data\\Missing.txt"))

	data, err := a.Read("Data\\Test1.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello, World! This is test file 1 with some content.", string(data))
}

func TestListFile(t *testing.T) {
	a, _ := buildTestArchive(t)

	entries, err := a.List()
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "Data\\Test1.txt")
	assert.Contains(t, names, "Data\\SubDir\\Test2.txt")
}

func TestPathNormalization(t *testing.T) {
	a, _ := buildTestArchive(t)
	assert.True(t, a.HasFile("Data\\Test1.txt"))
	assert.True(t, a.HasFile("Data/Test1.txt"))
}

func TestV2Format(t *testing.T) {
	a, _ := buildTestArchive(t, WithVersion(FormatVersion2))
	assert.Equal(t, FormatVersion2, a.Info().Version)

	data, err := a.Read("Data\\Test1.txt")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestV1V2HeaderSizes(t *testing.T) {
	_, v1Path := buildTestArchive(t, WithVersion(FormatVersion1))
	_, v2Path := buildTestArchive(t, WithVersion(FormatVersion2))

	assert.Equal(t, uint32(headerSizeV1), readHeaderSize(t, v1Path))
	assert.Equal(t, uint32(headerSizeV2), readHeaderSize(t, v2Path))
}

func readHeaderSize(t *testing.T, path string) uint32 {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	buf := make([]byte, 8)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	return uint32(buf[4]) | uint32(buf[5])<<8 | uint32(buf[6])<<16 | uint32(buf[7])<<24
}

func TestEmptyArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.mpq")

	b := NewBuilder(WithListfile(false), WithAttributes(false))
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.HasFile("anything.txt"))
}

func TestLargeFileUsesSectors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sectored.mpq")

	content := make([]byte, defaultSectorSize*3+123)
	for i := range content {
		content[i] = byte(i)
	}

	b := NewBuilder()
	b.Add("Big\\File.dat", content)
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	got, err := a.Read("Big\\File.dat")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestSectorCRCRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crc.mpq")

	content := make([]byte, defaultSectorSize*2+50)
	for i := range content {
		content[i] = byte(i * 3)
	}

	b := NewBuilder()
	b.AddWithSectorCRC("Data\\Checked.dat", content)
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	got, err := a.Read("Data\\Checked.dat")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDeleteMarkerHidesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "del.mpq")

	b := NewBuilder()
	b.Delete("Data\\Gone.txt")
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.HasFile("Data\\Gone.txt"))
	assert.True(t, a.IsDeleteMarker("Data\\Gone.txt"))
}

func TestOpenV3WithHETBET(t *testing.T) {
	a, _ := buildTestArchive(t, WithHETBET(true))

	info := a.Info()
	assert.Equal(t, FormatVersion3, info.Version)
	assert.True(t, info.HasHETBET)

	data, err := a.Read("Data\\Test1.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello, World! This is test file 1 with some content.", string(data))
}

func TestReadNonexistentArchive(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "does-not-exist.mpq"))
	assert.Error(t, err)
}

// TestListFallsBackToSyntheticNamesWithoutListfile covers the case
// List used to get wrong: an archive with no (listfile) must still
// enumerate its files, under synthetic File########.xxx names, rather
// than erroring.
func TestListFallsBackToSyntheticNamesWithoutListfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nolistfile.mpq")
	b := NewBuilder(WithListfile(false))
	b.Add("Data\\One.txt", []byte("one"))
	b.Add("Data\\Two.txt", []byte("two"))
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	entries, err := a.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Regexp(t, `^File\d{8}\.xxx$`, e.Name)
		assert.NotZero(t, e.Size)
	}
}

func TestFindReturnsEntryWithLocale(t *testing.T) {
	a, _ := buildTestArchive(t)

	entry, ok := a.Find("Data\\Test1.txt", nil, nil)
	require.True(t, ok)
	assert.Equal(t, "Data\\Test1.txt", entry.Name)
	assert.NotZero(t, entry.Size)

	_, ok = a.Find("Data\\Missing.txt", nil, nil)
	assert.False(t, ok)
}

func TestFindFallsBackToNeutralLocale(t *testing.T) {
	a, _ := buildTestArchive(t)

	// Entries are written with locale 0 (neutral); any requested locale
	// with no exact match falls back to it, matching Read's behavior.
	wantLocale := uint16(0x0409) // en-US
	entry, ok := a.Find("Data\\Test1.txt", &wantLocale, nil)
	require.True(t, ok)
	assert.Equal(t, uint16(0), entry.Locale)
}

func TestInfoReportsArchiveOffset(t *testing.T) {
	a, _ := buildTestArchive(t)
	assert.Zero(t, a.Info().ArchiveOffset, "archive written from byte 0 of its own file")
}
