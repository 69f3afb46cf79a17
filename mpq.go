// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"encoding/binary"
	"os"
	"strings"
	"sync"
)

// Archive is an opened, read-only view of an MPQ container. Its
// in-memory indices are immutable once constructed and safe to share
// across goroutines; see handleCloner for the concurrent-read story.
type Archive struct {
	path       string
	header     *archiveHeader
	ht         *hashTable
	bt         *blockTable
	het        *hetTable
	bet        *betTable
	sectorSize uint32

	handles handleCloner
	mu      sync.Mutex // not used by any read path; reads go through handles.clone()
}

// Info summarizes an archive's static properties.
type Info struct {
	Version       int
	SectorSize    uint32
	FileCount     int
	HasHETBET     bool
	ArchiveSize   uint64
	ArchiveOffset uint64
}

// Open opens path for reading, discovering the header per spec §4.3
// and loading the hash/block tables (and HET/BET when present).
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapf(err, "open %s", path)
	}

	h, err := findArchiveHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if h.version() > formatVersion4 {
		f.Close()
		return nil, wrapf(ErrUnsupportedVersion, "version %d", h.version())
	}

	a := &Archive{
		path:       path,
		header:     h,
		sectorSize: 512 << h.SectorSizeShift,
	}

	if err := a.loadTables(f); err != nil {
		f.Close()
		return nil, err
	}

	cloner, err := newHandleCloner(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.handles = cloner

	return a, nil
}

func (a *Archive) loadTables(f *os.File) error {
	h := a.header

	if !isPowerOfTwo(h.HashTableCount) {
		return &CorruptTableError{Which: "hash", Reason: "hash_table_count is not a power of two"}
	}

	hashOffsets := []uint64{h.hashTableOffset64()}
	if h.version() == formatVersion1 {
		hashOffsets = v1OffsetCandidates(h.hashTableOffset64(), h.HashTableCount)
	}
	hashRaw, err := readTableBytes(f, h.ArchiveOffset, hashOffsets, h.HashTableCount*16)
	if err != nil {
		return wrapf(err, "read hash table")
	}
	ht, err := decodeHashTable(hashRaw, h.HashTableCount)
	if err != nil {
		return err
	}
	a.ht = ht

	blockOffsets := []uint64{h.blockTableOffset64()}
	if h.version() == formatVersion1 {
		blockOffsets = v1OffsetCandidates(h.blockTableOffset64(), h.BlockTableCount)
	}
	blockRaw, err := readTableBytes(f, h.ArchiveOffset, blockOffsets, h.BlockTableCount*16)
	if err != nil {
		return wrapf(err, "read block table")
	}
	bt, err := decodeBlockTable(blockRaw, h.BlockTableCount)
	if err != nil {
		return err
	}
	a.bt = bt

	if h.version() >= formatVersion2 && h.HiBlockTableOffset64 != 0 {
		hiRaw := make([]byte, h.BlockTableCount*2)
		if _, err := f.ReadAt(hiRaw, int64(h.ArchiveOffset+h.HiBlockTableOffset64)); err != nil {
			return wrapf(err, "read hi-block table")
		}
		hi, err := decodeHiBlockTable(hiRaw, h.BlockTableCount)
		if err != nil {
			return err
		}
		bt.hiOffset = hi
	}

	if h.hasHetBet() {
		if err := a.loadHetBet(f); err != nil {
			return err
		}
	}

	return nil
}

// loadHetBet reads the V3+ HET/BET directory. Both tables are read in
// full up front (unlike the sector-offset table, which stays lazy per
// file); archives large enough for this to matter are rare.
func (a *Archive) loadHetBet(f *os.File) error {
	h := a.header

	st, err := f.Stat()
	if err != nil {
		return err
	}
	archiveEnd := uint64(st.Size())

	hetStart := h.ArchiveOffset + h.HetTableOffset
	if hetStart+12 > archiveEnd {
		return &CorruptTableError{Which: "het", Reason: "offset out of bounds"}
	}
	hdrBuf := make([]byte, 12)
	if _, err := f.ReadAt(hdrBuf, int64(hetStart)); err != nil {
		return wrapf(err, "read het header")
	}
	hetSize := uint64(binary.LittleEndian.Uint32(hdrBuf[8:12]))
	if hetStart+hetSize > archiveEnd {
		return &CorruptTableError{Which: "het", Reason: "declared size out of bounds"}
	}
	hetRaw := make([]byte, hetSize)
	if _, err := f.ReadAt(hetRaw, int64(hetStart)); err != nil {
		return wrapf(err, "read het table")
	}
	het, err := decodeHetTable(hetRaw)
	if err != nil {
		return err
	}

	betStart := h.ArchiveOffset + h.BetTableOffset
	if betStart+12 > archiveEnd {
		return &CorruptTableError{Which: "bet", Reason: "offset out of bounds"}
	}
	betHdrBuf := make([]byte, 12)
	if _, err := f.ReadAt(betHdrBuf, int64(betStart)); err != nil {
		return wrapf(err, "read bet header")
	}
	betSize := uint64(binary.LittleEndian.Uint32(betHdrBuf[8:12]))
	if betStart+betSize > archiveEnd {
		return &CorruptTableError{Which: "bet", Reason: "declared size out of bounds"}
	}
	betRaw := make([]byte, betSize)
	if _, err := f.ReadAt(betRaw, int64(betStart)); err != nil {
		return wrapf(err, "read bet table")
	}
	bet, err := decodeBetTable(betRaw)
	if err != nil {
		return err
	}

	a.het = het
	a.bet = bet
	return nil
}

func readTableBytes(f *os.File, archiveOffset uint64, candidates []uint64, size uint32) ([]byte, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	archiveEnd := uint64(st.Size())

	for _, off := range candidates {
		if archiveOffset+off+uint64(size) > archiveEnd {
			continue
		}
		buf := make([]byte, size)
		if _, err := f.ReadAt(buf, int64(archiveOffset+off)); err != nil {
			continue
		}
		return buf, nil
	}
	return nil, &CorruptHeaderError{Reason: "table offset out of archive bounds"}
}

// Info returns static properties of the opened archive.
func (a *Archive) Info() Info {
	return Info{
		Version:       a.header.version(),
		SectorSize:    a.sectorSize,
		FileCount:     len(a.bt.entries),
		HasHETBET:     a.header.hasHetBet(),
		ArchiveSize:   a.header.ArchiveSize64(),
		ArchiveOffset: a.header.ArchiveOffset,
	}
}

// ArchiveSize64 returns the 64-bit archive size field appropriate to
// the header's version.
func (h *archiveHeader) ArchiveSize64() uint64 {
	if h.FormatVersion >= formatVersion3 {
		return h.headerV3Ext.ArchiveSize64
	}
	return uint64(h.ArchiveSize)
}

// normalizePath converts forward slashes to backslashes; callers pass
// either form.
func normalizePath(path string) string {
	return strings.ReplaceAll(path, "/", "\\")
}

// resolve finds the block entry for path, honoring the locale
// fallback rule, via the hash table first and, when that finds no live
// entry, via HET/BET if the archive has them.
func (a *Archive) resolve(path string, locale uint16) (blockTableEntry, uint16, bool) {
	path = normalizePath(path)

	if idx, ok := a.ht.find(path, locale); ok && idx < len(a.bt.entries) {
		e := a.bt.entries[idx]
		if e.Flags&fileExists != 0 {
			hi := uint16(0)
			if a.bt.hiOffset != nil {
				hi = a.bt.hiOffset[idx]
			}
			return e, hi, true
		}
	}

	if a.het != nil && a.bet != nil {
		if idx, ok := hetLookup(a.het, a.bet, path); ok {
			e := blockTableEntry{
				FilePos:        uint32(a.bet.filePos[idx]),
				CompressedSize: uint32(a.bet.compressedSize[idx]),
				FileSize:       uint32(a.bet.fileSize[idx]),
				Flags:          a.bet.flags[a.bet.flagIndex[idx]],
			}
			return e, uint16(a.bet.filePos[idx] >> 32), e.Flags&fileExists != 0
		}
	}

	return blockTableEntry{}, 0, false
}

// HasFile reports whether path resolves to a live (non-deleted) entry.
func (a *Archive) HasFile(path string) bool {
	e, _, ok := a.resolve(path, localeNeutral)
	return ok && e.Flags&fileDeleteMarker == 0
}

// IsDeleteMarker reports whether path is present as a deletion marker.
func (a *Archive) IsDeleteMarker(path string) bool {
	e, _, ok := a.resolve(path, localeNeutral)
	return ok && e.Flags&fileDeleteMarker != 0
}

// IsPatchFile reports whether path is marked PATCH_FILE.
func (a *Archive) IsPatchFile(path string) bool {
	e, _, ok := a.resolve(path, localeNeutral)
	return ok && e.Flags&filePatchFile != 0
}

// Read extracts path's full logical content.
func (a *Archive) Read(path string) ([]byte, error) {
	return a.ReadLocale(path, localeNeutral)
}

// ReadLocale extracts path honoring a specific locale.
func (a *Archive) ReadLocale(path string, locale uint16) ([]byte, error) {
	e, hi, ok := a.resolve(path, locale)
	if !ok {
		return nil, wrapf(ErrFileNotFound, "%s", path)
	}
	if e.Flags&fileDeleteMarker != 0 {
		return nil, wrapf(ErrFileNotFound, "%s (deletion marker)", path)
	}

	h, err := a.handles.clone()
	if err != nil {
		return nil, err
	}
	defer h.Close()

	return readFileBlock(h, normalizePath(path), a.header.ArchiveOffset, e, hi, a.sectorSize)
}

// Close releases the archive's underlying file handle(s).
func (a *Archive) Close() error {
	return a.handles.close()
}
