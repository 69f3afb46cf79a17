// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Exported format version identifiers for Builder/Rebuild callers.
const (
	FormatVersion1 = formatVersion1
	FormatVersion2 = formatVersion2
	FormatVersion3 = formatVersion3
	FormatVersion4 = formatVersion4
)

// MPQ format constants.
const (
	// Magic signature "MPQ\x1A" in little-endian.
	mpqMagic = 0x1A51504D

	// Format versions.
	formatVersion1 = 0 // Original format (up to 4GB)
	formatVersion2 = 1 // Extended format (Burning Crusade+)
	formatVersion3 = 2 // Cataclysm beta; adds 64-bit archive size and HET/BET
	formatVersion4 = 3 // Adds per-table MD5s and raw-chunk striping

	// Header sizes, cumulative per version.
	headerSizeV1 = 0x20 // 32 bytes
	headerSizeV2 = 0x2C // 44 bytes
	headerSizeV3 = 0x44 // 68 bytes
	headerSizeV4 = 0xD0 // 208 bytes

	// Block table entry flags (spec §3 "File flags").
	fileImplode      = 0x00000100 // Imploded (legacy PKWARE-only path, no mask byte)
	fileCompress     = 0x00000200 // Multi-codec mask byte precedes sector data
	fileEncrypted    = 0x00010000 // Encrypted
	fileFixKey       = 0x00020000 // Key adjusted by block offset and logical size
	filePatchFile    = 0x00100000 // Incremental patch; not directly readable
	fileSingleUnit   = 0x01000000 // Single unit (no sector table)
	fileDeleteMarker = 0x02000000 // Deletion marker
	fileSectorCRC    = 0x04000000 // Sector CRC (Adler-32) table follows sector offsets
	fileExists       = 0x80000000 // Live entry

	// Hash table entry sentinels.
	hashTableEmpty   = 0xFFFFFFFF
	hashTableDeleted = 0xFFFFFFFE

	localeNeutral = 0x0000

	// Default sector size (4096 bytes = 512 * 2^3).
	defaultSectorSizeShift = 3
	defaultSectorSize      = 512 << defaultSectorSizeShift

	// headerScanLimit bounds the 512-byte-aligned magic scan (spec §4.3).
	headerScanLimit = 1 << 30 // 1 GiB
)

// headerV1 is the MPQ archive header's original 32-byte layout, present
// in every version.
type headerV1 struct {
	Magic            uint32
	HeaderSize       uint32
	ArchiveSize      uint32 // deprecated from V2 on; archive_size_64 supersedes it
	FormatVersion    uint16
	SectorSizeShift  uint16
	HashTableOffset  uint32
	BlockTableOffset uint32
	HashTableCount   uint32
	BlockTableCount  uint32
}

// headerV2Ext is the 12 bytes V2 appends.
type headerV2Ext struct {
	HiBlockTableOffset64 uint64
	HashTableOffsetHi    uint16
	BlockTableOffsetHi   uint16
}

// headerV3Ext is the 24 bytes V3 appends: a 64-bit archive size and the
// HET/BET table positions.
type headerV3Ext struct {
	ArchiveSize64  uint64
	BetTableOffset uint64
	HetTableOffset uint64
}

// headerV4Ext is the 140 bytes V4 appends: explicit table sizes, a
// raw-chunk size used for MD5 striping, and per-table MD5 digests.
type headerV4Ext struct {
	HashTableSize64   uint64
	BlockTableSize64  uint64
	HiBlockTableSize64 uint64
	HetTableSize64    uint64
	BetTableSize64    uint64
	RawChunkSize      uint32
	MD5BlockTable     [16]byte
	MD5HashTable      [16]byte
	MD5HiBlockTable   [16]byte
	MD5BetTable       [16]byte
	MD5HetTable       [16]byte
	MD5Header         [16]byte
}

// archiveHeader is the union of every version's fields. Only the
// sub-structs relevant to FormatVersion are populated/serialized.
type archiveHeader struct {
	headerV1
	headerV2Ext
	headerV3Ext
	headerV4Ext

	// ArchiveOffset is the byte offset within the underlying stream at
	// which this header was found (non-zero for embedded archives,
	// e.g. self-extracting installers). All table/file offsets in the
	// header are relative to this point.
	ArchiveOffset uint64
}

func (h *archiveHeader) version() int { return int(h.FormatVersion) }

// hashTableOffset64 returns the full offset of the hash table, relative
// to ArchiveOffset.
func (h *archiveHeader) hashTableOffset64() uint64 {
	if h.FormatVersion >= formatVersion2 {
		return uint64(h.HashTableOffset) | (uint64(h.HashTableOffsetHi) << 32)
	}
	return uint64(h.HashTableOffset)
}

// blockTableOffset64 returns the full offset of the block table,
// relative to ArchiveOffset.
func (h *archiveHeader) blockTableOffset64() uint64 {
	if h.FormatVersion >= formatVersion2 {
		return uint64(h.BlockTableOffset) | (uint64(h.BlockTableOffsetHi) << 32)
	}
	return uint64(h.BlockTableOffset)
}

func (h *archiveHeader) setHashTableOffset64(offset uint64) {
	h.HashTableOffset = uint32(offset)
	h.HashTableOffsetHi = uint16(offset >> 32)
}

func (h *archiveHeader) setBlockTableOffset64(offset uint64) {
	h.BlockTableOffset = uint32(offset)
	h.BlockTableOffsetHi = uint16(offset >> 32)
}

// hasHetBet reports whether this header declares HET/BET tables.
func (h *archiveHeader) hasHetBet() bool {
	return h.FormatVersion >= formatVersion3 && h.HetTableOffset != 0 && h.BetTableOffset != 0
}

// headerSizeForVersion returns the canonical on-disk header size for v.
func headerSizeForVersion(v int) uint32 {
	switch {
	case v >= formatVersion4:
		return headerSizeV4
	case v >= formatVersion3:
		return headerSizeV3
	case v >= formatVersion2:
		return headerSizeV2
	default:
		return headerSizeV1
	}
}

// hashTableEntry is one 16-byte hash table slot.
type hashTableEntry struct {
	HashA      uint32
	HashB      uint32
	Locale     uint16
	Platform   uint16
	BlockIndex uint32
}

// blockTableEntry is one 16-byte block table slot (low 32 bits of the
// file offset; see blockTableEntryEx for the hi-block extension).
type blockTableEntry struct {
	FilePos        uint32
	CompressedSize uint32
	FileSize       uint32
	Flags          uint32
}

// blockTableEntryEx extends blockTableEntry with the hi-block table's
// upper 16 bits of file offset (V2+, only present when any offset
// exceeds 2^32-1).
type blockTableEntryEx struct {
	blockTableEntry
	FilePosHi uint16
}

func (b *blockTableEntryEx) filePos64() uint64 {
	return uint64(b.FilePos) | (uint64(b.FilePosHi) << 32)
}

func (b *blockTableEntryEx) setFilePos64(pos uint64) {
	b.FilePos = uint32(pos)
	b.FilePosHi = uint16(pos >> 32)
}

// findArchiveHeader scans r at 512-byte-aligned offsets for the MPQ
// magic, per spec §4.3, and parses the header found there. It does not
// rewind r; callers seek as needed afterward.
func findArchiveHeader(r io.ReadSeeker) (*archiveHeader, error) {
	var magic [4]byte

	for offset := int64(0); offset < headerScanLimit; offset += 512 {
		if _, err := r.Seek(offset, io.SeekStart); err != nil {
			return nil, wrapf(ErrNotAnArchive, "seek to candidate header at %d", offset)
		}
		n, err := io.ReadFull(r, magic[:])
		if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, wrapf(err, "scan for header")
		}
		if n < 4 {
			break
		}
		if binary.LittleEndian.Uint32(magic[:]) != mpqMagic {
			continue
		}

		h, err := readArchiveHeader(r)
		if err != nil {
			return nil, wrapf(err, "parse header at offset %d", offset)
		}
		h.ArchiveOffset = uint64(offset)
		return h, nil
	}

	return nil, ErrNotAnArchive
}

// readArchiveHeader reads the header body (magic already consumed) from
// the reader's current position.
func readArchiveHeader(r io.Reader) (*archiveHeader, error) {
	h := &archiveHeader{}
	h.Magic = mpqMagic

	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, &CorruptHeaderError{Reason: "truncated before header_size"}
	}
	h.HeaderSize = binary.LittleEndian.Uint32(buf)

	rest := make([]byte, headerSizeV1-8)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, &CorruptHeaderError{Reason: "truncated V1 header"}
	}
	br := bytes.NewReader(rest)
	binary.Read(br, binary.LittleEndian, &h.ArchiveSize)
	binary.Read(br, binary.LittleEndian, &h.FormatVersion)
	binary.Read(br, binary.LittleEndian, &h.SectorSizeShift)
	binary.Read(br, binary.LittleEndian, &h.HashTableOffset)
	binary.Read(br, binary.LittleEndian, &h.BlockTableOffset)
	binary.Read(br, binary.LittleEndian, &h.HashTableCount)
	binary.Read(br, binary.LittleEndian, &h.BlockTableCount)

	if h.HeaderSize < headerSizeForVersion(int(h.FormatVersion)) && h.FormatVersion != formatVersion1 {
		return nil, &CorruptHeaderError{Reason: "header_size too small for declared version"}
	}

	if h.FormatVersion >= formatVersion2 && h.HeaderSize >= headerSizeV2 {
		if err := binary.Read(r, binary.LittleEndian, &h.headerV2Ext); err != nil {
			return nil, &CorruptHeaderError{Reason: "truncated V2 extension"}
		}
	}
	if h.FormatVersion >= formatVersion3 && h.HeaderSize >= headerSizeV3 {
		if err := binary.Read(r, binary.LittleEndian, &h.headerV3Ext); err != nil {
			return nil, &CorruptHeaderError{Reason: "truncated V3 extension"}
		}
	}
	if h.FormatVersion >= formatVersion4 && h.HeaderSize >= headerSizeV4 {
		if err := binary.Read(r, binary.LittleEndian, &h.headerV4Ext); err != nil {
			return nil, &CorruptHeaderError{Reason: "truncated V4 extension"}
		}
	}

	return h, nil
}

// writeArchiveHeader writes h to w per its FormatVersion.
func writeArchiveHeader(w io.Writer, h *archiveHeader) error {
	if err := binary.Write(w, binary.LittleEndian, &h.headerV1); err != nil {
		return err
	}
	if h.FormatVersion >= formatVersion2 {
		if err := binary.Write(w, binary.LittleEndian, &h.headerV2Ext); err != nil {
			return err
		}
	}
	if h.FormatVersion >= formatVersion3 {
		if err := binary.Write(w, binary.LittleEndian, &h.headerV3Ext); err != nil {
			return err
		}
	}
	if h.FormatVersion >= formatVersion4 {
		if err := binary.Write(w, binary.LittleEndian, &h.headerV4Ext); err != nil {
			return err
		}
	}
	return nil
}

func readUint32Array(r io.Reader, data []uint32) error {
	return binary.Read(r, binary.LittleEndian, data)
}

func readUint16Array(r io.Reader, data []uint16) error {
	return binary.Read(r, binary.LittleEndian, data)
}

func writeUint32Array(w io.Writer, data []uint32) error {
	return binary.Write(w, binary.LittleEndian, data)
}

func writeUint16Array(w io.Writer, data []uint16) error {
	return binary.Write(w, binary.LittleEndian, data)
}

// v1OffsetCandidates returns the offsets to try for a V1 archive's hash
// or block table, including the historical modulo-wraparound quirk
// (spec §4.3, §6.1) that some very old archives depend on. Readers try
// the plain offset first and only fall back to the wrapped one if it
// doesn't fit within the archive; writers never emit the wrapped form.
func v1OffsetCandidates(offset uint64, tableCount uint32) []uint64 {
	candidates := []uint64{offset}
	if tableCount > 0 {
		wrapped := offset % (4 * uint64(tableCount))
		if wrapped != offset {
			candidates = append(candidates, wrapped)
		}
	}
	return candidates
}
