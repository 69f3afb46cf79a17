// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"crypto/md5"
	"encoding/binary"
	"hash/crc32"
)

// The (attributes) file carries per-block-slot integrity metadata:
// CRC32, MD5, and a Windows FILETIME, gated by a present-mask header
// (spec §4.10). StormLib-conformant writers always set all three
// flags; a CRC32-only encoding, while technically parseable, is
// non-conformant and never produced here.
const (
	attributesVersion = 100

	attrFlagCRC32    = 0x00000001
	attrFlagFileTime = 0x00000002
	attrFlagMD5      = 0x00000004
)

type attributeEntry struct {
	CRC32    uint32
	MD5      [16]byte
	FileTime uint64
}

type attributesTable struct {
	flags   uint32
	entries []attributeEntry
	// legacyTailPadding records that the source archive's (attributes)
	// file had the documented 28-byte trailing pad (see spec §9); it
	// is tolerated on read and never reproduced by the builder.
	legacyTailPadding bool
}

func newAttributesTable(fileCount int) *attributesTable {
	return &attributesTable{
		flags:   attrFlagCRC32 | attrFlagMD5 | attrFlagFileTime,
		entries: make([]attributeEntry, fileCount),
	}
}

// setEntry derives the CRC32 and MD5 fields from a block's
// decompressed logical content; FileTime is left zero. A nil data
// (used for placeholder/special slots) zeros the entry.
func (a *attributesTable) setEntry(index int, data []byte) {
	if index < 0 || index >= len(a.entries) {
		return
	}
	if data == nil {
		a.entries[index] = attributeEntry{}
		return
	}
	a.entries[index] = attributeEntry{
		CRC32: crc32.ChecksumIEEE(data),
		MD5:   md5.Sum(data),
	}
}

func (a *attributesTable) build() []byte {
	if len(a.entries) == 0 {
		return nil
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], attributesVersion)
	binary.LittleEndian.PutUint32(buf[4:8], a.flags)

	if a.flags&attrFlagCRC32 != 0 {
		seg := make([]byte, len(a.entries)*4)
		for i, e := range a.entries {
			binary.LittleEndian.PutUint32(seg[i*4:], e.CRC32)
		}
		buf = append(buf, seg...)
	}
	if a.flags&attrFlagMD5 != 0 {
		seg := make([]byte, len(a.entries)*16)
		for i, e := range a.entries {
			copy(seg[i*16:], e.MD5[:])
		}
		buf = append(buf, seg...)
	}
	if a.flags&attrFlagFileTime != 0 {
		seg := make([]byte, len(a.entries)*8)
		for i, e := range a.entries {
			binary.LittleEndian.PutUint64(seg[i*8:], e.FileTime)
		}
		buf = append(buf, seg...)
	}

	return buf
}

// parseAttributes decodes an (attributes) file's raw decompressed
// content. Some archives carry a documented trailing pad of up to 28
// bytes after the last expected field; it is silently discarded here
// rather than treated as corruption.
func parseAttributes(data []byte, fileCount int) (*attributesTable, error) {
	if len(data) < 8 {
		return nil, &CorruptTableError{Which: "attributes", Reason: "truncated header"}
	}
	version := binary.LittleEndian.Uint32(data[0:4])
	_ = version
	flags := binary.LittleEndian.Uint32(data[4:8])

	at := &attributesTable{flags: flags, entries: make([]attributeEntry, fileCount)}
	pos := 8

	if flags&attrFlagCRC32 != 0 {
		need := fileCount * 4
		if pos+need > len(data) {
			return nil, &CorruptTableError{Which: "attributes", Reason: "truncated crc32 segment"}
		}
		for i := 0; i < fileCount; i++ {
			at.entries[i].CRC32 = binary.LittleEndian.Uint32(data[pos+i*4:])
		}
		pos += need
	}
	if flags&attrFlagMD5 != 0 {
		need := fileCount * 16
		if pos+need > len(data) {
			return nil, &CorruptTableError{Which: "attributes", Reason: "truncated md5 segment"}
		}
		for i := 0; i < fileCount; i++ {
			copy(at.entries[i].MD5[:], data[pos+i*16:pos+i*16+16])
		}
		pos += need
	}
	if flags&attrFlagFileTime != 0 {
		need := fileCount * 8
		if pos+need > len(data) {
			return nil, &CorruptTableError{Which: "attributes", Reason: "truncated filetime segment"}
		}
		for i := 0; i < fileCount; i++ {
			at.entries[i].FileTime = binary.LittleEndian.Uint64(data[pos+i*8:])
		}
		pos += need
	}

	if pos < len(data) && len(data)-pos <= 28 {
		at.legacyTailPadding = true
	}

	return at, nil
}
