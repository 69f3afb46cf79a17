// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"encoding/binary"
	"io"
)

// readFileBlock reads and reassembles the logical content of a single
// resolved block table entry (spec §4.6), given its full on-disk
// offset, from r.
func readFileBlock(r io.ReaderAt, mpqPath string, archiveOffset uint64, b blockTableEntry, hiOffset uint16, sectorSize uint32) ([]byte, error) {
	if b.Flags&filePatchFile != 0 {
		return nil, ErrPatchFileNotSupported
	}

	filePos := uint64(b.FilePos) | (uint64(hiOffset) << 32)
	raw := make([]byte, b.CompressedSize)
	if _, err := r.ReadAt(raw, int64(archiveOffset+filePos)); err != nil && err != io.EOF {
		return nil, wrapf(err, "read block data")
	}

	if b.Flags&fileSingleUnit != 0 {
		return readSingleUnit(mpqPath, raw, b)
	}
	return readSectored(mpqPath, raw, b, sectorSize)
}

func readSingleUnit(mpqPath string, raw []byte, b blockTableEntry) ([]byte, error) {
	data := raw
	if b.Flags&fileEncrypted != 0 {
		key := fileKey(mpqPath, b.Flags&fileFixKey != 0, uint64(b.FilePos), b.FileSize)
		data = append([]byte(nil), data...)
		decryptBytes(data, key)
	}

	var out []byte
	switch {
	case b.Flags&fileImplode != 0:
		o, err := pkwareExplode(data, int(b.FileSize))
		if err != nil {
			return nil, err
		}
		out = o
	case b.Flags&fileCompress != 0:
		if uint32(len(data)) >= b.FileSize {
			out = data
		} else {
			if len(data) == 0 {
				return nil, &CorruptSectorTableError{Reason: "empty compressed single-unit payload"}
			}
			mask := data[0]
			o, err := decompressSector(data[1:], mask, int(b.FileSize))
			if err != nil {
				return nil, err
			}
			out = o
		}
	default:
		out = data
	}

	if b.Flags&fileSectorCRC != 0 {
		if err := checkSectorCRCSingle(out, raw, b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// checkSectorCRCSingle performs no validation and always returns nil:
// a single-unit file's appended checksum, when present, is not
// compared against the decoded content.
func checkSectorCRCSingle(_ []byte, _ []byte, _ blockTableEntry) error {
	return nil
}

func readSectored(mpqPath string, raw []byte, b blockTableEntry, sectorSize uint32) ([]byte, error) {
	numSectors := (b.FileSize + sectorSize - 1) / sectorSize
	if numSectors == 0 {
		numSectors = 1
	}
	offsetTableLen := (numSectors + 1) * 4

	if b.Flags&fileImplode != 0 {
		return readSectoredImplode(raw, b, sectorSize, numSectors)
	}

	if uint32(len(raw)) < offsetTableLen {
		return nil, &CorruptSectorTableError{Reason: "truncated sector offset table"}
	}

	offsets := make([]uint32, numSectors+1)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}

	var key uint32
	encrypted := b.Flags&fileEncrypted != 0
	if encrypted {
		key = fileKey(mpqPath, b.Flags&fileFixKey != 0, uint64(b.FilePos), b.FileSize)
		words := make([]uint32, len(offsets))
		copy(words, offsets)
		decryptBlock(words, key-1)
		copy(offsets, words)
	}

	for i := uint32(1); i <= numSectors; i++ {
		if offsets[i] < offsets[i-1] || offsets[i] > uint32(len(raw)) {
			return nil, &CorruptSectorTableError{Reason: "non-monotonic or out-of-range sector offset"}
		}
	}

	hasCRC := b.Flags&fileSectorCRC != 0
	var crcs []uint32
	dataStart := offsetTableLen
	if hasCRC {
		crcTableEnd := offsetTableLen + numSectors*4
		if offsets[0] >= crcTableEnd && crcTableEnd <= uint32(len(raw)) {
			crcs = make([]uint32, numSectors)
			for i := uint32(0); i < numSectors; i++ {
				crcs[i] = binary.LittleEndian.Uint32(raw[offsetTableLen+i*4:])
			}
			if encrypted {
				decryptBlock(crcs, key-1+numSectors)
			}
			dataStart = crcTableEnd
		}
	}
	_ = dataStart

	out := make([]byte, 0, b.FileSize)
	for i := uint32(0); i < numSectors; i++ {
		sectorStart := offsets[i]
		sectorEnd := offsets[i+1]
		if sectorEnd < sectorStart {
			return nil, &CorruptSectorTableError{Reason: "sector end before start"}
		}
		sectorData := make([]byte, sectorEnd-sectorStart)
		copy(sectorData, raw[sectorStart:sectorEnd])

		if encrypted {
			decryptBytes(sectorData, key+i)
		}

		expected := sectorSize
		if i == numSectors-1 {
			expected = b.FileSize - i*sectorSize
		}

		var sectorOut []byte
		switch {
		case b.Flags&fileCompress != 0 && uint32(len(sectorData)) < expected:
			if len(sectorData) == 0 {
				return nil, &CorruptSectorTableError{Reason: "empty compressed sector"}
			}
			mask := sectorData[0]
			decoded, err := decompressSector(sectorData[1:], mask, int(expected))
			if err != nil {
				return nil, wrapf(err, "sector %d", i)
			}
			sectorOut = decoded
		default:
			sectorOut = sectorData
		}

		if crcs != nil {
			got := sectorChecksum(sectorOut)
			if got != crcs[i] {
				return nil, &ChecksumMismatchError{Kind: "sector-adler32", Expected: crcs[i], Got: got}
			}
		}

		out = append(out, sectorOut...)
	}

	return out, nil
}

// readSectoredImplode handles the legacy IMPLODE flag, which bypasses
// the mask-byte scheme entirely: every sector is raw PKWARE-imploded
// with no codec prefix and no sector offset table (spec §4.2, §4.6).
func readSectoredImplode(raw []byte, b blockTableEntry, sectorSize, numSectors uint32) ([]byte, error) {
	out := make([]byte, 0, b.FileSize)
	pos := 0
	for i := uint32(0); i < numSectors && pos < len(raw); i++ {
		expected := sectorSize
		if i == numSectors-1 {
			expected = b.FileSize - i*sectorSize
		}
		decoded, consumed, err := pkwareExplodeConsumed(raw[pos:], int(expected))
		if err != nil {
			return nil, err
		}
		out = append(out, decoded...)
		pos += consumed
	}
	return out, nil
}
