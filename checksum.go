// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import "hash/adler32"

// sectorChecksum computes the Adler-32 checksum used by SECTOR_CRC.
// Despite the flag's name, the real format checksums sectors with
// Adler-32, not CRC32 — StormLib's own "sector CRC" terminology is a
// historical misnomer. The teacher's hand-rolled adler32 matched this;
// the stdlib hash/adler32 package computes the identical value and
// replaces it here.
func sectorChecksum(data []byte) uint32 {
	return adler32.Checksum(data)
}
