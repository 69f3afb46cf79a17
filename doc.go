// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

/*
Package mpq provides pure Go support for reading, writing, and
patch-stacking MPQ (Mo'PaQ) archives.

MPQ is an archive format created by Blizzard Entertainment, used in
games like Diablo, StarCraft, and World of Warcraft. This package
supports every container version in public use: V1 (original, up to
4GB), V2 (extended, >4GB), V3 (adds a 64-bit archive size and the
HET/BET directory), and V4 (adds per-table MD5 digests).

# Features

  - Pure Go implementation, no CGO
  - Read and write MPQ archives across format versions V1-V4
  - All eight per-sector compression codecs: Huffman, Zlib, PKWare
    implode, Bzip2, LZMA, sparse RLE, and mono/stereo ADPCM
  - HET/BET directory support alongside the classic hash/block tables
  - Weak (RSA/MD5) and strong (RSA/SHA-1) signature verification
  - Overlay resolution across a prioritized stack of patch archives
  - In-place add/remove/rename via Mutator
  - Archive comparison and 1:1 rebuild with format/codec migration

# Basic Usage

Creating an archive:

	b := mpq.NewBuilder(mpq.WithVersion(mpq.FormatVersion2))
	b.Add("Data\\file.txt", []byte("hello"))
	if err := b.Build("patch.mpq"); err != nil {
		log.Fatal(err)
	}

Reading an archive:

	archive, err := mpq.Open("game.mpq")
	if err != nil {
		log.Fatal(err)
	}
	defer archive.Close()

	if archive.HasFile("Data\\file.txt") {
		data, err := archive.Read("Data\\file.txt")
		if err != nil {
			log.Fatal(err)
		}
	}

Stacking patch archives by priority:

	ov := mpq.NewOverlay()
	ov.Add("base.mpq", 0)
	ov.Add("patch-1.mpq", 1)
	ov.Add("patch-2.mpq", 2)
	defer ov.Close()

	data, err := ov.Read("Data\\file.txt")

# Path Conventions

MPQ archives use backslash (\) as the path separator. This package
automatically converts forward slashes to backslashes, so both forms
work interchangeably in every public API that takes a path.

# Non-goals

This package does not attempt to generate strong (2048-bit) signatures
— only the original publisher's build pipeline held that private key,
so only verification is supported. It also does not implement
installer-specific user-data headers beyond locating the archive
header within them.
*/
package mpq
