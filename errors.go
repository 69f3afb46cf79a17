// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel errors for the §6.3 taxonomy. Use errors.Is against these.
var (
	ErrNotAnArchive          = errors.New("mpq: not an archive")
	ErrUnsupportedVersion    = errors.New("mpq: unsupported format version")
	ErrTruncated             = errors.New("mpq: truncated archive")
	ErrFileNotFound          = errors.New("mpq: file not found")
	ErrUnknownEncryptionKey  = errors.New("mpq: unable to derive encryption key")
	ErrPatchFileNotSupported = errors.New("mpq: patch files cannot be read directly")
	ErrWriteConflict         = errors.New("mpq: write conflict")
)

// CorruptHeaderError reports a structurally invalid archive header.
type CorruptHeaderError struct {
	Reason string
}

func (e *CorruptHeaderError) Error() string {
	return fmt.Sprintf("mpq: corrupt header: %s", e.Reason)
}

// CorruptTableError reports a structurally invalid hash/block/HET/BET table.
type CorruptTableError struct {
	Which  string // "hash", "block", "het", "bet", "hi-block"
	Reason string
}

func (e *CorruptTableError) Error() string {
	return fmt.Sprintf("mpq: corrupt %s table: %s", e.Which, e.Reason)
}

// CorruptSectorTableError reports an invalid per-file sector offset table.
type CorruptSectorTableError struct {
	Reason string
}

func (e *CorruptSectorTableError) Error() string {
	return fmt.Sprintf("mpq: corrupt sector table: %s", e.Reason)
}

// CodecError reports a (de)compression failure for a specific codec.
type CodecError struct {
	Codec  string
	Detail string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("mpq: codec %s: %s", e.Codec, e.Detail)
}

// ChecksumMismatchError reports a failed integrity check.
type ChecksumMismatchError struct {
	Kind     string // "sector-adler32", "attributes-crc32", "attributes-md5"
	Expected uint32
	Got      uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("mpq: %s checksum mismatch: expected 0x%08X got 0x%08X", e.Kind, e.Expected, e.Got)
}

// SignatureInvalidError reports a failed or absent signature verification
// where the caller explicitly asked for a verdict.
type SignatureInvalidError struct {
	Kind string // "weak", "strong"
}

func (e *SignatureInvalidError) Error() string {
	return fmt.Sprintf("mpq: %s signature invalid", e.Kind)
}

func wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
