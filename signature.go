// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"crypto"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"sync"
)

// Integrity & signature support (spec §4.10). Two independent schemes
// exist in the format: a weak 512-bit RSA/MD5 signature stored inside
// the archive as a special (signature) file, and a strong 2048-bit
// RSA/SHA-1 signature appended after the archive's own bytes, located
// via the "NGIS" marker.
//
// Both digests run over the archive in 64KiB "digest units", with the
// signature's own on-disk byte range treated as zeros rather than
// skipped. The weak scheme's raw (non-PKCS1) RSA operation used by the
// reference implementation has no conformant ecosystem package; the
// functions below use crypto/rsa's standard PKCS1v15 sign/verify as
// the idiomatic Go substitute for that non-standard primitive, so the
// signatures made and checked here are not byte-for-byte compatible
// with the reference implementation's.

const (
	digestUnitSize = 64 * 1024

	weakSignatureFileSize = 8 + 64 // 8-byte zero pad + 64-byte little-endian signature

	strongSignatureMarker = "NGIS"
	strongSignatureSize   = 256
)

// SignatureKind distinguishes the two schemes.
type SignatureKind int

const (
	SignatureNone SignatureKind = iota
	SignatureWeak
	SignatureStrong
	SignatureInvalid
)

// digestRange computes a hash over r's bytes from 0 to archiveSize,
// reading digestUnitSize chunks at a time, with [excludeStart,
// excludeEnd) treated as zero bytes rather than omitted.
func digestRange(r io.ReaderAt, archiveSize int64, excludeStart, excludeEnd int64, h interface {
	Write([]byte) (int, error)
}) error {
	buf := make([]byte, digestUnitSize)
	for off := int64(0); off < archiveSize; off += digestUnitSize {
		n := digestUnitSize
		if off+int64(n) > archiveSize {
			n = int(archiveSize - off)
		}
		chunk := buf[:n]
		if _, err := r.ReadAt(chunk, off); err != nil && err != io.EOF {
			return err
		}
		for i := 0; i < n; i++ {
			pos := off + int64(i)
			if pos >= excludeStart && pos < excludeEnd {
				chunk[i] = 0
			}
		}
		if _, err := h.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}

// VerifyWeakSignature verifies the archive's weak signature, given the
// (signature) file's byte range within the archive and the public key
// to verify against.
func VerifyWeakSignature(r io.ReaderAt, archiveSize int64, sigRange [2]int64, sig [64]byte, pub *rsa.PublicKey) error {
	h := md5.New()
	if err := digestRange(r, archiveSize, sigRange[0], sigRange[1], h); err != nil {
		return wrapf(err, "digest archive for weak signature")
	}
	digest := h.Sum(nil)

	// Stored little-endian; PKCS1v15 verification expects big-endian.
	be := reverseBytes(sig[:])
	if err := rsa.VerifyPKCS1v15(pub, crypto.MD5, digest, be); err != nil {
		return &SignatureInvalidError{Kind: "weak"}
	}
	return nil
}

// GenerateWeakSignature produces the 64-byte little-endian signature
// body (without the 8-byte zero pad) for the archive, excluding
// sigRange from the digest.
func GenerateWeakSignature(r io.ReaderAt, archiveSize int64, sigRange [2]int64, priv *rsa.PrivateKey) ([64]byte, error) {
	var out [64]byte

	h := md5.New()
	if err := digestRange(r, archiveSize, sigRange[0], sigRange[1], h); err != nil {
		return out, wrapf(err, "digest archive for weak signature")
	}
	digest := h.Sum(nil)

	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.MD5, digest)
	if err != nil {
		return out, wrapf(err, "sign weak digest")
	}

	le := reverseBytes(sig)
	copy(out[:], le)
	return out, nil
}

// encodeWeakSignatureFile packs a weak signature into the
// (signature) file's on-disk layout: 8 zero bytes then the 64-byte
// little-endian signature.
func encodeWeakSignatureFile(sig [64]byte) []byte {
	buf := make([]byte, weakSignatureFileSize)
	copy(buf[8:], sig[:])
	return buf
}

func decodeWeakSignatureFile(data []byte) ([64]byte, bool) {
	var sig [64]byte
	if len(data) < weakSignatureFileSize {
		return sig, false
	}
	copy(sig[:], data[8:8+64])
	allZero := true
	for _, b := range sig {
		if b != 0 {
			allZero = false
			break
		}
	}
	return sig, !allZero
}

// VerifyStrongSignature verifies the 256-byte strong signature
// appended after the archive's own bytes, located by the 4-byte
// "NGIS" marker. Only verification is supported (spec §4.10); the
// reference implementation never generates strong signatures outside
// the original publisher's build pipeline.
func VerifyStrongSignature(r io.ReaderAt, archiveSize int64, sigRange [2]int64, pub *rsa.PublicKey) error {
	marker := make([]byte, 4)
	if _, err := r.ReadAt(marker, archiveSize); err != nil {
		return wrapf(err, "read strong signature marker")
	}
	if string(marker) != strongSignatureMarker {
		return &SignatureInvalidError{Kind: "strong"}
	}

	sig := make([]byte, strongSignatureSize)
	if _, err := r.ReadAt(sig, archiveSize+4); err != nil {
		return wrapf(err, "read strong signature body")
	}

	h := sha1.New()
	if err := digestRange(r, archiveSize, sigRange[0], sigRange[1], h); err != nil {
		return wrapf(err, "digest archive for strong signature")
	}
	digest := h.Sum(nil)

	be := reverseBytes(sig)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, digest, be); err != nil {
		return &SignatureInvalidError{Kind: "strong"}
	}
	return nil
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// signatureFileHeader is the small struct some (signature) variants
// carry ahead of the raw bytes (version + explicit length); tolerated
// on read for archives that use it, never emitted by this writer,
// which always writes the fixed-size pad+signature layout.
type signatureFileHeader struct {
	Version   uint32
	SigLength uint32
}

func parseLegacySignatureHeader(data []byte) (signatureFileHeader, bool) {
	if len(data) < 8 {
		return signatureFileHeader{}, false
	}
	return signatureFileHeader{
		Version:   binary.LittleEndian.Uint32(data[0:4]),
		SigLength: binary.LittleEndian.Uint32(data[4:8]),
	}, true
}

// signatureFileRange returns the (signature) file's absolute byte
// range within the archive container, for exclusion from the weak
// signature's own digest.
func (a *Archive) signatureFileRange() (int64, int64, bool) {
	e, hi, ok := a.resolve("(signature)", localeNeutral)
	if !ok || e.Flags&fileDeleteMarker != 0 {
		return 0, 0, false
	}
	ext := blockTableEntryEx{blockTableEntry: e, FilePosHi: hi}
	start := int64(a.header.ArchiveOffset + ext.filePos64())
	return start, start + int64(e.CompressedSize), true
}

// WeakSignature reads and decodes the archive's (signature) file, if
// any. ok is false when the file is absent or present-but-empty (spec
// §9 Open Question: an empty (signature) file means "no signature",
// not a corrupt one).
func (a *Archive) WeakSignature() (sig [64]byte, ok bool, err error) {
	if !a.HasFile("(signature)") {
		return sig, false, nil
	}
	data, err := a.Read("(signature)")
	if err != nil {
		return sig, false, err
	}
	sig, present := decodeWeakSignatureFile(data)
	return sig, present, nil
}

// VerifyWeakSignature verifies the archive's weak signature against
// pub, treating the (signature) file's own byte range as zeros in the
// digest per spec §4.10.
func (a *Archive) VerifyWeakSignature(pub *rsa.PublicKey) error {
	sig, ok, err := a.WeakSignature()
	if err != nil {
		return err
	}
	if !ok {
		return &SignatureInvalidError{Kind: "weak"}
	}

	start, end, _ := a.signatureFileRange()
	h, err := a.handles.clone()
	if err != nil {
		return err
	}
	defer h.Close()

	return VerifyWeakSignature(h, int64(a.header.ArchiveSize64()), [2]int64{start, end}, sig, pub)
}

// VerifyStrongSignature verifies the archive's appended strong
// signature against pub.
func (a *Archive) VerifyStrongSignature(pub *rsa.PublicKey) error {
	h, err := a.handles.clone()
	if err != nil {
		return err
	}
	defer h.Close()

	return VerifyStrongSignature(h, int64(a.header.ArchiveSize64()), [2]int64{0, 0}, pub)
}

// seededReader is a deterministic, infinite byte stream derived from a
// fixed label by repeated SHA-256 expansion: Read(ctr || label) for
// ctr = 0, 1, 2, ... Used only to generate this package's embedded
// "well-known" key material reproducibly from source, without
// committing real historical key bytes that can't be verified without
// running the toolchain.
type seededReader struct {
	label []byte
	ctr   uint64
	buf   []byte
}

func newSeededReader(label string) *seededReader {
	return &seededReader{label: []byte(label)}
}

func (s *seededReader) Read(p []byte) (int, error) {
	// crypto/rsa's key generation makes single-byte reads at random;
	// answering them with a zero byte without advancing the stream keeps
	// the generated key the same on every call.
	if len(p) == 1 {
		p[0] = 0
		return 1, nil
	}
	n := 0
	for n < len(p) {
		if len(s.buf) == 0 {
			var ctrBuf [8]byte
			binary.BigEndian.PutUint64(ctrBuf[:], s.ctr)
			s.ctr++
			sum := sha256.Sum256(append(ctrBuf[:], s.label...))
			s.buf = sum[:]
		}
		c := copy(p[n:], s.buf)
		s.buf = s.buf[c:]
		n += c
	}
	return n, nil
}

var (
	weakKeyOnce   sync.Once
	weakPublicKey *rsa.PublicKey

	strongKeyOnce   sync.Once
	strongPublicKey *rsa.PublicKey
)

// embeddedWeakPublicKey returns the package's well-known weak-signature
// public key, matching the reference implementation's VerifySignature
// shipping a fixed key rather than requiring the caller supply one.
// Generated deterministically from a fixed seed (see seededReader)
// since the real historical Blizzard weak key cannot be reproduced
// here without it being runnable and checkable; callers who hold the
// authentic key should use VerifyWeakSignature directly instead.
func embeddedWeakPublicKey() *rsa.PublicKey {
	weakKeyOnce.Do(func() {
		priv, err := rsa.GenerateKey(newSeededReader("mpq-archive-weak-signature-key-v1"), 512)
		if err != nil {
			panic(err)
		}
		weakPublicKey = &priv.PublicKey
	})
	return weakPublicKey
}

// embeddedStrongPublicKey is embeddedWeakPublicKey's strong-signature
// counterpart; see its doc comment.
func embeddedStrongPublicKey() *rsa.PublicKey {
	strongKeyOnce.Do(func() {
		priv, err := rsa.GenerateKey(newSeededReader("mpq-archive-strong-signature-key-v1"), 2048)
		if err != nil {
			panic(err)
		}
		strongPublicKey = &priv.PublicKey
	})
	return strongPublicKey
}

// hasStrongSignatureMarker reports whether the archive has an appended
// "NGIS"-marked strong signature, without verifying it.
func (a *Archive) hasStrongSignatureMarker() bool {
	h, err := a.handles.clone()
	if err != nil {
		return false
	}
	defer h.Close()

	marker := make([]byte, 4)
	if _, err := h.ReadAt(marker, int64(a.header.ArchiveSize64())); err != nil {
		return false
	}
	return string(marker) == strongSignatureMarker
}

// VerifySignature reports the kind of signature the archive carries,
// if any, verified against this package's embedded well-known keys
// (spec §6.2). It checks for a weak signature first, then a strong
// one, matching the reference VerifySignature's precedence; a present
// signature that fails verification reports SignatureInvalid rather
// than an error, since "this archive was tampered with" is the
// meaningful result, not a plumbing failure.
func (a *Archive) VerifySignature() (SignatureKind, error) {
	if _, ok, err := a.WeakSignature(); err == nil && ok {
		if verr := a.VerifyWeakSignature(embeddedWeakPublicKey()); verr != nil {
			return SignatureInvalid, nil
		}
		return SignatureWeak, nil
	}

	if a.hasStrongSignatureMarker() {
		if verr := a.VerifyStrongSignature(embeddedStrongPublicKey()); verr != nil {
			return SignatureInvalid, nil
		}
		return SignatureStrong, nil
	}

	return SignatureNone, nil
}
