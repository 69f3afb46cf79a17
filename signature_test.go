// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"crypto/rand"
	"crypto/rsa"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeakSignatureRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 512)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "signed.mpq")
	b := NewBuilder(WithWeakSignature(priv))
	b.Add("Data\\File.txt", []byte("signed content"))
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	sig, ok, err := a.WeakSignature()
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, [64]byte{}, sig)

	require.NoError(t, a.VerifyWeakSignature(&priv.PublicKey))
}

func TestWeakSignatureRejectsOtherKey(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 512)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "signed.mpq")
	b := NewBuilder(WithWeakSignature(priv))
	b.Add("Data\\File.txt", []byte("signed content"))
	require.NoError(t, b.Build(path))

	// Verify against a different key's public half; the archive itself
	// is left unmodified.
	otherPriv, err := rsa.GenerateKey(rand.Reader, 512)
	require.NoError(t, err)

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	err = a.VerifyWeakSignature(&otherPriv.PublicKey)
	assert.Error(t, err)
}

func TestWeakSignatureAbsentWhenNotRequested(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unsigned.mpq")
	b := NewBuilder()
	b.Add("Data\\File.txt", []byte("plain content"))
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	_, ok, err := a.WeakSignature()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeWeakSignatureFileAllZeroMeansAbsent(t *testing.T) {
	data := make([]byte, weakSignatureFileSize)
	_, present := decodeWeakSignatureFile(data)
	assert.False(t, present)
}

func TestDecodeWeakSignatureFileTooShort(t *testing.T) {
	_, present := decodeWeakSignatureFile(make([]byte, 4))
	assert.False(t, present)
}

func TestEncodeDecodeWeakSignatureFileRoundTrip(t *testing.T) {
	var sig [64]byte
	for i := range sig {
		sig[i] = byte(i + 1)
	}
	encoded := encodeWeakSignatureFile(sig)
	decoded, present := decodeWeakSignatureFile(encoded)
	assert.True(t, present)
	assert.Equal(t, sig, decoded)
}

func TestVerifySignatureNoneWhenUnsigned(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unsigned.mpq")
	b := NewBuilder()
	b.Add("Data\\File.txt", []byte("plain content"))
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	kind, err := a.VerifySignature()
	require.NoError(t, err)
	assert.Equal(t, SignatureNone, kind)
}

func TestVerifySignatureWeakAgainstEmbeddedKey(t *testing.T) {
	priv, err := rsa.GenerateKey(newSeededReader("mpq-archive-weak-signature-key-v1"), 512)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "signed.mpq")
	b := NewBuilder(WithWeakSignature(priv))
	b.Add("Data\\File.txt", []byte("signed content"))
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	kind, err := a.VerifySignature()
	require.NoError(t, err)
	assert.Equal(t, SignatureWeak, kind)
}

func TestVerifySignatureInvalidWhenSignedByOtherKey(t *testing.T) {
	otherPriv, err := rsa.GenerateKey(rand.Reader, 512)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "signed.mpq")
	b := NewBuilder(WithWeakSignature(otherPriv))
	b.Add("Data\\File.txt", []byte("signed content"))
	require.NoError(t, b.Build(path))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	kind, err := a.VerifySignature()
	require.NoError(t, err)
	assert.Equal(t, SignatureInvalid, kind)
}
