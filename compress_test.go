// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleSectorData(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i*7 + i/13)
	}
	return buf
}

func TestZlibRoundTrip(t *testing.T) {
	data := sampleSectorData(4096)
	enc, err := compressSector(data, codecZlib)
	require.NoError(t, err)
	dec, err := decompressSector(enc, codecZlib, len(data))
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, dec))
}

func TestBzip2RoundTrip(t *testing.T) {
	data := sampleSectorData(8192)
	enc, err := compressSector(data, codecBzip2)
	require.NoError(t, err)
	dec, err := decompressSector(enc, codecBzip2, len(data))
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, dec))
}

func TestLZMARoundTrip(t *testing.T) {
	data := sampleSectorData(4096)
	enc, err := compressSector(data, codecLZMA)
	require.NoError(t, err)
	dec, err := decompressSector(enc, codecLZMA, len(data))
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, dec))
}

func TestSparseRoundTrip(t *testing.T) {
	data := make([]byte, 2048)
	for i := 200; i < 400; i++ {
		data[i] = byte(i)
	}
	enc, err := compressSector(data, codecSparse)
	require.NoError(t, err)
	dec, err := decompressSector(enc, codecSparse, len(data))
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, dec))
}

func TestHuffmanRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeatedly, many many times over")
	enc, err := compressSector(data, codecHuffman)
	require.NoError(t, err)
	dec, err := decompressSector(enc, codecHuffman, len(data))
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, dec))
}

func TestADPCMMonoRoundTrip(t *testing.T) {
	data := sampleSectorData(1024)
	enc, err := compressSector(data, codecADPCMMono)
	require.NoError(t, err)
	dec, err := decompressSector(enc, codecADPCMMono, len(data))
	require.NoError(t, err)
	require.Len(t, dec, len(data))
}

func TestADPCMStereoRoundTrip(t *testing.T) {
	data := sampleSectorData(1024)
	enc, err := compressSector(data, codecADPCMStereo)
	require.NoError(t, err)
	dec, err := decompressSector(enc, codecADPCMStereo, len(data))
	require.NoError(t, err)
	require.Len(t, dec, len(data))
}

func TestPKWareExplodeOfOwnImplode(t *testing.T) {
	data := []byte("raw literal round trip through the pkware implode path")
	enc, err := pkwareImplode(data)
	require.NoError(t, err)
	dec, err := pkwareExplode(enc, len(data))
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, dec))
}

func TestCombinedMaskOrder(t *testing.T) {
	data := sampleSectorData(4096)
	mask := byte(codecZlib | codecSparse)
	enc, err := compressSector(data, mask)
	require.NoError(t, err)
	dec, err := decompressSector(enc, mask, len(data))
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, dec))
}
