// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// LZMA sectors are written as an LZMA2 stream by ulikunitz/xz/lzma's
// Writer2 with its default configuration and read back with Reader2.
// No LZMA1 properties header (lc/lp/pb byte and dictionary size) is
// written or expected, so this is not a raw LZMA1 stream.

func lzmaCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	cfg := lzma.Writer2Config{}
	w, err := cfg.NewWriter2(&buf)
	if err != nil {
		return nil, &CodecError{Codec: "lzma", Detail: err.Error()}
	}
	if _, err := w.Write(data); err != nil {
		return nil, &CodecError{Codec: "lzma", Detail: err.Error()}
	}
	if err := w.Close(); err != nil {
		return nil, &CodecError{Codec: "lzma", Detail: err.Error()}
	}
	return buf.Bytes(), nil
}

func lzmaDecompress(data []byte, outSize int) ([]byte, error) {
	cfg := lzma.Reader2Config{}
	r, err := cfg.NewReader2(bytes.NewReader(data))
	if err != nil {
		return nil, &CodecError{Codec: "lzma", Detail: err.Error()}
	}

	out := make([]byte, outSize)
	n, err := io.ReadFull(r, out)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, &CodecError{Codec: "lzma", Detail: err.Error()}
	}
	return out[:n], nil
}
