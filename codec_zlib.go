// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

func zlibCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, &CodecError{Codec: "zlib", Detail: err.Error()}
	}
	if _, err := w.Write(data); err != nil {
		return nil, &CodecError{Codec: "zlib", Detail: err.Error()}
	}
	if err := w.Close(); err != nil {
		return nil, &CodecError{Codec: "zlib", Detail: err.Error()}
	}
	return buf.Bytes(), nil
}

func zlibDecompress(data []byte, outSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &CodecError{Codec: "zlib", Detail: err.Error()}
	}
	defer r.Close()

	out := make([]byte, outSize)
	n, err := io.ReadFull(r, out)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, &CodecError{Codec: "zlib", Detail: err.Error()}
	}
	return out[:n], nil
}
