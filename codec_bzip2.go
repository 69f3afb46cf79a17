// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	stdbzip2 "compress/bzip2"
	"io"

	"github.com/dsnet/compress/bzip2"
)

// bzip2Compress encodes with dsnet/compress/bzip2, since the standard
// library's compress/bzip2 is read-only.
func bzip2Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		return nil, &CodecError{Codec: "bzip2", Detail: err.Error()}
	}
	if _, err := w.Write(data); err != nil {
		return nil, &CodecError{Codec: "bzip2", Detail: err.Error()}
	}
	if err := w.Close(); err != nil {
		return nil, &CodecError{Codec: "bzip2", Detail: err.Error()}
	}
	return buf.Bytes(), nil
}

// bzip2Decompress uses the standard library reader; any archive's
// bzip2 stream is plain bzip2, and the stdlib decoder is sufficient
// and avoids a second dependency for the read path.
func bzip2Decompress(data []byte, outSize int) ([]byte, error) {
	r := stdbzip2.NewReader(bytes.NewReader(data))
	out := make([]byte, outSize)
	n, err := io.ReadFull(r, out)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, &CodecError{Codec: "bzip2", Detail: err.Error()}
	}
	return out[:n], nil
}
