package apkg

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic is the little-endian frame magic number 0xFD2FB528.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// IsZstdFrame reports whether data starts with a Zstandard frame header.
func IsZstdFrame(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}

// Decompress decodes a complete Zstandard frame. Corruption is not transient,
// so there are no retries.
func Decompress(frame []byte) ([]byte, error) {
	if !IsZstdFrame(frame) {
		return nil, fmt.Errorf("%w: not a zstd frame", ErrCorruptArchive)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(frame, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrCorruptArchive, err)
	}
	return raw, nil
}
