// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build docpack_nozstd

package codec

const zstdEnabled = false

func decodeZstd([]byte, int) ([]byte, error) {
	return nil, ErrUnsupportedCodec
}

func encodeZstd([]byte) ([]byte, error) {
	return nil, ErrUnsupportedCodec
}
