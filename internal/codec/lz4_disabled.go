// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build docpack_nolz4

package codec

const lz4Enabled = false

func decodeLZ4([]byte, int) ([]byte, error) {
	return nil, ErrUnsupportedCodec
}

func encodeLZ4([]byte) ([]byte, error) {
	return nil, ErrUnsupportedCodec
}
