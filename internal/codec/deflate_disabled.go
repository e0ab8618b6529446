// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build docpack_nodeflate

package codec

const deflateEnabled = false

func decodeDeflate([]byte, int) ([]byte, error) {
	return nil, ErrUnsupportedCodec
}

func encodeDeflate([]byte) ([]byte, error) {
	return nil, ErrUnsupportedCodec
}
