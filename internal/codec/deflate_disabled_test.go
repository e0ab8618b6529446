// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build docpack_nodeflate

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeflate_NotCompiledIn(t *testing.T) {
	assert.False(t, Deflate.Available())
	assert.False(t, Builtin().Has(Deflate))

	// a raw deflate stream for 100 zero bytes
	block := []byte{0x62, 0x60, 0x18, 0x05, 0x20, 0x00, 0x00}
	out, err := Decode(Deflate, block, 100)
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
	assert.Nil(t, out)
}
