// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !docpack_nodeflate

package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

const deflateEnabled = true

func decodeDeflate(src []byte, rawLen int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer func() {
		_ = r.Close()
	}()

	out := make([]byte, rawLen)
	n := 0
	for n < rawLen {
		m, err := r.Read(out[n:])
		n += m
		if err == nil {
			continue
		}
		if err == io.EOF {
			if n == rawLen {
				break
			}
			return nil, fmt.Errorf("stream ended after %d bytes, expected %d: %w", n, rawLen, ErrLengthMismatch)
		}
		return nil, deflateErr(err)
	}

	// anything past rawLen means the directory under-reports the page
	var extra [1]byte
	m, err := r.Read(extra[:])
	if m > 0 {
		return nil, fmt.Errorf("stream longer than %d bytes: %w", rawLen, ErrLengthMismatch)
	}
	if err != nil && err != io.EOF {
		return nil, deflateErr(err)
	}

	return out, nil
}

func deflateErr(err error) error {
	var corrupt flate.CorruptInputError
	switch {
	case errors.As(err, &corrupt):
		return fmt.Errorf("%v: %w", err, ErrCorruptBlock)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return ErrUnexpectedEnd
	default:
		return fmt.Errorf("%v: %w", err, ErrCorruptBlock)
	}
}

func encodeDeflate(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("flate.NewWriter: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("flate.Write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flate.Close: %w", err)
	}
	return buf.Bytes(), nil
}
