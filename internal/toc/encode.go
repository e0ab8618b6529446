// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package toc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgryski/go-farm"
)

var errNotInV1 = errors.New("v1 archives can't carry parents or metadata")

// Index is the input to AppendIndex.  Entries are written in order.
type Index struct {
	Version  uint16
	Entries  []Entry
	Metadata []MetadataEntry
}

// AppendIndex appends the encoded index (everything before the data
// region) to dst.  It does not validate ids or offsets; Decode does.
func AppendIndex(dst []byte, idx Index) ([]byte, error) {
	if !supportedVersion(idx.Version) {
		return nil, fmt.Errorf("v%d: %w", idx.Version, ErrUnsupportedVersion)
	}

	start := len(dst)
	h := newHeader(idx.Version, len(idx.Entries))
	dst = h.AppendTo(dst)

	for _, e := range idx.Entries {
		if !e.Codec.Valid() {
			return nil, fmt.Errorf("entry %d: invalid codec %s", e.ID, e.Codec)
		}
		dst = binary.AppendUvarint(dst, e.ID)
		if idx.Version >= Version2 {
			dst = binary.AppendUvarint(dst, e.Parent)
		} else if e.Parent != 0 {
			return nil, fmt.Errorf("entry %d: %w", e.ID, errNotInV1)
		}
		dst = binary.AppendUvarint(dst, e.Offset)
		dst = binary.AppendUvarint(dst, e.StoredLen)
		dst = binary.AppendUvarint(dst, e.RawLen)
		dst = append(dst, byte(e.Codec))
	}

	if idx.Version < Version2 {
		if len(idx.Metadata) > 0 {
			return nil, errNotInV1
		}
		return dst, nil
	}

	dst, err := appendMetadata(dst, idx.Metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return byteOrder.AppendUint32(dst, farm.Fingerprint32(dst[start:])), nil
}
