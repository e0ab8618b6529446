// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !unix

package source

import (
	"github.com/sirupsen/logrus"
)

type Mmap struct{}

// OpenMmap always fails here; callers fall back to OpenFile.
func OpenMmap(path string, log logrus.FieldLogger) (*Mmap, error) {
	return nil, ErrMmapUnsupported
}

func (m *Mmap) Data() []byte { return nil }

func (m *Mmap) Size() int64 { return 0 }

func (m *Mmap) ReadAt(p []byte, off int64) (int, error) { return 0, ErrMmapUnsupported }

func (m *Mmap) Close() error { return nil }
