// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build unix

package source

import (
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Mmap is a read-only shared mapping of a whole file.
type Mmap struct {
	mu   sync.RWMutex
	data []byte
	size int64
}

// OpenMmap maps path read-only.  A failed madvise is logged and
// otherwise ignored.
func OpenMmap(path string, log logrus.FieldLogger) (*Mmap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s): %w", path, err)
	}
	defer func() { _ = f.Close() }()

	stats, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	size := stats.Size()
	if size == 0 {
		// mmap(2) rejects zero-length mappings
		return &Mmap{data: []byte{}}, nil
	}
	if size > math.MaxInt {
		return nil, fmt.Errorf("file too large to map: %d bytes", size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("unix.Mmap(%s): %w", path, err)
	}
	if err := unix.Madvise(data, unix.MADV_RANDOM); err != nil {
		log.WithError(err).WithField("path", path).Warn("madvise(MADV_RANDOM) failed")
	}

	return &Mmap{data: data, size: size}, nil
}

func (m *Mmap) Data() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

func (m *Mmap) Size() int64 {
	return m.size
}

func (m *Mmap) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return 0, ErrClosed
	}
	return readAt(m.data, p, off)
}

func (m *Mmap) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := m.data
	m.data = nil
	if len(data) == 0 {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("unix.Munmap: %w", err)
	}
	return nil
}
