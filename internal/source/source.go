// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package source provides random-access views over archive bytes: an
// in-memory slice, an mmap'ed file, a plain *os.File, or any
// io.ReaderAt / io.ReadSeeker supplied by the caller.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

var (
	ErrClosed          = errors.New("source closed")
	ErrMmapUnsupported = errors.New("mmap not supported on this platform")
	ErrRange           = errors.New("read out of range")
)

// Source is a sized, random-access view of an archive.  ReadAt follows
// io.ReaderAt and must be safe for concurrent use.
type Source interface {
	io.ReaderAt
	Size() int64
	Close() error
}

// Mapped is implemented by sources whose whole contents already live
// in memory, so that ranges can be handed out without copying.
type Mapped interface {
	Data() []byte
}

// ReadRange returns n bytes at off.  For Mapped sources the result
// aliases the source and must not be modified or used after Close.
func ReadRange(s Source, off, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off > s.Size() || n > s.Size()-off {
		return nil, fmt.Errorf("[%d, +%d) of %d: %w", off, n, s.Size(), ErrRange)
	}
	if m, ok := s.(Mapped); ok {
		data := m.Data()
		if int64(len(data)) < off+n {
			return nil, ErrClosed
		}
		return data[off : off+n : off+n], nil
	}

	buf := make([]byte, n)
	read, err := s.ReadAt(buf, off)
	if read == len(buf) {
		// io.ReaderAt may report io.EOF alongside a full read at the end
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("short read of %d at %d (wanted %d): %w", read, off, n, err)
}

// Bytes is a Source over a caller-owned slice.
type Bytes struct {
	data atomic.Pointer[[]byte]
	size int64
}

func FromBytes(b []byte) *Bytes {
	s := &Bytes{size: int64(len(b))}
	s.data.Store(&b)
	return s
}

func (s *Bytes) Data() []byte {
	if p := s.data.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Bytes) Size() int64 {
	return s.size
}

func (s *Bytes) ReadAt(p []byte, off int64) (int, error) {
	data := s.Data()
	if data == nil && s.size > 0 {
		return 0, ErrClosed
	}
	return readAt(data, p, off)
}

func (s *Bytes) Close() error {
	s.data.Store(nil)
	return nil
}

func readAt(data, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d: %w", off, ErrRange)
	}
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// File reads an archive with pread(2) through an *os.File.
type File struct {
	f        *os.File
	size     int64
	isClosed atomic.Bool
}

func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s): %w", path, err)
	}
	stats, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	return &File{f: f, size: stats.Size()}, nil
}

func (r *File) Size() int64 {
	return r.size
}

func (r *File) ReadAt(p []byte, off int64) (int, error) {
	if r.isClosed.Load() {
		return 0, ErrClosed
	}
	return r.f.ReadAt(p, off)
}

func (r *File) Close() error {
	if r.isClosed.Swap(true) {
		return nil
	}
	return r.f.Close()
}

// ReaderAt adapts a caller-supplied io.ReaderAt.  The caller keeps
// ownership: Close doesn't close the underlying reader.
type ReaderAt struct {
	r    io.ReaderAt
	size int64
}

func FromReaderAt(r io.ReaderAt, size int64) *ReaderAt {
	return &ReaderAt{r: r, size: size}
}

func (r *ReaderAt) Size() int64 {
	return r.size
}

func (r *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return r.r.ReadAt(p, off)
}

func (r *ReaderAt) Close() error {
	return nil
}

// Seeker turns an io.ReadSeeker into a Source by serializing every
// seek+read pair behind a mutex.  Close drops the reference to the
// reader without closing it.
type Seeker struct {
	mu   sync.Mutex
	rs   io.ReadSeeker
	size int64
}

func FromReadSeeker(rs io.ReadSeeker) (*Seeker, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("Seek(end): %w", err)
	}
	return &Seeker{rs: rs, size: size}, nil
}

func (r *Seeker) Size() int64 {
	return r.size
}

func (r *Seeker) ReadAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rs == nil {
		return 0, ErrClosed
	}
	if _, err := r.rs.Seek(off, io.SeekStart); err != nil {
		return 0, fmt.Errorf("Seek(%d): %w", off, err)
	}
	n, err := io.ReadFull(r.rs, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

func (r *Seeker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rs = nil
	return nil
}

var (
	_ Source = (*Bytes)(nil)
	_ Source = (*File)(nil)
	_ Source = (*Mmap)(nil)
	_ Source = (*ReaderAt)(nil)
	_ Source = (*Seeker)(nil)
	_ Mapped = (*Bytes)(nil)
	_ Mapped = (*Mmap)(nil)
)
