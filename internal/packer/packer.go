// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package packer writes archives: a v1 or v2 index followed by the
// compressed page blocks.  Readers never need it; it exists for
// tooling and tests.
package packer

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/bpowers/docpack/internal/codec"
	"github.com/bpowers/docpack/internal/toc"
)

var (
	ErrFinished = errors.New("packer already finished")
	errV1Only   = errors.New("not representable in a v1 archive")
)

type idSet map[uint64]struct{}

func (set idSet) Contains(id uint64) bool {
	_, ok := set[id]
	return ok
}

func (set idSet) Add(id uint64) {
	set[id] = struct{}{}
}

// Option configures a Packer.
type Option func(*options)

type options struct {
	version uint16
	codec   codec.Codec
	logger  logrus.FieldLogger
}

// WithVersion selects the index layout.  The default is toc.Version2.
func WithVersion(v uint16) Option {
	return func(opts *options) {
		opts.version = v
	}
}

// WithCodec sets the codec used by Add.  The default is Deflate, or
// Store in builds without it.
func WithCodec(c codec.Codec) Option {
	return func(opts *options) {
		opts.codec = c
	}
}

// WithLogger sets a logger for per-page debug output.  If not provided,
// nothing is logged.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// Packer accumulates pages in memory and serializes them as one
// archive.  It is not safe for concurrent use.
type Packer struct {
	version  uint16
	codec    codec.Codec
	log      logrus.FieldLogger
	entries  []toc.Entry
	ids      idSet
	metadata []toc.MetadataEntry
	data     []byte
	finished bool
}

func New(opts ...Option) (*Packer, error) {
	options := options{
		version: toc.Version2,
		codec:   codec.Deflate,
	}
	if !options.codec.Available() {
		options.codec = codec.Store
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		options.logger = l
	}
	if options.version != toc.Version1 && options.version != toc.Version2 {
		return nil, fmt.Errorf("v%d: %w", options.version, toc.ErrUnsupportedVersion)
	}
	if !options.codec.Available() {
		return nil, fmt.Errorf("%s: %w", options.codec, codec.ErrUnsupportedCodec)
	}

	return &Packer{
		version: options.version,
		codec:   options.codec,
		log:     options.logger,
		ids:     make(idSet),
	}, nil
}

func (p *Packer) Len() int {
	return len(p.entries)
}

// Add appends a page compressed with the packer's default codec.
func (p *Packer) Add(id, parent uint64, page []byte) error {
	return p.AddWithCodec(id, parent, p.codec, page)
}

// AddWithCodec appends a page compressed with c.  When c can't shrink
// the page it is stored uncompressed instead.
func (p *Packer) AddWithCodec(id, parent uint64, c codec.Codec, page []byte) error {
	if p.finished {
		return ErrFinished
	}
	if p.ids.Contains(id) {
		return fmt.Errorf("id %d: %w", id, toc.ErrDuplicateID)
	}
	if p.version >= toc.Version2 && id == 0 {
		return toc.ErrZeroID
	}
	if p.version < toc.Version2 && parent != 0 {
		return fmt.Errorf("id %d parent %d: %w", id, parent, errV1Only)
	}

	stored, err := codec.Encode(c, page)
	if c != codec.Store && (errors.Is(err, codec.ErrIncompressible) || (err == nil && len(stored) >= len(page))) {
		p.log.WithFields(logrus.Fields{"id": id, "codec": c, "len": len(page)}).Debug("page didn't compress, storing")
		c = codec.Store
		stored, err = codec.Encode(c, page)
	}
	if err != nil {
		return fmt.Errorf("id %d: codec.Encode: %w", id, err)
	}

	p.entries = append(p.entries, toc.Entry{
		ID:        id,
		Parent:    parent,
		Offset:    uint64(len(p.data)),
		StoredLen: uint64(len(stored)),
		RawLen:    uint64(len(page)),
		Codec:     c,
	})
	p.ids.Add(id)
	p.data = append(p.data, stored...)

	p.log.WithFields(logrus.Fields{
		"id":     id,
		"codec":  c,
		"raw":    len(page),
		"stored": len(stored),
	}).Debug("added page")
	return nil
}

// AddMetadata appends an archive-level metadata entry (v2 only).
func (p *Packer) AddMetadata(m toc.MetadataEntry) error {
	if p.finished {
		return ErrFinished
	}
	if p.version < toc.Version2 {
		return fmt.Errorf("metadata: %w", errV1Only)
	}
	p.metadata = append(p.metadata, m)
	return nil
}

// Bytes returns the complete archive.  Parents that name missing pages
// are reported here rather than at Add time, so pages may be added in
// any order.
func (p *Packer) Bytes() ([]byte, error) {
	for _, e := range p.entries {
		if e.Parent != 0 && !p.ids.Contains(e.Parent) {
			return nil, fmt.Errorf("id %d: parent %d: %w", e.ID, e.Parent, toc.ErrInvalidParent)
		}
	}

	out, err := toc.AppendIndex(nil, toc.Index{
		Version:  p.version,
		Entries:  p.entries,
		Metadata: p.metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("toc.AppendIndex: %w", err)
	}
	return append(out, p.data...), nil
}

// WriteTo writes the archive to w and marks the packer finished.
func (p *Packer) WriteTo(w io.Writer) (int64, error) {
	if p.finished {
		return 0, ErrFinished
	}
	b, err := p.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	if err != nil {
		return int64(n), fmt.Errorf("write: %w", err)
	} else if n != len(b) {
		return int64(n), fmt.Errorf("short write of %d (wanted %d)", n, len(b))
	}
	p.finished = true

	p.log.WithFields(logrus.Fields{
		"version": p.version,
		"pages":   len(p.entries),
		"bytes":   n,
	}).Debug("wrote archive")
	return int64(n), nil
}
