// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package docpack

import (
	"errors"
	"fmt"

	"github.com/bpowers/docpack/internal/codec"
	"github.com/bpowers/docpack/internal/cursor"
	"github.com/bpowers/docpack/internal/toc"
)

var (
	ErrNoSuchEntry   = errors.New("no such entry")
	ErrClosed        = errors.New("archive closed")
	ErrBlockTooLarge = errors.New("block exceeds maximum decoded size")
)

// Errors from the format, codec and cursor layers, for use with
// errors.Is.
var (
	ErrTruncated     = cursor.ErrTruncated
	ErrInvalidVarint = cursor.ErrInvalidVarint

	ErrBadMagic           = toc.ErrBadMagic
	ErrUnsupportedVersion = toc.ErrUnsupportedVersion
	ErrDuplicateID        = toc.ErrDuplicateID
	ErrEntryBounds        = toc.ErrEntryBounds
	ErrZeroID             = toc.ErrZeroID
	ErrInvalidParent      = toc.ErrInvalidParent
	ErrTOCTooDeep         = toc.ErrTOCTooDeep
	ErrTOCCycle           = toc.ErrTOCCycle
	ErrInvalidMetadata    = toc.ErrInvalidMetadata
	ErrChecksum           = toc.ErrChecksum

	ErrUnknownCodec     = codec.ErrUnknownCodec
	ErrUnsupportedCodec = codec.ErrUnsupportedCodec
	ErrCorruptBlock     = codec.ErrCorruptBlock
	ErrUnexpectedEnd    = codec.ErrUnexpectedEnd
	ErrLengthMismatch   = codec.ErrLengthMismatch
)

// FormatError reports which stage of index decoding failed.  Open
// errors for malformed archives wrap one; use errors.As to get it.
type FormatError = toc.FormatError

// FormatStage identifies the part of the index a FormatError refers to.
type FormatStage = toc.Stage

const (
	StageHeader    = toc.StageHeader
	StageEntry     = toc.StageEntry
	StageDuplicate = toc.StageDuplicate
	StageBounds    = toc.StageBounds
	StageParent    = toc.StageParent
	StageMetadata  = toc.StageMetadata
	StageChecksum  = toc.StageChecksum
	StageTree      = toc.StageTree
)

// OpenError is returned by every Open variant.
type OpenError struct {
	Source string
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("docpack: open %s: %v", e.Source, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// FetchStage says how far a fetch got before failing.
type FetchStage uint8

const (
	// FetchLookup covers directory lookup and the checks done before
	// any bytes are read.
	FetchLookup FetchStage = iota
	FetchRead
	FetchDecode
)

func (s FetchStage) String() string {
	switch s {
	case FetchLookup:
		return "lookup"
	case FetchRead:
		return "read"
	case FetchDecode:
		return "decode"
	default:
		return fmt.Sprintf("FetchStage(%d)", uint8(s))
	}
}

// FetchError is returned by Fetch.
type FetchError struct {
	ID    uint64
	Stage FetchStage
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("docpack: fetch %d: %s: %v", e.ID, e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
