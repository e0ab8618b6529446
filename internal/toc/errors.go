// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package toc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBadMagic           = errors.New("bad magic number -- not a docpack archive or corrupted")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrDuplicateID        = errors.New("duplicate entry id")
	ErrEntryBounds        = errors.New("entry extends past end of archive")
	ErrZeroID             = errors.New("entry id 0 is reserved")
	ErrInvalidParent      = errors.New("parent id not in directory")
	ErrTOCTooDeep         = errors.New("table of contents nested too deeply")
	ErrTOCCycle           = errors.New("table of contents contains a cycle")
	ErrInvalidMetadata    = errors.New("invalid metadata")
	ErrChecksum           = errors.New("index checksum mismatch")
)

// Stage identifies which part of the index failed to decode.
type Stage uint8

const (
	StageHeader Stage = iota
	StageEntry
	StageDuplicate
	StageBounds
	StageParent
	StageMetadata
	StageChecksum
	StageTree
)

func (s Stage) String() string {
	switch s {
	case StageHeader:
		return "header"
	case StageEntry:
		return "entry"
	case StageDuplicate:
		return "duplicate"
	case StageBounds:
		return "bounds"
	case StageParent:
		return "parent"
	case StageMetadata:
		return "metadata"
	case StageChecksum:
		return "checksum"
	case StageTree:
		return "tree"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// FormatError reports a structural problem found while decoding the
// index.  Index is the position of the offending entry in the
// directory (or metadata list), or -1 when the failure isn't tied to
// one.  ID is only meaningful when HasID is set.
type FormatError struct {
	Stage Stage
	Index int
	ID    uint64
	HasID bool
	Err   error
}

func (e *FormatError) Error() string {
	var b strings.Builder
	b.WriteString(e.Stage.String())
	if e.Index >= 0 {
		fmt.Fprintf(&b, " %d", e.Index)
	}
	if e.HasID {
		fmt.Fprintf(&b, " (id %d)", e.ID)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) *FormatError {
	return &FormatError{Stage: stage, Index: -1, Err: err}
}

func entryErr(stage Stage, i int, err error) *FormatError {
	return &FormatError{Stage: stage, Index: i, Err: err}
}

func idErr(stage Stage, i int, id uint64, err error) *FormatError {
	return &FormatError{Stage: stage, Index: i, ID: id, HasID: true, Err: err}
}
