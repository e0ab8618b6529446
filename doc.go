// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package docpack reads documentation archives: a single file holding
// an index followed by independently compressed page blocks.
//
// Opening an archive decodes and validates the whole index once.
// After that, Fetch returns any page by id, decompressing only that
// page's block and keeping recently used pages in a small LRU cache:
//
//	a, err := docpack.OpenFile("manual.dpk")
//	if err != nil {
//		return err
//	}
//	defer a.Close()
//
//	page, err := a.Fetch(42)
//
// Concurrent fetches of the same page share a single decode.  Blocks
// may be stored as is or compressed with Deflate, LZ4 or Zstd; the
// docpack_nodeflate, docpack_nolz4 and docpack_nozstd build tags leave
// the corresponding decoder out, in which case pages using it fail
// with ErrUnsupportedCodec.
//
// Version 2 archives add a parent link per page, from which a table of
// contents is built, and a list of archive metadata such as title and
// author.
package docpack
