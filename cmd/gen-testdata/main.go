// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// gen-testdata writes a sample archive of generated pages, nested a
// few levels deep, for trying out docpack-inspect and benchmarks.
package main

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/bpowers/docpack/internal/codec"
	"github.com/bpowers/docpack/internal/packer"
	"github.com/bpowers/docpack/internal/toc"
)

var words = []string{
	"archive", "block", "cache", "codec", "directory", "entry", "fetch",
	"header", "index", "page", "reader", "section", "stream", "table",
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		var seedBytes [8]byte
		_, _ = crand.Read(seedBytes[:])
		seed = int64(binary.LittleEndian.Uint64(seedBytes[:]))
	}
	return rand.New(rand.NewSource(seed))
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		out       string
		pages     int
		fanout    int
		codecName string
		version   uint16
		seed      int64
		verbose   bool
	)

	flagSet := pflag.NewFlagSet("gen-testdata", pflag.ContinueOnError)
	flagSet.StringVarP(&out, "out", "o", "testdata.dpk", "path to write the archive to")
	flagSet.IntVarP(&pages, "pages", "n", 1000, "number of pages")
	flagSet.IntVar(&fanout, "fanout", 8, "children per table-of-contents node (v2 only)")
	flagSet.StringVar(&codecName, "codec", "deflate", "codec for page blocks: store, deflate, lz4 or zstd")
	flagSet.Uint16Var(&version, "format", toc.Version2, "archive format version (1 or 2)")
	flagSet.Int64Var(&seed, "seed", 0, "random seed (0 picks one)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log every page")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	c, err := codec.Parse(codecName)
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	p, err := packer.New(packer.WithVersion(version), packer.WithCodec(c), packer.WithLogger(logger))
	if err != nil {
		return err
	}

	rng := newRand(seed)
	for i := 1; i <= pages; i++ {
		id := uint64(i)
		var parent uint64
		if version >= toc.Version2 && fanout > 1 && i > fanout {
			// page i hangs under page i/fanout, giving a tree
			// roughly log_fanout(pages) deep
			parent = uint64(i / fanout)
		}
		if err := p.Add(id, parent, genPage(rng, id)); err != nil {
			return err
		}
	}

	if version >= toc.Version2 {
		for _, m := range []toc.MetadataEntry{
			{Tag: toc.TagTitle, Value: "Generated test manual"},
			{Tag: toc.TagLanguage, Value: "en"},
			{Tag: toc.TagDate, Date: uint64(time.Now().Unix())},
			{Tag: toc.TagUser, Key: "generator", Value: "gen-testdata"},
		} {
			if err := p.AddMetadata(m); err != nil {
				return err
			}
		}
	}

	if err := p.WriteFile(out); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"path": out, "pages": pages, "codec": c}).Info("wrote archive")
	return nil
}

func genPage(rng *rand.Rand, id uint64) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Page %d\n\n", id)
	paragraphs := 1 + rng.Intn(4)
	for i := 0; i < paragraphs; i++ {
		n := 20 + rng.Intn(80)
		for j := 0; j < n; j++ {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(words[rng.Intn(len(words))])
		}
		b.WriteString(".\n\n")
	}
	return []byte(b.String())
}
