// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// docpack-inspect prints the directory, metadata and table of contents
// of an archive, and can dump or verify individual pages.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/bpowers/docpack"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	meta    bool
	toc     bool
	dump    uint64
	hasDump bool
	verify  bool
	noMmap  bool
	verbose bool
}

func run(args []string, stdout, stderr io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("docpack-inspect", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.BoolVar(&opts.meta, "meta", false, "print archive metadata")
	flagSet.BoolVar(&opts.toc, "toc", false, "print the table of contents")
	flagSet.Uint64Var(&opts.dump, "dump", 0, "write the decoded page with this id to stdout")
	flagSet.BoolVar(&opts.verify, "verify", false, "decode every page and report failures")
	flagSet.BoolVar(&opts.noMmap, "no-mmap", false, "read with pread instead of mapping the file")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet, stderr)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet, stderr)
		return nil
	}
	opts.hasDump = flagSet.Changed("dump")

	rest := flagSet.Args()
	if len(rest) != 1 {
		printHelp(flagSet, stderr)
		return fmt.Errorf("expected exactly one archive path, got %d", len(rest))
	}

	logger := logrus.New()
	logger.SetOutput(stderr)
	if opts.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	a, err := docpack.OpenFile(rest[0], docpack.WithLogger(logger), docpack.WithMmap(!opts.noMmap))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	switch {
	case opts.hasDump:
		page, err := a.Fetch(opts.dump)
		if err != nil {
			return err
		}
		_, err = stdout.Write(page)
		return err
	case opts.verify:
		return verify(a, stdout)
	}

	fmt.Fprintf(stdout, "version %d, %d entries\n", a.Version(), a.Len())
	if opts.meta {
		printMetadata(a, stdout)
	}
	if opts.toc {
		printTOC(a, stdout)
	}
	if !opts.meta && !opts.toc {
		return printEntries(a, stdout)
	}
	return nil
}

func printEntries(a *docpack.Archive, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "id\tparent\tcodec\toffset\tstored\traw\t")
	for _, e := range a.Entries() {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%d\t%d\t\n", e.ID, e.Parent, e.Codec, e.Offset, e.StoredLen, e.RawLen)
	}
	return tw.Flush()
}

func printMetadata(a *docpack.Archive, w io.Writer) {
	for _, m := range a.Metadata() {
		fmt.Fprintln(w, m.String())
	}
}

func printTOC(a *docpack.Archive, w io.Writer) {
	_ = docpack.WalkTOC(a.TOC(), func(n *docpack.TOCNode) error {
		section := make([]string, len(n.Section))
		for i, s := range n.Section {
			section[i] = fmt.Sprint(s)
		}
		indent := strings.Repeat("  ", len(n.Section)-1)
		fmt.Fprintf(w, "%s%s %d\n", indent, strings.Join(section, "."), n.ID)
		return nil
	})
}

func verify(a *docpack.Archive, w io.Writer) error {
	failed := 0
	for _, e := range a.Entries() {
		if _, err := a.Fetch(e.ID); err != nil {
			failed++
			fmt.Fprintf(w, "%v\n", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pages failed to decode", failed, a.Len())
	}
	fmt.Fprintf(w, "ok: %d pages\n", a.Len())
	return nil
}

func printHelp(flagSet *pflag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `docpack-inspect: look inside a docpack archive.

With no flags, lists every directory entry.

Usage:
  docpack-inspect [flags] ARCHIVE

Examples:
  # list entries
  docpack-inspect manual.dpk

  # show metadata and the table of contents
  docpack-inspect --meta --toc manual.dpk

  # print page 12
  docpack-inspect --dump 12 manual.dpk

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
