// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/bioflat"
	"github.com/grailbio/bioflat/indexer"
	"github.com/grailbio/bioflat/store"
)

// printer logs build progress at the default level.
type printer struct{}

func (printer) Printf(format string, args ...interface{}) { log.Printf(format, args...) }

func build(args []string) error {
	var (
		flags    = flag.NewFlagSet("build", flag.ExitOnError)
		backend  = flags.String("backend", "flat", "mapping store backend: flat or btree")
		format   = flags.String("format", "tsv", "record format: "+strings.Join(indexer.Formats.Names(), ", "))
		spill    = flags.Int("spill", 0, "bytes of keys to sort in memory before spilling to disk; 0 selects the default, negative never spills")
		parallel = flags.Bool("parallel", false, "write namespace stores in parallel")
	)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, `usage: bioflat build [-backend flat|btree] [-format name] [-spill N] [-parallel] dir files...`)
		flags.PrintDefaults()
		os.Exit(2)
	}
	if err := flags.Parse(args); err != nil {
		log.Fatal(err)
	}
	if flags.NArg() < 2 {
		flags.Usage()
	}
	kind, err := store.ParseKind(*backend)
	if err != nil {
		return err
	}
	dir, files := flags.Arg(0), flags.Args()[1:]
	stats, err := bioflat.Build(context.Background(), dir, files, *format, indexer.Options{
		Backend:     kind,
		SpillTarget: *spill,
		Parallel:    *parallel,
		Log:         printer{},
	})
	if err != nil {
		return err
	}
	fmt.Printf("%d records from %d files in %s\n", stats.Records, len(files), stats.Duration)
	for _, name := range stats.SortedNamespaces() {
		fmt.Printf("\t%s\t%d keys\n", name, stats.Keys[name])
	}
	return nil
}
