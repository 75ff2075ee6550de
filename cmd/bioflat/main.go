// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command bioflat builds and queries key indexes over biological flat
// files.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Bioflat builds and queries key indexes over flat files.

Usage:

	bioflat <command> [arguments]

The commands are:

	build    index flat files into a new databank
	search   print the records matching keys
	check    report source files that changed since indexing
	info     print a databank's format, namespaces and files
`)
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("bioflat: ")
	must.Func = log.Fatal
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]
	var err error
	switch cmd {
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", cmd)
		flag.Usage()
	case "build":
		err = build(args)
	case "search":
		err = search(args)
	case "check":
		err = check(args)
	case "info":
		err = info(args)
	}
	must.Nil(err, cmd)
}
