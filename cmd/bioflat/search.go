// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/bioflat"
)

func search(args []string) error {
	var (
		flags  = flag.NewFlagSet("search", flag.ExitOnError)
		strict = flags.Bool("strict", false, "fail if a source file changed since indexing")
		ns     = flags.String("ns", "", "comma-separated namespaces to search; all if empty")
		exists = flags.Bool("exists", false, "print only whether each key matches")
	)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, `usage: bioflat search [-strict] [-ns a,b] [-exists] dir key...`)
		flags.PrintDefaults()
		os.Exit(2)
	}
	if err := flags.Parse(args); err != nil {
		log.Fatal(err)
	}
	if flags.NArg() < 2 {
		flags.Usage()
	}
	ctx := context.Background()
	db, err := bioflat.Open(ctx, flags.Arg(0), bioflat.Options{Strict: *strict})
	if err != nil {
		return err
	}
	defer db.Close(ctx)
	names, err := db.Namespaces()
	if err != nil {
		return err
	}
	if *ns != "" {
		names = strings.Split(*ns, ",")
	}
	w := bufio.NewWriter(os.Stdout)
	for _, key := range flags.Args()[1:] {
		if *exists {
			ok, err := db.IncludeNamespaces(ctx, key, names...)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%v\n", key, ok)
			continue
		}
		records, err := db.SearchNamespaces(ctx, key, names...)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			log.Printf("%s: not found", key)
		}
		for _, p := range records {
			w.Write(p)
			if len(p) > 0 && p[len(p)-1] != '\n' {
				w.WriteByte('\n')
			}
		}
	}
	return w.Flush()
}
