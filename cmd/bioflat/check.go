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
)

func check(args []string) error {
	flags := flag.NewFlagSet("check", flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, `usage: bioflat check dir`)
		flags.PrintDefaults()
		os.Exit(2)
	}
	if err := flags.Parse(args); err != nil {
		log.Fatal(err)
	}
	if flags.NArg() != 1 {
		flags.Usage()
	}
	ctx := context.Background()
	db, err := bioflat.Open(ctx, flags.Arg(0), bioflat.Options{})
	if err != nil {
		return err
	}
	defer db.Close(ctx)
	paths, err := db.Mismatched(ctx)
	if err != nil {
		return err
	}
	for _, path := range paths {
		fmt.Println(path)
	}
	if len(paths) > 0 {
		return fmt.Errorf("%d of the databank's source files changed since indexing", len(paths))
	}
	return nil
}

func info(args []string) error {
	flags := flag.NewFlagSet("info", flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, `usage: bioflat info dir`)
		flags.PrintDefaults()
		os.Exit(2)
	}
	if err := flags.Parse(args); err != nil {
		log.Fatal(err)
	}
	if flags.NArg() != 1 {
		flags.Usage()
	}
	ctx := context.Background()
	db, err := bioflat.Open(ctx, flags.Arg(0), bioflat.Options{})
	if err != nil {
		return err
	}
	defer db.Close(ctx)
	format, err := db.Format()
	if err != nil {
		return err
	}
	backend, err := db.Backend()
	if err != nil {
		return err
	}
	primary, err := db.PrimaryNamespace()
	if err != nil {
		return err
	}
	secondary, err := db.SecondaryNamespaces()
	if err != nil {
		return err
	}
	files, err := db.Files()
	if err != nil {
		return err
	}
	fmt.Printf("format\t%s\nbackend\t%s\nprimary\t%s\nsecondary\t%s\n",
		format, backend, primary, strings.Join(secondary, ","))
	for i, path := range files {
		fmt.Printf("file %d\t%s\n", i, path)
	}
	return nil
}
