// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package databank defines the on-disk layout of a databank: the
// directory holding one complete index. A databank contains a text
// config, one mapping store for the primary namespace and one mapping
// store per secondary namespace.
package databank

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bioflat/store"
)

// Location is a byte range of a record inside an indexed source
// file.
type Location struct {
	// FileID is the index of the source file in the databank's
	// field list.
	FileID int
	Offset int64
	Length int64
}

// Values returns the location as the value list stored in the
// primary namespace.
func (l Location) Values() []string {
	return []string{
		strconv.Itoa(l.FileID),
		strconv.FormatInt(l.Offset, 10),
		strconv.FormatInt(l.Length, 10),
	}
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d+%d", l.FileID, l.Offset, l.Length)
}

// ParseLocation parses a primary namespace value list.
func ParseLocation(values []string) (Location, error) {
	if len(values) != 3 {
		return Location{}, errors.E(errors.Integrity, fmt.Sprintf("malformed location %q", values))
	}
	var (
		l   Location
		err error
	)
	if l.FileID, err = strconv.Atoi(values[0]); err != nil || l.FileID < 0 {
		return Location{}, errors.E(errors.Integrity, fmt.Sprintf("malformed file id %q", values[0]))
	}
	if l.Offset, err = strconv.ParseInt(values[1], 10, 64); err != nil || l.Offset < 0 {
		return Location{}, errors.E(errors.Integrity, fmt.Sprintf("malformed offset %q", values[1]))
	}
	if l.Length, err = strconv.ParseInt(values[2], 10, 64); err != nil || l.Length < 0 {
		return Location{}, errors.E(errors.Integrity, fmt.Sprintf("malformed length %q", values[2]))
	}
	return l, nil
}

// CheckName returns an error if name cannot be used as a namespace
// name. Names become part of file names and config lines.
func CheckName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\t\r\n") {
		return errors.E(errors.Invalid, fmt.Sprintf("invalid namespace name %q", name))
	}
	return nil
}

// PrimaryPath returns the path of the primary namespace store.
func PrimaryPath(dir string, kind store.Kind, name string) string {
	if kind == store.Flat {
		return filepath.Join(dir, "key_"+name+".key")
	}
	return filepath.Join(dir, "key_"+name)
}

// SecondaryPath returns the path of a secondary namespace store.
func SecondaryPath(dir string, kind store.Kind, name string) string {
	if kind == store.Flat {
		return filepath.Join(dir, "id_"+name+".index")
	}
	return filepath.Join(dir, "id_"+name)
}

// ConfigPath returns the path of the config file for a databank of
// the given kind.
func ConfigPath(dir string, kind store.Kind) string {
	if kind == store.Flat {
		return filepath.Join(dir, "config.dat")
	}
	return filepath.Join(dir, "config")
}

// Exists tells whether dir already contains a databank config.
func Exists(dir string) bool {
	for _, kind := range []store.Kind{store.Flat, store.BTree} {
		if _, err := os.Stat(ConfigPath(dir, kind)); err == nil {
			return true
		}
	}
	return false
}
