// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package indexer

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bioflat/databank"
)

// A SecondaryKey is an alternate identifier of a record, such as an
// accession or GI number, in a named secondary namespace.
type SecondaryKey struct {
	Namespace string
	Key       string
}

// An Extractor computes the keys of a record from its raw text. Both
// functions must be pure: they depend only on the entry.
type Extractor struct {
	// PrimaryKey returns the record's unique key. The key must be
	// non-empty and may not end with a space.
	PrimaryKey func(entry []byte) (string, error)
	// SecondaryKeys returns the record's alternate keys. It may be
	// nil if the format has no secondary namespaces.
	SecondaryKeys func(entry []byte) ([]SecondaryKey, error)
}

// A Format describes how to index one kind of flat file.
type Format struct {
	// Name identifies the format; it is recorded in the databank.
	Name string
	// Primary is the name of the primary namespace.
	Primary string
	// Namespaces lists the secondary namespaces. Every listed
	// namespace gets a store, even if no record has a key in it.
	Namespaces []string
	// DynamicNamespaces allows the extractor to emit keys in
	// namespaces not listed in Namespaces; such namespaces are
	// created as they are encountered. Otherwise an unlisted
	// namespace is a build error.
	DynamicNamespaces bool
	// NewReader returns a reader of the raw entries of a file.
	NewReader func(io.Reader) EntryReader

	Extractor
}

// Validate checks that the format is complete.
func (f Format) Validate() error {
	if f.Name == "" {
		return errors.E(errors.Invalid, "format has no name")
	}
	if f.NewReader == nil || f.PrimaryKey == nil {
		return errors.E(errors.Invalid, fmt.Sprintf("format %s: missing entry reader or primary key extractor", f.Name))
	}
	if err := databank.CheckName(f.Primary); err != nil {
		return errors.E(err, fmt.Sprintf("format %s", f.Name))
	}
	seen := map[string]bool{f.Primary: true}
	for _, name := range f.Namespaces {
		if err := databank.CheckName(name); err != nil {
			return errors.E(err, fmt.Sprintf("format %s", f.Name))
		}
		if seen[name] {
			return errors.E(errors.Invalid, fmt.Sprintf("format %s: duplicate namespace %q", f.Name, name))
		}
		seen[name] = true
	}
	return nil
}

// A Registry maps format names to formats.
type Registry struct {
	mu      sync.Mutex
	formats map[string]Format
}

// Register adds a format to the registry. Register panics if the
// format is invalid or its name is already registered.
func (r *Registry) Register(f Format) {
	if err := f.Validate(); err != nil {
		panic(fmt.Sprintf("indexer.Register: %v", err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.formats == nil {
		r.formats = make(map[string]Format)
	}
	if _, ok := r.formats[f.Name]; ok {
		panic(fmt.Sprintf("indexer.Register: format %s registered twice", f.Name))
	}
	r.formats[f.Name] = f
}

// Lookup returns the format registered under name.
func (r *Registry) Lookup(name string) (Format, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.formats[name]
	if !ok {
		return Format{}, errors.E(errors.NotSupported, fmt.Sprintf("unknown format %q", name))
	}
	return f, nil
}

// Names returns the registered format names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.formats))
	for name := range r.formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Formats is the default registry. It contains the TSV format.
var Formats = new(Registry)

// Register adds a format to the default registry.
func Register(f Format) { Formats.Register(f) }

// Lookup returns the format registered under name in the default
// registry.
func Lookup(name string) (Format, error) { return Formats.Lookup(name) }

func init() {
	Register(TSV)
}

// TSV indexes tab-separated files with one record per line. The
// first column is the primary key; each further column of the form
// namespace:key adds a secondary key. Other columns are ignored.
var TSV = Format{
	Name:              "tsv",
	Primary:           "id",
	DynamicNamespaces: true,
	NewReader:         func(r io.Reader) EntryReader { return NewLineReader(r) },
	Extractor: Extractor{
		PrimaryKey: func(entry []byte) (string, error) {
			if i := bytes.IndexByte(entry, '\t'); i >= 0 {
				entry = entry[:i]
			}
			return string(entry), nil
		},
		SecondaryKeys: func(entry []byte) ([]SecondaryKey, error) {
			cols := bytes.Split(entry, []byte("\t"))
			var keys []SecondaryKey
			for _, col := range cols[1:] {
				i := bytes.IndexByte(col, ':')
				if i <= 0 {
					continue
				}
				keys = append(keys, SecondaryKey{Namespace: string(col[:i]), Key: string(col[i+1:])})
			}
			return keys, nil
		},
	},
}
