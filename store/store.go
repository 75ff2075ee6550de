// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package store implements mapping stores: persistent lookup
// structures from string keys to lists of string values. Two
// interchangeable backends are provided. Flat stores are sorted files
// of fixed-width, tab-delimited records searched by binary search.
// B-tree stores accumulate entries in an in-memory B-tree and persist
// them as a mapio map.
package store

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
)

// Kind identifies a mapping store backend.
type Kind int

const (
	// Flat is the fixed-width sorted flat file backend.
	Flat Kind = iota + 1
	// BTree is the B-tree backend.
	BTree
)

// String returns the identifier under which the backend is recorded
// in a databank config.
func (k Kind) String() string {
	switch k {
	case Flat:
		return "flat/1"
	case BTree:
		return "btree/1"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Valid tells whether k names a supported backend.
func (k Kind) Valid() bool { return k == Flat || k == BTree }

// ParseKind returns the backend named by s. Both config identifiers
// ("flat/1") and bare names ("flat") are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "flat/1", "flat":
		return Flat, nil
	case "btree/1", "btree":
		return BTree, nil
	default:
		return 0, errors.E(errors.NotSupported, fmt.Sprintf("unknown index backend %q", s))
	}
}

// A Store is an opened, read-only mapping store.
type Store interface {
	// Search returns the values stored under key, in stored order.
	// It returns an empty list if key is absent.
	Search(key string) ([]string, error)
	// Len returns the number of entries in the store.
	Len() (int, error)
	// Close releases the store's file handle. A closed store reopens
	// its file on the next call to Search or Len.
	Close() error
}

// A Writer populates a new mapping store.
type Writer interface {
	// Add adds values under key.
	Add(key string, values []string) error
	// Commit finishes the store, making it available to Open.
	Commit() error
	// Discard abandons the store and removes its file.
	Discard() error
}

// CreateOptions configures a new mapping store.
type CreateOptions struct {
	// RecordSize is the fixed record width of a flat store. It must
	// exceed the joined length of every record added. It is ignored
	// by the B-tree backend.
	RecordSize int
	// Unique requires every key to be added at most once; a repeated
	// key fails with an errors.Exists error.
	Unique bool
}

// Create returns a writer for a new store of the given kind at path.
func Create(kind Kind, path string, opts CreateOptions) (Writer, error) {
	switch kind {
	case Flat:
		return createFlat(path, opts)
	case BTree:
		return createBTree(path, opts), nil
	default:
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("unknown index backend %v", kind))
	}
}

// Open returns a handle to the store of the given kind at path. The
// underlying file is opened lazily, on first access.
func Open(kind Kind, path string) (Store, error) {
	switch kind {
	case Flat:
		return OpenFlat(path), nil
	case BTree:
		return &btreeStore{path: path}, nil
	default:
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("unknown index backend %v", kind))
	}
}
