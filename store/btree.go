// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package store

import (
	"bufio"
	"fmt"
	"os"

	"github.com/google/btree"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/bioflat/mapio"
)

const btreeDegree = 32

type btreeItem struct {
	key    string
	values []string
}

func (a *btreeItem) Less(than btree.Item) bool {
	return a.key < than.(*btreeItem).key
}

// btreeWriter accumulates entries in an in-memory B-tree. Entries
// need not be added in order. On commit the tree is written, in key
// order, as a mapio map.
type btreeWriter struct {
	path   string
	unique bool
	tree   *btree.BTree
}

func createBTree(path string, opts CreateOptions) *btreeWriter {
	return &btreeWriter{
		path:   path,
		unique: opts.Unique,
		tree:   btree.New(btreeDegree),
	}
}

// Add appends values to the list stored under key. If the writer is
// unique, adding an existing key fails with errors.Exists.
func (w *btreeWriter) Add(key string, values []string) error {
	if err := CheckString(key); err != nil {
		return err
	}
	for _, v := range values {
		if err := CheckString(v); err != nil {
			return err
		}
	}
	if item := w.tree.Get(&btreeItem{key: key}); item != nil {
		if w.unique {
			return errors.E(errors.Exists, fmt.Sprintf("btree store %s: duplicate key %q", w.path, key))
		}
		it := item.(*btreeItem)
		it.values = append(it.values, values...)
		return nil
	}
	w.tree.ReplaceOrInsert(&btreeItem{key: key, values: append([]string(nil), values...)})
	return nil
}

// Commit writes the tree to a temporary file and renames it into
// place.
func (w *btreeWriter) Commit() error {
	tmp := w.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	mw := mapio.NewWriter(bw)
	w.tree.Ascend(func(i btree.Item) bool {
		it := i.(*btreeItem)
		err = mw.Append([]byte(it.key), it.values)
		return err == nil
	})
	if err == nil {
		err = mw.Close()
	}
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	w.tree = nil
	return os.Rename(tmp, w.path)
}

func (w *btreeWriter) Discard() error {
	w.tree = nil
	if err := os.Remove(w.path + ".tmp"); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// btreeStore is a read handle to a committed B-tree store.
type btreeStore struct {
	path string
	f    *os.File
	m    *mapio.Map
}

func (s *btreeStore) open() error {
	if s.m != nil {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	m, err := mapio.New(f)
	if err != nil {
		f.Close()
		return errors.E(err, fmt.Sprintf("btree store %s", s.path))
	}
	s.f, s.m = f, m
	return nil
}

func (s *btreeStore) Search(key string) ([]string, error) {
	if err := s.open(); err != nil {
		return nil, err
	}
	values, ok, err := s.m.Get([]byte(key))
	if err != nil || !ok {
		return nil, err
	}
	return values, nil
}

func (s *btreeStore) Len() (int, error) {
	if err := s.open(); err != nil {
		return 0, err
	}
	return s.m.Len(), nil
}

func (s *btreeStore) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f, s.m = nil, nil
	return err
}
