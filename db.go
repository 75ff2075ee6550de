// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bioflat

import (
	"context"
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bioflat/databank"
	"github.com/grailbio/bioflat/field"
	"github.com/grailbio/bioflat/indexer"
	"github.com/grailbio/bioflat/stats"
	"github.com/grailbio/bioflat/store"
)

// Logger receives diagnostic output.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Options configures a DB.
type Options struct {
	// Strict verifies, before every read from a source file, that
	// the file still has the size it had when it was indexed. Reading
	// from a changed file then fails with an errors.Integrity error.
	// A search checks each file it reads from once.
	Strict bool
	// CloseFiles closes source files after every read. By default
	// they are kept open until the DB is closed, which is much
	// faster for repeated queries.
	CloseFiles bool
	// Log receives diagnostic output. It defaults to log.Debug.
	Log Logger
	// Stats receives the DB's counters. Several DBs may share a Map.
	// If nil, the DB keeps its own.
	Stats *stats.Map
}

var errClosed = errors.E(errors.Invalid, "databank closed")

// DB is an open, read-only databank. Stores and source files are
// opened lazily, on first use. A DB is not safe for concurrent use.
type DB struct {
	dir    string
	opts   Options
	log    Logger
	config *databank.Config
	stats  *stats.Map

	stores map[string]store.Store
	fields []*field.Field
	closed bool
}

// Open opens the databank in dir. It reads only the databank's
// config; an absent config is an errors.NotExist error.
func Open(ctx context.Context, dir string, opts Options) (*DB, error) {
	config, err := databank.ReadConfig(dir)
	if err != nil {
		return nil, err
	}
	db := &DB{
		dir:    dir,
		opts:   opts,
		log:    opts.Log,
		config: config,
		stores: make(map[string]store.Store),
		fields: make([]*field.Field, len(config.Fields)),
	}
	if db.log == nil {
		db.log = log.Debug
	}
	if db.stats = opts.Stats; db.stats == nil {
		db.stats = stats.NewMap()
	}
	for i, info := range config.Fields {
		db.fields[i] = &field.Field{Path: info.Path, Size: info.Size}
	}
	if db.stores[config.Primary], err = store.Open(config.Backend, databank.PrimaryPath(dir, config.Backend, config.Primary)); err != nil {
		return nil, err
	}
	for _, name := range config.Secondary {
		if db.stores[name], err = store.Open(config.Backend, databank.SecondaryPath(dir, config.Backend, name)); err != nil {
			return nil, err
		}
	}
	db.log.Printf("bioflat: opened %s databank %s: format %s, %d namespaces, %d files",
		config.Backend, dir, config.Format, len(db.stores), len(db.fields))
	return db, nil
}

// Build indexes files using the registered format with the given
// name and writes a new databank to dir. See indexer.Build.
func Build(ctx context.Context, dir string, files []string, format string, opts indexer.Options) (indexer.Stats, error) {
	f, err := indexer.Lookup(format)
	if err != nil {
		return indexer.Stats{}, err
	}
	return indexer.Build(ctx, dir, files, f, opts)
}

// Dir returns the databank's directory.
func (db *DB) Dir() string { return db.dir }

// Stats returns a snapshot of the DB's counters.
func (db *DB) Stats() stats.Values { return db.stats.Snapshot() }

// Closed tells whether the DB has been closed.
func (db *DB) Closed() bool { return db.closed }

// Format returns the name of the format the databank was built from.
func (db *DB) Format() (string, error) {
	if db.closed {
		return "", errClosed
	}
	return db.config.Format, nil
}

// Backend returns the databank's mapping store backend.
func (db *DB) Backend() (store.Kind, error) {
	if db.closed {
		return 0, errClosed
	}
	return db.config.Backend, nil
}

// Namespaces returns the names of all namespaces, primary first.
func (db *DB) Namespaces() ([]string, error) {
	if db.closed {
		return nil, errClosed
	}
	return db.config.Namespaces(), nil
}

// PrimaryNamespace returns the name of the primary namespace.
func (db *DB) PrimaryNamespace() (string, error) {
	if db.closed {
		return "", errClosed
	}
	return db.config.Primary, nil
}

// SecondaryNamespaces returns the names of the secondary namespaces.
func (db *DB) SecondaryNamespaces() ([]string, error) {
	if db.closed {
		return nil, errClosed
	}
	return append([]string(nil), db.config.Secondary...), nil
}

// Files returns the paths of the databank's source files, indexed by
// file id.
func (db *DB) Files() ([]string, error) {
	if db.closed {
		return nil, errClosed
	}
	paths := make([]string, len(db.fields))
	for i, f := range db.fields {
		paths[i] = f.Path
	}
	return paths, nil
}

// Search returns the raw text of every record matching key in any
// namespace. See SearchNamespaces.
func (db *DB) Search(ctx context.Context, key string) ([][]byte, error) {
	if db.closed {
		return nil, errClosed
	}
	return db.SearchNamespaces(ctx, key, db.config.Namespaces()...)
}

// SearchNamespaces returns the raw text of every record matching key
// in the named namespaces. Matches are collected as primary keys,
// deduplicated, and returned in primary key order, so a record that
// matches in several namespaces is returned once. An unknown namespace
// is an errors.NotExist error.
func (db *DB) SearchNamespaces(ctx context.Context, key string, names ...string) ([][]byte, error) {
	keys, err := db.SearchPrimaryKeys(ctx, key, names...)
	if err != nil {
		return nil, err
	}
	var (
		records [][]byte
		checked = make(map[int]bool)
	)
	for _, pk := range keys {
		loc, ok, err := db.Locate(ctx, pk)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.E(errors.Integrity,
				fmt.Sprintf("databank %s: primary key %q referenced by a secondary namespace does not exist", db.dir, pk))
		}
		p, err := db.fetch(ctx, loc, checked)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	return records, nil
}

// Include tells whether key matches a record in any namespace.
func (db *DB) Include(ctx context.Context, key string) (bool, error) {
	if db.closed {
		return false, errClosed
	}
	return db.IncludeNamespaces(ctx, key, db.config.Namespaces()...)
}

// IncludeNamespaces tells whether key matches a record in any of the
// named namespaces. No source file is read.
func (db *DB) IncludeNamespaces(ctx context.Context, key string, names ...string) (bool, error) {
	keys, err := db.SearchPrimaryKeys(ctx, key, names...)
	return len(keys) > 0, err
}

// SearchPrimaryKeys returns the sorted, deduplicated primary keys of
// the records matching key in the named namespaces.
func (db *DB) SearchPrimaryKeys(ctx context.Context, key string, names ...string) ([]string, error) {
	if db.closed {
		return nil, errClosed
	}
	for _, name := range names {
		if db.stores[name] == nil {
			return nil, errors.E(errors.NotExist, fmt.Sprintf("databank %s: no namespace %q", db.dir, name))
		}
	}
	db.stats.Int(stats.Searches).Add(1)
	var (
		seen    = make(map[string]bool)
		keys    []string
		lookups = db.stats.Int(stats.Lookups)
	)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lookups.Add(1)
		values, err := db.stores[name].Search(key)
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("databank %s: namespace %s", db.dir, name))
		}
		if len(values) == 0 {
			continue
		}
		if name == db.config.Primary {
			// Primary values are locations; the key itself is the
			// primary key.
			values = []string{key}
		}
		for _, pk := range values {
			if !seen[pk] {
				seen[pk] = true
				keys = append(keys, pk)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Locate returns the location of the record with the given primary
// key.
func (db *DB) Locate(ctx context.Context, primaryKey string) (databank.Location, bool, error) {
	if db.closed {
		return databank.Location{}, false, errClosed
	}
	db.stats.Int(stats.Lookups).Add(1)
	values, err := db.stores[db.config.Primary].Search(primaryKey)
	if err != nil {
		return databank.Location{}, false, errors.E(err, fmt.Sprintf("databank %s: namespace %s", db.dir, db.config.Primary))
	}
	if len(values) == 0 {
		return databank.Location{}, false, nil
	}
	loc, err := databank.ParseLocation(values)
	if err != nil {
		return databank.Location{}, false, errors.E(err, fmt.Sprintf("databank %s: primary key %q", db.dir, primaryKey))
	}
	if loc.FileID >= len(db.fields) {
		return databank.Location{}, false, errors.E(errors.Integrity,
			fmt.Sprintf("databank %s: primary key %q: no file %d", db.dir, primaryKey, loc.FileID))
	}
	return loc, true, nil
}

// Fetch returns the raw text at loc.
func (db *DB) Fetch(ctx context.Context, loc databank.Location) ([]byte, error) {
	if db.closed {
		return nil, errClosed
	}
	if loc.FileID < 0 || loc.FileID >= len(db.fields) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("databank %s: no file %d", db.dir, loc.FileID))
	}
	return db.fetch(ctx, loc, nil)
}

// fetch reads the record at loc. In strict mode the record's file is
// checked first, unless checked records that it was already checked
// during the current call.
func (db *DB) fetch(ctx context.Context, loc databank.Location, checked map[int]bool) ([]byte, error) {
	f := db.fields[loc.FileID]
	if db.opts.Strict && !checked[loc.FileID] {
		db.stats.Int(stats.Checks).Add(1)
		ok, err := f.Check(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.E(errors.Integrity,
				fmt.Sprintf("databank %s: file %s changed since it was indexed", db.dir, f.Path))
		}
		if checked != nil {
			checked[loc.FileID] = true
		}
	}
	p, err := f.Fetch(ctx, loc.Offset, loc.Length)
	db.stats.Int(stats.Fetches).Add(1)
	db.stats.Int(stats.FetchBytes).Add(int64(len(p)))
	if db.opts.CloseFiles {
		if closeErr := f.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return p, err
}

// Mismatched returns the paths of the source files whose size has
// changed since they were indexed.
func (db *DB) Mismatched(ctx context.Context) ([]string, error) {
	if db.closed {
		return nil, errClosed
	}
	var paths []string
	checks := db.stats.Int(stats.Checks)
	for _, f := range db.fields {
		checks.Add(1)
		ok, err := f.Check(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			db.log.Printf("bioflat: databank %s: file %s changed since it was indexed", db.dir, f.Path)
			paths = append(paths, f.Path)
		}
	}
	return paths, nil
}

// CheckConsistency tells whether every source file still has the size
// it had when it was indexed.
func (db *DB) CheckConsistency(ctx context.Context) (bool, error) {
	paths, err := db.Mismatched(ctx)
	return len(paths) == 0, err
}

// Close releases every open store and source file. Any later use of
// the DB, including another Close, fails.
func (db *DB) Close(ctx context.Context) error {
	if db.closed {
		return errClosed
	}
	db.closed = true
	var first error
	for _, s := range db.stores {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, f := range db.fields {
		if err := f.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
