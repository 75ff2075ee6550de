// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package indexer builds databanks. Build streams every record of
// every source file through a format's extractor, producing
// (primary key, location) and (secondary key, primary key) tuples;
// each tuple stream is sorted, externally if it does not fit in
// memory, and written to a mapping store. The databank config is
// written last, only after every store has been built.
package indexer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bioflat/databank"
	"github.com/grailbio/bioflat/field"
	"github.com/grailbio/bioflat/sortio"
	"github.com/grailbio/bioflat/store"
	"golang.org/x/sync/errgroup"
)

// Logger receives the indexer's diagnostic output.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Options configures a build.
type Options struct {
	// Backend is the mapping store backend. It defaults to store.Flat.
	Backend store.Kind
	// SpillTarget is the amount of tuple data (in bytes) each sorter
	// buffers in memory before spilling a sorted run to disk. Zero
	// selects sortio.DefaultSpillTarget; a negative value sorts
	// entirely in memory.
	SpillTarget int
	// Parallel builds the namespace stores concurrently.
	Parallel bool
	// Log receives progress output. It defaults to log.Debug.
	Log Logger
}

// Stats summarizes a completed build.
type Stats struct {
	// Records is the number of records indexed, which is also the
	// number of keys in the primary namespace.
	Records int
	// Keys is the number of (key, primary key) tuples in each
	// secondary namespace.
	Keys map[string]int
	// Duration is the wall time of the build.
	Duration time.Duration
}

type builder struct {
	dir     string
	format  Format
	opts    Options
	log     Logger
	primary *sortio.Sorter
	// secondary holds a sorter per secondary namespace, in
	// declaration (or discovery) order.
	secondary []*sortio.Sorter
	byName    map[string]*sortio.Sorter
}

// Build indexes the provided files in format and writes the resulting
// databank to dir. Files are assigned ids in the order given. The
// backend and format are validated before any I/O. If dir already
// holds a databank, Build fails; rebuilding requires discarding the
// directory first. If the build fails, no config is written and the
// stores written so far are removed.
func Build(ctx context.Context, dir string, files []string, format Format, opts Options) (Stats, error) {
	start := time.Now()
	if opts.Backend == 0 {
		opts.Backend = store.Flat
	}
	if !opts.Backend.Valid() {
		return Stats{}, errors.E(errors.NotSupported, fmt.Sprintf("unknown index backend %v", opts.Backend))
	}
	if err := format.Validate(); err != nil {
		return Stats{}, err
	}
	switch {
	case opts.SpillTarget == 0:
		opts.SpillTarget = sortio.DefaultSpillTarget
	case opts.SpillTarget < 0:
		opts.SpillTarget = 0
	}
	b := &builder{
		dir:    dir,
		format: format,
		opts:   opts,
		log:    opts.Log,
		byName: make(map[string]*sortio.Sorter),
	}
	if b.log == nil {
		b.log = log.Debug
	}
	b.primary = b.newSorter(format.Primary)
	for _, name := range format.Namespaces {
		b.addNamespace(name)
	}
	defer b.cleanup()

	if databank.Exists(dir) {
		return Stats{}, errors.E(errors.Exists, fmt.Sprintf("databank %s already exists", dir))
	}
	if err := os.MkdirAll(dir, 0777); err != nil {
		return Stats{}, err
	}
	config := &databank.Config{
		Backend: opts.Backend,
		Format:  format.Name,
		Primary: format.Primary,
	}
	for id, path := range files {
		f, err := b.indexFile(ctx, id, path)
		if err != nil {
			return Stats{}, err
		}
		config.Fields = append(config.Fields, databank.FieldInfo{Path: f.Path, Size: f.Size})
	}
	for _, s := range b.secondary {
		config.Secondary = append(config.Secondary, s.Name)
	}
	if err := config.Validate(); err != nil {
		return Stats{}, err
	}
	if err := b.writeStores(ctx); err != nil {
		return Stats{}, err
	}
	if err := config.Write(dir); err != nil {
		b.removeStores()
		return Stats{}, err
	}
	stats := Stats{
		Records:  b.primary.Len(),
		Keys:     make(map[string]int),
		Duration: time.Since(start),
	}
	for _, s := range b.secondary {
		stats.Keys[s.Name] = s.Len()
	}
	b.log.Printf("indexer: built %s databank %s: %d records from %d files in %s",
		opts.Backend, dir, stats.Records, len(files), stats.Duration)
	return stats, nil
}

func (b *builder) newSorter(name string) *sortio.Sorter {
	s := sortio.NewSorter(name, b.opts.SpillTarget)
	s.Log = b.log
	return s
}

func (b *builder) addNamespace(name string) *sortio.Sorter {
	s := b.newSorter(name)
	b.secondary = append(b.secondary, s)
	b.byName[name] = s
	return s
}

func (b *builder) cleanup() {
	for _, s := range append([]*sortio.Sorter{b.primary}, b.secondary...) {
		if err := s.Cleanup(); err != nil {
			b.log.Printf("indexer: sorter %s: cleanup: %v", s.Name, err)
		}
	}
}

// indexFile extracts the keys of every record in the file at path
// and adds them to the sorters.
func (b *builder) indexFile(ctx context.Context, id int, path string) (*field.Field, error) {
	if strings.ContainsAny(path, "\t\r\n") {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("file name %q contains a tab or newline", path))
	}
	fld, err := field.New(ctx, path)
	if err != nil {
		return nil, err
	}
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close(ctx)
	var (
		r = b.format.NewReader(f.Reader(ctx))
		n int
	)
	for {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		entry, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("%s: reading entry %d", path, n))
		}
		if err := b.addEntry(id, entry); err != nil {
			return nil, errors.E(err, fmt.Sprintf("%s: entry at offset %d", path, entry.Offset))
		}
		n++
	}
	b.log.Printf("indexer: file %d (%s): %d records", id, path, n)
	return fld, nil
}

func (b *builder) addEntry(id int, entry Entry) error {
	key, err := b.format.PrimaryKey(entry.Data)
	if err != nil {
		return err
	}
	if key == "" {
		return errors.E(errors.Invalid, "empty primary key")
	}
	if strings.HasSuffix(key, " ") {
		// Primary keys are stored as secondary namespace values, and
		// flat stores cannot represent a record ending in a space.
		return errors.E(errors.Invalid, fmt.Sprintf("primary key %q ends with a space", key))
	}
	loc := databank.Location{FileID: id, Offset: entry.Offset, Length: entry.Length}
	if err := b.primary.Add(sortio.Record{Key: key, Values: loc.Values()}); err != nil {
		return err
	}
	if b.format.SecondaryKeys == nil {
		return nil
	}
	keys, err := b.format.SecondaryKeys(entry.Data)
	if err != nil {
		return err
	}
	seen := make(map[SecondaryKey]bool, len(keys))
	for _, k := range keys {
		if k.Key == "" || seen[k] {
			continue
		}
		seen[k] = true
		s := b.byName[k.Namespace]
		if s == nil {
			if !b.format.DynamicNamespaces {
				return errors.E(errors.Invalid, fmt.Sprintf("undeclared namespace %q", k.Namespace))
			}
			if err := databank.CheckName(k.Namespace); err != nil {
				return err
			}
			if k.Namespace == b.format.Primary {
				return errors.E(errors.Invalid, fmt.Sprintf("secondary key in primary namespace %q", k.Namespace))
			}
			s = b.addNamespace(k.Namespace)
		}
		if err := s.Add(sortio.Record{Key: k.Key, Values: []string{key}}); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) storePath(s *sortio.Sorter) string {
	if s == b.primary {
		return databank.PrimaryPath(b.dir, b.opts.Backend, s.Name)
	}
	return databank.SecondaryPath(b.dir, b.opts.Backend, s.Name)
}

// writeStores sorts every tuple stream and writes it to its store.
// On failure, all stores are removed.
func (b *builder) writeStores(ctx context.Context) error {
	sorters := append([]*sortio.Sorter{b.primary}, b.secondary...)
	var err error
	if b.opts.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for _, s := range sorters {
			s := s
			g.Go(func() error { return b.writeStore(gctx, s) })
		}
		err = g.Wait()
	} else {
		for _, s := range sorters {
			if err = b.writeStore(ctx, s); err != nil {
				break
			}
		}
	}
	if err != nil {
		b.removeStores()
	}
	return err
}

func (b *builder) writeStore(ctx context.Context, s *sortio.Sorter) (err error) {
	unique := s == b.primary
	recordSize := s.MaxJoinedLen() + 1
	if b.opts.Backend == store.Flat && recordSize > store.MaxRecordSize {
		return errors.E(errors.Invalid,
			fmt.Sprintf("namespace %s: record of %d bytes exceeds the flat store limit of %d", s.Name, recordSize-1, store.MaxRecordSize-1))
	}
	sorted, err := s.Sort(ctx)
	if err != nil {
		return err
	}
	defer sorted.Close()
	var r sortio.Reader = sorted
	if unique {
		r = sortio.Unique(r)
	}
	path := b.storePath(s)
	w, err := store.Create(b.opts.Backend, path, store.CreateOptions{RecordSize: recordSize, Unique: unique})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if discardErr := w.Discard(); discardErr != nil {
				b.log.Printf("indexer: discard %s: %v", path, discardErr)
			}
		}
	}()
	for {
		rec, err := r.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.E(err, fmt.Sprintf("namespace %s", s.Name))
		}
		if err := w.Add(rec.Key, rec.Values); err != nil {
			return errors.E(err, fmt.Sprintf("namespace %s", s.Name))
		}
	}
	if err := w.Commit(); err != nil {
		return err
	}
	b.log.Printf("indexer: namespace %s: wrote %d tuples (record size %d) to %s",
		s.Name, s.Len(), recordSize, path)
	return nil
}

// removeStores removes every store file the build may have written.
func (b *builder) removeStores() {
	for _, s := range append([]*sortio.Sorter{b.primary}, b.secondary...) {
		path := b.storePath(s)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			b.log.Printf("indexer: remove %s: %v", path, err)
		}
	}
}

// SortedNamespaces returns the names of the secondary namespaces in
// stats in sorted order.
func (s Stats) SortedNamespaces() []string {
	names := make([]string, 0, len(s.Keys))
	for name := range s.Keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
