// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package sortio sorts streams of keyed records that may not fit in
// memory, and merges sorted record streams.
package sortio

import (
	"container/heap"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// DefaultSpillTarget is the default amount of buffered record data
// (in bytes) after which a Sorter spills a sorted run to disk.
const DefaultSpillTarget = int(64 * data.MiB)

// recordOverhead approximates the in-memory cost of a record beyond
// its string data.
const recordOverhead = 48

// Logger receives a Sorter's diagnostic output.
type Logger interface {
	Printf(format string, args ...interface{})
}

// A Sorter sorts records by key. Records are buffered in memory; when
// the buffer exceeds the spill target, it is sorted and written to a
// temporary run file. Sort then merges all runs. The sort is stable:
// records with equal keys are returned in the order they were added.
type Sorter struct {
	// Name identifies the sorter in log messages and temporary
	// file names.
	Name string
	// SpillTarget is the buffer size in bytes at which records are
	// spilled to disk. If zero, all records are kept in memory.
	SpillTarget int
	// Log receives diagnostic output. It defaults to log.Debug.
	Log Logger

	buf     []Record
	bufSize int
	spill   *spiller
	n       int
	maxLen  int
	sorted  bool
}

// NewSorter returns a sorter that spills runs of about spillTarget
// bytes.
func NewSorter(name string, spillTarget int) *Sorter {
	return &Sorter{Name: name, SpillTarget: spillTarget}
}

func (s *Sorter) logger() Logger {
	if s.Log == nil {
		return log.Debug
	}
	return s.Log
}

// Add adds a record to the sorter. Add may not be called after Sort.
func (s *Sorter) Add(r Record) error {
	if s.sorted {
		return errors.E(errors.Invalid, fmt.Sprintf("sortio: %s: add after sort", s.Name))
	}
	n := r.JoinedLen()
	if n > s.maxLen {
		s.maxLen = n
	}
	s.n++
	s.buf = append(s.buf, r)
	s.bufSize += n + recordOverhead
	if s.SpillTarget > 0 && s.bufSize >= s.SpillTarget {
		return s.flush()
	}
	return nil
}

// Len returns the number of records added.
func (s *Sorter) Len() int { return s.n }

// MaxJoinedLen returns the largest Record.JoinedLen of the records
// added.
func (s *Sorter) MaxJoinedLen() int { return s.maxLen }

// Spilled reports whether the sorter has written any runs to disk.
func (s *Sorter) Spilled() bool { return s.spill != nil && len(s.spill.runs) > 0 }

func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})
}

func (s *Sorter) flush() error {
	if len(s.buf) == 0 {
		return nil
	}
	sortRecords(s.buf)
	if s.spill == nil {
		var err error
		if s.spill, err = newSpiller(s.Name); err != nil {
			return err
		}
	}
	size, err := s.spill.Spill(s.buf)
	if err != nil {
		return errors.E(err, fmt.Sprintf("sortio: %s: spill", s.Name))
	}
	s.logger().Printf("sorter %s: spilled %d records (%s) to run %d",
		s.Name, len(s.buf), data.Size(size), len(s.spill.runs))
	s.buf = nil
	s.bufSize = 0
	return nil
}

// Sort returns a reader of all added records in key order. Records
// that were never spilled are sorted in memory; otherwise the
// spilled runs and the in-memory remainder are merged. The caller
// must close the returned reader and then call Cleanup.
func (s *Sorter) Sort(ctx context.Context) (ReadCloser, error) {
	s.sorted = true
	sortRecords(s.buf)
	tail := &sliceReader{records: s.buf}
	s.buf = nil
	if !s.Spilled() {
		return tail, nil
	}
	readers, err := s.spill.Readers()
	if err != nil {
		return nil, err
	}
	if len(tail.records) > 0 {
		readers = append(readers, tail)
	}
	s.logger().Printf("sorter %s: merging %d runs", s.Name, len(readers))
	return NewMergeReader(ctx, readers)
}

// Cleanup removes the sorter's temporary files.
func (s *Sorter) Cleanup() error {
	if s.spill == nil {
		return nil
	}
	return s.spill.Cleanup()
}

// A bufferedReader holds the next record of one merge input.
type bufferedReader struct {
	ReadCloser
	// Index is the reader's position among the merged readers. It
	// breaks ties between equal keys so that the merge is stable.
	Index int
	Head  Record
}

// readerHeap implements heap.Interface, ordered by head key and then
// by reader index.
type readerHeap []*bufferedReader

func (h readerHeap) Len() int { return len(h) }

func (h readerHeap) Less(i, j int) bool {
	if h[i].Head.Key != h[j].Head.Key {
		return h[i].Head.Key < h[j].Head.Key
	}
	return h[i].Index < h[j].Index
}

func (h readerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readerHeap) Push(x interface{}) {
	*h = append(*h, x.(*bufferedReader))
}

func (h *readerHeap) Pop() interface{} {
	n := len(*h)
	elem := (*h)[n-1]
	*h = (*h)[:n-1]
	return elem
}

type mergeReader struct {
	err     error
	heap    readerHeap
	readers []ReadCloser
}

// NewMergeReader returns a reader that merges the provided sorted
// readers into a single sorted stream. Among equal keys, records from
// earlier readers are returned first. Closing the merge reader closes
// all of the provided readers.
func NewMergeReader(ctx context.Context, readers []ReadCloser) (ReadCloser, error) {
	m := &mergeReader{readers: readers}
	for i, r := range readers {
		head, err := r.Read(ctx)
		switch {
		case err == io.EOF:
			// No data. Skip.
		case err != nil:
			m.Close()
			return nil, err
		default:
			m.heap = append(m.heap, &bufferedReader{ReadCloser: r, Index: i, Head: head})
		}
	}
	heap.Init(&m.heap)
	return m, nil
}

func (m *mergeReader) Read(ctx context.Context) (Record, error) {
	if m.err != nil {
		return Record{}, m.err
	}
	if len(m.heap) == 0 {
		m.err = io.EOF
		return Record{}, m.err
	}
	if err := ctx.Err(); err != nil {
		m.err = err
		return Record{}, err
	}
	top := m.heap[0]
	rec := top.Head
	next, err := top.Read(ctx)
	switch {
	case err == io.EOF:
		heap.Remove(&m.heap, 0)
	case err != nil:
		m.err = err
		return Record{}, err
	default:
		top.Head = next
		heap.Fix(&m.heap, 0)
	}
	return rec, nil
}

func (m *mergeReader) Close() error {
	var first error
	for _, r := range m.readers {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type uniqueReader struct {
	Reader
	last  string
	begun bool
}

// Unique returns a reader that passes through the records of a
// sorted reader r, failing with an errors.Exists error if two
// consecutive records share a key.
func Unique(r Reader) Reader {
	return &uniqueReader{Reader: r}
}

func (u *uniqueReader) Read(ctx context.Context) (Record, error) {
	rec, err := u.Reader.Read(ctx)
	if err != nil {
		return rec, err
	}
	if u.begun && rec.Key == u.last {
		return Record{}, errors.E(errors.Exists, fmt.Sprintf("duplicate primary key %q", rec.Key))
	}
	u.begun = true
	u.last = rec.Key
	return rec, nil
}
