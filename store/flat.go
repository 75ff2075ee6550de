// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package store

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/grailbio/base/errors"
)

const (
	// HeaderSize is the size of a flat store's header: the record
	// size as 4 ASCII decimal digits.
	HeaderSize = 4
	// MaxRecordSize is the largest record size a header can express.
	MaxRecordSize = 9999
)

// FlatFile is a flat mapping store: a header followed by records of
// exactly RecordSize bytes each, stored in ascending key order. Each
// record is an encoded record (see EncodeRecord) right-padded with
// spaces. Several consecutive records may share a key.
type FlatFile struct {
	path       string
	f          *os.File
	writable   bool
	recordSize int
	n          int
}

// InitFlat creates (or truncates) the flat store at path and writes
// its header. The returned FlatFile is open for writing.
func InitFlat(path string, recordSize int) (*FlatFile, error) {
	if recordSize < 1 || recordSize > MaxRecordSize {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("flat store %s: record size %d out of range [1, %d]", path, recordSize, MaxRecordSize))
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(f, "%04d", recordSize); err != nil {
		f.Close()
		return nil, err
	}
	return &FlatFile{path: path, f: f, writable: true, recordSize: recordSize}, nil
}

// OpenFlat returns a handle to the flat store at path. The file is
// opened on first access.
func OpenFlat(path string) *FlatFile {
	return &FlatFile{path: path}
}

// Path returns the store's file path.
func (f *FlatFile) Path() string { return f.path }

func (f *FlatFile) open() error {
	if f.f != nil {
		return nil
	}
	file, err := os.Open(f.path)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	var hd [HeaderSize]byte
	if _, err := io.ReadFull(file, hd[:]); err != nil {
		file.Close()
		return errors.E(errors.Integrity, fmt.Sprintf("flat store %s: short header", f.path), err)
	}
	size, err := strconv.Atoi(string(hd[:]))
	if err != nil || size < 1 {
		file.Close()
		return errors.E(errors.Integrity, fmt.Sprintf("flat store %s: bad header %q", f.path, hd[:]))
	}
	body := info.Size() - HeaderSize
	if body%int64(size) != 0 {
		file.Close()
		return errors.E(errors.Integrity,
			fmt.Sprintf("flat store %s: truncated record: %d bytes is not a multiple of record size %d", f.path, body, size))
	}
	f.f = file
	f.writable = false
	f.recordSize = size
	f.n = int(body / int64(size))
	return nil
}

// RecordSize returns the store's fixed record width.
func (f *FlatFile) RecordSize() (int, error) {
	if err := f.open(); err != nil {
		return 0, err
	}
	return f.recordSize, nil
}

// Len returns the number of records in the store.
func (f *FlatFile) Len() (int, error) {
	if err := f.open(); err != nil {
		return 0, err
	}
	return f.n, nil
}

func (f *FlatFile) offset(i int) int64 {
	return HeaderSize + int64(i)*int64(f.recordSize)
}

func (f *FlatFile) padded(record string) ([]byte, error) {
	if len(record) > f.recordSize {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("flat store %s: record of %d bytes exceeds record size %d", f.path, len(record), f.recordSize))
	}
	p := bytes.Repeat([]byte{pad}, f.recordSize)
	copy(p, record)
	return p, nil
}

// WriteRecord writes record at index i. Writing past the current
// end of the store fills the intervening slots with blank records.
// The store must have been created by InitFlat.
func (f *FlatFile) WriteRecord(i int, record string) error {
	if f.f == nil || !f.writable {
		return errors.E(errors.Invalid, fmt.Sprintf("flat store %s: not open for writing", f.path))
	}
	p, err := f.padded(record)
	if err != nil {
		return err
	}
	if i > f.n {
		blank := bytes.Repeat([]byte{pad}, (i-f.n)*f.recordSize)
		if _, err := f.f.WriteAt(blank, f.offset(f.n)); err != nil {
			return err
		}
	}
	if _, err := f.f.WriteAt(p, f.offset(i)); err != nil {
		return err
	}
	if i >= f.n {
		f.n = i + 1
	}
	return nil
}

func (f *FlatFile) readRecord(i int, p []byte) error {
	_, err := f.f.ReadAt(p, f.offset(i))
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// Search returns the values of every record whose key equals key,
// in stored order. The records are located by binary search; since
// duplicate keys are adjacent, the search then scans in both
// directions from the first match found.
func (f *FlatFile) Search(key string) ([]string, error) {
	if err := f.open(); err != nil {
		return nil, err
	}
	p := make([]byte, f.recordSize)
	lo, hi := 0, f.n
	for lo < hi {
		i := int(uint(lo+hi) >> 1)
		if err := f.readRecord(i, p); err != nil {
			return nil, err
		}
		switch k := recordKey(p); {
		case key < k:
			hi = i
		case key > k:
			lo = i + 1
		default:
			return f.scan(key, i, p)
		}
	}
	return nil, nil
}

// scan collects the values of all records around index i (which
// matches key) that share the key.
func (f *FlatFile) scan(key string, i int, p []byte) ([]string, error) {
	var backward [][]string
	for j := i - 1; j >= 0; j-- {
		if err := f.readRecord(j, p); err != nil {
			return nil, err
		}
		k, values := DecodeRecord(string(p))
		if k != key {
			break
		}
		backward = append(backward, values)
	}
	var result []string
	for j := len(backward) - 1; j >= 0; j-- {
		result = append(result, backward[j]...)
	}
	for j := i; j < f.n; j++ {
		if err := f.readRecord(j, p); err != nil {
			return nil, err
		}
		k, values := DecodeRecord(string(p))
		if k != key {
			break
		}
		result = append(result, values...)
	}
	return result, nil
}

// Close closes the store's file. The handle may be reused; it will
// reopen the file (for reading) on next access.
func (f *FlatFile) Close() error {
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	f.writable = false
	return err
}

// flatWriter writes a flat store sequentially from sorted input.
type flatWriter struct {
	*FlatFile
	w      *bufio.Writer
	unique bool
	last   string
}

func createFlat(path string, opts CreateOptions) (*flatWriter, error) {
	f, err := InitFlat(path, opts.RecordSize)
	if err != nil {
		return nil, err
	}
	return &flatWriter{FlatFile: f, w: bufio.NewWriter(f.f), unique: opts.Unique}, nil
}

// Add appends a record. Keys must be added in ascending order.
func (w *flatWriter) Add(key string, values []string) error {
	record, err := EncodeRecord(key, values)
	if err != nil {
		return err
	}
	if w.n > 0 {
		switch {
		case key < w.last:
			return errors.E(errors.Invalid,
				fmt.Sprintf("flat store %s: key %q added after %q", w.path, key, w.last))
		case key == w.last && w.unique:
			return errors.E(errors.Exists, fmt.Sprintf("flat store %s: duplicate key %q", w.path, key))
		}
	}
	p, err := w.padded(record)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(p); err != nil {
		return err
	}
	w.n++
	w.last = key
	return nil
}

func (w *flatWriter) Commit() error {
	if err := w.w.Flush(); err != nil {
		w.FlatFile.Close()
		return err
	}
	if err := w.f.Sync(); err != nil {
		w.FlatFile.Close()
		return err
	}
	return w.FlatFile.Close()
}

func (w *flatWriter) Discard() error {
	w.FlatFile.Close()
	return os.Remove(w.path)
}
