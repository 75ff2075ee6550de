// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mapio

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
)

// Map is a read-only sorted map backed by an io.ReadSeeker, usually
// a file. Maps support point lookups and ordered iteration.
type Map struct {
	mu      sync.Mutex
	r       io.ReadSeeker
	index   block
	entries int
}

// New opens the map stored in r.
func New(r io.ReadSeeker) (*Map, error) {
	m := &Map{r: r}
	return m, m.init()
}

func (m *Map) init() error {
	if _, err := m.r.Seek(-mapTrailerSize, io.SeekEnd); err != nil {
		return errors.E(errors.Integrity, "mapio: map too small", err)
	}
	trailer := make([]byte, mapTrailerSize)
	if _, err := io.ReadFull(m.r, trailer); err != nil {
		return err
	}
	if magic := order.Uint64(trailer[len(trailer)-8:]); magic != mapTrailerMagic {
		return errors.E(errors.Integrity, "mapio: wrong magic")
	}
	metaAddr := getBlockAddr(trailer)
	indexAddr := getBlockAddr(trailer[maxBlockAddrSize:])
	var meta block
	if err := m.readBlock(metaAddr, &meta); err != nil {
		return err
	}
	meta.Seek([]byte(metaEntries))
	if !meta.Scan() || !bytes.Equal(meta.Key(), []byte(metaEntries)) {
		return errors.E(errors.Integrity, "mapio: meta block is missing entry count")
	}
	n, _ := binary.Uvarint(meta.Value())
	m.entries = int(n)
	return m.readBlock(indexAddr, &m.index)
}

func (m *Map) readBlock(addr blockAddr, b *block) error {
	if cap(b.p) >= int(addr.len) {
		b.p = b.p[:addr.len]
	} else {
		b.p = make([]byte, addr.len)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.r.Seek(int64(addr.off), io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(m.r, b.p); err != nil {
		return err
	}
	return b.init()
}

// Len returns the number of keys in the map.
func (m *Map) Len() int { return m.entries }

// Get returns the value list stored under key. The boolean is false
// if the map does not contain key.
func (m *Map) Get(key []byte) ([]string, bool, error) {
	s := m.Seek(key)
	if !s.Scan() {
		return nil, false, s.Err()
	}
	if !bytes.Equal(s.Key(), key) {
		return nil, false, nil
	}
	values, err := s.Values()
	if err != nil {
		return nil, false, err
	}
	return values, true, nil
}

// Seek returns a scanner positioned at the first key >= key.
func (m *Map) Seek(key []byte) *MapScanner {
	s := &MapScanner{parent: m, index: m.index}
	s.index.key = nil
	s.index.Seek(key)
	if s.index.Scan() {
		addr := getBlockAddr(s.index.Value())
		if s.err = m.readBlock(addr, &s.data); s.err == nil {
			s.data.Seek(key)
		}
	}
	return s
}

// MapScanner iterates over a map in key order.
type MapScanner struct {
	parent      *Map
	err         error
	data, index block
}

// Scan advances to the next entry, returning false when the map is
// exhausted or an error occurred; Err distinguishes the two.
func (m *MapScanner) Scan() bool {
	for m.err == nil && !m.data.Scan() {
		if !m.index.Scan() {
			return false
		}
		m.err = m.parent.readBlock(getBlockAddr(m.index.Value()), &m.data)
	}
	return m.err == nil
}

// Err returns the last error encountered while scanning.
func (m *MapScanner) Err() error { return m.err }

// Key returns the key of the last scanned entry. The returned slice
// is only valid until the next call to Scan.
func (m *MapScanner) Key() []byte { return m.data.Key() }

// Values decodes the value list of the last scanned entry.
func (m *MapScanner) Values() ([]string, error) {
	return decodeValues(m.data.Value())
}
