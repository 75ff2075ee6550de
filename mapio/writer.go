// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mapio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
)

const (
	maxBlockAddrSize = 2 * binary.MaxVarintLen64

	mapTrailerSize = maxBlockAddrSize + // meta block address (padded)
		maxBlockAddrSize + // index block address (padded)
		8 // magic

	mapTrailerMagic = 0x62696f666c617401

	metaEntries = "entries"
)

type blockAddr struct {
	off uint64
	len uint64
}

func putBlockAddr(p []byte, b blockAddr) int {
	n := binary.PutUvarint(p, b.off)
	return n + binary.PutUvarint(p[n:], b.len)
}

func getBlockAddr(p []byte) blockAddr {
	var b blockAddr
	off, n := binary.Uvarint(p)
	if n <= 0 {
		return blockAddr{}
	}
	b.off = off
	b.len, _ = binary.Uvarint(p[n:])
	return b
}

// A Writer writes a map. Keys must be appended in strictly increasing
// lexicographic order; all values of a key are appended at once.
type Writer struct {
	data, index blockBuffer
	w           io.Writer

	lastKey []byte
	value   []byte
	entries uint64

	blockSize int
	off       int
}

const (
	defaultBlockSize       = 1 << 12
	defaultRestartInterval = 16
)

// WriteOption represents a tunable writer parameter.
type WriteOption func(*Writer)

// BlockSize sets the target data block size in bytes. Entries never
// straddle blocks, so a block holding a large value list may exceed
// it. The default is 4KB.
func BlockSize(sz int) WriteOption {
	return func(w *Writer) {
		w.blockSize = sz
	}
}

// RestartInterval sets the number of entries between key restart
// points. Smaller intervals make lookups faster and maps larger. The
// default is 16.
func RestartInterval(iv int) WriteOption {
	return func(w *Writer) {
		w.data.restartInterval = iv
		w.index.restartInterval = iv
	}
}

// NewWriter returns a Writer that writes a map to w.
func NewWriter(w io.Writer, opts ...WriteOption) *Writer {
	wr := &Writer{
		w:         w,
		blockSize: defaultBlockSize,
	}
	wr.data.restartInterval = defaultRestartInterval
	wr.index.restartInterval = defaultRestartInterval
	for _, opt := range opts {
		opt(wr)
	}
	return wr
}

// Append adds key with its value list. It returns an error if key
// is not greater than the previously appended key.
func (w *Writer) Append(key []byte, values []string) error {
	if w.entries > 0 && bytes.Compare(key, w.lastKey) <= 0 {
		return errors.E(errors.Invalid,
			fmt.Sprintf("mapio: key %q appended after %q", key, w.lastKey))
	}
	w.value = appendValues(w.value[:0], values)
	w.data.Append(key, w.value)
	w.lastKey = append(w.lastKey[:0], key...)
	w.entries++
	if w.data.Len() > w.blockSize {
		return w.flush()
	}
	return nil
}

// Entries returns the number of keys appended so far.
func (w *Writer) Entries() int { return int(w.entries) }

func (w *Writer) writeBlock(b *blockBuffer) (blockAddr, error) {
	b.Finish()
	n, err := w.w.Write(b.Bytes())
	if err != nil {
		return blockAddr{}, err
	}
	b.Reset()
	addr := blockAddr{uint64(w.off), uint64(n)}
	w.off += n
	return addr, nil
}

// flush ends the current data block and records it in the index.
func (w *Writer) flush() error {
	if w.data.entries == 0 {
		return nil
	}
	addr, err := w.writeBlock(&w.data)
	if err != nil {
		return err
	}
	b := make([]byte, maxBlockAddrSize)
	n := putBlockAddr(b, addr)
	w.index.Append(w.lastKey, b[:n])
	return nil
}

// Close writes the last data block, the meta and index blocks, and
// the trailer. Close does not close the underlying writer.
func (w *Writer) Close() error {
	if err := w.flush(); err != nil {
		return err
	}
	var meta blockBuffer
	meta.restartInterval = defaultRestartInterval
	meta.Append([]byte(metaEntries), appendUvarint(nil, w.entries))
	metaAddr, err := w.writeBlock(&meta)
	if err != nil {
		return err
	}
	indexAddr, err := w.writeBlock(&w.index)
	if err != nil {
		return err
	}
	trailer := make([]byte, mapTrailerSize)
	putBlockAddr(trailer, metaAddr)
	putBlockAddr(trailer[maxBlockAddrSize:], indexAddr)
	order.PutUint64(trailer[len(trailer)-8:], mapTrailerMagic)
	_, err = w.w.Write(trailer)
	return err
}
