// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mapio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/must"
)

const (
	maxEntryHeaderSize = 3 * binary.MaxVarintLen32

	blockMinTrailerSize = 4 + // restart count
		1 + // block type
		4 // crc32
)

var order = binary.LittleEndian

// A blockBuffer accumulates the entries of a block under
// construction.
type blockBuffer struct {
	bytes.Buffer

	lastKey []byte
	entries int

	restartInterval int
	restarts        []int
	sinceRestart    int
}

// Append adds an entry to the block. Keys must be appended in
// lexicographic order.
func (b *blockBuffer) Append(key, value []byte) {
	must.Truef(b.entries == 0 || bytes.Compare(key, b.lastKey) >= 0,
		"mapio: key %q appended after %q", key, b.lastKey)
	var shared int
	if b.entries > 0 && b.sinceRestart < b.restartInterval {
		n := len(b.lastKey)
		if len(key) < n {
			n = len(key)
		}
		for shared < n && key[shared] == b.lastKey[shared] {
			shared++
		}
		b.sinceRestart++
	} else {
		if b.entries > 0 {
			b.restarts = append(b.restarts, b.Len())
		}
		b.sinceRestart = 1
	}
	b.lastKey = append(b.lastKey[:shared], key[shared:]...)
	b.entries++

	var hd [maxEntryHeaderSize]byte
	pos := binary.PutUvarint(hd[:], uint64(shared))
	pos += binary.PutUvarint(hd[pos:], uint64(len(key)-shared))
	pos += binary.PutUvarint(hd[pos:], uint64(len(value)))
	b.Write(hd[:pos])
	b.Write(key[shared:])
	b.Write(value)
}

// Finish writes the block trailer. The buffer's contents are then a
// complete block.
func (b *blockBuffer) Finish() {
	var p [4]byte
	nrestart := 0
	if b.entries > 0 {
		// Offset zero is always a restart point of a nonempty block.
		order.PutUint32(p[:], 0)
		b.Write(p[:])
		for _, off := range b.restarts {
			order.PutUint32(p[:], uint32(off))
			b.Write(p[:])
		}
		nrestart = len(b.restarts) + 1
	}
	order.PutUint32(p[:], uint32(nrestart))
	b.Write(p[:])
	b.WriteByte(0)
	order.PutUint32(p[:], crc32.ChecksumIEEE(b.Bytes()))
	b.Write(p[:])
}

// Reset clears the buffer so that it can be used for a new block.
func (b *blockBuffer) Reset() {
	b.Buffer.Reset()
	b.lastKey = b.lastKey[:0]
	b.entries = 0
	b.restarts = b.restarts[:0]
	b.sinceRestart = 0
}

// A block is a decoded, read-only block with a scan position.
type block struct {
	p        []byte
	nrestart int
	restarts []byte

	key, value   []byte
	off, prevOff int
}

// init validates the block stored in b.p and resets its position.
func (b *block) init() error {
	if len(b.p) < blockMinTrailerSize {
		return errors.E(errors.Integrity, "mapio: block too small")
	}
	if got, want := crc32.ChecksumIEEE(b.p[:len(b.p)-4]), order.Uint32(b.p[len(b.p)-4:]); got != want {
		return errors.E(errors.Integrity, fmt.Sprintf("mapio: block checksum %x, want %x", got, want))
	}
	off := len(b.p) - blockMinTrailerSize
	b.nrestart = int(order.Uint32(b.p[off:]))
	if b.nrestart*4 > off {
		return errors.E(errors.Integrity, "mapio: corrupt restart array")
	}
	if typ := b.p[off+4]; typ != 0 {
		return errors.E(errors.Integrity, fmt.Sprintf("mapio: unknown block type %d", typ))
	}
	b.restarts = b.p[off-4*b.nrestart : off]
	b.p = b.p[:off-4*b.nrestart]
	b.key = b.key[:0]
	b.value = nil
	b.off = 0
	b.prevOff = 0
	return nil
}

// Seek positions the block so that the next Scan returns the first
// entry whose key is >= the provided key.
func (b *block) Seek(key []byte) {
	restart := sort.Search(b.nrestart, func(i int) bool {
		b.off = int(order.Uint32(b.restarts[i*4:]))
		if !b.Scan() {
			panic("mapio: corrupt block")
		}
		return bytes.Compare(key, b.key) <= 0
	})
	if restart == 0 {
		b.off = 0
		return
	}
	b.off = int(order.Uint32(b.restarts[(restart-1)*4:]))
	for b.Scan() {
		if bytes.Compare(key, b.key) <= 0 {
			b.off = b.prevOff
			break
		}
	}
}

// Scan decodes the entry at the current position and advances past
// it. It returns false at the end of the block.
func (b *block) Scan() bool {
	if b.off >= len(b.p) {
		return false
	}
	b.prevOff = b.off
	nshared, n := binary.Uvarint(b.p[b.off:])
	b.off += n
	nunshared, n := binary.Uvarint(b.p[b.off:])
	b.off += n
	nvalue, n := binary.Uvarint(b.p[b.off:])
	b.off += n
	b.key = append(b.key[:nshared], b.p[b.off:b.off+int(nunshared)]...)
	b.off += int(nunshared)
	b.value = b.p[b.off : b.off+int(nvalue)]
	b.off += int(nvalue)
	return true
}

// Key returns the key of the last scanned entry.
func (b *block) Key() []byte { return b.key }

// Value returns the value of the last scanned entry.
func (b *block) Value() []byte { return b.value }

func readBlock(p []byte) (*block, error) {
	b := &block{p: p}
	return b, b.init()
}
