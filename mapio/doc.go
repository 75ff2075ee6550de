// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package mapio implements a sorted, read-only, on-disk map from keys
	to lists of string values. It is the persistent form of the B-tree
	mapping store: the tree is assembled in memory during an index build
	and then written, in key order, through a Writer. Each key appears
	at most once; multiple values for a key are stored together as a
	value list.

	The layout loosely follows LevelDB's table format. A map is a
	sequence of data blocks, a meta block, an index block and a fixed
	size trailer:

		map := block(data)* block(meta) block(index) mapTrailer
		mapTrailer :=
			meta:   blockAddr[20]  // zero-padded address of the meta block
			index:  blockAddr[20]  // zero-padded address of the index block
			magic:  uint64         // magic (0x62696f666c617401)
		blockAddr :=
			offset: uvarint
			len:    uvarint

	Every block is a prefix-compressed run of entries followed by a
	trailer holding restart points and a checksum:

		block := blockEntry* blockTrailer
		blockEntry :=
			nshared:   uvarint           // bytes shared with previous key
			nunshared: uvarint           // bytes new in this key
			nvalue:    uvarint           // bytes in value
			key:       uint8[nunshared]
			value:     uint8[nvalue]
		blockTrailer :=
			restarts:  uint32[nrestart]
			nrestart:  uint32
			type:      uint8             // always 0
			crc32:     uint32            // IEEE crc32 of contents and trailer

	In data blocks the value of an entry is an encoded value list:

		valueList := count:uvarint (len:uvarint bytes:uint8[len])*

	The index block has one entry per data block, keyed by the last key
	in that block, whose value is the block's address; a lookup binary
	searches the index block and then the restart points of a single
	data block. The meta block records map-wide properties; currently
	only "entries", the number of keys in the map.
*/
package mapio
