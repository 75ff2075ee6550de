// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package indexer

import (
	"bufio"
	"bytes"
	"io"
)

// An Entry is the raw text of one record of a flat file, together
// with its byte range in the file.
type Entry struct {
	Data   []byte
	Offset int64
	Length int64
}

// An EntryReader yields the successive entries of a flat file, in
// file order. Next returns io.EOF after the last entry.
type EntryReader interface {
	Next() (Entry, error)
}

// DelimitedReader splits a flat file into entries that end with a
// terminator line, such as the "//" line that ends every GenBank,
// EMBL and UniProt record. An entry includes its terminator line.
// Blank lines between entries are skipped. Trailing text without a
// terminator forms a final entry.
type DelimitedReader struct {
	r          *bufio.Reader
	terminator []byte
	off        int64
}

// NewDelimitedReader returns a reader of the entries in r, each
// ending with a line equal to terminator.
func NewDelimitedReader(r io.Reader, terminator string) *DelimitedReader {
	return &DelimitedReader{
		r:          bufio.NewReaderSize(r, 1<<16),
		terminator: []byte(terminator),
	}
}

// Next implements EntryReader.
func (d *DelimitedReader) Next() (Entry, error) {
	var (
		data  []byte
		start = d.off
	)
	for {
		line, err := d.r.ReadBytes('\n')
		if len(line) > 0 {
			d.off += int64(len(line))
			content := bytes.TrimRight(line, "\r\n")
			switch {
			case len(data) == 0 && len(bytes.TrimSpace(content)) == 0:
				start = d.off
			case bytes.Equal(content, d.terminator):
				data = append(data, line...)
				return Entry{Data: data, Offset: start, Length: int64(len(data))}, nil
			default:
				data = append(data, line...)
			}
		}
		if err == io.EOF {
			if len(data) == 0 {
				return Entry{}, io.EOF
			}
			return Entry{Data: data, Offset: start, Length: int64(len(data))}, nil
		}
		if err != nil {
			return Entry{}, err
		}
	}
}

// LineReader yields each nonempty line of a file as an entry. The
// entry's byte range excludes the line terminator.
type LineReader struct {
	r   *bufio.Reader
	off int64
}

// NewLineReader returns a reader of the lines in r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, 1<<16)}
}

// Next implements EntryReader.
func (l *LineReader) Next() (Entry, error) {
	for {
		line, err := l.r.ReadBytes('\n')
		start := l.off
		l.off += int64(len(line))
		content := bytes.TrimRight(line, "\r\n")
		if len(content) > 0 {
			return Entry{Data: content, Offset: start, Length: int64(len(content))}, nil
		}
		if err != nil {
			return Entry{}, err
		}
	}
}
