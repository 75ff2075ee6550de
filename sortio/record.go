// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sortio

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"

	"github.com/grailbio/base/errors"
)

// maxFieldSize bounds the length of a decoded key or value; larger
// lengths indicate a corrupt spill file.
const maxFieldSize = 1 << 30

// A Record is a key together with the values emitted for it.
type Record struct {
	Key    string
	Values []string
}

// JoinedLen returns the length of the record when its key and values
// are joined by single separator bytes.
func (r Record) JoinedLen() int {
	n := len(r.Key)
	for _, v := range r.Values {
		n += 1 + len(v)
	}
	return n
}

// A Reader is a stream of records. Read returns io.EOF after the last
// record.
type Reader interface {
	Read(ctx context.Context) (Record, error)
}

// A ReadCloser is a Reader that holds resources.
type ReadCloser interface {
	Reader
	io.Closer
}

// ReadAll reads every remaining record in r.
func ReadAll(ctx context.Context, r Reader) ([]Record, error) {
	var records []Record
	for {
		rec, err := r.Read(ctx)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

// sliceReader reads records from an in-memory slice.
type sliceReader struct {
	records []Record
}

func (s *sliceReader) Read(ctx context.Context) (Record, error) {
	if len(s.records) == 0 {
		return Record{}, io.EOF
	}
	r := s.records[0]
	s.records = s.records[1:]
	return r, nil
}

func (s *sliceReader) Close() error { return nil }

func writeString(w *bufio.Writer, s string) error {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], uint64(len(s)))
	if _, err := w.Write(b[:n]); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

// encodeRecord writes r as a key followed by a counted value list,
// each string prefixed by its uvarint length.
func encodeRecord(w *bufio.Writer, r Record) error {
	if err := writeString(w, r.Key); err != nil {
		return err
	}
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], uint64(len(r.Values)))
	if _, err := w.Write(b[:n]); err != nil {
		return err
	}
	for _, v := range r.Values {
		if err := writeString(w, v); err != nil {
			return err
		}
	}
	return nil
}

func readLen(r *bufio.Reader) (int, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, err
	}
	if n > maxFieldSize {
		return 0, errors.E(errors.Integrity, "sortio: corrupt spill file: field too large")
	}
	return int(n), nil
}

func readString(r *bufio.Reader) (string, error) {
	n, err := readLen(r)
	if err != nil {
		return "", err
	}
	p := make([]byte, n)
	if _, err := io.ReadFull(r, p); err != nil {
		return "", unexpected(err)
	}
	return string(p), nil
}

// decodeRecord reads a record written by encodeRecord. It returns
// io.EOF only if r is exhausted at a record boundary.
func decodeRecord(r *bufio.Reader) (Record, error) {
	var rec Record
	var err error
	if rec.Key, err = readString(r); err != nil {
		return Record{}, err
	}
	n, err := readLen(r)
	if err != nil {
		return Record{}, unexpected(err)
	}
	rec.Values = make([]string, n)
	for i := range rec.Values {
		if rec.Values[i], err = readString(r); err != nil {
			return Record{}, unexpected(err)
		}
	}
	return rec, nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
