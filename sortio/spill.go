// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sortio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// A spiller manages the sorted runs written by a Sorter. Each run is
// a zstd-compressed stream of encoded records. Runs are kept in the
// order they were spilled.
type spiller struct {
	dir  string
	runs []string
}

func newSpiller(name string) (*spiller, error) {
	dir, err := os.MkdirTemp("", fmt.Sprintf("spiller-%s-", name))
	if err != nil {
		return nil, err
	}
	return &spiller{dir: dir}, nil
}

// Spill writes the provided (sorted) records to a new run, returning
// the run's size on disk.
func (s *spiller) Spill(records []Record) (int64, error) {
	f, err := os.CreateTemp(s.dir, "run-")
	if err != nil {
		return 0, err
	}
	s.runs = append(s.runs, f.Name())
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		return 0, err
	}
	w := bufio.NewWriter(enc)
	for _, r := range records {
		if err := encodeRecord(w, r); err != nil {
			enc.Close()
			f.Close()
			return 0, err
		}
	}
	if err := w.Flush(); err != nil {
		enc.Close()
		f.Close()
		return 0, err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return 0, err
	}
	size, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		f.Close()
		return 0, err
	}
	return size, f.Close()
}

// Readers returns a reader for each run, in spill order.
func (s *spiller) Readers() ([]ReadCloser, error) {
	readers := make([]ReadCloser, 0, len(s.runs))
	for _, path := range s.runs {
		r, err := openRun(path)
		if err != nil {
			for _, r := range readers {
				r.Close()
			}
			return nil, err
		}
		readers = append(readers, r)
	}
	return readers, nil
}

// Cleanup removes all runs. It is safe to call Cleanup while run
// readers are still open.
func (s *spiller) Cleanup() error {
	return os.RemoveAll(s.dir)
}

type runReader struct {
	f   *os.File
	dec *zstd.Decoder
	r   *bufio.Reader
}

func openRun(path string) (*runReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &runReader{f: f, dec: dec, r: bufio.NewReader(dec)}, nil
}

func (r *runReader) Read(ctx context.Context) (Record, error) {
	return decodeRecord(r.r)
}

func (r *runReader) Close() error {
	r.dec.Close()
	return r.f.Close()
}
