// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package field tracks the source flat files of a databank. A Field
// records a file's path and its size at indexing time; since indexed
// byte ranges are only valid for the exact file that was indexed, a
// size change marks the field as stale.
//
// Files are accessed through grailfile, so sources may live at any
// path supported by a registered grailfile implementation.
package field

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// A Field is one indexed source file.
type Field struct {
	// Path is the file's path.
	Path string
	// Size is the file's size in bytes when it was indexed.
	Size int64

	file file.File
	r    io.ReadSeeker
}

// New returns a Field for the file at path, capturing its current
// size.
func New(ctx context.Context, path string) (*Field, error) {
	info, err := file.Stat(ctx, path)
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("field %s", path))
	}
	return &Field{Path: path, Size: info.Size()}, nil
}

// Check reports whether the file still has its recorded size. An
// unreadable file is an error, not a mismatch.
func (f *Field) Check(ctx context.Context) (bool, error) {
	info, err := file.Stat(ctx, f.Path)
	if err != nil {
		return false, errors.E(err, fmt.Sprintf("field %s", f.Path))
	}
	return info.Size() == f.Size, nil
}

// Fetch reads length bytes at offset. The file is opened on first
// use and stays open until Close.
func (f *Field) Fetch(ctx context.Context, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("field %s: invalid range %d+%d", f.Path, offset, length))
	}
	if f.file == nil {
		fl, err := file.Open(ctx, f.Path)
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("field %s", f.Path))
		}
		f.file = fl
		f.r = fl.Reader(ctx)
	}
	if _, err := f.r.Seek(offset, io.SeekStart); err != nil {
		return nil, errors.E(err, fmt.Sprintf("field %s: seek %d", f.Path, offset))
	}
	p := make([]byte, length)
	if _, err := io.ReadFull(f.r, p); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.E(err, fmt.Sprintf("field %s: read %d bytes at %d", f.Path, length, offset))
	}
	return p, nil
}

// Close releases the field's file handle, if any. A later Fetch
// reopens the file.
func (f *Field) Close(ctx context.Context) error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close(ctx)
	f.file, f.r = nil, nil
	return err
}
