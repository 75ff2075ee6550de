// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package field

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestField(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(dir, "gb.seq")
	assert.NoError(t, ioutil.WriteFile(path, []byte("LOCUS A\n//\nLOCUS B\n//\n"), 0644))

	f, err := New(ctx, path)
	assert.NoError(t, err)
	expect.EQ(t, f.Size, int64(22))
	ok, err := f.Check(ctx)
	assert.NoError(t, err)
	expect.EQ(t, ok, true)

	p, err := f.Fetch(ctx, 11, 11)
	assert.NoError(t, err)
	expect.EQ(t, string(p), "LOCUS B\n//\n")
	p, err = f.Fetch(ctx, 0, 7)
	assert.NoError(t, err)
	expect.EQ(t, string(p), "LOCUS A")

	if _, err := f.Fetch(ctx, 20, 10); err == nil {
		t.Error("expected error reading past end of file")
	}
	assert.NoError(t, f.Close(ctx))
	assert.NoError(t, f.Close(ctx))

	// Appending to the file invalidates the field.
	w, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	assert.NoError(t, err)
	_, err = w.WriteString("LOCUS C\n//\n")
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	ok, err = f.Check(ctx)
	assert.NoError(t, err)
	expect.EQ(t, ok, false)

	assert.NoError(t, os.Remove(path))
	if _, err := f.Check(ctx); err == nil {
		t.Error("expected error checking a removed file")
	}
}

func TestNewMissing(t *testing.T) {
	if _, err := New(context.Background(), "/nonexistent/bioflat/file"); err == nil {
		t.Error("expected error")
	}
}
