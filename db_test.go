// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bioflat

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bioflat/databank"
	"github.com/grailbio/bioflat/indexer"
	"github.com/grailbio/bioflat/stats"
	"github.com/grailbio/bioflat/store"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const (
	file0 = "id1\tacc:acc1\tAAA\n" +
		"id3\tacc:X\tgi:X\n" +
		"id5\tacc:dup\n"
	file1 = "id2\tacc:acc2\tgi:7\n" +
		"id4\tacc:dup\n"
)

// build writes the two test files into a new temporary directory and
// indexes them into a databank.
func build(t *testing.T, kind store.Kind) (dir string, files []string, cleanup func()) {
	t.Helper()
	dir, cleanup = testutil.TempDir(t, "", "")
	for i, contents := range []string{file0, file1} {
		path := filepath.Join(dir, []string{"f0.tsv", "f1.tsv"}[i])
		assert.NoError(t, ioutil.WriteFile(path, []byte(contents), 0644))
		files = append(files, path)
	}
	_, err := Build(context.Background(), filepath.Join(dir, "db"), files, "tsv", indexer.Options{Backend: kind})
	assert.NoError(t, err)
	return filepath.Join(dir, "db"), files, cleanup
}

func strs(records [][]byte) []string {
	s := make([]string, len(records))
	for i, p := range records {
		s[i] = string(p)
	}
	return s
}

func forEachBackend(t *testing.T, test func(t *testing.T, kind store.Kind)) {
	for _, kind := range []store.Kind{store.Flat, store.BTree} {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) { test(t, kind) })
	}
}

func TestSearch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind store.Kind) {
		ctx := context.Background()
		dir, _, cleanup := build(t, kind)
		defer cleanup()
		db, err := Open(ctx, dir, Options{})
		assert.NoError(t, err)
		defer db.Close(ctx)

		for _, c := range []struct {
			key  string
			want []string
		}{
			{"id1", []string{"id1\tacc:acc1\tAAA"}},
			{"acc1", []string{"id1\tacc:acc1\tAAA"}},
			{"id4", []string{"id4\tacc:dup"}},
			{"7", []string{"id2\tacc:acc2\tgi:7"}},
			// X matches id3 in both acc and gi.
			{"X", []string{"id3\tacc:X\tgi:X"}},
			// Results are in primary key order, not file order.
			{"dup", []string{"id4\tacc:dup", "id5\tacc:dup"}},
			{"missing", []string{}},
			{"", []string{}},
		} {
			records, err := db.Search(ctx, c.key)
			assert.NoError(t, err)
			expect.EQ(t, strs(records), c.want)
		}

		loc0, ok, err := db.Locate(ctx, "id1")
		assert.NoError(t, err)
		expect.EQ(t, ok, true)
		expect.EQ(t, loc0, databank.Location{FileID: 0, Offset: 0, Length: 16})
		loc, ok, err := db.Locate(ctx, "id4")
		assert.NoError(t, err)
		expect.EQ(t, ok, true)
		expect.EQ(t, loc, databank.Location{FileID: 1, Offset: 18, Length: 11})
		_, ok, err = db.Locate(ctx, "acc1")
		assert.NoError(t, err)
		expect.EQ(t, ok, false)

		// The primary and secondary keys of a record resolve to the
		// same byte range.
		keys, err := db.SearchPrimaryKeys(ctx, "acc1", "acc")
		assert.NoError(t, err)
		expect.EQ(t, keys, []string{"id1"})
		p, err := db.Fetch(ctx, loc0)
		assert.NoError(t, err)
		expect.EQ(t, string(p), "id1\tacc:acc1\tAAA")
	})
}

func TestSearchNamespaces(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind store.Kind) {
		ctx := context.Background()
		dir, _, cleanup := build(t, kind)
		defer cleanup()
		db, err := Open(ctx, dir, Options{})
		assert.NoError(t, err)
		defer db.Close(ctx)

		records, err := db.SearchNamespaces(ctx, "id1", "acc")
		assert.NoError(t, err)
		expect.EQ(t, len(records), 0)
		records, err = db.SearchNamespaces(ctx, "id1", "id")
		assert.NoError(t, err)
		expect.EQ(t, strs(records), []string{"id1\tacc:acc1\tAAA"})
		records, err = db.SearchNamespaces(ctx, "X", "gi", "acc", "gi")
		assert.NoError(t, err)
		expect.EQ(t, strs(records), []string{"id3\tacc:X\tgi:X"})
		records, err = db.SearchNamespaces(ctx, "X")
		assert.NoError(t, err)
		expect.EQ(t, len(records), 0)

		if _, err := db.SearchNamespaces(ctx, "id1", "id", "nope"); !errors.Is(errors.NotExist, err) {
			t.Errorf("got %v, want not exist error", err)
		}
		if _, err := db.IncludeNamespaces(ctx, "id1", "nope"); !errors.Is(errors.NotExist, err) {
			t.Errorf("got %v, want not exist error", err)
		}

		for _, c := range []struct {
			key   string
			names []string
			want  bool
		}{
			{"acc2", nil, true},
			{"acc2", []string{"gi"}, false},
			{"acc2", []string{"gi", "acc"}, true},
			{"id5", []string{"id"}, true},
			{"missing", nil, false},
		} {
			var (
				ok  bool
				err error
			)
			if c.names == nil {
				ok, err = db.Include(ctx, c.key)
			} else {
				ok, err = db.IncludeNamespaces(ctx, c.key, c.names...)
			}
			assert.NoError(t, err)
			if got, want := ok, c.want; got != want {
				t.Errorf("include %s %v: got %v, want %v", c.key, c.names, got, want)
			}
		}
	})
}

func TestIntrospection(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind store.Kind) {
		ctx := context.Background()
		dir, files, cleanup := build(t, kind)
		defer cleanup()
		db, err := Open(ctx, dir, Options{})
		assert.NoError(t, err)
		defer db.Close(ctx)

		names, err := db.Namespaces()
		assert.NoError(t, err)
		expect.EQ(t, names, []string{"id", "acc", "gi"})
		primary, err := db.PrimaryNamespace()
		assert.NoError(t, err)
		expect.EQ(t, primary, "id")
		secondary, err := db.SecondaryNamespaces()
		assert.NoError(t, err)
		expect.EQ(t, secondary, []string{"acc", "gi"})
		format, err := db.Format()
		assert.NoError(t, err)
		expect.EQ(t, format, "tsv")
		backend, err := db.Backend()
		assert.NoError(t, err)
		expect.EQ(t, backend, kind)
		paths, err := db.Files()
		assert.NoError(t, err)
		expect.EQ(t, paths, files)
	})
}

func TestConsistency(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind store.Kind) {
		ctx := context.Background()
		dir, files, cleanup := build(t, kind)
		defer cleanup()
		db, err := Open(ctx, dir, Options{})
		assert.NoError(t, err)
		defer db.Close(ctx)

		ok, err := db.CheckConsistency(ctx)
		assert.NoError(t, err)
		expect.EQ(t, ok, true)

		f, err := os.OpenFile(files[1], os.O_APPEND|os.O_WRONLY, 0644)
		assert.NoError(t, err)
		_, err = f.WriteString("id6\n")
		assert.NoError(t, err)
		assert.NoError(t, f.Close())

		ok, err = db.CheckConsistency(ctx)
		assert.NoError(t, err)
		expect.EQ(t, ok, false)
		paths, err := db.Mismatched(ctx)
		assert.NoError(t, err)
		expect.EQ(t, paths, []string{files[1]})

		// A lenient DB still reads from the changed file.
		records, err := db.Search(ctx, "id2")
		assert.NoError(t, err)
		expect.EQ(t, strs(records), []string{"id2\tacc:acc2\tgi:7"})

		strict, err := Open(ctx, dir, Options{Strict: true, CloseFiles: true})
		assert.NoError(t, err)
		defer strict.Close(ctx)
		records, err = strict.Search(ctx, "id1")
		assert.NoError(t, err)
		expect.EQ(t, strs(records), []string{"id1\tacc:acc1\tAAA"})
		if _, err := strict.Search(ctx, "id2"); !errors.Is(errors.Integrity, err) {
			t.Errorf("got %v, want integrity error", err)
		}
		// Existence checks never read source files.
		ok, err = strict.Include(ctx, "id2")
		assert.NoError(t, err)
		expect.EQ(t, ok, true)
	})
}

func TestStrictDetectsLaterChange(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind store.Kind) {
		ctx := context.Background()
		dir, files, cleanup := build(t, kind)
		defer cleanup()
		db, err := Open(ctx, dir, Options{Strict: true})
		assert.NoError(t, err)
		defer db.Close(ctx)
		records, err := db.Search(ctx, "id1")
		assert.NoError(t, err)
		expect.EQ(t, strs(records), []string{"id1\tacc:acc1\tAAA"})

		// The file changes while the handle is in use.
		f, err := os.OpenFile(files[0], os.O_APPEND|os.O_WRONLY, 0644)
		assert.NoError(t, err)
		_, err = f.WriteString("zzz\n")
		assert.NoError(t, err)
		assert.NoError(t, f.Close())

		ok, err := db.CheckConsistency(ctx)
		assert.NoError(t, err)
		expect.EQ(t, ok, false)
		if _, err := db.Search(ctx, "id1"); !errors.Is(errors.Integrity, err) {
			t.Errorf("got %v, want integrity error", err)
		}
		p, err := db.Fetch(ctx, databank.Location{FileID: 0, Offset: 0, Length: 3})
		if !errors.Is(errors.Integrity, err) {
			t.Errorf("got %q, %v, want integrity error", p, err)
		}
		// Other files are unaffected.
		records, err = db.Search(ctx, "id2")
		assert.NoError(t, err)
		expect.EQ(t, strs(records), []string{"id2\tacc:acc2\tgi:7"})
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	dir, _, cleanup := build(t, store.Flat)
	defer cleanup()
	m := stats.NewMap()
	db, err := Open(ctx, dir, Options{Stats: m, Strict: true})
	assert.NoError(t, err)
	defer db.Close(ctx)
	records, err := db.Search(ctx, "dup")
	assert.NoError(t, err)
	expect.EQ(t, len(records), 2)
	ok, err := db.Include(ctx, "dup")
	assert.NoError(t, err)
	expect.EQ(t, ok, true)
	// Three namespace lookups per search, plus one primary lookup
	// per matching record. The search checks each of the two files
	// it reads from; the existence check reads no file.
	expect.EQ(t, db.Stats(), stats.Values{
		stats.Searches:   2,
		stats.Lookups:    8,
		stats.Fetches:    2,
		stats.FetchBytes: 22,
		stats.Checks:     2,
	})

	other, err := Open(ctx, dir, Options{Stats: m})
	assert.NoError(t, err)
	defer other.Close(ctx)
	_, err = other.Search(ctx, "id1")
	assert.NoError(t, err)
	expect.EQ(t, m.Snapshot()[stats.Fetches], int64(3))

	// Checks are repeated on every strict search.
	_, err = db.Search(ctx, "dup")
	assert.NoError(t, err)
	expect.EQ(t, db.Stats()[stats.Checks], int64(4))
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	dir, _, cleanup := build(t, store.Flat)
	defer cleanup()
	db, err := Open(ctx, dir, Options{})
	assert.NoError(t, err)
	_, err = db.Search(ctx, "id1")
	assert.NoError(t, err)
	expect.EQ(t, db.Closed(), false)
	assert.NoError(t, db.Close(ctx))
	expect.EQ(t, db.Closed(), true)

	checks := map[string]error{}
	_, checks["Search"] = db.Search(ctx, "id1")
	_, checks["SearchNamespaces"] = db.SearchNamespaces(ctx, "id1", "id")
	_, checks["Include"] = db.Include(ctx, "id1")
	_, checks["IncludeNamespaces"] = db.IncludeNamespaces(ctx, "id1", "id")
	_, _, checks["Locate"] = db.Locate(ctx, "id1")
	_, checks["Namespaces"] = db.Namespaces()
	_, checks["PrimaryNamespace"] = db.PrimaryNamespace()
	_, checks["SecondaryNamespaces"] = db.SecondaryNamespaces()
	_, checks["CheckConsistency"] = db.CheckConsistency(ctx)
	checks["Close"] = db.Close(ctx)
	for name, err := range checks {
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("%s: got %v, want closed error", name, err)
		}
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	if _, err := Open(ctx, dir, Options{}); !errors.Is(errors.NotExist, err) {
		t.Errorf("got %v, want not exist error", err)
	}
	if _, err := Build(ctx, dir, nil, "genbank-xml", indexer.Options{}); !errors.Is(errors.NotSupported, err) {
		t.Errorf("got %v, want not supported error", err)
	}
}

func TestMissingStore(t *testing.T) {
	ctx := context.Background()
	dir, _, cleanup := build(t, store.BTree)
	defer cleanup()
	assert.NoError(t, os.Remove(databank.SecondaryPath(dir, store.BTree, "gi")))
	db, err := Open(ctx, dir, Options{})
	assert.NoError(t, err)
	defer db.Close(ctx)
	// Stores are opened lazily: the damage surfaces on first use.
	_, err = db.SearchNamespaces(ctx, "acc1", "acc")
	assert.NoError(t, err)
	if _, err := db.Search(ctx, "acc1"); err == nil {
		t.Error("expected error")
	}
}
