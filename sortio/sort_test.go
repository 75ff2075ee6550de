// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sortio

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
)

// fuzzRecords returns n records whose keys are drawn from a small
// alphabet, so that duplicate keys are common. Each record's single
// value is its insertion index.
func fuzzRecords(n int) []Record {
	fz := fuzz.NewWithSeed(123)
	records := make([]Record, n)
	for i := range records {
		var k uint8
		fz.Fuzz(&k)
		records[i] = Record{
			Key:    fmt.Sprintf("key%03d", k%97),
			Values: []string{strconv.Itoa(i)},
		}
	}
	return records
}

func testSort(t *testing.T, records []Record, spillTarget int, wantSpill bool) {
	t.Helper()
	ctx := context.Background()
	s := NewSorter("test", spillTarget)
	defer func() {
		if err := s.Cleanup(); err != nil {
			t.Error(err)
		}
	}()
	for _, r := range records {
		if err := s.Add(r); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := s.Spilled(), wantSpill; got != want {
		t.Errorf("spilled: got %v, want %v", got, want)
	}
	r, err := s.Sort(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := ReadAll(ctx, r)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]Record(nil), records...)
	sort.SliceStable(want, func(i, j int) bool { return want[i].Key < want[j].Key })
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i].Key != want[i].Key || got[i].Values[0] != want[i].Values[0] {
			t.Fatalf("record %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSortInMemory(t *testing.T) {
	testSort(t, fuzzRecords(1000), 0, false)
}

func TestSortSpill(t *testing.T) {
	// Spill roughly every 50 records.
	testSort(t, fuzzRecords(5000), 50*(recordOverhead+10), true)
}

func TestSortEmpty(t *testing.T) {
	testSort(t, nil, 100, false)
}

func TestMaxJoinedLen(t *testing.T) {
	s := NewSorter("test", 0)
	for _, r := range []Record{
		{Key: "a", Values: []string{"bb"}},
		{Key: "abcdef", Values: []string{"x", "yz"}},
		{Key: "c"},
	} {
		if err := s.Add(r); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := s.MaxJoinedLen(), len("abcdef\tx\tyz"); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := s.Len(), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := s.Sort(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(Record{Key: "d"}); err == nil {
		t.Error("expected error adding after sort")
	}
}

func TestUnique(t *testing.T) {
	ctx := context.Background()
	r := Unique(&sliceReader{records: []Record{{Key: "a"}, {Key: "b"}, {Key: "c"}}})
	if _, err := ReadAll(ctx, r); err != nil {
		t.Fatal(err)
	}
	r = Unique(&sliceReader{records: []Record{{Key: "a"}, {Key: "b"}, {Key: "b"}}})
	records, err := ReadAll(ctx, r)
	if err == nil {
		t.Fatal("expected duplicate key error")
	}
	if !errors.Is(errors.Exists, err) {
		t.Errorf("got %v, want exists error", err)
	}
	if got, want := len(records), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMergeReaderStable(t *testing.T) {
	ctx := context.Background()
	readers := []ReadCloser{
		&sliceReader{records: []Record{{Key: "a", Values: []string{"0"}}, {Key: "c", Values: []string{"0"}}}},
		&sliceReader{records: []Record{{Key: "a", Values: []string{"1"}}, {Key: "b", Values: []string{"1"}}}},
		&sliceReader{},
	}
	m, err := NewMergeReader(ctx, readers)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for {
		r, err := m.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, r.Key+r.Values[0])
	}
	if got, want := fmt.Sprint(got), "[a0 a1 b1 c0]"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
