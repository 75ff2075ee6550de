// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mapio

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/grailbio/base/errors"
)

func writeMap(t *testing.T, entries []entry, opts ...WriteOption) *Map {
	t.Helper()
	var b bytes.Buffer
	w := NewWriter(&b, opts...)
	for i := range entries {
		if err := w.Append(entries[i].Key, entries[i].Values); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	m, err := New(bytes.NewReader(b.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMap(t *testing.T) {
	const N = 15000
	entries := makeEntries(N)
	m := writeMap(t, entries, BlockSize(1024))
	if got, want := m.Len(), N; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	s := m.Seek(nil)
	var n int
	for s.Scan() {
		if !bytes.Equal(s.Key(), entries[n].Key) {
			t.Fatalf("scan %d: got %q, want %q", n, s.Key(), entries[n].Key)
		}
		n++
	}
	if err := s.Err(); err != nil {
		t.Fatal(err)
	}
	if got, want := n, N; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	for _, i := range rand.Perm(N)[:1000] {
		values, ok, err := m.Get(entries[i].Key)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("key %q not found", entries[i].Key)
		}
		if !equalValues(values, entries[i].Values) {
			t.Errorf("key %q: got %v, want %v", entries[i].Key, values, entries[i].Values)
		}
	}

	last := entries[N-1].Key
	bigKey := append(append([]byte{}, last...), 0)
	if _, ok, err := m.Get(bigKey); err != nil || ok {
		t.Errorf("got %v, %v for key past the end", ok, err)
	}
}

func TestEmptyMap(t *testing.T) {
	m := writeMap(t, nil)
	if got, want := m.Len(), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if s := m.Seek(nil); s.Scan() {
		t.Error("expected empty scan")
	}
	if _, ok, err := m.Get([]byte("x")); ok || err != nil {
		t.Errorf("got %v, %v", ok, err)
	}
}

func TestWriterOrder(t *testing.T) {
	var b bytes.Buffer
	w := NewWriter(&b)
	if err := w.Append([]byte("b"), []string{"1"}); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"b", "a"} {
		err := w.Append([]byte(key), nil)
		if err == nil || !errors.Is(errors.Invalid, err) {
			t.Errorf("key %q: got %v, want invalid error", key, err)
		}
	}
}

func TestMapCorrupt(t *testing.T) {
	if _, err := New(bytes.NewReader([]byte("short"))); err == nil {
		t.Error("expected error")
	}
	var b bytes.Buffer
	w := NewWriter(&b)
	if err := w.Append([]byte("a"), []string{"1"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	p := b.Bytes()
	p[len(p)-1] ^= 0xff
	if _, err := New(bytes.NewReader(p)); !errors.Is(errors.Integrity, err) {
		t.Errorf("got %v, want integrity error", err)
	}
}
