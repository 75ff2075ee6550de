// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stats

import (
	"sync"
	"testing"
)

func TestMap(t *testing.T) {
	m := NewMap()
	var (
		lookups = m.Int(Lookups)
		_       = m.Int(Fetches)
	)
	if got, want := lookups.Get(), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Int(Lookups).Add(3)
		}()
	}
	wg.Wait()
	if got, want := lookups.Get(), int64(30); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	vals := m.Snapshot()
	if got, want := len(vals), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := vals.String(), "fetches:0 lookups:30"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	lookups.Add(1)
	if got, want := vals[Lookups], int64(30); got != want {
		t.Errorf("snapshot changed: got %v, want %v", got, want)
	}
}

func TestNilInt(t *testing.T) {
	var v *Int
	v.Add(1)
	if got, want := v.Get(), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
