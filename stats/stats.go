// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stats counts the work done by databank queries: store
// lookups, record fetches and the bytes read from source files.
// Counters are safe for concurrent use, so a single Map may be shared
// by several databank handles.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Counter names used by package bioflat.
const (
	// Searches counts SearchNamespaces and IncludeNamespaces calls.
	Searches = "searches"
	// Lookups counts mapping store searches.
	Lookups = "lookups"
	// Fetches counts records read from source files.
	Fetches = "fetches"
	// FetchBytes counts the bytes read from source files.
	FetchBytes = "fetchbytes"
	// Checks counts source file size checks.
	Checks = "checks"
)

// Values is a snapshot of the counters of a Map.
type Values map[string]int64

// String returns the values as space-separated name:value pairs,
// sorted by name.
func (v Values) String() string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		names[i] = fmt.Sprintf("%s:%d", name, v[name])
	}
	return strings.Join(names, " ")
}

// A Map is a set of named counters.
type Map struct {
	mu     sync.Mutex
	values map[string]*Int
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string]*Int)}
}

// Int returns the counter with the given name, creating it if needed.
func (m *Map) Int(name string) *Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.values[name]
	if v == nil {
		v = new(Int)
		m.values[name] = v
	}
	return v
}

// Snapshot returns the current value of every counter.
func (m *Map) Snapshot() Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals := make(Values, len(m.values))
	for name, v := range m.values {
		vals[name] = v.Get()
	}
	return vals
}

// An Int is a counter. A nil *Int discards updates and reads as zero.
type Int struct {
	val int64
}

// Add adds delta to the counter.
func (v *Int) Add(delta int64) {
	if v == nil {
		return
	}
	atomic.AddInt64(&v.val, delta)
}

// Get returns the counter's value.
func (v *Int) Get() int64 {
	if v == nil {
		return 0
	}
	return atomic.LoadInt64(&v.val)
}
