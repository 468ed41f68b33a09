// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fps

import (
	"slices"
	"sync"
	"time"
)

// Key identifies a register by address and index
type Key struct {
	Address int32
	Index   int32
}

// Value is the most recent data observed for a register
type Value struct {
	Key
	Data    []int32
	Opcode  Opcode
	Updated time.Time
}

// ValueTable stores the latest data seen for registers that are not
// decoded into positions. Latest value wins, entries never expire.
type ValueTable struct {
	mu     sync.RWMutex
	values map[Key]Value
}

// NewValueTable creates an empty table
func NewValueTable() *ValueTable {
	return &ValueTable{values: make(map[Key]Value)}
}

// Store records data for key, replacing any previous value
func (v *ValueTable) Store(key Key, op Opcode, data []int32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values[key] = Value{
		Key:     key,
		Data:    slices.Clone(data),
		Opcode:  op,
		Updated: time.Now(),
	}
}

// Get returns the value stored for key
func (v *ValueTable) Get(key Key) (Value, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.values[key]
	if ok {
		val.Data = slices.Clone(val.Data)
	}
	return val, ok
}

// Len returns the number of stored registers
func (v *ValueTable) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.values)
}

// Snapshot returns a copy of all values sorted by address, then index
func (v *ValueTable) Snapshot() []Value {
	v.mu.RLock()
	out := make([]Value, 0, len(v.values))
	for _, val := range v.values {
		val.Data = slices.Clone(val.Data)
		out = append(out, val)
	}
	v.mu.RUnlock()

	slices.SortFunc(out, func(a, b Value) int {
		if a.Address != b.Address {
			return int(a.Address) - int(b.Address)
		}
		return int(a.Index) - int(b.Index)
	})
	return out
}
