// Package idmap implements the per-section identity map that deduplicates
// (biome, block state) pairs into small dense ids referenced by column
// datapoints.
package idmap

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// separator joins the biome and block-state serializations of one entry
// on disk. Neither side may contain it.
const separator = "\x1e"

// ErrMalformedEntry is returned when a serialized entry does not split
// into exactly a biome and a block-state part.
var ErrMalformedEntry = errors.New("idmap: malformed entry")

// Entry is one deduplicated (biome, block state) pair. Both fields hold
// the canonical string serialization of their reference, so equality and
// hashing need no further computation.
type Entry struct {
	Biome string
	Block string
}

func (e Entry) String() string {
	return e.Biome + separator + e.Block
}

// Map assigns dense ids to entries in first-use order. Ids are contiguous
// from zero and never reused or renumbered within one Map's lifetime.
// Safe for concurrent use; merges serialize behind the write lock while
// lookups share the read lock.
type Map struct {
	mu      sync.RWMutex
	entries []Entry
	lookup  map[Entry]uint32
}

// New returns an empty map.
func New() *Map {
	return &Map{lookup: make(map[Entry]uint32)}
}

// AddIfAbsent returns the id of the (biome, block) pair, appending a new
// entry when the pair has not been seen before.
func (m *Map) AddIfAbsent(biome, block string) uint32 {
	e := Entry{Biome: biome, Block: block}

	m.mu.RLock()
	id, ok := m.lookup[e]
	m.mu.RUnlock()
	if ok {
		return id
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.lookup[e]; ok {
		return id
	}
	id = uint32(len(m.entries))
	m.entries = append(m.entries, e)
	m.lookup[e] = id
	return id
}

// Get returns the entry assigned to id.
func (m *Map) Get(id uint32) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(id) >= len(m.entries) {
		return Entry{}, false
	}
	return m.entries[id], true
}

// Len returns the number of assigned ids.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// MergeAndRemap adds every entry of other that m does not already have
// and returns a slice where result[i] is m's id for other's entry i.
// Existing ids in m are never removed or renumbered. Merging a map into
// itself returns the identity mapping.
func (m *Map) MergeAndRemap(other *Map) []uint32 {
	if m == other {
		m.mu.RLock()
		defer m.mu.RUnlock()
		remap := make([]uint32, len(m.entries))
		for i := range remap {
			remap[i] = uint32(i)
		}
		return remap
	}

	other.mu.RLock()
	src := other.entries
	m.mu.Lock()
	remap := make([]uint32, len(src))
	for i, e := range src {
		id, ok := m.lookup[e]
		if !ok {
			id = uint32(len(m.entries))
			m.entries = append(m.entries, e)
			m.lookup[e] = id
		}
		remap[i] = id
	}
	m.mu.Unlock()
	other.mu.RUnlock()
	return remap
}

// WriteTo serializes the map: entry count, then each entry as a
// length-prefixed "biome<sep>block" string.
func (m *Map) WriteTo(w io.Writer) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.entries))); err != nil {
		return n, err
	}
	n += 4
	for _, e := range m.entries {
		s := e.String()
		if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
			return n, err
		}
		n += 2
		written, err := io.WriteString(w, s)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Read deserializes a map written by WriteTo. The context is checked
// between entries; cancellation is a hard stop so a torn-down world is
// never operated on, and the ctx error is returned unwrapped so callers
// can tell it apart from corruption.
func Read(ctx context.Context, r io.Reader) (*Map, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("idmap: reading entry count: %w", err)
	}

	m := New()
	for i := uint32(0); i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var length uint16
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return nil, fmt.Errorf("idmap: reading entry %d length: %w", i, err)
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("idmap: reading entry %d: %w", i, err)
		}
		parts := strings.Split(string(buf), separator)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: entry %d has %d separator-delimited parts", ErrMalformedEntry, i, len(parts))
		}
		e := Entry{Biome: parts[0], Block: parts[1]}
		if _, dup := m.lookup[e]; dup {
			return nil, fmt.Errorf("%w: entry %d duplicates an earlier entry", ErrMalformedEntry, i)
		}
		m.lookup[e] = uint32(len(m.entries))
		m.entries = append(m.entries, e)
	}
	return m, nil
}
