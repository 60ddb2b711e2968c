// Package idgen assigns identifiers to new records.
package idgen

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces unique record identifiers.
type Generator interface {
	Generate() string
}

// UUIDv7 generates time-sortable UUIDv7 identifiers, so ids of records
// created later sort after earlier ones.
//
// Thread-safety: UUIDv7 is stateless and safe for concurrent use.
type UUIDv7 struct{}

// Generate returns a hyphenated UUIDv7.
//
// Panics if the system random source fails.
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Fixed returns predetermined identifiers in order. Used by tests that compare
// exact output.
type Fixed struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixed creates a generator that returns ids in order.
func NewFixed(ids ...string) *Fixed {
	return &Fixed{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics once all ids have been consumed: a test created more records than it
// declared.
func (g *Fixed) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("idgen.Fixed: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Sequence returns prefix-1, prefix-2, ... without limit.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequence creates a counting generator.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (g *Sequence) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
