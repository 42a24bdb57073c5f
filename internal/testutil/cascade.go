// Package testutil holds deterministic stand-ins used by tests and the
// scenario harness.
package testutil

import (
	"fmt"
	"sync"
)

// SequentialGenerator hands out cascade tokens "<prefix>-1", "<prefix>-2", ...
//
// This enables deterministic test execution and golden snapshot comparison:
// the same scenario produces byte-identical traces on every run.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SequentialGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialGenerator creates a generator. If prefix is empty, "cascade"
// is used.
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	if prefix == "" {
		prefix = "cascade"
	}
	return &SequentialGenerator{prefix: prefix}
}

// Generate returns the next token.
//
// Implements engine.CascadeGenerator.
func (g *SequentialGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Issued returns how many tokens have been generated since the last Reset.
func (g *SequentialGenerator) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Reset restarts numbering so the next token is "<prefix>-1".
func (g *SequentialGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}

// FixedCascadeGenerator returns the same token every time. Useful when every
// root action of a test should share one cascade.
type FixedCascadeGenerator struct {
	token string
}

// NewFixedCascadeGenerator creates the generator.
// If token is empty, Generate returns "cascade-default".
func NewFixedCascadeGenerator(token string) *FixedCascadeGenerator {
	if token == "" {
		token = "cascade-default"
	}
	return &FixedCascadeGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedCascadeGenerator) Generate() string {
	return g.token
}
