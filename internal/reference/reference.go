// Package reference produces human-readable transaction references of the
// form TXN-YYYYMMDD-NNNNN.
package reference

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Modulus bounds the sequence part of a reference to five digits.
const Modulus = 100000

const seqDigits = 5

// Generator hands out references from a shared atomic counter. It is safe
// for concurrent use; two calls never observe the same counter value.
type Generator struct {
	counter atomic.Int64
	now     func() time.Time
}

// NewGenerator creates a Generator whose sequence starts after seed.
func NewGenerator(seed int64) *Generator {
	g := &Generator{now: time.Now}
	g.counter.Store(seed)
	return g
}

// WithClock replaces the clock used for the date part. Intended for tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Next returns the next reference.
func (g *Generator) Next() string {
	seq := g.counter.Add(1) % Modulus
	if seq < 0 {
		seq += Modulus
	}
	return fmt.Sprintf("%s%0*d", g.Prefix(), seqDigits, seq)
}

// Prefix returns the date prefix shared by every reference issued today,
// e.g. "TXN-20240309-".
func (g *Generator) Prefix() string {
	return DayPrefix(g.now())
}

// AdvanceTo moves the sequence forward so the next reference is numbered
// after seq. It never moves the sequence backwards.
func (g *Generator) AdvanceTo(seq int64) {
	for {
		cur := g.counter.Load()
		pos := cur % Modulus
		if pos >= seq {
			return
		}
		if g.counter.CompareAndSwap(cur, cur-pos+seq) {
			return
		}
	}
}

// DayPrefix returns the reference prefix for the UTC day containing t.
func DayPrefix(t time.Time) string {
	return "TXN-" + t.UTC().Format("20060102") + "-"
}

// Sequence extracts the numeric part of a reference.
func Sequence(ref string) (int64, bool) {
	i := strings.LastIndexByte(ref, '-')
	if !strings.HasPrefix(ref, "TXN-") || i < 0 || len(ref)-i-1 != seqDigits {
		return 0, false
	}
	seq, err := strconv.ParseInt(ref[i+1:], 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}
