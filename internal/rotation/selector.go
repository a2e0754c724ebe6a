// Package rotation implements weighted destination selection and the
// round-robin rotation indices kept per short entry.
package rotation

import (
	"math/rand/v2"
)

// Selector draws a destination index proportionally to integer weights.
// It is stateless; advancing rotation is a separate step (see Next).
type Selector struct {
	intN func(n int) int
}

// NewSelector creates a selector backed by the process-wide random source
func NewSelector() *Selector {
	return &Selector{intN: rand.IntN}
}

// NewSelectorWithSource creates a selector with an injected draw function.
// intN must return a value in [0, n).
func NewSelectorWithSource(intN func(n int) int) *Selector {
	if intN == nil {
		intN = rand.IntN
	}
	return &Selector{intN: intN}
}

// Select returns the index chosen by a weighted draw.
// Non-positive weights count as 1. If the draw does not land in any bucket,
// fallback modulo the list length is returned. Select panics on an empty list.
func (s *Selector) Select(weights []int, fallback int) int {
	n := len(weights)
	if n == 0 {
		panic("rotation: select from empty weight list")
	}

	total := 0
	for _, w := range weights {
		total += clamp(w)
	}

	r := s.intN(total)
	cumulative := 0
	for i, w := range weights {
		cumulative += clamp(w)
		if cumulative > r {
			return i
		}
	}

	return Mod(fallback, n)
}

// Next returns the round-robin successor of current for a list of length n
func Next(current, n int) int {
	if n <= 0 {
		return 0
	}
	return Mod(current+1, n)
}

// Mod is a non-negative modulo
func Mod(i, n int) int {
	if n <= 0 {
		return 0
	}
	m := i % n
	if m < 0 {
		m += n
	}
	return m
}

func clamp(w int) int {
	if w < 1 {
		return 1
	}
	return w
}
