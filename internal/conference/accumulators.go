package conference

import "github.com/Raikerian/go-tdmmix/pkg/audio"

// Accumulators holds three generations of per-alias chunk sums. With pos the
// rotating index, previous is g[pos], current g[pos+1] and next g[pos+2],
// all mod 3.
type Accumulators struct {
	gens   [3][]int16
	pos    int
	zeroed int
}

// NewAccumulators allocates sums for aliases 0..maxAlias.
func NewAccumulators(maxAlias int) *Accumulators {
	acc := &Accumulators{}
	for i := range acc.gens {
		acc.gens[i] = make([]int16, (maxAlias+1)*audio.ChunkSize)
	}
	return acc
}

func (acc *Accumulators) view(gen, alias int) []int16 {
	g := acc.gens[(acc.pos+gen)%3]
	return g[alias*audio.ChunkSize : (alias+1)*audio.ChunkSize : (alias+1)*audio.ChunkSize]
}

// Previous returns the sum completed two rotations ago.
func (acc *Accumulators) Previous(alias int) []int16 { return acc.view(0, alias) }

// Current returns the sum listeners hear this tick.
func (acc *Accumulators) Current(alias int) []int16 { return acc.view(1, alias) }

// Next returns the sum real talkers feed this tick.
func (acc *Accumulators) Next(alias int) []int16 { return acc.view(2, alias) }

// Rotate advances the generations by one: next becomes current, current
// becomes previous, and the old previous is cleared for aliases 0..high and
// becomes next.
func (acc *Accumulators) Rotate(high int) {
	acc.pos = (acc.pos + 1) % 3
	n := min((high+1)*audio.ChunkSize, len(acc.gens[0]))
	clear(acc.gens[(acc.pos+2)%3][:n])
	acc.zeroed = n / audio.ChunkSize
}

// Clear zeroes every generation of alias.
func (acc *Accumulators) Clear(alias int) {
	for gen := range acc.gens {
		audio.Zero(acc.view(gen, alias))
	}
}

// Position returns the rotating index.
func (acc *Accumulators) Position() int { return acc.pos }

// LastZeroed returns how many aliases the last Rotate cleared, alias 0
// included.
func (acc *Accumulators) LastZeroed() int { return acc.zeroed }
