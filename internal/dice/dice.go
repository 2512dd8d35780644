// Package dice is the single trusted source of randomness for outcomes that
// affect shared room state.
//
// Rolls are produced entirely server-side. The generator is seeded from
// crypto/rand at construction, so outcomes cannot be predicted from anything
// a client sends. It is not a cryptographic generator.
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
)

// ErrInvalidSpec indicates a roll asked for a non-positive side or die count.
var ErrInvalidSpec = errors.New("dice must have positive sides and count")

// Result holds the outcomes in roll order and their sum.
type Result struct {
	Sides int
	Rolls []int
	Total int
}

// Roller is safe for concurrent use.
type Roller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Roller seeded from crypto/rand.
func New() (*Roller, error) {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	seed1 := binary.LittleEndian.Uint64(b[:8])
	seed2 := binary.LittleEndian.Uint64(b[8:])
	return &Roller{rng: rand.New(rand.NewPCG(seed1, seed2))}, nil
}

// NewSeeded returns a Roller with a fixed seed. Same seed, same sequence.
func NewSeeded(seed uint64) *Roller {
	return &Roller{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Roll rolls count independent dice of the given sides. Each value is
// uniform in [1, sides].
func (r *Roller) Roll(sides, count int) (Result, error) {
	if sides <= 0 || count <= 0 {
		return Result{}, ErrInvalidSpec
	}

	rolls := make([]int, count)
	total := 0

	r.mu.Lock()
	for i := range rolls {
		rolls[i] = r.rng.IntN(sides) + 1
		total += rolls[i]
	}
	r.mu.Unlock()

	return Result{Sides: sides, Rolls: rolls, Total: total}, nil
}
