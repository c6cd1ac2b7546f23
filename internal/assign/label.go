package assign

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// DefaultLabelLength is the length of generated experiment labels.
const DefaultLabelLength = 8

// DefaultMaxAttempts bounds regeneration when a label collides.
const DefaultMaxAttempts = 64

// LabelAlphabet is the character set of generated labels.
const LabelAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// LabelSpace returns how many distinct labels of length characters exist.
func LabelSpace(length int) float64 {
	return math.Pow(float64(len(LabelAlphabet)), float64(length))
}

// ErrLabelSpaceExhausted is returned when no unused label could be generated.
var ErrLabelSpaceExhausted = errors.New("experiment label space exhausted")

// GenerateLabel returns a random label of length characters from
// LabelAlphabet. Labels are not guaranteed unique; see LabelGenerator.
func GenerateLabel(rng *rand.Rand, length int) string {
	if length <= 0 {
		length = DefaultLabelLength
	}
	b := make([]byte, length)
	for i := range b {
		b[i] = LabelAlphabet[rng.IntN(len(LabelAlphabet))]
	}
	return string(b)
}

// LabelGenerator produces experiment labels that are unique within its
// lifetime. It is not safe for concurrent use.
type LabelGenerator struct {
	rng         *rand.Rand
	length      int
	maxAttempts int
	seen        map[string]struct{}
	collisions  int
}

// NewLabelGenerator returns a generator drawing from rng.
func NewLabelGenerator(rng *rand.Rand, length int) *LabelGenerator {
	if length <= 0 {
		length = DefaultLabelLength
	}
	return &LabelGenerator{
		rng:         rng,
		length:      length,
		maxAttempts: DefaultMaxAttempts,
		seen:        make(map[string]struct{}),
	}
}

// Next returns a label not returned before. Colliding labels are discarded
// and regenerated.
func (g *LabelGenerator) Next() (string, error) {
	for range g.maxAttempts {
		label := GenerateLabel(g.rng, g.length)
		if _, dup := g.seen[label]; dup {
			g.collisions++
			continue
		}
		g.seen[label] = struct{}{}
		return label, nil
	}
	return "", fmt.Errorf("%w: %d attempts at length %d", ErrLabelSpaceExhausted, g.maxAttempts, g.length)
}

// Reserve marks label as used so Next never returns it.
func (g *LabelGenerator) Reserve(label string) {
	g.seen[label] = struct{}{}
}

// Collisions returns how many generated labels were discarded as duplicates.
func (g *LabelGenerator) Collisions() int {
	return g.collisions
}

// Issued returns how many labels have been handed out or reserved.
func (g *LabelGenerator) Issued() int {
	return len(g.seen)
}
