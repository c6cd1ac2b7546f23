// Package assign maps (identity, experiment label) pairs to experiment
// buckets with a cryptographic digest, and names experiments.
//
// Assignment is a pure function: the same identity and label always land in
// the same bucket, regardless of call order or goroutine.
package assign

import (
	"crypto/md5"
	"crypto/sha256"
	"hash"
	"math/big"
	"slices"
	"strings"

	"github.com/nvandessel/bucketsim/internal/models"
)

// Modulus is the number of slots the digest is reduced into.
const Modulus = 100

// ControlSlots is the number of slots, counted from 0, that map to control.
const ControlSlots = 50

// Algorithm names a digest used for assignment.
type Algorithm string

const (
	AlgorithmMD5    Algorithm = "md5"
	AlgorithmSHA256 Algorithm = "sha256"
)

// Algorithms lists the supported digests.
func Algorithms() []Algorithm {
	return []Algorithm{AlgorithmMD5, AlgorithmSHA256}
}

// AlgorithmNames returns the supported digests as a comma separated list.
func AlgorithmNames() string {
	names := make([]string, 0, len(Algorithms()))
	for _, a := range Algorithms() {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}

// Valid reports whether a is a supported digest.
func (a Algorithm) Valid() bool {
	return slices.Contains(Algorithms(), a)
}

// Assigner buckets members with a fixed digest.
type Assigner struct {
	alg     Algorithm
	newHash func() hash.Hash
}

// New returns an Assigner for alg. An empty alg selects MD5.
func New(alg Algorithm) (*Assigner, error) {
	switch alg {
	case "", AlgorithmMD5:
		return &Assigner{alg: AlgorithmMD5, newHash: md5.New}, nil
	case AlgorithmSHA256:
		return &Assigner{alg: AlgorithmSHA256, newHash: sha256.New}, nil
	default:
		return nil, models.NewConfigurationError("hash.algorithm", "unsupported algorithm %q (valid: %s)", alg, AlgorithmNames())
	}
}

var defaultAssigner = &Assigner{alg: AlgorithmMD5, newHash: md5.New}

// Assign buckets identity for the experiment label using MD5.
func Assign(identity, label string) models.Bucket {
	return defaultAssigner.Assign(identity, label)
}

// Algorithm returns the digest in use.
func (a *Assigner) Algorithm() Algorithm {
	return a.alg
}

// Assign buckets identity for the experiment label. The digest covers the
// identity followed by the label.
func (a *Assigner) Assign(identity, label string) models.Bucket {
	return Classify(a.Slot(identity, label))
}

// Slot returns the digest of identity+label reduced modulo Modulus.
func (a *Assigner) Slot(identity, label string) uint64 {
	h := a.newHash()
	h.Write([]byte(identity))
	h.Write([]byte(label))
	sum := h.Sum(nil)

	var n, m big.Int
	n.SetBytes(sum)
	m.Mod(&n, big.NewInt(Modulus))
	return m.Uint64()
}

// Classify maps a slot in [0, Modulus) to a bucket: [0,50) is control,
// [50,100) is treatment.
func Classify(slot uint64) models.Bucket {
	if slot%Modulus < ControlSlots {
		return models.BucketControl
	}
	return models.BucketTreatment
}
