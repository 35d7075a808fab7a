package core

import (
	"hash/fnv"

	"github.com/iti/rngstream"
)

// MRG32k3a moduli; seed components must lie in [1, m) per half.
const (
	rngModulus1 = 4294967087
	rngModulus2 = 4294944443
)

// newStream returns a random stream whose state depends only on name, so
// a scenario seed reproduces the same draws in any process.
func newStream(name string) *rngstream.RngStream {
	g := rngstream.New(name)
	g.SetSeed(streamSeed(name))
	return g
}

// streamSeed expands an FNV-1a hash of name into the six MRG32k3a seed
// components with splitmix64.
func streamSeed(name string) []uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	x := h.Sum64()

	seed := make([]uint64, 6)
	for i := range seed {
		x += 0x9e3779b97f4a7c15
		z := x
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31
		m := uint64(rngModulus1)
		if i >= 3 {
			m = rngModulus2
		}
		seed[i] = 1 + z%(m-1)
	}
	return seed
}
