// Package simhash computes 64-bit locality-sensitive fingerprints of
// rendered frames and DOM snapshots.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// fold accumulates per-token hashes into a single SimHash: bit i is set when
// more tokens have bit i set than clear.
func fold(hashes []uint64) uint64 {
	if len(hashes) == 0 {
		return 0
	}

	var vector [64]int
	for _, hash := range hashes {
		for i := 0; i < 64; i++ {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fingerprint uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fingerprint |= 1 << uint(i)
		}
	}
	return fingerprint
}

// Text computes a SimHash of whitespace-separated tokens using FNV-64a.
func Text(text string) uint64 {
	words := strings.Fields(text)
	hashes := make([]uint64, 0, len(words))
	for _, word := range words {
		h := fnv.New64a()
		h.Write([]byte(word))
		hashes = append(hashes, h.Sum64())
	}
	return fold(hashes)
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar returns true if the Hamming distance between two fingerprints
// is less than or equal to the threshold.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}
