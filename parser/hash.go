// Package parser turns the textual example format into engine.Example
// values the block graph can consume.
package parser

import "github.com/spaolacci/murmur3"

// namespaceSeed derives a namespace's hash seed from its declared name: a
// 32-bit Murmur3 digest of the name itself.
func namespaceSeed(name string) uint32 {
	return murmur3.Sum32([]byte(name))
}

// featureHash hashes one feature token against its namespace's seed and
// keeps only the low 31 bits, so the top bit of every feature hash is clear.
func featureHash(seed uint32, token string) uint32 {
	h := murmur3.Sum32WithSeed([]byte(token), seed)
	return h & 0x7FFFFFFF
}
