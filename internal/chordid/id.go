// Package chordid implements identifier hashing and the circular
// arc-membership predicates that every ring decision reduces to.
package chordid

import (
	"crypto/sha1"
	"math/big"
)

// M is the identifier width in bits. HashSpace is 2^M.
const (
	M         = 16
	HashSpace = 1 << M
)

// Hash maps an address (or key) to an identifier in [0, HashSpace).
// It is SHA1(s) interpreted as a big-endian integer, reduced mod HashSpace.
func Hash(s string) int {
	sum := sha1.Sum([]byte(s))
	full := new(big.Int).SetBytes(sum[:])
	mod := new(big.Int).Mod(full, big.NewInt(HashSpace))
	return int(mod.Int64())
}

// InOpen reports whether x lies in the clockwise open arc (a, b),
// wrapping around HashSpace when a > b. Used by closest-preceding-finger
// search. When a == b the arc covers every identifier except a itself.
func InOpen(x, a, b int) bool {
	if a == b {
		return x != a
	}
	if a < b {
		return x > a && x < b
	}
	return x > a || x < b
}

// InLeftOpenRightClosed reports whether x lies in the clockwise arc
// (a, b], wrapping around HashSpace when a > b. This is the ownership
// and immediate-successor test used throughout find_successor and PUT/GET.
func InLeftOpenRightClosed(x, a, b int) bool {
	if a == b {
		return true
	}
	if a < b {
		return x > a && x <= b
	}
	return x > a || x <= b
}
