// Package atombits manipulates flag words stored in an atomic.Uint32.
package atombits

import "sync/atomic"

type T = atomic.Uint32

func IsSet(bits *T, flag uint32) bool {
	value := bits.Load()
	return value&flag != 0
}

// Set sets flag, retrying until no concurrent writer interferes.
func Set(bits *T, flag uint32) {
	for {
		value := bits.Load()
		if value&flag == flag || bits.CompareAndSwap(value, value|flag) {
			return
		}
	}
}

// Unset clears flag, retrying until no concurrent writer interferes.
func Unset(bits *T, flag uint32) {
	for {
		value := bits.Load()
		if value&flag == 0 || bits.CompareAndSwap(value, value&^flag) {
			return
		}
	}
}
