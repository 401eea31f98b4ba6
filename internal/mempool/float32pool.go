// Package mempool recycles float32 scratch buffers, such as the score
// vectors produced for every classification.
package mempool

import (
	"math/bits"
	"sync"
)

// minClass is the smallest bucket, as a power of two. Smaller requests
// share it.
const minClass = 8

// maxClass bounds pooled buffers to 2^maxClass elements; larger ones are
// allocated and dropped.
const maxClass = 26

var pools [maxClass + 1]sync.Pool

// class returns the bucket index for a buffer of n elements.
func class(n int) int {
	if n <= 1<<minClass {
		return minClass
	}
	return bits.Len(uint(n - 1))
}

// GetFloat32 returns a buffer of length n. Its contents are unspecified; the
// caller overwrites them and hands the buffer back with PutFloat32.
func GetFloat32(n int) []float32 {
	if n <= 0 {
		return nil
	}
	c := class(n)
	if c > maxClass {
		return make([]float32, n)
	}
	if p, ok := pools[c].Get().(*[]float32); ok && cap(*p) >= n {
		return (*p)[:n]
	}
	return make([]float32, n, 1<<c)
}

// PutFloat32 returns buf to its bucket. Buffers that did not come from
// GetFloat32 are accepted if their capacity is an exact bucket size. A nil
// slice is ignored.
func PutFloat32(buf []float32) {
	n := cap(buf)
	if n < 1<<minClass {
		return
	}
	c := class(n)
	if c > maxClass || n != 1<<c {
		return
	}
	buf = buf[:n]
	pools[c].Put(&buf)
}
