package utils

import (
	"math/rand"
	"time"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz"

var seeded = rand.New(rand.NewSource(time.Now().UnixNano()))

// RandomAlphabetString returns a lower case string of length n. Not safe for
// concurrent use, only meant for naming test fixtures.
func RandomAlphabetString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[seeded.Intn(len(alphabet))]
	}
	return string(b)
}
