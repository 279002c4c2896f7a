package utils

import (
	"math/rand"
	"time"
)

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var seeded = rand.New(rand.NewSource(time.Now().UnixNano()))

// GenerateRandomString returns n random alphanumeric characters.
func GenerateRandomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[seeded.Intn(len(letters))]
	}
	return string(b)
}
