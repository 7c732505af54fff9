// Package ident produces collision-free prompt identifiers.
package ident

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const maxAttempts = 10

// Generator produces ids unique against the caller's current record set.
// The zero value is ready to use.
type Generator struct{}

// New returns an id that exists(id) reported unknown. Each candidate
// combines a nanosecond timestamp with two independent random components;
// after maxAttempts collisions it falls back to a UUID suffix, which is
// returned without a collision check. Never fails.
func (g Generator) New(exists func(string) bool) string {
	for i := 0; i < maxAttempts; i++ {
		id := fmt.Sprintf("p_%s_%s_%s",
			strconv.FormatInt(time.Now().UnixNano(), 36),
			randomChunk(), randomChunk())
		if exists == nil || !exists(id) {
			return id
		}
	}
	// Statistically unique; collision check skipped on purpose.
	return fmt.Sprintf("p_%s_%s",
		strconv.FormatInt(time.Now().UnixNano(), 36),
		uuid.New().String())
}

// randomChunk returns a short base36 random component.
func randomChunk() string {
	return strconv.FormatUint(rand.Uint64()%(36*36*36*36*36*36), 36)
}
