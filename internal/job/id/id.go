// Package id provides unique identifier generation for jobs, sessions and
// converted items.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// Generate creates a new unique ID with the given prefix.
// Format: <prefix>-<timestamp>-<random>
// Example: job-1701432000-a1b2c3d4
func Generate(prefix string) string {
	timestamp := time.Now().Unix()
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		// Fallback to timestamp only if crypto/rand fails
		return fmt.Sprintf("%s-%d", prefix, timestamp)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, timestamp, hex.EncodeToString(random))
}

// Sequence hands out IDs built from a monotonic counter and a millisecond
// timestamp: <prefix>_<counter>_<unix-ms>. The counter alone keeps IDs unique
// within one Sequence; the timestamp keeps them distinct across restarts.
type Sequence struct {
	prefix  string
	counter atomic.Int64
	now     func() time.Time
}

// NewSequence creates a Sequence whose counter starts at 0.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix, now: time.Now}
}

// Next returns the next ID in the sequence. It is safe for concurrent use.
func (s *Sequence) Next() string {
	n := s.counter.Add(1) - 1
	return fmt.Sprintf("%s_%d_%d", s.prefix, n, s.now().UnixMilli())
}
