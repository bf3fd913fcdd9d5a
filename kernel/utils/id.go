package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// idByteLen is the entropy of a generated id before hex encoding, giving a
// 32-character string.
const idByteLen = 16

// GenerateID returns a short random hex string, used wherever this repo
// needs a collision-resistant suffix without pulling in a full UUID (scratch
// shared-memory file paths; see atomicmem.UniqueSharedPath). Construction-
// time ids that need RFC 4122 shape instead use github.com/google/uuid
// directly (fabric.FabricLayout.BuildID).
func GenerateID() string {
	buf := make([]byte, idByteLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unreachable on any supported
		// target; fall back to a clock-derived id rather than panicking.
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
