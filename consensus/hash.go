package consensus

import "crypto/sha256"

// Hash256 is the protocol hash primitive: SHA-256, byte-in, 32-byte-out.
func Hash256(b []byte) [32]byte {
	return sha256.Sum256(b)
}
