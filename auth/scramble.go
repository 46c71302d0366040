// Package auth implements the greeting parse and CHAP-SHA1 scramble
// computation the authentication handshake needs: nothing else about
// user sessions or privilege checks belongs here, since that is
// server-side behavior this client core never performs.
package auth

import (
	"crypto/sha1" //nolint:gosec // required by the protocol's CHAP-SHA1 scheme, not used for secret storage
	"fmt"
)

// ScrambleSize is the length in bytes of a computed scramble.
const ScrambleSize = 20

// Scramble computes the CHAP-SHA1 authentication token for password
// against salt, exactly:
//
//	hash1 = SHA1(password)
//	hash2 = SHA1(hash1)
//	scramble = SHA1(salt[:20] || hash2) XOR hash1
//
// salt must hold at least ScrambleSize bytes; only the first 20 are
// used, matching the greeting's minimum decoded-salt requirement.
func Scramble(password string, salt []byte) ([]byte, error) {
	if len(salt) < ScrambleSize {
		return nil, fmt.Errorf("auth: salt too short: got %d bytes, need at least %d", len(salt), ScrambleSize)
	}

	hash1 := sha1.Sum([]byte(password))
	hash2 := sha1.Sum(hash1[:])

	combined := make([]byte, 0, ScrambleSize+len(hash2))
	combined = append(combined, salt[:ScrambleSize]...)
	combined = append(combined, hash2[:]...)
	step3 := sha1.Sum(combined)

	scramble := make([]byte, ScrambleSize)
	for i := range scramble {
		scramble[i] = step3[i] ^ hash1[i]
	}
	return scramble, nil
}
