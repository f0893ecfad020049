// Package idgen mints the time-ordered ReferenceId tokens the
// association worker assigns to new entities. It follows the teacher's
// own base36 hash-id encoding rather than pulling in a dedicated
// ULID/KSUID library (see DESIGN.md for why).
package idgen

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// encodeBase36 converts data to a base36 string padded/truncated to
// length, keeping the least-significant digits on truncation. Mirrors
// the teacher's idgen.EncodeBase36.
func encodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)
	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}
	var b strings.Builder
	for i := len(chars) - 1; i >= 0; i-- {
		b.WriteByte(chars[i])
	}
	str := b.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// NewReferenceId mints a time-ordered identifier: an 8-char base36
// encoding of the current millisecond timestamp, followed by a 6-char
// base36 random tail for intra-millisecond uniqueness. Lexicographic
// (string) ordering of two ids minted at different milliseconds agrees
// with their creation order, matching the "time-ordered ULID-like
// identifier" the spec requires of the association worker.
func NewReferenceId() string {
	return NewReferenceIdAt(time.Now())
}

// NewReferenceIdAt mints a ReferenceId for a specific instant; exposed
// for deterministic tests.
func NewReferenceIdAt(t time.Time) string {
	ms := t.UnixMilli()
	tsBytes := big.NewInt(ms).Bytes()
	tsPart := encodeBase36(tsBytes, 8)

	randBytes := make([]byte, 5)
	if _, err := rand.Read(randBytes); err != nil {
		// crypto/rand failures are effectively unrecoverable on any real
		// platform; fall back to a timestamp-derived tail rather than
		// panicking the association worker mid-record.
		randBytes = big.NewInt(t.UnixNano()).Bytes()
	}
	randPart := encodeBase36(randBytes, 6)

	return tsPart + randPart
}
