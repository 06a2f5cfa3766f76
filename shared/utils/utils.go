package utils

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// HashContent returns the hex sha256 of a single byte payload.
func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// HashSections hashes an ordered set of text sections with length
// framing, so ("ab","c") and ("a","bc") produce distinct ids.
func HashSections(sections ...string) string {
	h := sha256.New()
	var frame [8]byte
	for _, s := range sections {
		binary.BigEndian.PutUint64(frame[:], uint64(len(s)))
		h.Write(frame[:])
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ShortHash abbreviates a content hash for display.
func ShortHash(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:8]
}
