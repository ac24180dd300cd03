package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the content address of a model call from the pass
// kind, the model, and every input part that shapes the response. Parts
// are whitespace-normalized and length-prefixed so reordering or boundary
// shifts cannot collide.
func Fingerprint(kind, model string, parts ...string) string {
	h := sha256.New()

	writePart := func(s string) {
		s = strings.TrimSpace(s)
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}

	writePart(kind)
	writePart(model)
	for _, p := range parts {
		writePart(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FingerprintBytes folds raw binary inputs (page images) into a part
// suitable for Fingerprint.
func FingerprintBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
