package cipher

import (
	"encoding/hex"
	"strings"
)

// DefaultXORKey is the single-byte key AllAnime uses for "--" embed URLs.
const DefaultXORKey byte = 56

// ObfuscatedPrefix marks an AllAnime source URL that must be decoded.
const ObfuscatedPrefix = "--"

// XORDecode strips the "--" prefix and XORs every byte with key. The payload
// is hex-decoded first when it is valid hex, otherwise its raw character
// codes are used. Malformed input yields garbled output rather than an error;
// callers validate the resulting URL.
func XORDecode(key byte, s string) string {
	payload := strings.TrimPrefix(s, ObfuscatedPrefix)
	raw, err := hex.DecodeString(payload)
	if err != nil {
		raw = []byte(payload)
	}
	out := make([]byte, len(raw))
	for i, c := range raw {
		out[i] = c ^ key
	}
	return string(out)
}

// XOREncode is the inverse of XORDecode: it returns "--" followed by the
// lowercase hex of plain XOR key.
func XOREncode(key byte, plain string) string {
	out := make([]byte, len(plain))
	for i := 0; i < len(plain); i++ {
		out[i] = plain[i] ^ key
	}
	return ObfuscatedPrefix + hex.EncodeToString(out)
}
