package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/md5"
	"encoding/base64"

	"github.com/alvarorichard/aniresolve/internal/errs"
)

const (
	saltOffset = 8
	saltSize   = 8
	headerSize = saltOffset + saltSize
	ivSize     = md5.Size
)

// deriveKeyIV reproduces OpenSSL's legacy EVP_BytesToKey with MD5 and one
// iteration: D1 = MD5(secret||salt), Dn = MD5(Dn-1||secret||salt).
// key = D1||D2 (AES-256), iv = D3.
func deriveKeyIV(secret, salt []byte) (key, iv []byte) {
	password := make([]byte, 0, len(secret)+len(salt))
	password = append(password, secret...)
	password = append(password, salt...)

	digests := make([][]byte, 0, 3)
	var prev []byte
	for i := 0; i < 3; i++ {
		h := md5.New()
		h.Write(prev)
		h.Write(password)
		prev = h.Sum(nil)
		digests = append(digests, prev)
	}
	key = append(append([]byte{}, digests[0]...), digests[1]...)
	return key, digests[2]
}

// DecryptWithDerivedKey decodes a "Salted__"-framed base64 payload: bytes
// [8:16] are the salt, the rest is AES-256-GCM ciphertext with a 128-bit tag
// and a 16-byte nonce. A trailing PKCS#7 pad is stripped from the result.
func DecryptWithDerivedKey(ciphertextB64, secret string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", errs.Decode("cipher.aes", "base64: %v", err)
	}
	if len(raw) <= headerSize {
		return "", errs.Decode("cipher.aes", "payload too short (%d bytes)", len(raw))
	}

	key, iv := deriveKeyIV([]byte(secret), raw[saltOffset:headerSize])
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errs.Decode("cipher.aes", "%v", err)
	}
	gcm, err := gocipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", errs.Decode("cipher.aes", "%v", err)
	}
	plain, err := gcm.Open(nil, iv, raw[headerSize:], nil)
	if err != nil {
		return "", errs.Decode("cipher.aes", "authentication failed: %v", err)
	}
	return string(stripPad(plain)), nil
}

// stripPad removes a PKCS#7 style trailer. Plaintexts whose last byte is not
// a plausible pad count are returned unchanged.
func stripPad(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return b
	}
	return b[:len(b)-n]
}
