package krypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// TagSize is the length of a file integrity tag.
const TagSize = sha256.Size

// ComputeTag returns HMAC-SHA256(macKey, data).
func ComputeTag(macKey, data []byte) []byte {
	mac := hmac.New(sha256.New, macKey)
	mac.Write(data)
	return mac.Sum(nil)
}

// VerifyTag reports whether tag authenticates data, in constant time.
func VerifyTag(macKey, data, tag []byte) bool {
	return hmac.Equal(ComputeTag(macKey, data), tag)
}
