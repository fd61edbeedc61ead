package fp

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeSource trims surrounding whitespace.
func NormalizeSource(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeQuality lowercases the quality label and drops it for formats
// that do not use one.
func NormalizeQuality(format, quality string) string {
	if strings.ToLower(strings.TrimSpace(format)) != "mp4" {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(quality))
}

// Fingerprint computes a stable hex-encoded SHA-256 over the normalized
// source, format and quality. Conversions of the same request share it.
func Fingerprint(source, format, quality string) string {
	h := sha256.New()
	// Use a separator that cannot be confused; NUL works for all inputs here.
	h.Write([]byte(NormalizeSource(source)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(format))))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeQuality(format, quality)))
	return hex.EncodeToString(h.Sum(nil))
}
