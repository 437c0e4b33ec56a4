// Package digest computes the content hashes recorded as provenance.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/ripemd160"
)

// EmptySHA256 is the SHA-256 of zero bytes; a sidecar recorded with it is empty.
// EmptyRIPEMD160 is RIPEMD160OfSHA256(EmptySHA256).
const (
	EmptySHA256    = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	EmptyRIPEMD160 = "b472a266d0bd89c13706a4132ccfb16f7c3b9fcb"
)

// SHA256File streams a file through SHA-256 and returns the hex digest.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func SHA256Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// RIPEMD160OfSHA256 hashes the raw bytes of a hex SHA-256 digest with RIPEMD-160,
// the "r160" convention used by the study's artifact manifests.
func RIPEMD160OfSHA256(sha256Hex string) (string, error) {
	raw, err := hex.DecodeString(sha256Hex)
	if err != nil {
		return "", fmt.Errorf("invalid sha256 hex %q: %w", sha256Hex, err)
	}
	h := ripemd160.New()
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil)), nil
}
