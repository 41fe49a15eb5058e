package intake

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Checksummer computes content fingerprints used for deduplication
type Checksummer interface {
	Checksum(path string) (string, error)
}

// SHA256 streams a file through SHA-256 and hex encodes the digest
type SHA256 struct{}

// Checksum returns the 64 character hex digest of the file at path
func (SHA256) Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
