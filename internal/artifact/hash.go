package artifact

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"lukechampine.com/blake3"
)

// DefaultHashAlgorithm is used when no algorithm is requested.
const DefaultHashAlgorithm = "sha256"

// NewHash returns a hasher for one of sha256, sha1, sha512, md5 or blake3.
func NewHash(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case "", "sha256":
		return sha256.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "sha512":
		return sha512.New(), nil
	case "md5":
		return md5.New(), nil
	case "blake3":
		return blake3.New(32, nil), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// HashFile returns the hex digest of the file at path.
func HashFile(path, algorithm string) (string, error) {
	h, err := NewHash(algorithm)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteHashFile stores digest as "hex\n".
func WriteHashFile(path, digest string) error {
	return os.WriteFile(path, []byte(digest+"\n"), 0o644)
}

// ReadHashFile returns the digest stored in a sidecar written by
// WriteHashFile.
func ReadHashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", fmt.Errorf("empty hash file %s", path)
	}
	return fields[0], nil
}
