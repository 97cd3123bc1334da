package bitwatch

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// Algorithm names a supported content hash algorithm. The string value is
// the canonical upper-case name persisted alongside every hash.
type Algorithm string

const (
	MD5    Algorithm = "MD5"
	SHA1   Algorithm = "SHA1"
	SHA256 Algorithm = "SHA256"
	SHA512 Algorithm = "SHA512"
)

// Algorithms lists every supported algorithm in display order
var Algorithms = []Algorithm{MD5, SHA1, SHA256, SHA512}

// ParseAlgorithm returns the algorithm for the given name. Matching is
// case-insensitive and accepts dashed spellings such as "SHA-256".
func ParseAlgorithm(name string) (Algorithm, error) {
	normalised := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", ""))
	switch Algorithm(normalised) {
	case MD5, SHA1, SHA256, SHA512:
		return Algorithm(normalised), nil
	default:
		return "", fmt.Errorf("%w: %q (supported: MD5, SHA1, SHA256, SHA512)", ErrUnsupportedAlgorithm, name)
	}
}

// New returns a fresh hash.Hash for the algorithm
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, string(a))
	}
}

// Size returns the digest size in bytes, or 0 for an unknown algorithm
func (a Algorithm) Size() int {
	switch a {
	case MD5:
		return HashSizeMD5
	case SHA1:
		return HashSizeSHA1
	case SHA256:
		return HashSizeSHA256
	case SHA512:
		return HashSizeSHA512
	default:
		return 0
	}
}

func (a Algorithm) String() string { return string(a) }

// Hasher streams content through an algorithm using a fixed-size buffer so
// memory use stays bounded regardless of file size. The zero value uses a
// 2MB buffer.
type Hasher struct {
	BufferSize int
}

// NewHasher creates a hasher with the given buffer size in bytes
func NewHasher(bufferSize int) *Hasher {
	return &Hasher{BufferSize: bufferSize}
}

func (h *Hasher) bufferSize() int {
	if h == nil || h.BufferSize <= 0 {
		return 2 * 1024 * 1024
	}
	return h.BufferSize
}

// Digest hashes everything readable from r and returns the lower-case hex
// digest. The context is checked before each buffer read so a long hash can
// be interrupted.
func (h *Hasher) Digest(ctx context.Context, r io.Reader, algorithm Algorithm) (string, error) {
	hasher, err := algorithm.New()
	if err != nil {
		return "", err
	}

	buffer := make([]byte, h.bufferSize())
	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("hash interrupted: %w", err)
		}

		n, err := r.Read(buffer)
		if n > 0 {
			hasher.Write(buffer[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read content: %w", err)
		}
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// DigestBytes hashes an in-memory buffer and returns the lower-case hex digest
func DigestBytes(data []byte, algorithm Algorithm) (string, error) {
	hasher, err := algorithm.New()
	if err != nil {
		return "", err
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// DigestString hashes a string and returns the lower-case hex digest
func DigestString(data string, algorithm Algorithm) (string, error) {
	return DigestBytes([]byte(data), algorithm)
}
