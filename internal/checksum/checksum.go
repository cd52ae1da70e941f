// Package checksum computes and verifies file digests for the checksum
// types box metadata documents declare.
package checksum

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
	"sort"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// Factory constructs a hash for one registered algorithm.
type Factory func() hash.Hash

var (
	factories = make(map[string]Factory)
	mu        sync.RWMutex
)

// Register adds a digest algorithm under the given name. The built-in
// algorithms cover every checksum_type seen in box metadata; Register
// exists for callers with private metadata conventions.
func Register(algo string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[strings.ToLower(algo)] = f
}

func init() {
	Register("md5", md5.New)
	Register("sha1", sha1.New)
	Register("sha256", sha256.New)
	Register("sha512", sha512.New)
	Register("blake3", func() hash.Hash { return blake3.New() })
}

// New returns a hash for the named algorithm.
func New(algo string) (hash.Hash, error) {
	mu.RLock()
	f, ok := factories[strings.ToLower(algo)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown checksum type %q (supported: %s)",
			algo, strings.Join(Supported(), ", "))
	}
	return f(), nil
}

// Supported returns the registered algorithm names, sorted.
func Supported() []string {
	mu.RLock()
	defer mu.RUnlock()
	algos := make([]string, 0, len(factories))
	for a := range factories {
		algos = append(algos, a)
	}
	sort.Strings(algos)
	return algos
}

// File computes the hex digest of a file's contents.
func File(algo, path string) (string, error) {
	h, err := New(algo)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MismatchError reports a digest that did not match its declared value.
type MismatchError struct {
	Path string
	Algo string
	Want string
	Got  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s checksum mismatch for %s: want %s, got %s", e.Algo, e.Path, e.Want, e.Got)
}

// Verify computes the file's digest and compares it to want
// (case-insensitive hex).
func Verify(algo, path, want string) error {
	got, err := File(algo, path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, want) {
		return &MismatchError{Path: path, Algo: strings.ToLower(algo), Want: strings.ToLower(want), Got: got}
	}
	return nil
}
