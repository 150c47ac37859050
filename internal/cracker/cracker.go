// Package cracker searches a range of wordlist lines for the password that
// produces a given hash.
package cracker

import (
	"bufio"
	"context"
	"crypto/md5" //nolint:gosec // MD5 is a supported target algorithm, not used for security
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"strings"

	"github.com/ngruychev/distributed-computing/types"
)

// checkEvery is how many lines are hashed between context checks.
const checkEvery = 1024

// maxLineLen bounds a single wordlist line.
const maxLineLen = 1 << 20

func newHash(algo types.Algorithm) (hash.Hash, error) {
	switch algo {
	case types.AlgorithmMD5:
		return md5.New(), nil //nolint:gosec // see import
	case types.AlgorithmSHA256:
		return sha256.New(), nil
	case types.AlgorithmSHA512:
		return sha512.New(), nil
	default:
		return nil, types.NewValidationError("algo", "unsupported algorithm %q", algo)
	}
}

// Hash returns the lowercase hex digest of s.
func Hash(algo types.Algorithm, s string) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}
	h.Write([]byte(s))

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Matches reports whether candidate hashes to target. Hex case is ignored.
func Matches(algo types.Algorithm, candidate, target string) (bool, error) {
	got, err := Hash(algo, candidate)
	if err != nil {
		return false, err
	}

	return strings.EqualFold(got, strings.TrimSpace(target)), nil
}

// Cracker reads wordlists from a directory.
type Cracker struct {
	dir string
}

// New creates a Cracker that opens wordlists by name under dir.
func New(dir string) *Cracker {
	return &Cracker{dir: dir}
}

// Search hashes every line in the subtask's range and returns the first one
// that matches its password hash.
//
// Returns ("", false, nil) when the range holds no match, and ctx.Err() as
// soon as the context is cancelled.
func (c *Cracker) Search(ctx context.Context, st types.SubTask) (string, bool, error) {
	h, err := newHash(st.Algorithm)
	if err != nil {
		return "", false, err
	}
	target, err := hex.DecodeString(strings.TrimSpace(st.Password))
	if err != nil || len(target) != h.Size() {
		return "", false, types.NewValidationError("password", "not a %s hex digest", st.Algorithm)
	}

	f, err := os.Open(filepath.Join(c.dir, filepath.Base(st.Wordlist)))
	if err != nil {
		return "", false, fmt.Errorf("open wordlist: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineLen)

	sum := make([]byte, 0, h.Size())
	for line := 0; scanner.Scan(); line++ {
		if line%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return "", false, err
			}
		}
		if line < st.LineRange.Start() {
			continue
		}
		if line > st.LineRange.End() {
			break
		}

		word := strings.TrimSuffix(scanner.Text(), "\r")
		h.Reset()
		h.Write([]byte(word))
		if string(h.Sum(sum[:0])) == string(target) {
			return word, true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", false, fmt.Errorf("read wordlist: %w", err)
	}

	return "", false, nil
}
