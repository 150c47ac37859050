package types

import (
	"maps"
	"slices"
)

// Default wordlists and their line counts.
const (
	WordlistPiotrckiTop10M = "piotrcki-wordlist-top10m.txt"
	WordlistRockYou        = "rockyou.txt"
	WordlistEzpz           = "ezpz.txt"
)

// Registry is the immutable table of supported algorithms and wordlists.
//
// It is loaded once at start and consulted on every job creation and every
// subtask validation. A Registry is safe for concurrent use because it is
// never modified after construction.
type Registry struct {
	algorithms map[Algorithm]struct{}
	wordlists  map[string]int
}

// NewRegistry builds a registry from an algorithm set and a wordlist → line count table.
//
// Parameters:
//   - algorithms: Supported algorithms (must be non-empty and known)
//   - wordlists: Wordlist name → number of lines (must be non-empty, counts > 0)
//
// Returns:
//   - *Registry: The registry
//   - error: ValidationError if the table is malformed
func NewRegistry(algorithms []Algorithm, wordlists map[string]int) (*Registry, error) {
	if len(algorithms) == 0 {
		return nil, NewValidationError("registry.algorithms", "at least one algorithm is required")
	}
	if len(wordlists) == 0 {
		return nil, NewValidationError("registry.wordlists", "at least one wordlist is required")
	}

	r := &Registry{
		algorithms: make(map[Algorithm]struct{}, len(algorithms)),
		wordlists:  make(map[string]int, len(wordlists)),
	}
	for _, a := range algorithms {
		if !a.Known() {
			return nil, NewValidationError("registry.algorithms", "unsupported algorithm %q", a)
		}
		r.algorithms[a] = struct{}{}
	}
	for name, lines := range wordlists {
		if name == "" {
			return nil, NewValidationError("registry.wordlists", "empty wordlist name")
		}
		if lines <= 0 {
			return nil, NewValidationError("registry.wordlists", "wordlist %q must have a positive line count, got %d", name, lines)
		}
		r.wordlists[name] = lines
	}

	return r, nil
}

// DefaultRegistry returns the built-in registry: SHA256, SHA512 and MD5 over
// the three bundled wordlists.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(DefaultAlgorithms(), DefaultWordlists())
	return r
}

// DefaultAlgorithms returns the built-in algorithm set.
func DefaultAlgorithms() []Algorithm {
	return []Algorithm{AlgorithmSHA256, AlgorithmSHA512, AlgorithmMD5}
}

// DefaultWordlists returns the built-in wordlist table.
func DefaultWordlists() map[string]int {
	return map[string]int{
		WordlistPiotrckiTop10M: 10_000_000,
		WordlistRockYou:        14_344_391,
		WordlistEzpz:           25,
	}
}

// Known reports whether the algorithm has a hash implementation.
func (a Algorithm) Known() bool {
	switch a {
	case AlgorithmSHA256, AlgorithmSHA512, AlgorithmMD5:
		return true
	default:
		return false
	}
}

// HasAlgorithm reports whether the algorithm is registered.
func (r *Registry) HasAlgorithm(a Algorithm) bool {
	_, ok := r.algorithms[a]
	return ok
}

// LineCount returns the number of lines of a registered wordlist.
func (r *Registry) LineCount(wordlist string) (int, bool) {
	n, ok := r.wordlists[wordlist]
	return n, ok
}

// Algorithms returns the registered algorithms in sorted order.
func (r *Registry) Algorithms() []Algorithm {
	return slices.Sorted(maps.Keys(r.algorithms))
}

// Wordlists returns a copy of the wordlist table.
func (r *Registry) Wordlists() map[string]int {
	return maps.Clone(r.wordlists)
}

// ValidateSubTask checks a descriptor against the registry: the algorithm and
// wordlist must be registered and the range must lie within the wordlist.
func (r *Registry) ValidateSubTask(st SubTask) error {
	if st.Password == "" {
		return NewValidationError("password", "must not be empty")
	}
	if !r.HasAlgorithm(st.Algorithm) {
		return NewValidationError("algo", "unsupported algorithm %q", st.Algorithm)
	}
	lines, ok := r.LineCount(st.Wordlist)
	if !ok {
		return NewValidationError("wordlist", "unknown wordlist %q", st.Wordlist)
	}
	if !st.LineRange.Valid() || st.LineRange.End() >= lines {
		return NewValidationError("wordlistLineRange", "range %s outside wordlist of %d lines", st.LineRange, lines)
	}

	return nil
}
