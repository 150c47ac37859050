// Package partition splits a wordlist into bounded, contiguous line ranges.
package partition

import (
	"github.com/ngruychev/distributed-computing/types"
)

// Subtask length bounds, both exclusive.
const (
	MinSubtaskLen = 5
	MaxSubtaskLen = 10_000
)

// Lines returns the ranges covering [0, lines) in steps of size.
//
// Range i is [i*size, min((i+1)*size, lines) - 1]; only the last range may be
// shorter than size. lines and size must be positive.
func Lines(lines, size int) []types.LineRange {
	if lines <= 0 || size <= 0 {
		return nil
	}

	count := (lines + size - 1) / size
	ranges := make([]types.LineRange, count)
	for i := range count {
		start := i * size
		ranges[i] = types.LineRange{start, min(start+size, lines) - 1}
	}

	return ranges
}

// Partition builds the descriptors of a job.
//
// It is pure: it validates against the registry and returns either the full
// list of descriptors or a ValidationError. Nothing is written anywhere.
func Partition(reg *types.Registry, spec types.JobSpec) ([]types.SubTask, error) {
	if spec.SubtaskLen <= MinSubtaskLen || spec.SubtaskLen >= MaxSubtaskLen {
		return nil, types.NewValidationError("subtaskRangeLen",
			"must be greater than %d and less than %d, got %d", MinSubtaskLen, MaxSubtaskLen, spec.SubtaskLen)
	}
	if !reg.HasAlgorithm(spec.Algorithm) {
		return nil, types.NewValidationError("algo", "unsupported algorithm %q", spec.Algorithm)
	}
	lines, ok := reg.LineCount(spec.Wordlist)
	if !ok {
		return nil, types.NewValidationError("wordlist", "unknown wordlist %q", spec.Wordlist)
	}

	ranges := Lines(lines, spec.SubtaskLen)
	subtasks := make([]types.SubTask, len(ranges))
	for i, r := range ranges {
		subtasks[i] = types.SubTask{
			Password:  spec.PasswordHash,
			Algorithm: spec.Algorithm,
			Wordlist:  spec.Wordlist,
			LineRange: r,
		}
	}

	return subtasks, nil
}
