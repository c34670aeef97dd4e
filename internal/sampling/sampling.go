// Package sampling provides seeded, reproducible selection over identifier lists.
package sampling

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/hyperjump/ragprobe/internal/errdefs"
)

// Pick returns one element of ids chosen by seed. The input order does not
// matter: the same seed and the same set of IDs always give the same choice.
func Pick(ids []string, seed int64) (string, error) {
	picked, err := Sample(ids, 1, seed)
	if err != nil {
		return "", err
	}
	return picked[0], nil
}

// Sample returns up to n distinct elements of ids chosen by seed, in selection order.
func Sample(ids []string, n int, seed int64) ([]string, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: nothing to sample from", errdefs.ErrNotFound)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: sample size must be positive, got %d", errdefs.ErrInvalidInput, n)
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	sorted = dedupe(sorted)
	if n > len(sorted) {
		n = len(sorted)
	}
	r := rand.New(rand.NewSource(seed))
	perm := r.Perm(len(sorted))
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = sorted[perm[i]]
	}
	return out, nil
}

// dedupe removes adjacent duplicates from a sorted slice.
func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i > 0 && s == sorted[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}
