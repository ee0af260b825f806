// Package das implements data-availability sampling: the sampling
// probability model (C7) and light-client verification of inclusion/range
// proofs produced by the NMT (C5). The hypergeometric math here is pure
// numerics (not an ambient or domain concern with a natural library home),
// so it is implemented directly against stdlib math.
package das

import "math"

// PFail returns the probability that sampling s distinct indices without
// replacement from a population of n shards, c of which are corrupted,
// fails to hit any corrupted shard — i.e. the sampling fails to detect
// unavailability:
//
//	p_fail(n, c, s) = C(n-c, s) / C(n, s)   if s <= n-c
//	                = 0                      otherwise
//
// PFail also returns 0 when c <= 0, n <= 0 or s < 0.
func PFail(n, c, s int) float64 {
	if s > n-c {
		return 0
	}
	if c <= 0 || n <= 0 || s < 0 {
		return 0
	}
	return math.Exp(logChoose(n-c, s) - logChoose(n, s))
}

// PFailWithReplacement returns the with-replacement upper bound
// (1 - c/n)^s, used when an exact hypergeometric computation is
// unnecessary or when sampling is conceptually with replacement.
func PFailWithReplacement(n, c, s int) float64 {
	if n <= 0 {
		return 0
	}
	frac := float64(c) / float64(n)
	return math.Pow(1-frac, float64(s))
}

// logChoose returns ln(C(n, k)), using log-gamma for numerical stability
// over the large n this sampling model is used with (n in the hundreds to
// thousands of shards).
func logChoose(n, k int) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	if k == 0 || k == n {
		return 0
	}
	lg := func(x int) float64 {
		v, _ := math.Lgamma(float64(x) + 1)
		return v
	}
	return lg(n) - lg(k) - lg(n-k)
}

// corruptCount converts an assumed_corrupt_fraction into an integer shard
// count out of n. A fraction >= 1.0 is clamped to (n-1)/n rather than
// treated as a literal count — this ambiguity in the reference model is
// preserved deliberately pending product clarification.
func corruptCount(n int, fraction float64) int {
	if fraction >= 1.0 {
		fraction = float64(n-1) / float64(n)
	}
	if fraction < 0 {
		fraction = 0
	}
	c := int(fraction * float64(n))
	if c >= n {
		c = n - 1
	}
	return c
}

// RequiredSamples returns the smallest s in [1, n] such that
// PFail(n, corruptCount(n, fraction), s) <= target, found by binary search
// since PFail is monotone non-increasing in s. If no such s exists within
// [1, n] (target is unreachable even at s=n), RequiredSamples returns n.
func RequiredSamples(target, fraction float64, n int) int {
	if n <= 0 {
		return 0
	}
	c := corruptCount(n, fraction)
	lo, hi := 1, n
	for lo < hi {
		mid := (lo + hi) / 2
		if PFail(n, c, mid) <= target {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}
