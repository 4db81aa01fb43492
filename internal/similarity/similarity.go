// Package similarity provides the string and vector similarity measures used
// by duplicate detection and claim retrieval.
package similarity

import "math"

// winklerPrefixLimit caps the common prefix that earns the Winkler boost
const winklerPrefixLimit = 4

// winklerScale is the boost applied per common prefix character
const winklerScale = 0.1

// JaroWinkler returns the Jaro-Winkler similarity of a and b in [0, 1].
// Identical strings score 1; otherwise an empty input scores 0.
func JaroWinkler(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	j := jaro(ra, rb)

	prefix := 0
	for prefix < winklerPrefixLimit && prefix < len(ra) && prefix < len(rb) && ra[prefix] == rb[prefix] {
		prefix++
	}

	return j + winklerScale*float64(prefix)*(1-j)
}

// jaro computes the classic Jaro similarity over runes
func jaro(a, b []rune) float64 {
	window := max(len(a), len(b))/2 - 1
	if window < 0 {
		window = 0
	}

	matchedA := make([]bool, len(a))
	matchedB := make([]bool, len(b))

	matches := 0
	for i := range a {
		lo := max(0, i-window)
		hi := min(len(b)-1, i+window)
		for k := lo; k <= hi; k++ {
			if matchedB[k] || a[i] != b[k] {
				continue
			}
			matchedA[i] = true
			matchedB[k] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0
	}

	// Count half-transpositions between the matched sequences
	transpositions := 0
	k := 0
	for i := range a {
		if !matchedA[i] {
			continue
		}
		for !matchedB[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// Cosine returns the cosine similarity of two vectors in [-1, 1].
// Empty vectors, vectors of different length and zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
