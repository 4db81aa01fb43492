package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashDimensions = 1536

// HashEmbedder is a deterministic local embedder based on feature hashing of
// words and character trigrams. Texts sharing vocabulary land close together;
// it has no notion of synonyms. Used offline and in tests.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a hash embedder with the given dimensionality (default 1536)
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = defaultHashDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Model returns the embedding model name
func (e *HashEmbedder) Model() string {
	return fmt.Sprintf("hash/%d", e.dimensions)
}

// Embed embeds one text
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

// EmbedBatch embeds texts in order
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	v := make([]float64, e.dimensions)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
	for _, w := range words {
		e.add(v, "w:"+w, 1.0)

		padded := []rune(" " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			e.add(v, "t:"+string(padded[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	out := make([]float32, e.dimensions)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

// add hashes feature into a bucket; a second hash bit picks the sign
func (e *HashEmbedder) add(v []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(e.dimensions))
	if (sum>>63)&1 == 1 {
		weight = -weight
	}
	v[idx] += weight
}
