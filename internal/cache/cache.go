package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// keyVersion is bumped whenever the cached value encoding changes
const keyVersion = "v1"

// EmbeddingKey generates a cache key for the embedding of text under model.
// The key only contains [a-z0-9-] so it is safe as a file name component.
func EmbeddingKey(model, text string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + text))
	return "emb-" + keyVersion + "-" + hex.EncodeToString(hash[:])
}
