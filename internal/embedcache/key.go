package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"
)

// MaxInputChars is the provider input ceiling. Text is truncated to this
// length before both key computation and the provider call, so two texts
// that only differ past the limit intentionally share one cache entry.
const MaxInputChars = 8000

func Truncate(text string) string {
	if len(text) <= MaxInputChars {
		return text
	}
	return text[:MaxInputChars]
}

func buildCacheKey(modelName, taskType, text string) (string, string, string) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	return "embed:" + modelName + ":" + taskType + ":" + contentHash, contentHash, modelName
}

// Meter counts real provider calls, i.e. misses that fell through every
// cache layer. Used for cost attribution.
type Meter struct {
	calls atomic.Int64
}

func (m *Meter) Inc() {
	if m != nil {
		m.calls.Add(1)
	}
}

func (m *Meter) Calls() int64 {
	if m == nil {
		return 0
	}
	return m.calls.Load()
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
