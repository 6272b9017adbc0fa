package classifier

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/nao1215/toxguard/internal/model"
	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of texts whose labels are remembered.
const DefaultCacheSize = 4096

type cacheKey [32]byte

// Cache remembers label scores per text so repeated fragments (menus,
// footers, rescans after navigation) are not classified again. Identical
// concurrent batches share one backend call.
//
// Entries are evicted in insertion order once the cache is full.
type Cache struct {
	next  Backend
	size  int
	group singleflight.Group

	mu      sync.Mutex
	entries map[cacheKey][]model.LabelScore
	order   []cacheKey
	hits    int
	misses  int
}

// NewCache wraps next with a cache holding up to size texts.
func NewCache(next Backend, size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		next:    next,
		size:    size,
		entries: make(map[cacheKey][]model.LabelScore, size),
	}
}

// Name implements Backend.
func (c *Cache) Name() string {
	return c.next.Name()
}

// Stats returns the hit and miss counters.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Classify implements Backend.
func (c *Cache) Classify(ctx context.Context, texts []string) ([][]model.LabelScore, error) {
	out := make([][]model.LabelScore, len(texts))
	keys := make([]cacheKey, len(texts))

	var missing []string
	var missingIdx []int
	seen := make(map[cacheKey]bool)

	c.mu.Lock()
	for i, t := range texts {
		keys[i] = c.key(t)
		if labels, ok := c.entries[keys[i]]; ok {
			out[i] = labels
			c.hits++
			continue
		}
		c.misses++
		if !seen[keys[i]] {
			seen[keys[i]] = true
			missing = append(missing, t)
			missingIdx = append(missingIdx, i)
		}
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	v, err, _ := c.group.Do(batchKey(keys, missingIdx), func() (interface{}, error) {
		return c.next.Classify(ctx, missing)
	})
	if err != nil {
		return nil, err
	}
	fresh, _ := v.([][]model.LabelScore)

	byKey := make(map[cacheKey][]model.LabelScore, len(missingIdx))
	c.mu.Lock()
	for j, idx := range missingIdx {
		if j >= len(fresh) || fresh[j] == nil {
			continue
		}
		byKey[keys[idx]] = fresh[j]
		c.put(keys[idx], fresh[j])
	}
	c.mu.Unlock()

	for i := range texts {
		if out[i] == nil {
			out[i] = byKey[keys[i]]
		}
	}
	return out, nil
}

func (c *Cache) key(text string) cacheKey {
	return sha3.Sum256([]byte(c.next.Name() + "\x00" + text))
}

// put must be called with c.mu held.
func (c *Cache) put(k cacheKey, labels []model.LabelScore) {
	if _, ok := c.entries[k]; ok {
		return
	}
	for len(c.order) >= c.size {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	c.entries[k] = labels
	c.order = append(c.order, k)
}

func batchKey(keys []cacheKey, idx []int) string {
	h := sha3.New256()
	for _, i := range idx {
		h.Write(keys[i][:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Preflight forwards to the wrapped backend.
func (c *Cache) Preflight(ctx context.Context) error {
	if p, ok := c.next.(Preflighter); ok {
		return p.Preflight(ctx)
	}
	return nil
}

// SetKeywords forwards to the wrapped backend and drops cached labels,
// which were computed with the old list.
func (c *Cache) SetKeywords(words []string) {
	k, ok := c.next.(interface{ SetKeywords([]string) })
	if !ok {
		return
	}
	k.SetKeywords(words)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey][]model.LabelScore, c.size)
	c.order = nil
}
