package credential

import (
	"cmp"
	"slices"
	"sync"
)

// key identifies a Credential within one Auth's cache: a uid plus the
// acceptor principal it was requested for (empty if none).
type key struct {
	uid       uint32
	principal string
}

// Cache is one Auth's credential table: lookup-or-create plus an
// age-based eviction sweep the RPC framework drives on a "drop oldest"
// cadence.
type Cache struct {
	mu      sync.RWMutex
	entries map[key]*Credential
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[key]*Credential)}
}

// LookupOrCreate returns the Credential for (uid, principal), creating
// one with the given service level if none exists yet; an existing
// Credential is returned whatever its service level. The returned Credential has an
// extra reference the caller must Release.
func (c *Cache) LookupOrCreate(uid uint32, principal string, service uint32) *Credential {
	k := key{uid: uid, principal: principal}

	c.mu.RLock()
	existing, ok := c.entries[k]
	c.mu.RUnlock()
	if ok {
		existing.Acquire()
		return existing
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[k]; ok {
		existing.Acquire()
		return existing
	}

	cred := New(uid, principal, service)
	cred.Acquire()
	c.entries[k] = cred
	return cred
}

// Len reports how many Credentials are currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// EvictOldest drops cached Credentials in least-recently-accessed order
// until at most keepCount remain, skipping any entry still referenced.
// It is the generic "drop oldest" hook the RPC framework's cache
// pressure calls into; entries with outstanding references are never
// evicted even if they are the very oldest.
func (c *Cache) EvictOldest(keepCount int) int {
	type candidate struct {
		key        key
		lastAccess int64
	}

	c.mu.RLock()
	candidates := make([]candidate, 0, len(c.entries))
	for k, cred := range c.entries {
		candidates = append(candidates, candidate{key: k, lastAccess: cred.lastAccess.Load()})
	}
	c.mu.RUnlock()

	if len(candidates) <= keepCount {
		return 0
	}

	slices.SortFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(a.lastAccess, b.lastAccess)
	})

	toEvict := len(candidates) - keepCount
	evicted := 0

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cand := range candidates {
		if evicted >= toEvict {
			break
		}
		cred, ok := c.entries[cand.key]
		if !ok {
			continue
		}
		if cred.Refcount() > 0 {
			continue
		}
		delete(c.entries, cand.key)
		cred.destroy()
		evicted++
	}
	return evicted
}
