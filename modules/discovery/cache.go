package discovery

import "sync"

// Cache remembers channel classifications. A channel is classified at most
// once; later stores for it are ignored. The zero value is ready to use.
type Cache struct {
	mutex  sync.RWMutex
	probed [categoryCount][256]bool
	valid  [categoryCount][256]bool
}

// Lookup returns the classification of id and whether it has been probed.
func (c *Cache) Lookup(cat Category, id uint8) (valid, probed bool) {
	if !cat.known() {
		return false, false
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.valid[cat][id], c.probed[cat][id]
}

// Store records the classification of id unless it already has one, and
// reports whether it did.
func (c *Cache) Store(cat Category, id uint8, valid bool) bool {
	if !cat.known() {
		return false
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.probed[cat][id] {
		return false
	}
	c.probed[cat][id] = true
	c.valid[cat][id] = valid
	return true
}
