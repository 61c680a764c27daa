package art

import "github.com/tradsys-labs/exchange-core/internal/pool"

// Tree is a long-keyed adaptive radix tree (§4.1), the index structure
// behind the direct order book's price buckets. All mutation happens
// through the allocator bound to a single stage's pool.Manager (§3); a
// Tree has no internal locking and must be confined to one goroutine.
type Tree struct {
	root  node
	alloc *allocator
	count int
}

// New builds an empty Tree allocating nodes from pools.
func New(pools *pool.Manager) *Tree {
	return &Tree{alloc: newAllocator(pools)}
}

// Get returns the value stored at key, if any.
func (t *Tree) Get(key int64) (any, bool) {
	if t.root == nil {
		return nil, false
	}
	return t.root.get(key)
}

// Put inserts or updates the value at key.
func (t *Tree) Put(key int64, value any) {
	if t.root == nil {
		t.root = t.alloc.newLeaf(key, value)
		t.count++
		return
	}
	_, existed := t.root.get(key)
	if replacement := t.root.put(key, value, t.alloc); replacement != nil {
		t.root = replacement
	}
	if !existed {
		t.count++
	}
}

// Remove deletes key if present, reporting whether it was found.
func (t *Tree) Remove(key int64) bool {
	if t.root == nil {
		return false
	}
	replacement, removed := t.root.remove(key, t.alloc)
	if !removed {
		return false
	}
	if replacement == nil {
		t.alloc.release(t.root)
		t.root = nil
	} else {
		t.root = replacement
	}
	t.count--
	return true
}

// Ceiling returns the smallest stored key >= key.
func (t *Tree) Ceiling(key int64) (int64, any, bool) {
	if t.root == nil {
		return 0, nil, false
	}
	return t.root.ceiling(key)
}

// Floor returns the largest stored key <= key.
func (t *Tree) Floor(key int64) (int64, any, bool) {
	if t.root == nil {
		return 0, nil, false
	}
	return t.root.floor(key)
}

// ForEach visits entries in ascending key order until consume returns false.
func (t *Tree) ForEach(consume func(key int64, value any) bool) {
	if t.root == nil {
		return
	}
	t.root.forEach(consume)
}

// ForEachDesc visits entries in descending key order until consume returns false.
func (t *Tree) ForEachDesc(consume func(key int64, value any) bool) {
	if t.root == nil {
		return
	}
	t.root.forEachDesc(consume)
}

// Size returns the number of stored entries.
func (t *Tree) Size() int {
	return t.count
}

// Validate walks the whole tree checking the structural invariants from
// §8: non-empty/within-capacity nodes, strictly-decreasing child levels,
// prefix-consistent nodeKeys.
func (t *Tree) Validate() error {
	if t.root == nil {
		return nil
	}
	return t.root.validate()
}
