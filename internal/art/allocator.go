package art

import "github.com/tradsys-labs/exchange-core/internal/pool"

// allocator binds ART's node construction to a stage's pool.Manager so
// every Node4/16/48/256 allocated during Put/grow comes from (and every
// one freed during Remove/shrink returns to) that stage's bounded arena
// (§3 ObjectPool, §4.2).
type allocator struct {
	pools *pool.Manager
}

func newAllocator(pools *pool.Manager) *allocator {
	return &allocator{pools: pools}
}

// Factories returns the pool.ArtNodeFactories a pool.Manager needs to size
// per-node-kind pools, without the pool package importing art.
func Factories() pool.ArtNodeFactories {
	return pool.ArtNodeFactories{
		Node4:   func() pool.Resettable { return &node4{} },
		Node16:  func() pool.Resettable { return &node16{} },
		Node48:  func() pool.Resettable { return &node48{} },
		Node256: func() pool.Resettable { return &node256{} },
	}
}

func (a *allocator) newNode4() *node4 {
	return a.pools.Get(pool.TagArtNode4).(*node4)
}

func (a *allocator) newNode16() *node16 {
	return a.pools.Get(pool.TagArtNode16).(*node16)
}

func (a *allocator) newNode48() *node48 {
	return a.pools.Get(pool.TagArtNode48).(*node48)
}

func (a *allocator) newNode256() *node256 {
	return a.pools.Get(pool.TagArtNode256).(*node256)
}

// newLeaf builds a maximally path-compressed Node4 at level 0 holding a
// single (key, value) pair (§4.1's InitFirstKey compression trick, used
// both for a tree's very first insert and for any uncontested branch).
func (a *allocator) newLeaf(key int64, value any) *node4 {
	n := a.newNode4()
	n.level = 0
	n.key = key
	n.putChildValue(byteAt(key, 0), value)
	return n
}

// release returns n's backing struct to its size's pool.
func (a *allocator) release(n node) {
	switch v := n.(type) {
	case *node4:
		a.pools.Put(pool.TagArtNode4, v)
	case *node16:
		a.pools.Put(pool.TagArtNode16, v)
	case *node48:
		a.pools.Put(pool.TagArtNode48, v)
	case *node256:
		a.pools.Put(pool.TagArtNode256, v)
	}
}
