package art

// scannable is implemented by every node size to drive the shared
// ceiling/floor/forEach/validate algorithms without duplicating the
// ordering logic four times (§4.1). childAt returns byte index i's
// child: either a sub-node (ok=false, value ignored) or a leaf value
// (ok=true, node ignored).
type scannable interface {
	node
	childCount() int
	childAt(i int) (b byte, child node, value any, isValue bool)
}

// ceilingScan returns the smallest key >= key held anywhere under n.
func ceilingScan(n scannable, key int64) (int64, any, bool) {
	if !prefixMatches(key, n.nodeKey(), n.nodeLevel()) {
		if n.nodeKey() < (key &^ ((1 << uint(n.nodeLevel()+8)) - 1)) {
			return 0, nil, false
		}
		return minOf(n)
	}
	target := byte(byteAt(key, n.nodeLevel()))
	var bestKey int64
	var bestVal any
	found := false
	for i := 0; i < n.childCount(); i++ {
		b, child, value, isValue := n.childAt(i)
		switch {
		case b < target:
			continue
		case b == target:
			if isValue {
				k := reconstructKey(n, b)
				if k >= key && (!found || k < bestKey) {
					bestKey, bestVal, found = k, value, true
				}
			} else if k, v, ok := child.ceiling(key); ok {
				if !found || k < bestKey {
					bestKey, bestVal, found = k, v, true
				}
			}
		default: // b > target: every key under this child is >= key
			k, v, ok := minEntry(child, isValue, value, n, b)
			if ok && (!found || k < bestKey) {
				bestKey, bestVal, found = k, v, true
			}
		}
	}
	return bestKey, bestVal, found
}

// floorScan returns the largest key <= key held anywhere under n.
func floorScan(n scannable, key int64) (int64, any, bool) {
	if !prefixMatches(key, n.nodeKey(), n.nodeLevel()) {
		if n.nodeKey() > key {
			return 0, nil, false
		}
		return maxOf(n)
	}
	target := byte(byteAt(key, n.nodeLevel()))
	var bestKey int64
	var bestVal any
	found := false
	for i := 0; i < n.childCount(); i++ {
		b, child, value, isValue := n.childAt(i)
		switch {
		case b > target:
			continue
		case b == target:
			if isValue {
				k := reconstructKey(n, b)
				if k <= key && (!found || k > bestKey) {
					bestKey, bestVal, found = k, value, true
				}
			} else if k, v, ok := child.floor(key); ok {
				if !found || k > bestKey {
					bestKey, bestVal, found = k, v, true
				}
			}
		default: // b < target: every key under this child is <= key
			k, v, ok := maxEntry(child, isValue, value, n, b)
			if ok && (!found || k > bestKey) {
				bestKey, bestVal, found = k, v, true
			}
		}
	}
	return bestKey, bestVal, found
}

func reconstructKey(n scannable, lowByte byte) int64 {
	return (n.nodeKey() &^ int64(0xFF)) | int64(lowByte)
}

func minEntry(child node, isValue bool, value any, parent scannable, b byte) (int64, any, bool) {
	if isValue {
		return reconstructKey(parent, b), value, true
	}
	return minOf(child.(scannable))
}

func maxEntry(child node, isValue bool, value any, parent scannable, b byte) (int64, any, bool) {
	if isValue {
		return reconstructKey(parent, b), value, true
	}
	return maxOf(child.(scannable))
}

func minOf(n scannable) (int64, any, bool) {
	best, bestVal, found := int64(0), any(nil), false
	for i := 0; i < n.childCount(); i++ {
		b, child, value, isValue := n.childAt(i)
		var k int64
		var v any
		var ok bool
		if isValue {
			k, v, ok = reconstructKey(n, b), value, true
		} else {
			k, v, ok = minOf(child.(scannable))
		}
		if ok && (!found || k < best) {
			best, bestVal, found = k, v, true
		}
	}
	return best, bestVal, found
}

func maxOf(n scannable) (int64, any, bool) {
	best, bestVal, found := int64(0), any(nil), false
	for i := 0; i < n.childCount(); i++ {
		b, child, value, isValue := n.childAt(i)
		var k int64
		var v any
		var ok bool
		if isValue {
			k, v, ok = reconstructKey(n, b), value, true
		} else {
			k, v, ok = maxOf(child.(scannable))
		}
		if ok && (!found || k > best) {
			best, bestVal, found = k, v, true
		}
	}
	return best, bestVal, found
}

// forEachScan visits every (key, value) pair in ascending key order,
// stopping early if consume returns false. Returns false if consume
// requested a stop.
func forEachScan(n scannable, consume func(int64, any) bool) bool {
	order := ascendingOrder(n)
	for _, i := range order {
		b, child, value, isValue := n.childAt(i)
		if isValue {
			if !consume(reconstructKey(n, b), value) {
				return false
			}
			continue
		}
		if !child.forEach(consume) {
			return false
		}
	}
	return true
}

func forEachDescScan(n scannable, consume func(int64, any) bool) bool {
	order := ascendingOrder(n)
	for i := len(order) - 1; i >= 0; i-- {
		b, child, value, isValue := n.childAt(order[i])
		if isValue {
			if !consume(reconstructKey(n, b), value) {
				return false
			}
			continue
		}
		if !child.forEachDesc(consume) {
			return false
		}
	}
	return true
}

// ascendingOrder returns child slot indices sorted by their byte key.
// Node4/Node16 store children in insertion order, not sorted, so
// ForEach/ForEachDesc must sort explicitly (§4.1 "ordered traversal").
func ascendingOrder(n scannable) []int {
	cnt := n.childCount()
	order := make([]int, cnt)
	for i := range order {
		order[i] = i
	}
	for i := 1; i < cnt; i++ {
		for j := i; j > 0; j-- {
			bj, _, _, _ := n.childAt(order[j])
			bj1, _, _, _ := n.childAt(order[j-1])
			if bj < bj1 {
				order[j], order[j-1] = order[j-1], order[j]
			} else {
				break
			}
		}
	}
	return order
}

// validateCommon checks the structural invariants shared by every node
// size: non-empty, within capacity, and (for internal nodes) every child
// strictly shallower than its parent with a prefix consistent with the
// parent's own selector byte. Children may sit more than one level below
// their parent (path compression), so level is only required to be
// strictly decreasing, not decreasing by exactly 8 (§4.1, §8).
func validateCommon(n scannable, numChildren, capacity int) error {
	if numChildren == 0 {
		return errEmptyNode()
	}
	if numChildren > capacity {
		return errOverCapacity(numChildren, capacity)
	}
	if n.nodeLevel() < 0 || n.nodeLevel() > 56 || n.nodeLevel()%8 != 0 {
		return errInvalidLevel(n.nodeLevel(), n.nodeLevel())
	}
	for i := 0; i < numChildren; i++ {
		b, child, _, isValue := n.childAt(i)
		if isValue {
			continue
		}
		if child.nodeLevel() >= n.nodeLevel() {
			return errInvalidLevel(child.nodeLevel(), n.nodeLevel())
		}
		if byteAt(child.nodeKey(), n.nodeLevel()) != int(b) && n.nodeLevel() < 56 {
			return errInvalidLevel(byteAt(child.nodeKey(), n.nodeLevel()), int(b))
		}
		if err := child.validate(); err != nil {
			return err
		}
	}
	return nil
}
