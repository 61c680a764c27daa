package art

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradsys-labs/exchange-core/internal/pool"
)

func newTestTree() *Tree {
	return New(pool.NewManager(pool.ProfileTest, false, Factories()))
}

// TestTree_SizeTransitionsGrow walks a single node through every growth
// threshold the spec names (4->16, 16->48, 48->256), validating structural
// invariants at each insert (§8 "ART size transitions").
func TestTree_SizeTransitionsGrow(t *testing.T) {
	tree := newTestTree()
	for i := int64(0); i < 60; i++ {
		tree.Put(i, i*10)
		require.NoError(t, tree.Validate(), "after inserting key %d", i)
		assert.Equal(t, int(i)+1, tree.Size())
	}
	for i := int64(0); i < 60; i++ {
		v, ok := tree.Get(i)
		require.True(t, ok)
		assert.Equal(t, i*10, v)
	}
}

// TestTree_SizeTransitionsShrink removes keys one at a time from a full
// node256-scale tree, crossing every shrink threshold the spec names
// (256->48 at 37, 48->16 at 12, 16->4 at 3), validating at each removal.
func TestTree_SizeTransitionsShrink(t *testing.T) {
	tree := newTestTree()
	const n = 60
	for i := int64(0); i < n; i++ {
		tree.Put(i, i)
	}
	for i := int64(0); i < n; i++ {
		require.True(t, tree.Remove(i), "key %d", i)
		require.NoError(t, tree.Validate(), "after removing key %d", i)
		assert.Equal(t, n-int(i)-1, tree.Size())
	}
	assert.Equal(t, 0, tree.Size())
	_, ok := tree.Get(0)
	assert.False(t, ok)
}

// TestTree_RoundTripRandomTrace inserts and removes a shuffled run of keys,
// checking Ceiling/Floor against a reference sorted slice and validating
// structural invariants at checkpoints (scaled-down §8 S6 "ART sanity").
func TestTree_RoundTripRandomTrace(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tree := newTestTree()

	const n = 2000
	keys := make([]int64, n)
	seen := make(map[int64]bool, n)
	for i := range keys {
		var k int64
		for {
			k = rng.Int63()
			if !seen[k] {
				seen[k] = true
				break
			}
		}
		keys[i] = k
	}

	for i, k := range keys {
		tree.Put(k, k)
		if i%200 == 0 {
			require.NoError(t, tree.Validate())
		}
	}
	require.NoError(t, tree.Validate())
	assert.Equal(t, n, tree.Size())

	sorted := append([]int64(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for i := 0; i < 50; i++ {
		probe := rng.Int63()
		wantCeil, wantCeilOK := refCeiling(sorted, probe)
		gotCeil, _, gotCeilOK := tree.Ceiling(probe)
		assert.Equal(t, wantCeilOK, gotCeilOK)
		if wantCeilOK {
			assert.Equal(t, wantCeil, gotCeil)
		}

		wantFloor, wantFloorOK := refFloor(sorted, probe)
		gotFloor, _, gotFloorOK := tree.Floor(probe)
		assert.Equal(t, wantFloorOK, gotFloorOK)
		if wantFloorOK {
			assert.Equal(t, wantFloor, gotFloor)
		}
	}

	shuffled := append([]int64(nil), keys...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	for i, k := range shuffled {
		require.True(t, tree.Remove(k))
		if i%200 == 0 {
			require.NoError(t, tree.Validate())
		}
	}
	require.NoError(t, tree.Validate())
	assert.Equal(t, 0, tree.Size())
}

func refCeiling(sorted []int64, key int64) (int64, bool) {
	for _, k := range sorted {
		if k >= key {
			return k, true
		}
	}
	return 0, false
}

func refFloor(sorted []int64, key int64) (int64, bool) {
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i] <= key {
			return sorted[i], true
		}
	}
	return 0, false
}
