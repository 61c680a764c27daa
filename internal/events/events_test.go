package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradsys-labs/exchange-core/internal/art"
	"github.com/tradsys-labs/exchange-core/internal/domain"
	"github.com/tradsys-labs/exchange-core/internal/pool"
)

func newTestHelper() *Helper {
	return NewHelper(pool.NewManager(pool.ProfileTest, false, art.Factories()))
}

func TestHelper_TradeReduceReject(t *testing.T) {
	h := newTestHelper()
	chain := &Chain{}

	h.Trade(chain, 15400, 10, 15600, 5002, 302, true, false)
	h.Reduce(chain, 2, 15400, true)
	h.Reject(chain, 3)

	require.NotNil(t, chain.Head)
	trade := chain.Head
	assert.Equal(t, domain.EventTrade, trade.Kind)
	assert.Equal(t, domain.Price(15400), trade.Price)
	assert.Equal(t, domain.Size(10), trade.Size)
	assert.Equal(t, domain.Price(15600), trade.BidderHoldPrice)
	assert.Equal(t, domain.OrderID(5002), trade.MatchedOrderID)
	assert.Equal(t, domain.UID(302), trade.MatchedUID)
	assert.True(t, trade.ActiveOrderCompleted)
	assert.False(t, trade.MatchedOrderCompleted)

	reduce := trade.Next
	require.NotNil(t, reduce)
	assert.Equal(t, domain.EventReduce, reduce.Kind)
	assert.Equal(t, domain.Size(2), reduce.Size)
	assert.Equal(t, domain.Price(15400), reduce.Price)
	assert.True(t, reduce.ActiveOrderCompleted)

	reject := reduce.Next
	require.NotNil(t, reject)
	assert.Equal(t, domain.EventReject, reject.Kind)
	assert.Equal(t, domain.Size(3), reject.Size)
	assert.Nil(t, reject.Next)
}

// TestHelper_BinaryEventsChainRoundTrip exercises CreateBinaryEventsChain
// against DeserializeEvents for a payload spanning multiple 40-byte nodes,
// including one that needs zero-padding trimmed off the final word.
func TestHelper_BinaryEventsChainRoundTrip(t *testing.T) {
	h := newTestHelper()
	chain := &Chain{}

	payload := make([]byte, 97) // 2 full 40-byte nodes + a 17-byte remainder
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	const section = int32(3)
	h.CreateBinaryEventsChain(chain, section, payload)

	count := 0
	for e := chain.Head; e != nil; e = e.Next {
		assert.Equal(t, domain.EventBinary, e.Kind)
		assert.Equal(t, section, e.Section)
		count++
	}
	assert.Equal(t, 3, count)

	out := DeserializeEvents(chain.Head)
	require.Contains(t, out, section)
	assert.Equal(t, payload, out[section])
}

// TestHelper_BinaryEventsChainEmptyPayload covers the zero-length section
// case: one BINARY_EVENT node carrying no payload bytes.
func TestHelper_BinaryEventsChainEmptyPayload(t *testing.T) {
	h := newTestHelper()
	chain := &Chain{}
	h.CreateBinaryEventsChain(chain, 9, nil)

	require.NotNil(t, chain.Head)
	assert.Nil(t, chain.Head.Next)

	out := DeserializeEvents(chain.Head)
	assert.Empty(t, out[9])
}

// TestHelper_BinaryEventsChainMultipleSections checks that two sections
// appended one after the other to one chain are kept separate by
// DeserializeEvents.
func TestHelper_BinaryEventsChainMultipleSections(t *testing.T) {
	h := newTestHelper()
	chain := &Chain{}
	h.CreateBinaryEventsChain(chain, 1, []byte("hello-section-one"))
	h.CreateBinaryEventsChain(chain, 2, []byte("hello-section-two-but-longer"))

	out := DeserializeEvents(chain.Head)
	assert.Equal(t, []byte("hello-section-one"), out[1])
	assert.Equal(t, []byte("hello-section-two-but-longer"), out[2])
}

func TestHelper_Release(t *testing.T) {
	h := newTestHelper()
	chain := &Chain{}
	h.Trade(chain, 1, 1, 1, 1, 1, true, true)
	h.Reduce(chain, 1, 1, true)
	// Release must not panic on a populated chain; the pool's internal
	// reuse bookkeeping is exercised indirectly via the allocator.
	assert.NotPanics(t, func() { h.Release(chain.Head) })
}
