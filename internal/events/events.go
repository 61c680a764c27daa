// Package events builds and recycles MatcherTradeEvent chains for the
// matching stage (§4.10, §4.13). The reference design pools event nodes in
// a lock-free MPMC structure shared across stages; here the pool is
// confined to the single stage that allocates events (matching) per §5's
// single-writer-per-stage model — events become read-only the moment
// they're attached to a published OrderCommand, and are only ever freed
// once downstream consumers (risk release, persistence) have moved past
// them, which the pipeline sequences rather than any concurrent pool.
package events

import (
	"encoding/binary"

	"github.com/tradsys-labs/exchange-core/internal/domain"
	"github.com/tradsys-labs/exchange-core/internal/pool"
)

// binaryWordsPerEvent is the fixed arity §4.10 describes: five 64-bit
// words, i.e. 40 bytes, per BINARY_EVENT node.
const binaryWordsPerEvent = 40

// Helper allocates and releases event nodes from a stage's pool.Manager.
type Helper struct {
	pools *pool.Manager
}

func NewHelper(pools *pool.Manager) *Helper {
	return &Helper{pools: pools}
}

// Chain accumulates a singly-linked MatcherTradeEvent list in emission
// order; Head is nil until the first event is appended.
type Chain struct {
	Head, tail *domain.MatcherTradeEvent
}

// Trade appends a TRADE event.
func (h *Helper) Trade(c *Chain, price domain.Price, size domain.Size, bidderHold domain.Price,
	matchedOrderID domain.OrderID, matchedUID domain.UID, activeCompleted, matchedCompleted bool) {
	e := h.pools.Get(pool.TagMatcherTradeEvent).(*domain.MatcherTradeEvent)
	e.Kind = domain.EventTrade
	e.Price = price
	e.Size = size
	e.BidderHoldPrice = bidderHold
	e.MatchedOrderID = matchedOrderID
	e.MatchedUID = matchedUID
	e.ActiveOrderCompleted = activeCompleted
	e.MatchedOrderCompleted = matchedCompleted
	c.append(e)
}

// Reduce appends a REDUCE event (cancel/reduce/move shrink). price is the
// order's resting price at the moment of the shrink, carried so risk
// release can compute the refund without a second book lookup (§4.3
// Cancel/Reduce, §4.6 "REJECT/REDUCE: return the reserved hold").
func (h *Helper) Reduce(c *Chain, size domain.Size, price domain.Price, orderCompleted bool) {
	e := h.pools.Get(pool.TagMatcherTradeEvent).(*domain.MatcherTradeEvent)
	e.Kind = domain.EventReduce
	e.Size = size
	e.Price = price
	e.ActiveOrderCompleted = orderCompleted
	c.append(e)
}

// Reject appends a REJECT event (IOC/FOK remainder that could not rest).
func (h *Helper) Reject(c *Chain, size domain.Size) {
	e := h.pools.Get(pool.TagMatcherTradeEvent).(*domain.MatcherTradeEvent)
	e.Kind = domain.EventReject
	e.Size = size
	e.ActiveOrderCompleted = true
	c.append(e)
}

// Binary appends a BINARY_EVENT carrying five 64-bit payload words (§4.10).
func (h *Helper) Binary(c *Chain, section int32, words [5]int64) {
	e := h.pools.Get(pool.TagMatcherTradeEvent).(*domain.MatcherTradeEvent)
	e.Kind = domain.EventBinary
	e.Section = section
	e.BinaryPayload = words
	c.append(e)
}

// CreateBinaryEventsChain packs payload into fixed-arity (five longs per
// node) BINARY_EVENTs tagged with section (§4.10), the response format a
// report query serialises its answer into. Every node in the section
// carries the section's total byte length in Size so DeserializeEvents
// can trim the final word's padding without a separate terminator.
func (h *Helper) CreateBinaryEventsChain(c *Chain, section int32, payload []byte) {
	total := domain.Size(len(payload))
	if len(payload) == 0 {
		e := h.pools.Get(pool.TagMatcherTradeEvent).(*domain.MatcherTradeEvent)
		e.Kind = domain.EventBinary
		e.Section = section
		c.append(e)
		return
	}
	for i := 0; i < len(payload); i += binaryWordsPerEvent {
		end := i + binaryWordsPerEvent
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[i:end]
		var words [5]int64
		for w := 0; w*8 < len(chunk); w++ {
			lo, hi := w*8, w*8+8
			if hi > len(chunk) {
				hi = len(chunk)
			}
			var buf [8]byte
			copy(buf[:], chunk[lo:hi])
			words[w] = int64(binary.LittleEndian.Uint64(buf[:]))
		}
		e := h.pools.Get(pool.TagMatcherTradeEvent).(*domain.MatcherTradeEvent)
		e.Kind = domain.EventBinary
		e.Section = section
		e.BinaryPayload = words
		e.Size = total
		c.append(e)
	}
}

// DeserializeEvents reads back every BINARY_EVENT in the chain rooted at
// head, grouped by section, and returns each section's contiguous byte
// payload with the final word's zero padding trimmed off (§4.10).
func DeserializeEvents(head *domain.MatcherTradeEvent) map[int32][]byte {
	type section struct {
		words []int64
		total domain.Size
	}
	bySection := make(map[int32]*section)
	for e := head; e != nil; e = e.Next {
		if e.Kind != domain.EventBinary {
			continue
		}
		s, ok := bySection[e.Section]
		if !ok {
			s = &section{}
			bySection[e.Section] = s
		}
		s.words = append(s.words, e.BinaryPayload[:]...)
		if e.Size > s.total {
			s.total = e.Size
		}
	}
	out := make(map[int32][]byte, len(bySection))
	for id, s := range bySection {
		buf := make([]byte, len(s.words)*8)
		for i, w := range s.words {
			binary.LittleEndian.PutUint64(buf[i*8:], uint64(w))
		}
		if int(s.total) <= len(buf) {
			buf = buf[:s.total]
		}
		out[id] = buf
	}
	return out
}

func (c *Chain) append(e *domain.MatcherTradeEvent) {
	if c.Head == nil {
		c.Head = e
	} else {
		c.tail.Next = e
	}
	c.tail = e
}

// Release returns every event in a chain rooted at head to the pool. Only
// safe once no downstream consumer still references the chain.
func (h *Helper) Release(head *domain.MatcherTradeEvent) {
	for head != nil {
		next := head.Next
		h.pools.Put(pool.TagMatcherTradeEvent, head)
		head = next
	}
}
