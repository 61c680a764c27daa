package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradsys-labs/exchange-core/internal/art"
	"github.com/tradsys-labs/exchange-core/internal/domain"
	"github.com/tradsys-labs/exchange-core/internal/pool"
)

func newTestPool() *pool.Manager {
	return pool.NewManager(pool.ProfileTest, false, art.Factories())
}

// TestNaiveBook_FillOnEntry reproduces §8 S1's book-level mechanics: a
// resting GTC bid is partially filled by an incoming IOC ask, leaving the
// bid's remainder resting at its original price.
func TestNaiveBook_FillOnEntry(t *testing.T) {
	b := NewNaiveBook(241, newTestPool())

	bid := &domain.OrderCommand{
		OrderID: 5001, SymbolID: 241, Action: domain.OrderActionBid, OrderType: domain.OrderTypeGTC,
		Price: 15400, Size: 12, UID: 301, ReserveBidPrice: 15600,
	}
	res := b.PlaceOrder(bid)
	assert.Equal(t, domain.Size(0), res.MatchedSize)
	assert.False(t, res.Rejected)
	assert.Nil(t, res.Events)

	ask := &domain.OrderCommand{
		OrderID: 5002, SymbolID: 241, Action: domain.OrderActionAsk, OrderType: domain.OrderTypeIOC,
		Price: 15250, Size: 10, UID: 302,
	}
	res = b.PlaceOrder(ask)
	require.Equal(t, domain.Size(10), res.MatchedSize)
	require.NotNil(t, res.Events)
	assert.Equal(t, domain.EventTrade, res.Events.Kind)
	assert.Equal(t, domain.Price(15400), res.Events.Price)
	assert.Equal(t, domain.Size(10), res.Events.Size)
	// Incoming order is the ask; the resting bid (301) is the bidder, so
	// BidderHoldPrice must be the resting order's own reserve, not the
	// incoming taker's (there is none, the taker is an ask).
	assert.Equal(t, domain.Price(15600), res.Events.BidderHoldPrice)
	assert.True(t, res.Events.ActiveOrderCompleted)
	assert.False(t, res.Events.MatchedOrderCompleted)

	l2 := b.L2(0)
	require.Len(t, l2.BidLevels, 1)
	assert.Equal(t, domain.Price(15400), l2.BidLevels[0].Price)
	assert.Equal(t, domain.Size(2), l2.BidLevels[0].Volume)
	assert.Equal(t, int32(1), l2.BidLevels[0].OrderCount)
	assert.Empty(t, l2.AskLevels)
	require.NoError(t, b.Validate())
}

// TestNaiveBook_BidderHoldPriceWhenIncomingIsBid is the mirror of the fill
// above with the incoming order on the bid side, verifying the bug fix:
// BidderHoldPrice must be the incoming bid's own reserve, not the resting
// ask's (which has none meaningful as a bid reserve).
func TestNaiveBook_BidderHoldPriceWhenIncomingIsBid(t *testing.T) {
	b := NewNaiveBook(241, newTestPool())

	ask := &domain.OrderCommand{
		OrderID: 6001, SymbolID: 241, Action: domain.OrderActionAsk, OrderType: domain.OrderTypeGTC,
		Price: 15300, Size: 5, UID: 401,
	}
	res := b.PlaceOrder(ask)
	require.False(t, res.Rejected)

	bid := &domain.OrderCommand{
		OrderID: 6002, SymbolID: 241, Action: domain.OrderActionBid, OrderType: domain.OrderTypeIOC,
		Price: 15300, Size: 5, UID: 402, ReserveBidPrice: 15900,
	}
	res = b.PlaceOrder(bid)
	require.NotNil(t, res.Events)
	assert.Equal(t, domain.Price(15900), res.Events.BidderHoldPrice)
}

// TestNaiveBook_CancelEmitsReduce reproduces §8 S3: cancelling a resting
// order returns a completed REDUCE event and leaves the book empty.
func TestNaiveBook_CancelEmitsReduce(t *testing.T) {
	b := NewNaiveBook(241, newTestPool())

	cmd := &domain.OrderCommand{
		OrderID: 5001, SymbolID: 241, Action: domain.OrderActionBid, OrderType: domain.OrderTypeGTC,
		Price: 15300, Size: 2, UID: 301, ReserveBidPrice: 15600,
	}
	b.PlaceOrder(cmd)

	ev, remaining, ok := b.CancelOrder(domain.OrderActionBid, 5001)
	require.True(t, ok)
	require.NotNil(t, ev)
	assert.Equal(t, domain.Size(2), remaining)
	assert.Equal(t, domain.EventReduce, ev.Kind)
	assert.Equal(t, domain.Size(2), ev.Size)
	assert.Equal(t, domain.Price(15300), ev.Price)
	assert.True(t, ev.ActiveOrderCompleted)
	assert.Nil(t, ev.Next)

	_, hasAsk, _, hasBid := b.BestPrices()
	assert.False(t, hasAsk)
	assert.False(t, hasBid)
	require.NoError(t, b.Validate())
}

// TestNaiveBook_ReserveBoundary covers §8's named MOVE boundary: a price
// exactly at reserveBidPrice is accepted, one tick above is rejected and
// leaves the book untouched.
func TestNaiveBook_ReserveBoundary(t *testing.T) {
	b := NewNaiveBook(241, newTestPool())
	cmd := &domain.OrderCommand{
		OrderID: 7001, SymbolID: 241, Action: domain.OrderActionBid, OrderType: domain.OrderTypeGTC,
		Price: 15000, Size: 3, UID: 301, ReserveBidPrice: 15600,
	}
	b.PlaceOrder(cmd)

	res := b.MoveOrder(domain.OrderActionBid, 7001, 15600)
	assert.False(t, res.Rejected)
	assert.False(t, res.PriceRejected)
	assert.Equal(t, domain.Price(15000), res.OldPrice)

	res = b.MoveOrder(domain.OrderActionBid, 7001, 15601)
	assert.True(t, res.Rejected)
	assert.True(t, res.PriceRejected)

	// A rejected move must leave the book exactly as it was after the
	// accepted move (still resting at 15600, untouched by the rejection).
	_, _, bestBid, hasBid := b.BestPrices()
	require.True(t, hasBid)
	assert.Equal(t, domain.Price(15600), bestBid)
	require.NoError(t, b.Validate())
}

// TestNaiveBook_EmptyBookOperations covers §8's empty-book boundary
// behaviours: CANCEL/REDUCE/MOVE on an unknown orderId all fail cleanly.
func TestNaiveBook_EmptyBookOperations(t *testing.T) {
	b := NewNaiveBook(241, newTestPool())

	ev, remaining, ok := b.CancelOrder(domain.OrderActionBid, 999)
	assert.Nil(t, ev)
	assert.Equal(t, domain.Size(0), remaining)
	assert.False(t, ok)

	ev, remaining, ok = b.ReduceOrder(domain.OrderActionAsk, 999, 1)
	assert.Nil(t, ev)
	assert.Equal(t, domain.Size(0), remaining)
	assert.False(t, ok)

	res := b.MoveOrder(domain.OrderActionBid, 999, 15000)
	assert.True(t, res.Rejected)
	assert.False(t, res.PriceRejected)
}

// TestNaiveBook_ReduceOrder checks a partial reduction leaves the order
// resting with a lower size and a non-completed REDUCE event, while a
// full-size reduction behaves exactly like CancelOrder (§4.3).
func TestNaiveBook_ReduceOrder(t *testing.T) {
	b := NewNaiveBook(241, newTestPool())
	cmd := &domain.OrderCommand{
		OrderID: 8001, SymbolID: 241, Action: domain.OrderActionAsk, OrderType: domain.OrderTypeGTC,
		Price: 15500, Size: 10, UID: 301,
	}
	b.PlaceOrder(cmd)

	ev, reduced, ok := b.ReduceOrder(domain.OrderActionAsk, 8001, 4)
	require.True(t, ok)
	require.NotNil(t, ev)
	assert.Equal(t, domain.Size(4), reduced)
	assert.False(t, ev.ActiveOrderCompleted)

	_, _, bestBid, hasBid := b.BestPrices()
	assert.False(t, hasBid)
	bestAsk, hasAsk, _, _ := b.BestPrices()
	require.True(t, hasAsk)
	assert.Equal(t, domain.Price(15500), bestAsk)

	ev, reduced, ok = b.ReduceOrder(domain.OrderActionAsk, 8001, 100)
	require.True(t, ok)
	require.NotNil(t, ev)
	assert.Equal(t, domain.Size(6), reduced)
	assert.True(t, ev.ActiveOrderCompleted)
	_, hasAsk, _, _ = b.BestPrices()
	assert.False(t, hasAsk)
}
