// Package orderbook implements the two interchangeable price-time order
// book implementations described in §4.3 (naive) and §4.4 (direct): same
// external behavior, different internal indexing, so a deployment can pick
// the naive book while validating new symbols and the direct book once a
// symbol's throughput justifies the ART index (§4.1).
package orderbook

import "github.com/tradsys-labs/exchange-core/internal/domain"

// PlaceResult reports what happened to an incoming order: how much of it
// matched immediately, and whether it was rejected outright (a FOK or
// FOK_BUDGET order without enough liquidity for its full size).
type PlaceResult struct {
	MatchedSize domain.Size
	Rejected    bool
	Events      *domain.MatcherTradeEvent // head of the emitted chain, newest last
}

// MoveResult reports the outcome of a MoveOrder call: whether the order
// was relocated, any instant-match events the new price produced, and
// enough of the order's prior state (OldPrice, Remaining) for risk
// release to re-price the hold still backing the resting remainder
// (§4.3 Move, §4.6 R2).
type MoveResult struct {
	MatchedSize domain.Size
	Remaining   domain.Size
	Rejected    bool

	// PriceRejected is true when the rejection is specifically the
	// reserveBidPrice guard (§4.3 "reject if new price > reserveBidPrice"),
	// distinguishing it from an unknown-orderId rejection so the router
	// can report MATCHING_MOVE_FAILED_PRICE_OVER_RISK_LIMIT instead of
	// MATCHING_UNKNOWN_ORDER_ID. A rejected move never mutates the book
	// (§7 "a failed MOVE leaves the original order intact").
	PriceRejected bool

	OldPrice domain.Price
	Events   *domain.MatcherTradeEvent
}

// Book is implemented by both NaiveBook and DirectBook (§4.3, §4.4).
type Book interface {
	// PlaceOrder matches an incoming order against the opposite side and,
	// for GTC orders with unmatched remainder, rests it in the book.
	PlaceOrder(cmd *domain.OrderCommand) PlaceResult

	// CancelOrder removes a resting order entirely, emitting a REDUCE
	// event (remaining, completed=true), or ok=false if unknown.
	CancelOrder(action domain.OrderAction, orderID domain.OrderID) (events *domain.MatcherTradeEvent, remaining domain.Size, ok bool)

	// ReduceOrder shrinks a resting order's remaining size by reduceBy
	// (never below zero), emitting a REDUCE event for the amount removed.
	ReduceOrder(action domain.OrderAction, orderID domain.OrderID, reduceBy domain.Size) (events *domain.MatcherTradeEvent, removed domain.Size, ok bool)

	// MoveOrder relocates a resting order to a new price, re-checking
	// whether it now crosses the book (§4.3 Move).
	MoveOrder(action domain.OrderAction, orderID domain.OrderID, newPrice domain.Price) MoveResult

	// BestPrices returns the current best ask and bid, if any.
	BestPrices() (bestAsk domain.Price, hasAsk bool, bestBid domain.Price, hasBid bool)

	// L2 returns a bounded-depth snapshot of both sides (§3).
	L2(depth int) *domain.L2MarketData

	// Validate checks the book's internal invariants (§8).
	Validate() error
}
