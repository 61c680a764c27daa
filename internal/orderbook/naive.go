package orderbook

import (
	"fmt"

	"github.com/tradsys-labs/exchange-core/internal/domain"
	"github.com/tradsys-labs/exchange-core/internal/events"
	"github.com/tradsys-labs/exchange-core/internal/pool"
)

// NaiveBook indexes resting orders with a plain price->bucket map per side
// and finds the best price by scanning every key (§4.3) — the baseline
// alternative to DirectBook; a Router uses one book kind for all of its
// symbols and never moves a symbol from one kind to the other.
type NaiveBook struct {
	symbol domain.SymbolID
	pools  *pool.Manager
	ev     *events.Helper

	asks map[domain.Price]*domain.Bucket
	bids map[domain.Price]*domain.Bucket

	index map[domain.OrderID]*domain.OrderNode
	side  map[domain.OrderID]domain.OrderAction
}

func NewNaiveBook(symbol domain.SymbolID, pools *pool.Manager) *NaiveBook {
	return &NaiveBook{
		symbol: symbol,
		pools:  pools,
		ev:     events.NewHelper(pools),
		asks:   make(map[domain.Price]*domain.Bucket),
		bids:   make(map[domain.Price]*domain.Bucket),
		index:  make(map[domain.OrderID]*domain.OrderNode),
		side:   make(map[domain.OrderID]domain.OrderAction),
	}
}

func (b *NaiveBook) sideMap(action domain.OrderAction) map[domain.Price]*domain.Bucket {
	if action == domain.OrderActionAsk {
		return b.asks
	}
	return b.bids
}

// bestPrice scans every bucket on action's side and returns the best
// (lowest for asks, highest for bids) non-empty price.
func (b *NaiveBook) bestPrice(action domain.OrderAction) (domain.Price, bool) {
	m := b.sideMap(action)
	best, found := domain.Price(0), false
	for p, bucket := range m {
		if bucket.Empty() {
			continue
		}
		if !found {
			best, found = p, true
			continue
		}
		if action == domain.OrderActionAsk && p < best {
			best = p
		} else if action == domain.OrderActionBid && p > best {
			best = p
		}
	}
	return best, found
}

func (b *NaiveBook) BestPrices() (bestAsk domain.Price, hasAsk bool, bestBid domain.Price, hasBid bool) {
	bestAsk, hasAsk = b.bestPrice(domain.OrderActionAsk)
	bestBid, hasBid = b.bestPrice(domain.OrderActionBid)
	return
}

// crosses reports whether a resting order at restingPrice on the opposite
// side satisfies the incoming order's limit (§4.3 tryMatchInstantly).
func crosses(incoming *domain.OrderCommand, restingPrice domain.Price) bool {
	switch incoming.OrderType {
	case domain.OrderTypeIOCBudget, domain.OrderTypeFOKBudget:
		return true // budget orders are unlimited by price, bounded by ReserveBidPrice instead
	}
	if incoming.Action == domain.OrderActionBid {
		return restingPrice <= incoming.Price
	}
	return restingPrice >= incoming.Price
}

// availableLiquidity walks the opposite side (without mutating it) and
// returns how much of need could be filled honoring price/budget limits,
// stopping as soon as need is satisfied. Used to pre-check FOK/FOK_BUDGET
// feasibility before committing any fill (§4.3 Non-goals note FOK must be
// all-or-nothing).
func (b *NaiveBook) availableLiquidity(incoming *domain.OrderCommand, need domain.Size) domain.Size {
	opposite := incoming.Action.Opposite()
	m := b.sideMap(opposite)
	budget := incoming.ReserveBidPrice
	var have domain.Size
	for have < need {
		price, ok := b.bestPrice(opposite)
		if !ok || !crosses(incoming, price) {
			break
		}
		bucket := m[price]
		take := bucket.TotalVolume
		if incoming.OrderType == domain.OrderTypeFOKBudget && incoming.Action == domain.OrderActionBid {
			maxAffordable := domain.Size(0)
			if price > 0 {
				maxAffordable = domain.Size(int64(budget) / int64(price))
			}
			if take > maxAffordable {
				take = maxAffordable
			}
		}
		if take > need-have {
			take = need - have
		}
		have += take
		if incoming.OrderType == domain.OrderTypeFOKBudget && incoming.Action == domain.OrderActionBid {
			budget -= domain.Price(int64(take) * int64(price))
		}
		if take == bucket.TotalVolume {
			continue // exhausted this price level entirely, loop will skip it (empty)
		}
		break // partially filled this level is enough to satisfy need
	}
	return have
}

// match consumes resting liquidity on the opposite side to fill up to
// need, honoring price/budget limits, emitting TRADE events, and returns
// how much was actually matched.
func (b *NaiveBook) match(incoming *domain.OrderCommand, need domain.Size, chain *events.Chain) domain.Size {
	opposite := incoming.Action.Opposite()
	m := b.sideMap(opposite)
	budget := incoming.ReserveBidPrice
	var matched domain.Size

	for matched < need {
		price, ok := b.bestPrice(opposite)
		if !ok || !crosses(incoming, price) {
			break
		}
		bucket := m[price]
		node := bucket.Head()
		for node != nil && matched < need {
			resting := node.Order
			avail := resting.Remaining()
			take := need - matched
			if take > avail {
				take = avail
			}
			if incoming.OrderType == domain.OrderTypeFOKBudget && incoming.Action == domain.OrderActionBid && price > 0 {
				maxAffordable := domain.Size(int64(budget) / int64(price))
				if take > maxAffordable {
					take = maxAffordable
				}
				if take <= 0 {
					break
				}
				budget -= domain.Price(int64(take) * int64(price))
			}
			resting.Filled += take
			matched += take
			bucket.TotalVolume -= take

			restingCompleted := resting.Remaining() == 0
			activeCompleted := matched == need
			// bidderHoldPrice is always the BID side's reserve: the incoming
			// taker's when it is the bid (resting side is ASK), the resting
			// maker's when the incoming order is the ask (§4.3).
			bidderHold := resting.ReserveBidPrice
			if incoming.Action == domain.OrderActionBid {
				bidderHold = incoming.ReserveBidPrice
			}
			b.ev.Trade(chain, price, take, bidderHold, resting.OrderID, resting.UID, activeCompleted, restingCompleted)

			next := node.Next
			if restingCompleted {
				bucket.Unlink(node)
				delete(b.index, resting.OrderID)
				delete(b.side, resting.OrderID)
				b.pools.Put(pool.TagOrder, resting)
				b.pools.Put(pool.TagOrderNode, node)
			}
			node = next
		}
		if bucket.Empty() {
			delete(m, price)
			b.pools.Put(pool.TagBucket, bucket)
		}
	}
	return matched
}

func (b *NaiveBook) PlaceOrder(cmd *domain.OrderCommand) PlaceResult {
	chain := &events.Chain{}

	if cmd.OrderType == domain.OrderTypeFOK || cmd.OrderType == domain.OrderTypeFOKBudget {
		if b.availableLiquidity(cmd, cmd.Size) < cmd.Size {
			b.ev.Reject(chain, cmd.Size)
			return PlaceResult{Rejected: true, Events: chain.Head}
		}
	}

	matched := b.match(cmd, cmd.Size, chain)
	remaining := cmd.Size - matched

	if remaining > 0 {
		if cmd.OrderType == domain.OrderTypeGTC {
			b.restOrder(cmd, remaining)
		} else {
			b.ev.Reject(chain, remaining)
		}
	}
	return PlaceResult{MatchedSize: matched, Events: chain.Head}
}

func (b *NaiveBook) restOrder(cmd *domain.OrderCommand, remaining domain.Size) {
	order := b.pools.Get(pool.TagOrder).(*domain.Order)
	order.OrderID = cmd.OrderID
	order.Price = cmd.Price
	order.Size = remaining
	order.Filled = 0
	order.ReserveBidPrice = cmd.ReserveBidPrice
	order.Action = cmd.Action
	order.UID = cmd.UID
	order.Timestamp = cmd.Timestamp

	node := b.pools.Get(pool.TagOrderNode).(*domain.OrderNode)
	node.Order = order

	m := b.sideMap(cmd.Action)
	bucket, ok := m[cmd.Price]
	if !ok {
		bucket = b.pools.Get(pool.TagBucket).(*domain.Bucket)
		bucket.Price = cmd.Price
		m[cmd.Price] = bucket
	}
	bucket.Append(node)

	b.index[cmd.OrderID] = node
	b.side[cmd.OrderID] = cmd.Action
}

func (b *NaiveBook) CancelOrder(action domain.OrderAction, orderID domain.OrderID) (*domain.MatcherTradeEvent, domain.Size, bool) {
	node, ok := b.index[orderID]
	if !ok {
		return nil, 0, false
	}
	remaining := node.Order.Remaining()
	price := node.Order.Price
	m := b.sideMap(action)
	bucket, ok := m[price]
	if !ok {
		return nil, 0, false
	}
	bucket.Unlink(node)
	bucket.TotalVolume -= remaining
	if bucket.Empty() {
		delete(m, price)
		b.pools.Put(pool.TagBucket, bucket)
	}
	delete(b.index, orderID)
	delete(b.side, orderID)
	b.pools.Put(pool.TagOrder, node.Order)
	b.pools.Put(pool.TagOrderNode, node)

	chain := &events.Chain{}
	b.ev.Reduce(chain, remaining, price, true)
	return chain.Head, remaining, true
}

func (b *NaiveBook) ReduceOrder(action domain.OrderAction, orderID domain.OrderID, reduceBy domain.Size) (*domain.MatcherTradeEvent, domain.Size, bool) {
	node, ok := b.index[orderID]
	if !ok {
		return nil, 0, false
	}
	remaining := node.Order.Remaining()
	if reduceBy > remaining {
		reduceBy = remaining
	}
	if reduceBy == remaining {
		// Full reduction is a cancel: delegate so the emitted REDUCE event
		// carries completed=true the same way CancelOrder's does (§4.3).
		return b.CancelOrder(action, orderID)
	}

	price := node.Order.Price
	node.Order.Size -= reduceBy
	m := b.sideMap(action)
	if bucket, ok := m[price]; ok {
		bucket.TotalVolume -= reduceBy
	}

	chain := &events.Chain{}
	b.ev.Reduce(chain, reduceBy, price, false)
	return chain.Head, reduceBy, true
}

func (b *NaiveBook) MoveOrder(action domain.OrderAction, orderID domain.OrderID, newPrice domain.Price) MoveResult {
	node, ok := b.index[orderID]
	if !ok {
		return MoveResult{Rejected: true}
	}
	// §4.3 Move: reject a BID relocation above the order's reserve before
	// touching any state, so a failed move leaves the book untouched (§7).
	if action == domain.OrderActionBid && newPrice > node.Order.ReserveBidPrice {
		return MoveResult{Rejected: true, PriceRejected: true}
	}

	oldPrice := node.Order.Price
	remaining := node.Order.Remaining()

	cmd := &domain.OrderCommand{
		OrderID:         orderID,
		SymbolID:        b.symbol,
		Price:           newPrice,
		ReserveBidPrice: node.Order.ReserveBidPrice,
		Action:          action,
		OrderType:       domain.OrderTypeGTC,
		UID:             node.Order.UID,
		Timestamp:       node.Order.Timestamp,
		Size:            remaining,
	}
	b.CancelOrder(action, orderID)
	placed := b.PlaceOrder(cmd)

	chain := &events.Chain{}
	stillResting := remaining - placed.MatchedSize
	if stillResting > 0 {
		b.ev.Reduce(chain, stillResting, oldPrice, false)
	}
	head := chain.Head
	if head == nil {
		head = placed.Events
	} else {
		tail := head
		for tail.Next != nil {
			tail = tail.Next
		}
		tail.Next = placed.Events
	}

	return MoveResult{
		MatchedSize: placed.MatchedSize,
		Remaining:   remaining - placed.MatchedSize,
		Rejected:    placed.Rejected,
		OldPrice:    oldPrice,
		Events:      head,
	}
}

func (b *NaiveBook) L2(depth int) *domain.L2MarketData {
	l2 := &domain.L2MarketData{}
	l2.AskLevels = collectLevels(b.asks, depth, domain.OrderActionAsk)
	l2.BidLevels = collectLevels(b.bids, depth, domain.OrderActionBid)
	return l2
}

func collectLevels(m map[domain.Price]*domain.Bucket, depth int, action domain.OrderAction) []domain.L2Level {
	prices := make([]domain.Price, 0, len(m))
	for p, bucket := range m {
		if !bucket.Empty() {
			prices = append(prices, p)
		}
	}
	for i := 1; i < len(prices); i++ {
		for j := i; j > 0; j-- {
			less := prices[j] < prices[j-1]
			if action == domain.OrderActionBid {
				less = prices[j] > prices[j-1]
			}
			if less {
				prices[j], prices[j-1] = prices[j-1], prices[j]
			} else {
				break
			}
		}
	}
	if depth > 0 && len(prices) > depth {
		prices = prices[:depth]
	}
	levels := make([]domain.L2Level, len(prices))
	for i, p := range prices {
		bucket := m[p]
		levels[i] = domain.L2Level{Price: p, Volume: bucket.TotalVolume, OrderCount: bucket.NumOrders}
	}
	return levels
}

func (b *NaiveBook) Validate() error {
	for p, bucket := range b.asks {
		if err := validateBucket(p, bucket, b.side, domain.OrderActionAsk); err != nil {
			return err
		}
	}
	for p, bucket := range b.bids {
		if err := validateBucket(p, bucket, b.side, domain.OrderActionBid); err != nil {
			return err
		}
	}
	return nil
}

func validateBucket(price domain.Price, bucket *domain.Bucket, sides map[domain.OrderID]domain.OrderAction, action domain.OrderAction) error {
	var total domain.Size
	var count int32
	var err error
	bucket.ForEach(func(n *domain.OrderNode) bool {
		if n.Order.Price != price {
			err = fmt.Errorf("orderbook: order %d price %d != bucket price %d", n.Order.OrderID, n.Order.Price, price)
			return false
		}
		if sides[n.Order.OrderID] != action {
			err = fmt.Errorf("orderbook: order %d side mismatch", n.Order.OrderID)
			return false
		}
		total += n.Order.Remaining()
		count++
		return true
	})
	if err != nil {
		return err
	}
	if total != bucket.TotalVolume {
		return fmt.Errorf("orderbook: bucket %d volume %d != computed %d", price, bucket.TotalVolume, total)
	}
	if count != bucket.NumOrders {
		return fmt.Errorf("orderbook: bucket %d count %d != computed %d", price, bucket.NumOrders, count)
	}
	return nil
}
