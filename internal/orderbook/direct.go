package orderbook

import (
	"fmt"
	"math"

	"github.com/tradsys-labs/exchange-core/internal/art"
	"github.com/tradsys-labs/exchange-core/internal/domain"
	"github.com/tradsys-labs/exchange-core/internal/events"
	"github.com/tradsys-labs/exchange-core/internal/pool"
)

// DirectBook indexes resting orders with an ART per side (§4.1) plus a
// global orderID -> *pool.DirectOrder map, giving O(log n)-ish best-price
// lookup instead of NaiveBook's linear scan (§4.4).
type DirectBook struct {
	symbol domain.SymbolID
	pools  *pool.Manager
	ev     *events.Helper

	asks *art.Tree
	bids *art.Tree

	index map[domain.OrderID]*pool.DirectOrder
	side  map[domain.OrderID]domain.OrderAction
}

func NewDirectBook(symbol domain.SymbolID, pools *pool.Manager) *DirectBook {
	return &DirectBook{
		symbol: symbol,
		pools:  pools,
		ev:     events.NewHelper(pools),
		asks:   art.New(pools),
		bids:   art.New(pools),
		index:  make(map[domain.OrderID]*pool.DirectOrder),
		side:   make(map[domain.OrderID]domain.OrderAction),
	}
}

func (b *DirectBook) sideTree(action domain.OrderAction) *art.Tree {
	if action == domain.OrderActionAsk {
		return b.asks
	}
	return b.bids
}

// bestPrice returns the lowest price for asks, highest for bids — exactly
// NaiveBook.bestPrice's semantics, derived here from the tree's
// Ceiling/Floor instead of a full scan.
func (b *DirectBook) bestPrice(action domain.OrderAction) (domain.Price, bool) {
	tree := b.sideTree(action)
	if action == domain.OrderActionAsk {
		k, _, ok := tree.Ceiling(math.MinInt64)
		return domain.Price(k), ok
	}
	k, _, ok := tree.Floor(math.MaxInt64)
	return domain.Price(k), ok
}

func (b *DirectBook) BestPrices() (bestAsk domain.Price, hasAsk bool, bestBid domain.Price, hasBid bool) {
	bestAsk, hasAsk = b.bestPrice(domain.OrderActionAsk)
	bestBid, hasBid = b.bestPrice(domain.OrderActionBid)
	return
}

func (b *DirectBook) availableLiquidity(incoming *domain.OrderCommand, need domain.Size) domain.Size {
	opposite := incoming.Action.Opposite()
	budget := incoming.ReserveBidPrice
	var have domain.Size
	for have < need {
		price, ok := b.bestPrice(opposite)
		if !ok || !crosses(incoming, price) {
			break
		}
		bucketVal, _ := b.sideTree(opposite).Get(int64(price))
		bucket := bucketVal.(*pool.DirectBucket)
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
			continue
		}
		break
	}
	return have
}

func (b *DirectBook) match(incoming *domain.OrderCommand, need domain.Size, chain *events.Chain) domain.Size {
	opposite := incoming.Action.Opposite()
	tree := b.sideTree(opposite)
	budget := incoming.ReserveBidPrice
	var matched domain.Size

	for matched < need {
		price, ok := b.bestPrice(opposite)
		if !ok || !crosses(incoming, price) {
			break
		}
		bucketVal, _ := tree.Get(int64(price))
		bucket := bucketVal.(*pool.DirectBucket)

		o := bucket.Head
		for o != nil && matched < need {
			avail := o.Remaining()
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
			o.Filled += take
			matched += take
			bucket.TotalVolume -= take

			restingCompleted := o.Remaining() == 0
			activeCompleted := matched == need
			// bidderHoldPrice is always the BID side's reserve: the incoming
			// taker's when it is the bid (resting side is ASK), the resting
			// maker's when the incoming order is the ask (§4.3).
			bidderHold := o.ReserveBidPrice
			if incoming.Action == domain.OrderActionBid {
				bidderHold = incoming.ReserveBidPrice
			}
			b.ev.Trade(chain, price, take, bidderHold, o.OrderID, o.UID, activeCompleted, restingCompleted)

			next := o.Next
			if restingCompleted {
				bucket.Unlink(o)
				delete(b.index, o.OrderID)
				delete(b.side, o.OrderID)
				b.pools.Put(pool.TagDirectOrder, o)
			}
			o = next
		}
		if bucket.Empty() {
			tree.Remove(int64(price))
			b.pools.Put(pool.TagDirectBucket, bucket)
		}
	}
	return matched
}

func (b *DirectBook) PlaceOrder(cmd *domain.OrderCommand) PlaceResult {
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

func (b *DirectBook) restOrder(cmd *domain.OrderCommand, remaining domain.Size) {
	o := b.pools.Get(pool.TagDirectOrder).(*pool.DirectOrder)
	o.OrderID = cmd.OrderID
	o.Price = cmd.Price
	o.Size = remaining
	o.Filled = 0
	o.ReserveBidPrice = cmd.ReserveBidPrice
	o.Action = cmd.Action
	o.UID = cmd.UID
	o.Timestamp = cmd.Timestamp

	tree := b.sideTree(cmd.Action)
	bucketVal, ok := tree.Get(int64(cmd.Price))
	var bucket *pool.DirectBucket
	if ok {
		bucket = bucketVal.(*pool.DirectBucket)
	} else {
		bucket = b.pools.Get(pool.TagDirectBucket).(*pool.DirectBucket)
		bucket.Price = cmd.Price
		tree.Put(int64(cmd.Price), bucket)
	}
	bucket.Append(o)

	b.index[cmd.OrderID] = o
	b.side[cmd.OrderID] = cmd.Action
}

func (b *DirectBook) CancelOrder(action domain.OrderAction, orderID domain.OrderID) (*domain.MatcherTradeEvent, domain.Size, bool) {
	o, ok := b.index[orderID]
	if !ok {
		return nil, 0, false
	}
	remaining := o.Remaining()
	price := o.Price
	bucket := o.Bucket
	bucket.Unlink(o)
	bucket.TotalVolume -= remaining
	if bucket.Empty() {
		b.sideTree(action).Remove(int64(price))
		b.pools.Put(pool.TagDirectBucket, bucket)
	}
	delete(b.index, orderID)
	delete(b.side, orderID)
	b.pools.Put(pool.TagDirectOrder, o)

	chain := &events.Chain{}
	b.ev.Reduce(chain, remaining, price, true)
	return chain.Head, remaining, true
}

func (b *DirectBook) ReduceOrder(action domain.OrderAction, orderID domain.OrderID, reduceBy domain.Size) (*domain.MatcherTradeEvent, domain.Size, bool) {
	o, ok := b.index[orderID]
	if !ok {
		return nil, 0, false
	}
	remaining := o.Remaining()
	if reduceBy > remaining {
		reduceBy = remaining
	}
	if reduceBy == remaining {
		// Full reduction is a cancel: delegate so the emitted REDUCE event
		// carries completed=true the same way CancelOrder's does (§4.3).
		return b.CancelOrder(action, orderID)
	}

	price := o.Price
	o.Size -= reduceBy
	o.Bucket.TotalVolume -= reduceBy

	chain := &events.Chain{}
	b.ev.Reduce(chain, reduceBy, price, false)
	return chain.Head, reduceBy, true
}

func (b *DirectBook) MoveOrder(action domain.OrderAction, orderID domain.OrderID, newPrice domain.Price) MoveResult {
	o, ok := b.index[orderID]
	if !ok {
		return MoveResult{Rejected: true}
	}
	// §4.3 Move: reject a BID relocation above the order's reserve before
	// touching any state, so a failed move leaves the book untouched (§7).
	if action == domain.OrderActionBid && newPrice > o.ReserveBidPrice {
		return MoveResult{Rejected: true, PriceRejected: true}
	}

	oldPrice := o.Price
	remaining := o.Remaining()

	cmd := &domain.OrderCommand{
		OrderID:         orderID,
		SymbolID:        b.symbol,
		Price:           newPrice,
		ReserveBidPrice: o.ReserveBidPrice,
		Action:          action,
		OrderType:       domain.OrderTypeGTC,
		UID:             o.UID,
		Timestamp:       o.Timestamp,
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

func (b *DirectBook) L2(depth int) *domain.L2MarketData {
	l2 := &domain.L2MarketData{}
	l2.AskLevels = collectTreeLevels(b.asks, depth, true)
	l2.BidLevels = collectTreeLevels(b.bids, depth, false)
	return l2
}

func collectTreeLevels(tree *art.Tree, depth int, ascending bool) []domain.L2Level {
	levels := make([]domain.L2Level, 0, depth)
	visit := func(key int64, v any) bool {
		bucket := v.(*pool.DirectBucket)
		if bucket.Empty() {
			return true
		}
		levels = append(levels, domain.L2Level{Price: domain.Price(key), Volume: bucket.TotalVolume, OrderCount: bucket.NumOrders})
		return depth <= 0 || len(levels) < depth
	}
	if ascending {
		tree.ForEach(visit)
	} else {
		tree.ForEachDesc(visit)
	}
	return levels
}

func (b *DirectBook) Validate() error {
	if err := b.asks.Validate(); err != nil {
		return fmt.Errorf("orderbook: ask tree: %w", err)
	}
	if err := b.bids.Validate(); err != nil {
		return fmt.Errorf("orderbook: bid tree: %w", err)
	}
	var err error
	checkSide := func(key int64, v any) bool {
		bucket := v.(*pool.DirectBucket)
		var total domain.Size
		var count int32
		for o := bucket.Head; o != nil; o = o.Next {
			if o.Price != domain.Price(key) {
				err = fmt.Errorf("orderbook: direct order %d price %d != bucket price %d", o.OrderID, o.Price, key)
				return false
			}
			total += o.Remaining()
			count++
		}
		if total != bucket.TotalVolume {
			err = fmt.Errorf("orderbook: direct bucket %d volume %d != computed %d", key, bucket.TotalVolume, total)
			return false
		}
		if count != bucket.NumOrders {
			err = fmt.Errorf("orderbook: direct bucket %d count %d != computed %d", key, bucket.NumOrders, count)
			return false
		}
		return true
	}
	b.asks.ForEach(checkSide)
	if err != nil {
		return err
	}
	b.bids.ForEach(checkSide)
	return err
}
