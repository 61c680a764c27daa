package domain

// Order is a resting order in a book (§3). It is created when a GTC order
// fails to fully match on entry, and destroyed on cancel, full fill, or a
// move that fully matches. It is mutated only by the owning book.
type Order struct {
	OrderID         OrderID
	Price           Price
	Size            Size
	Filled          Size
	ReserveBidPrice Price // exchange-mode BID GTC only
	Action          OrderAction
	UID             UID
	Timestamp       Timestamp
}

// Remaining returns the unfilled size.
func (o *Order) Remaining() Size {
	return o.Size - o.Filled
}

// Reset clears an Order for return to the object pool. Pool contract: Get
// returns freshly reset state, so Reset must zero every field.
func (o *Order) Reset() {
	*o = Order{}
}

// OrderNode is one link in a Bucket's resting-order FIFO. Kept separate
// from Order so the naive book can pool nodes independently of the orders
// they wrap (an order moves buckets by re-linking, not by copying).
type OrderNode struct {
	Order *Order
	Prev  *OrderNode
	Next  *OrderNode
}

// Reset clears an OrderNode for return to the object pool.
func (n *OrderNode) Reset() {
	n.Order = nil
	n.Prev = nil
	n.Next = nil
}

// Bucket is a FIFO of resting orders at one price level (§3). Invariants:
// TotalVolume == sum(size-filled) over the FIFO; NumOrders == len(FIFO);
// empty buckets are deleted by the owning book.
type Bucket struct {
	Price       Price
	TotalVolume Size
	NumOrders   int32

	head *OrderNode
	tail *OrderNode
}

// Reset clears a Bucket for return to the object pool.
func (b *Bucket) Reset() {
	b.Price = 0
	b.TotalVolume = 0
	b.NumOrders = 0
	b.head = nil
	b.tail = nil
}

// Append adds an already-allocated node to the tail of the bucket's FIFO
// and updates the running totals.
func (b *Bucket) Append(n *OrderNode) {
	n.Prev = b.tail
	n.Next = nil
	if b.tail != nil {
		b.tail.Next = n
	}
	b.tail = n
	if b.head == nil {
		b.head = n
	}
	b.NumOrders++
	b.TotalVolume += n.Order.Remaining()
}

// Unlink removes a node from the bucket's FIFO without touching TotalVolume
// (callers adjust TotalVolume themselves since a partial fill and a removal
// change it by different amounts).
func (b *Bucket) Unlink(n *OrderNode) {
	if n.Prev != nil {
		n.Prev.Next = n.Next
	} else {
		b.head = n.Next
	}
	if n.Next != nil {
		n.Next.Prev = n.Prev
	} else {
		b.tail = n.Prev
	}
	b.NumOrders--
}

// Head returns the first node in the FIFO, or nil if empty.
func (b *Bucket) Head() *OrderNode {
	return b.head
}

// Empty reports whether the bucket has no resting orders.
func (b *Bucket) Empty() bool {
	return b.head == nil
}

// ForEach walks the FIFO front to back, stopping early if consume returns false.
func (b *Bucket) ForEach(consume func(*OrderNode) bool) {
	for n := b.head; n != nil; n = n.Next {
		if !consume(n) {
			return
		}
	}
}
