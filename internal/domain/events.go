package domain

// EventType discriminates a MatcherTradeEvent (§3).
type EventType uint8

const (
	EventTrade EventType = iota
	EventReduce
	EventReject
	EventBinary
)

// MatcherTradeEvent is a singly linked node emitted during matching and
// read-only thereafter (§5 "Shared state"). Events produced during one
// command are attached to the command's head pointer in emission order.
type MatcherTradeEvent struct {
	Kind    EventType
	Section int32

	ActiveOrderCompleted  bool
	MatchedOrderID        OrderID
	MatchedUID            UID
	MatchedOrderCompleted bool

	Price Price
	Size  Size

	// BidderHoldPrice is the taker's reserve price if the maker is an ASK,
	// else the maker's reserve price (§4.3 tryMatchInstantly).
	BidderHoldPrice Price

	// BinaryPayload carries five 64-bit words for BINARY_EVENT frames (§4.10).
	BinaryPayload [5]int64

	Next *MatcherTradeEvent
}

// Reset clears a MatcherTradeEvent for return to the event-chain pool.
func (e *MatcherTradeEvent) Reset() {
	*e = MatcherTradeEvent{}
}

// L2Level is one (price, aggregated volume, order count) tuple in an L2 snapshot.
type L2Level struct {
	Price      Price
	Volume     Size
	OrderCount int32
}

// L2MarketData is a bounded-depth snapshot of both sides of a book (§3).
// Shared by reference after publication: once attached to a result, it must
// not be mutated.
type L2MarketData struct {
	AskLevels []L2Level
	BidLevels []L2Level
	Timestamp Timestamp
	ReferenceSeq Seq
}

// Copy returns an independent deep copy; mutating the original afterwards
// must not be observable in the copy (§8 round-trip properties).
func (l *L2MarketData) Copy() *L2MarketData {
	if l == nil {
		return nil
	}
	out := &L2MarketData{
		Timestamp:    l.Timestamp,
		ReferenceSeq: l.ReferenceSeq,
	}
	if l.AskLevels != nil {
		out.AskLevels = append([]L2Level(nil), l.AskLevels...)
	}
	if l.BidLevels != nil {
		out.BidLevels = append([]L2Level(nil), l.BidLevels...)
	}
	return out
}

// OrderCommand is the pipeline event (§3, §6). The ring slot is reused
// across sequences; Reset must bring every field back to zero so the next
// producer starts from a clean slate.
type OrderCommand struct {
	Seq Seq

	Type     CommandType
	OrderID  OrderID
	SymbolID SymbolID

	Price           Price
	Size            Size
	ReserveBidPrice Price
	Action          OrderAction
	OrderType       OrderType

	UID        UID
	Timestamp  Timestamp
	UserCookie int64

	// ServiceFlags carries auxiliary per-command bits (e.g. "send L2 for
	// this command regardless of the sendL2ForEveryCmd setting").
	ServiceFlags int64

	ResultCode ResultCode
	Group      Group

	// Binary payload fields used by BINARY_DATA_COMMAND/QUERY framing (§6):
	// carried across five 64-bit words per frame, reassembled by the
	// BinaryCommandsProcessor keyed on UserCookie.
	BinaryWords [5]int64

	EventsHead *MatcherTradeEvent
	MarketData *L2MarketData
}

// Reset zeroes the command for reuse by the producer before the next publish.
func (c *OrderCommand) Reset() {
	*c = OrderCommand{}
}
