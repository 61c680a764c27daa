package pool

import "github.com/tradsys-labs/exchange-core/internal/domain"

// Profile is a named capacity tuning knob set (§4.2). The concrete numbers
// are tuning knobs, not invariants.
type Profile struct {
	Name string

	Orders                int
	Buckets               int
	ArtNode4              int
	ArtNode16             int
	ArtNode48             int
	ArtNode256            int
	SymbolPositionRecords int
	Events                int
}

var (
	ProfileTest = Profile{
		Name:   "test",
		Orders: 1 << 10, Buckets: 1 << 8,
		ArtNode4: 256, ArtNode16: 128, ArtNode48: 64, ArtNode256: 32,
		SymbolPositionRecords: 256,
		Events:                1 << 12,
	}

	ProfileProduction = Profile{
		Name:   "production",
		Orders: 1_000_000, Buckets: 64_000,
		ArtNode4: 32_000, ArtNode16: 16_000, ArtNode48: 8_000, ArtNode256: 4_000,
		SymbolPositionRecords: 128_000,
		Events:                2_000_000,
	}

	ProfileHighLoad = Profile{
		Name:   "high-load",
		Orders: ProfileProduction.Orders * 2, Buckets: ProfileProduction.Buckets * 2,
		ArtNode4: ProfileProduction.ArtNode4 * 2, ArtNode16: ProfileProduction.ArtNode16 * 2,
		ArtNode48: ProfileProduction.ArtNode48 * 2, ArtNode256: ProfileProduction.ArtNode256 * 2,
		SymbolPositionRecords: ProfileProduction.SymbolPositionRecords * 2,
		Events:                ProfileProduction.Events * 2,
	}
)

// ArtNodeFactories supplies the art package's own node constructors so that
// Manager can own ART-node pools without this package importing art (art
// imports pool, not the other way around).
type ArtNodeFactories struct {
	Node4, Node16, Node48, Node256 func() Resettable
}

// Manager owns one Pool per tag for a single stage. It is the handle passed
// explicitly to every construction site on that stage (§9 "Global mutable
// state" — the pool is never a process-wide singleton).
type Manager struct {
	pools [tagCount]*Pool
	debug bool
}

// NewManager builds a Manager sized by profile, with factories that return
// zero-valued, already-Reset instances of each pooled type.
func NewManager(profile Profile, debug bool, art ArtNodeFactories) *Manager {
	m := &Manager{debug: debug}
	m.pools[TagOrder] = New(profile.Orders, func() Resettable { return &domain.Order{} }, debug)
	m.pools[TagOrderNode] = New(profile.Orders, func() Resettable { return &domain.OrderNode{} }, debug)
	m.pools[TagBucket] = New(profile.Buckets, func() Resettable { return &domain.Bucket{} }, debug)
	m.pools[TagDirectOrder] = New(profile.Orders, func() Resettable { return &DirectOrder{} }, debug)
	m.pools[TagDirectBucket] = New(profile.Buckets, func() Resettable { return &DirectBucket{} }, debug)
	if art.Node4 != nil {
		m.pools[TagArtNode4] = New(profile.ArtNode4, art.Node4, debug)
	}
	if art.Node16 != nil {
		m.pools[TagArtNode16] = New(profile.ArtNode16, art.Node16, debug)
	}
	if art.Node48 != nil {
		m.pools[TagArtNode48] = New(profile.ArtNode48, art.Node48, debug)
	}
	if art.Node256 != nil {
		m.pools[TagArtNode256] = New(profile.ArtNode256, art.Node256, debug)
	}
	m.pools[TagSymbolPositionRecord] = New(profile.SymbolPositionRecords, func() Resettable { return &domain.SymbolPositionRecord{} }, debug)
	m.pools[TagMatcherTradeEvent] = New(profile.Events, func() Resettable { return &domain.MatcherTradeEvent{} }, debug)
	return m
}

// Get returns a recycled or fresh instance for tag.
func (m *Manager) Get(tag Tag) Resettable {
	return m.pools[tag].Get()
}

// Put returns an instance to its tag's pool.
func (m *Manager) Put(tag Tag, v Resettable) {
	m.pools[tag].Put(v)
}

// Stats returns per-tag pool diagnostics, keyed by tag.
func (m *Manager) Stats() map[Tag]Stats {
	out := make(map[Tag]Stats, tagCount)
	for t := Tag(0); t < tagCount; t++ {
		if m.pools[t] != nil {
			out[t] = m.pools[t].Stats()
		}
	}
	return out
}

// DirectOrder and DirectBucket are declared here (rather than in the art or
// orderbook packages) so the pool manager can be built without importing
// those packages; orderbook.DirectBook assembles the ART/order-book semantics
// on top of these pooled arena slots (§4.4, §9 "cyclic graphs": orders and
// buckets are arena-owned values reached through pooled pointers, not a
// graph of interface references).
type DirectOrder struct {
	OrderID         domain.OrderID
	Price           domain.Price
	Size            domain.Size
	Filled          domain.Size
	ReserveBidPrice domain.Price
	Action          domain.OrderAction
	UID             domain.UID
	Timestamp       domain.Timestamp

	Prev, Next *DirectOrder
	Bucket     *DirectBucket
}

func (o *DirectOrder) Remaining() domain.Size { return o.Size - o.Filled }

func (o *DirectOrder) Reset() {
	*o = DirectOrder{}
}

type DirectBucket struct {
	Price       domain.Price
	TotalVolume domain.Size
	NumOrders   int32
	Head, Tail  *DirectOrder
}

func (b *DirectBucket) Reset() {
	*b = DirectBucket{}
}

// Append adds an already-allocated order to the tail of the bucket's FIFO,
// the resting end new orders join (§9 Open Question: tail-pointer design).
func (b *DirectBucket) Append(o *DirectOrder) {
	o.Bucket = b
	o.Prev = b.Tail
	o.Next = nil
	if b.Tail != nil {
		b.Tail.Next = o
	}
	b.Tail = o
	if b.Head == nil {
		b.Head = o
	}
	b.NumOrders++
	b.TotalVolume += o.Remaining()
}

// Unlink removes o from the bucket's FIFO without touching TotalVolume
// (callers adjust it themselves, since fills and removals change it
// differently).
func (b *DirectBucket) Unlink(o *DirectOrder) {
	if o.Prev != nil {
		o.Prev.Next = o.Next
	} else {
		b.Head = o.Next
	}
	if o.Next != nil {
		o.Next.Prev = o.Prev
	} else {
		b.Tail = o.Prev
	}
	b.NumOrders--
}

func (b *DirectBucket) Empty() bool {
	return b.Head == nil
}
