// Package matching owns per-symbol order books and routes OrderCommands
// to the right one (§4.5, §4.8). One Router serves one matching shard.
package matching

import (
	"encoding/binary"
	"fmt"

	"github.com/tradsys-labs/exchange-core/internal/domain"
	"github.com/tradsys-labs/exchange-core/internal/events"
	"github.com/tradsys-labs/exchange-core/internal/orderbook"
	"github.com/tradsys-labs/exchange-core/internal/pool"
	"github.com/tradsys-labs/exchange-core/internal/risk"
)

// BookKind selects which order book implementation a symbol uses.
type BookKind uint8

const (
	BookKindDirect BookKind = iota
	BookKindNaive
)

// SpecProvider resolves a symbol's immutable spec (§3).
type SpecProvider interface {
	Get(id domain.SymbolID) (*domain.SymbolSpec, bool)
	Put(spec *domain.SymbolSpec)
}

// specRegistry is the in-memory SpecProvider; a production deployment
// sources its initial contents from the persistence snapshot on startup.
type specRegistry struct {
	specs map[domain.SymbolID]*domain.SymbolSpec
}

func NewSpecRegistry() SpecProvider {
	return &specRegistry{specs: make(map[domain.SymbolID]*domain.SymbolSpec)}
}

func (r *specRegistry) Get(id domain.SymbolID) (*domain.SymbolSpec, bool) {
	s, ok := r.specs[id]
	return s, ok
}

func (r *specRegistry) Put(spec *domain.SymbolSpec) {
	r.specs[spec.SymbolID] = spec
}

// Router owns one order book per symbol and dispatches commands to it
// (§4.5). A Router is confined to a single matching-engine shard and
// serves every symbol whose spec it holds; it does no symbol partitioning
// of its own, and the pipeline's grouping stage does none either.
type Router struct {
	specs SpecProvider
	pools *pool.Manager
	kind  BookKind
	ev    *events.Helper
	bin   *BinaryProcessor

	books map[domain.SymbolID]orderbook.Book
}

// NewRouter builds a Router, including the binary command/query processor
// (§4.9) used to reassemble and dispatch ADD_SYMBOLS/ADD_ACCOUNTS/report
// frames.
func NewRouter(specs SpecProvider, pools *pool.Manager, kind BookKind) (*Router, error) {
	bin, err := NewBinaryProcessor()
	if err != nil {
		return nil, err
	}
	return &Router{
		specs: specs,
		pools: pools,
		kind:  kind,
		ev:    events.NewHelper(pools),
		bin:   bin,
		books: make(map[domain.SymbolID]orderbook.Book),
	}, nil
}

func (r *Router) bookFor(id domain.SymbolID) (orderbook.Book, error) {
	if b, ok := r.books[id]; ok {
		return b, nil
	}
	if _, ok := r.specs.Get(id); !ok {
		return nil, fmt.Errorf("matching: unknown symbol %d", id)
	}
	var b orderbook.Book
	switch r.kind {
	case BookKindDirect:
		b = orderbook.NewDirectBook(id, r.pools)
	default:
		b = orderbook.NewNaiveBook(id, r.pools)
	}
	r.books[id] = b
	return b, nil
}

// Process dispatches cmd to its symbol's book, mutating cmd.ResultCode and
// cmd.EventsHead in place the way the pipeline expects every stage to
// (§6): it returns nothing, and a domain failure is reported only through
// cmd.ResultCode.
func (r *Router) Process(cmd *domain.OrderCommand) {
	book, err := r.bookFor(cmd.SymbolID)
	if err != nil {
		cmd.ResultCode = domain.ResultMatchingInvalidOrderBookID
		return
	}
	switch cmd.Type {
	case domain.CommandPlaceOrder:
		res := book.PlaceOrder(cmd)
		cmd.EventsHead = res.Events
		if res.Rejected && res.MatchedSize == 0 {
			cmd.ResultCode = domain.ResultAccepted
		} else {
			cmd.ResultCode = domain.ResultSuccess
		}
	case domain.CommandCancelOrder:
		head, _, ok := book.CancelOrder(cmd.Action, cmd.OrderID)
		if !ok {
			cmd.ResultCode = domain.ResultMatchingUnknownOrderID
			return
		}
		cmd.EventsHead = head
		cmd.ResultCode = domain.ResultSuccess
	case domain.CommandReduceOrder:
		head, _, ok := book.ReduceOrder(cmd.Action, cmd.OrderID, cmd.Size)
		if !ok {
			cmd.ResultCode = domain.ResultMatchingReduceFailedWrongSize
			return
		}
		cmd.EventsHead = head
		cmd.ResultCode = domain.ResultSuccess
	case domain.CommandMoveOrder:
		res := book.MoveOrder(cmd.Action, cmd.OrderID, cmd.Price)
		cmd.EventsHead = res.Events
		if res.Rejected {
			if res.PriceRejected {
				cmd.ResultCode = domain.ResultMatchingMoveFailedPriceOverRiskLimit
			} else {
				cmd.ResultCode = domain.ResultMatchingUnknownOrderID
			}
			return
		}
		cmd.ResultCode = domain.ResultSuccess
	case domain.CommandOrderBookRequest:
		cmd.MarketData = book.L2(int(cmd.Size))
		cmd.ResultCode = domain.ResultSuccess
	default:
		cmd.ResultCode = domain.ResultSuccess
	}
}

// ProcessBinary reassembles a BINARY_DATA_COMMAND/QUERY frame sequence and,
// once the terminal frame arrives, dispatches by its leading class code
// (§4.5, §4.9): ADD_SYMBOLS registers a batch of SymbolSpecs with both the
// router and the risk engine (which keep independent spec maps), ADD_ACCOUNTS
// credits a batch of user accounts, and report queries answer against eng's
// state, serialized back as a BINARY_EVENT chain on cmd.EventsHead.
func (r *Router) ProcessBinary(cmd *domain.OrderCommand, eng *risk.Engine) {
	payload, done, err := r.bin.Accept(cmd)
	if err != nil {
		cmd.ResultCode = domain.ResultMatchingInvalidOrderBookID
		return
	}
	if !done {
		cmd.ResultCode = domain.ResultSuccess
		return
	}
	if len(payload) < 4 {
		cmd.ResultCode = domain.ResultMatchingInvalidOrderBookID
		return
	}
	class := int32(binary.LittleEndian.Uint32(payload[0:4]))
	body := payload[4:]

	switch class {
	case ClassAddSymbols:
		for _, spec := range decodeSymbolSpecs(body) {
			r.specs.Put(spec)
			eng.RegisterSymbol(spec)
		}
		cmd.ResultCode = domain.ResultSuccess
	case ClassAddAccounts:
		eng.AddAccounts(decodeAccountRecords(body))
		cmd.ResultCode = domain.ResultSuccess
	case ClassReportStateHash, ClassReportSingleUser, ClassReportTotalCurrencyBalance:
		answer, ok := r.HandleReport(class, body, eng)
		if !ok {
			cmd.ResultCode = domain.ResultMatchingInvalidOrderBookID
			return
		}
		chain := &events.Chain{}
		r.ev.CreateBinaryEventsChain(chain, class, answer)
		cmd.EventsHead = chain.Head
		cmd.ResultCode = domain.ResultSuccess
	default:
		cmd.ResultCode = domain.ResultMatchingInvalidOrderBookID
	}
}

// Validate checks every open book's invariants (§8), used by the
// determinism/STATE_HASH tests and by periodic self-checks.
func (r *Router) Validate() error {
	for id, b := range r.books {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("matching: symbol %d: %w", id, err)
		}
	}
	return nil
}
