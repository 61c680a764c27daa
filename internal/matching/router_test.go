package matching

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradsys-labs/exchange-core/internal/art"
	"github.com/tradsys-labs/exchange-core/internal/domain"
	"github.com/tradsys-labs/exchange-core/internal/events"
	"github.com/tradsys-labs/exchange-core/internal/pool"
	"github.com/tradsys-labs/exchange-core/internal/risk"
)

// classHeader encodes a class code as the leading 4-byte little-endian
// word ProcessBinary expects, distinct from the 8-byte int64 records that
// follow it in the payload body.
func classHeader(class int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(class))
	return buf
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	mgr := pool.NewManager(pool.ProfileTest, false, art.Factories())
	r, err := NewRouter(NewSpecRegistry(), mgr, BookKindNaive)
	require.NoError(t, err)
	return r
}

func sendFrames(t *testing.T, r *Router, eng *risk.Engine, payload []byte) *domain.OrderCommand {
	t.Helper()
	frames, err := r.bin.Frames(1000, 42, payload)
	require.NoError(t, err)
	require.NotEmpty(t, frames)
	var last *domain.OrderCommand
	for _, f := range frames {
		r.ProcessBinary(f, eng)
		require.Equal(t, domain.ResultSuccess, f.ResultCode)
		last = f
	}
	return last
}

func encodeSymbolSpec(spec *domain.SymbolSpec) []byte {
	buf := appendI64(nil, int64(spec.SymbolID))
	buf = appendI64(buf, int64(spec.Type))
	buf = appendI64(buf, int64(spec.BaseCurrency))
	buf = appendI64(buf, int64(spec.QuoteCurrency))
	buf = appendI64(buf, spec.BaseScaleK)
	buf = appendI64(buf, spec.QuoteScaleK)
	buf = appendI64(buf, spec.TakerFee)
	buf = appendI64(buf, spec.MakerFee)
	buf = appendI64(buf, spec.MarginBuy)
	buf = appendI64(buf, spec.MarginSell)
	return buf
}

func encodeAccountRecord(rec risk.AccountRecord) []byte {
	buf := appendI64(nil, int64(rec.UID))
	buf = appendI64(buf, int64(rec.Currency))
	buf = appendI64(buf, rec.Amount)
	return buf
}

// TestRouter_ProcessBinary_AddSymbolsAndAccounts exercises the full binary
// frame round trip (§4.9): Frames splits a compressed ADD_SYMBOLS/
// ADD_ACCOUNTS payload into five-word OrderCommand frames, and
// ProcessBinary reassembles and dispatches them once the terminal frame
// (symbol == -1) arrives.
func TestRouter_ProcessBinary_AddSymbolsAndAccounts(t *testing.T) {
	r := newTestRouter(t)
	eng := risk.NewEngine(risk.NewProfiles())

	spec := &domain.SymbolSpec{
		SymbolID: 241, Type: domain.SymbolTypeCurrencyExchangePair,
		BaseCurrency: 2, QuoteCurrency: 1,
		BaseScaleK: 1_000_000, QuoteScaleK: 10_000, TakerFee: 1900, MakerFee: 700,
	}
	addSymbols := append(classHeader(ClassAddSymbols), encodeSymbolSpec(spec)...)
	sendFrames(t, r, eng, addSymbols)

	if _, ok := r.specs.Get(241); !assert.True(t, ok) {
		t.FailNow()
	}

	require.Equal(t, domain.ResultSuccess, eng.Profiles().AddUser(301))
	addAccounts := append(classHeader(ClassAddAccounts), encodeAccountRecord(risk.AccountRecord{UID: 301, Currency: 1, Amount: 500})...)
	sendFrames(t, r, eng, addAccounts)

	u301, ok := eng.Profiles().Get(301)
	require.True(t, ok)
	assert.Equal(t, int64(500), u301.Accounts[domain.Currency(1)])
}

// TestRouter_ProcessBinary_StateHashReport drives a STATE_HASH query
// through the full binary pipeline and checks the answer arrives on
// cmd.EventsHead as a BINARY_EVENT chain decodable by
// events.DeserializeEvents (§6 "State hash").
func TestRouter_ProcessBinary_StateHashReport(t *testing.T) {
	r := newTestRouter(t)
	eng := risk.NewEngine(risk.NewProfiles())
	spec := &domain.SymbolSpec{
		SymbolID: 241, Type: domain.SymbolTypeCurrencyExchangePair,
		BaseCurrency: 2, QuoteCurrency: 1,
		BaseScaleK: 1_000_000, QuoteScaleK: 10_000, TakerFee: 1900, MakerFee: 700,
	}
	r.specs.Put(spec)
	eng.RegisterSymbol(spec)
	r.bookFor(241)

	query := classHeader(ClassReportStateHash)
	last := sendFrames(t, r, eng, query)
	require.NotNil(t, last.EventsHead)

	out := events.DeserializeEvents(last.EventsHead)
	payload, ok := out[ClassReportStateHash]
	require.True(t, ok)
	assert.Len(t, payload, 32) // sha256 digest

	// Two independent routers fed the identical sequence of commands must
	// produce byte-identical state hashes (§8 invariant 6).
	r2 := newTestRouter(t)
	eng2 := risk.NewEngine(risk.NewProfiles())
	r2.specs.Put(spec)
	eng2.RegisterSymbol(spec)
	r2.bookFor(241)
	last2 := sendFrames(t, r2, eng2, query)
	out2 := events.DeserializeEvents(last2.EventsHead)
	assert.Equal(t, payload, out2[ClassReportStateHash])
}

// TestRouter_EndToEnd_PlaceMatchCancel wires risk.Engine and Router
// together the way the pipeline's R1 -> match -> R2 sequence does (§4.6,
// §4.11), reproducing §8 S1's settlement alongside the book-level match,
// then cancelling the resting remainder.
func TestRouter_EndToEnd_PlaceMatchCancel(t *testing.T) {
	r := newTestRouter(t)
	eng := risk.NewEngine(risk.NewProfiles())
	spec := &domain.SymbolSpec{
		SymbolID: 241, Type: domain.SymbolTypeCurrencyExchangePair,
		BaseCurrency: 2, QuoteCurrency: 1,
		BaseScaleK: 1_000_000, QuoteScaleK: 10_000, TakerFee: 1900, MakerFee: 700,
	}
	r.specs.Put(spec)
	eng.RegisterSymbol(spec)

	profiles := eng.Profiles()
	require.Equal(t, domain.ResultSuccess, profiles.AddUser(301))
	require.Equal(t, domain.ResultSuccess, profiles.AddUser(302))
	_, code := profiles.BalanceAdjustment(301, 1, 2_000_000_000, 1)
	require.Equal(t, domain.ResultSuccess, code)
	_, code = profiles.BalanceAdjustment(302, 2, 10_000_000, 1)
	require.Equal(t, domain.ResultSuccess, code)

	bid := &domain.OrderCommand{
		Type: domain.CommandPlaceOrder, OrderID: 5001, SymbolID: 241,
		Action: domain.OrderActionBid, OrderType: domain.OrderTypeGTC,
		Price: 15400, Size: 12, UID: 301, ReserveBidPrice: 15600,
	}
	require.Equal(t, domain.ResultSuccess, eng.PreHold(bid))
	r.Process(bid)
	require.Equal(t, domain.ResultSuccess, bid.ResultCode)
	require.Equal(t, domain.ResultSuccess, eng.Release(bid))

	ask := &domain.OrderCommand{
		Type: domain.CommandPlaceOrder, OrderID: 5002, SymbolID: 241,
		Action: domain.OrderActionAsk, OrderType: domain.OrderTypeIOC,
		Price: 15250, Size: 10, UID: 302,
	}
	require.Equal(t, domain.ResultSuccess, eng.PreHold(ask))
	r.Process(ask)
	require.Equal(t, domain.ResultSuccess, ask.ResultCode)
	require.Equal(t, domain.ResultSuccess, eng.Release(ask))

	u302, _ := profiles.Get(302)
	wantQuote := int64(10)*15400*spec.QuoteScaleK - int64(10)*spec.TakerFee
	assert.Equal(t, wantQuote, u302.Accounts[domain.Currency(1)])

	u301, _ := profiles.Get(301)
	assert.Equal(t, int64(10)*spec.BaseScaleK, u301.Accounts[domain.Currency(2)])

	cancel := &domain.OrderCommand{
		Type: domain.CommandCancelOrder, SymbolID: 241, Action: domain.OrderActionBid,
		OrderID: 5001, UID: 301, Price: 15400,
	}
	r.Process(cancel)
	require.Equal(t, domain.ResultSuccess, cancel.ResultCode)
	require.NotNil(t, cancel.EventsHead)
	assert.Equal(t, domain.Size(2), cancel.EventsHead.Size)
	require.Equal(t, domain.ResultSuccess, eng.Release(cancel))

	require.NoError(t, r.Validate())
}

func TestRouter_Process_UnknownSymbol(t *testing.T) {
	r := newTestRouter(t)
	cmd := &domain.OrderCommand{Type: domain.CommandPlaceOrder, SymbolID: 999}
	r.Process(cmd)
	assert.Equal(t, domain.ResultMatchingInvalidOrderBookID, cmd.ResultCode)
}

func TestRouter_Process_CancelUnknownOrder(t *testing.T) {
	r := newTestRouter(t)
	spec := &domain.SymbolSpec{SymbolID: 241, BaseScaleK: 1, QuoteScaleK: 1}
	r.specs.Put(spec)
	cmd := &domain.OrderCommand{Type: domain.CommandCancelOrder, SymbolID: 241, OrderID: 999}
	r.Process(cmd)
	assert.Equal(t, domain.ResultMatchingUnknownOrderID, cmd.ResultCode)
}
