package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradsys-labs/exchange-core/internal/domain"
)

const (
	ltc = domain.Currency(1)
	btc = domain.Currency(2)
)

func exchangeSpec() *domain.SymbolSpec {
	return &domain.SymbolSpec{
		SymbolID:      241,
		Type:          domain.SymbolTypeCurrencyExchangePair,
		BaseCurrency:  btc,
		QuoteCurrency: ltc,
		BaseScaleK:    1_000_000,
		QuoteScaleK:   10_000,
		TakerFee:      1900,
		MakerFee:      700,
	}
}

func newTestEngine(t *testing.T) (*Engine, *domain.SymbolSpec) {
	t.Helper()
	e := NewEngine(NewProfiles())
	spec := exchangeSpec()
	require.True(t, spec.Valid())
	e.RegisterSymbol(spec)
	return e, spec
}

// TestScenario1_FillOnEntry reproduces §8 S1: a resting GTC bid partially
// filled by an incoming IOC ask, checking both sides' fee-adjusted
// balances after PreHold (R1) and Release (R2).
func TestScenario1_FillOnEntry(t *testing.T) {
	e, spec := newTestEngine(t)
	profiles := e.Profiles()
	require.Equal(t, domain.ResultSuccess, profiles.AddUser(301))
	require.Equal(t, domain.ResultSuccess, profiles.AddUser(302))

	_, code := profiles.BalanceAdjustment(301, ltc, 2_000_000_000, 1)
	require.Equal(t, domain.ResultSuccess, code)
	_, code = profiles.BalanceAdjustment(302, btc, 10_000_000, 2)
	require.Equal(t, domain.ResultSuccess, code)

	bid := &domain.OrderCommand{
		OrderID: 5001, SymbolID: 241, Action: domain.OrderActionBid, OrderType: domain.OrderTypeGTC,
		Price: 15400, Size: 12, UID: 301, ReserveBidPrice: 15600,
	}
	require.Equal(t, domain.ResultSuccess, e.PreHold(bid))
	bidHold := int64(12)*15400*spec.QuoteScaleK + int64(12)*spec.MakerFee
	u301, _ := profiles.Get(301)
	assert.Equal(t, 2_000_000_000-bidHold, u301.Accounts[ltc])

	ask := &domain.OrderCommand{
		OrderID: 5002, SymbolID: 241, Action: domain.OrderActionAsk, OrderType: domain.OrderTypeIOC,
		Price: 15250, Size: 10, UID: 302,
	}
	require.Equal(t, domain.ResultSuccess, e.PreHold(ask))
	u302, _ := profiles.Get(302)
	assert.Equal(t, 10_000_000-10*spec.BaseScaleK, u302.Accounts[btc])

	// Matching: 5002 fully fills 10 of 5001's 12 at the resting price
	// 15400, bidderHoldPrice is the bid's own reserve (301's 15600).
	chain := &eventChain{}
	chain.trade(15400, 10, 15600, 5001, 301, true, false)
	bid.EventsHead = nil // the resting order (5001) is never itself released here
	ask.EventsHead = chain.head

	require.Equal(t, domain.ResultSuccess, e.Release(ask))
	u302, _ = profiles.Get(302)
	// Taker (ask) sells: credit quote at fill price, less taker fee.
	wantQuote := int64(10)*15400*spec.QuoteScaleK - int64(10)*spec.TakerFee
	assert.Equal(t, wantQuote, u302.Accounts[ltc])

	u301, _ = profiles.Get(301)
	// Maker (301, resting bid) credited base currency for the fill.
	assert.Equal(t, int64(10)*spec.BaseScaleK, u301.Accounts[btc])
}

// TestScenario3_CancelEmitsReduce reproduces §8 S3's refund arithmetic: a
// resting GTC bid of size 2 at price 15300 is cancelled, refunding the
// maker-rate hold for the full remaining size (Open Question decision 4).
func TestScenario3_CancelEmitsReduce(t *testing.T) {
	e, spec := newTestEngine(t)
	profiles := e.Profiles()
	require.Equal(t, domain.ResultSuccess, profiles.AddUser(301))
	_, code := profiles.BalanceAdjustment(301, ltc, 2_000_000_000, 1)
	require.Equal(t, domain.ResultSuccess, code)

	cmd := &domain.OrderCommand{
		OrderID: 5001, SymbolID: 241, Action: domain.OrderActionBid, OrderType: domain.OrderTypeGTC,
		Price: 15300, Size: 2, UID: 301, ReserveBidPrice: 15600,
	}
	require.Equal(t, domain.ResultSuccess, e.PreHold(cmd))
	afterHold, _ := profiles.Get(301)
	held := afterHold.Accounts[ltc]

	cancel := &domain.OrderCommand{
		Type: domain.CommandCancelOrder, SymbolID: 241, Action: domain.OrderActionBid, UID: 301, Price: 15300,
	}
	chain := &eventChain{}
	chain.reduce(2, 15300, true)
	cancel.EventsHead = chain.head

	require.Equal(t, domain.ResultSuccess, e.Release(cancel))
	u301, _ := profiles.Get(301)
	refund := int64(2)*15300*spec.QuoteScaleK + int64(2)*spec.MakerFee
	assert.Equal(t, held+refund, u301.Accounts[ltc])
	assert.Equal(t, int64(2_000_000_000), u301.Accounts[ltc], "cancel refunds exactly the held amount back")
}

// TestScenario4_FOKBudgetShortfall: PreHold on an empty book still reserves
// the worst-case hold regardless of book state (the book itself is what
// rejects a FOK_BUDGET shortfall; risk's own contract here is just that a
// rejected order's hold is fully returned via settleReject).
func TestScenario4_FOKBudgetShortfall(t *testing.T) {
	e, spec := newTestEngine(t)
	profiles := e.Profiles()
	require.Equal(t, domain.ResultSuccess, profiles.AddUser(303))
	_, code := profiles.BalanceAdjustment(303, ltc, 1_000_000_000, 1)
	require.Equal(t, domain.ResultSuccess, code)

	cmd := &domain.OrderCommand{
		OrderID: 5003, SymbolID: 241, Action: domain.OrderActionBid, OrderType: domain.OrderTypeFOKBudget,
		Price: 15000, Size: 1, UID: 303,
	}
	require.Equal(t, domain.ResultSuccess, e.PreHold(cmd))
	held := int64(1)*15000*spec.QuoteScaleK + int64(1)*spec.TakerFee

	chain := &eventChain{}
	chain.reject(1)
	cmd.EventsHead = chain.head
	require.Equal(t, domain.ResultSuccess, e.Release(cmd))

	u303, _ := profiles.Get(303)
	assert.Equal(t, int64(1_000_000_000), u303.Accounts[ltc])
	_ = held
}

// TestScenario5_SuspendResume reproduces §8 S5.
func TestScenario5_SuspendResume(t *testing.T) {
	e, _ := newTestEngine(t)
	profiles := e.Profiles()

	require.Equal(t, domain.ResultSuccess, profiles.AddUser(400))
	assert.Equal(t, domain.ResultSuccess, profiles.SuspendUser(400))
	assert.Equal(t, domain.ResultSuccess, profiles.ResumeUser(400))
	u400, ok := profiles.Get(400)
	require.True(t, ok)
	assert.Equal(t, domain.UserStatusActive, u400.Status)

	require.Equal(t, domain.ResultSuccess, profiles.AddUser(301))
	_, code := profiles.BalanceAdjustment(301, ltc, 500, 1)
	require.Equal(t, domain.ResultSuccess, code)
	assert.Equal(t, domain.ResultUserMgmtNonEmptyAccounts, profiles.SuspendUser(301))
}

func TestBalanceAdjustment_ReplayProtection(t *testing.T) {
	profiles := NewProfiles()
	require.Equal(t, domain.ResultSuccess, profiles.AddUser(1))

	_, code := profiles.BalanceAdjustment(1, ltc, 100, 5)
	require.Equal(t, domain.ResultSuccess, code)

	// Replaying the same or an older transaction id is rejected distinctly
	// from an NSF rejection (§8 invariant 4).
	_, code = profiles.BalanceAdjustment(1, ltc, 50, 5)
	assert.Equal(t, domain.ResultUserMgmtAdjustmentAlreadyAppliedMany, code)
	_, code = profiles.BalanceAdjustment(1, ltc, 50, 3)
	assert.Equal(t, domain.ResultUserMgmtAdjustmentAlreadyAppliedMany, code)

	_, code = profiles.BalanceAdjustment(1, ltc, -1000, 6)
	assert.Equal(t, domain.ResultUserMgmtAdjustmentNSF, code)

	rec, code := profiles.BalanceAdjustment(1, ltc, 25, 7)
	require.Equal(t, domain.ResultSuccess, code)
	assert.Equal(t, int64(125), rec.ResultBalance)
	assert.Equal(t, "CREDIT", rec.Direction)
}

func TestProfiles_ForEach_AscendingUID(t *testing.T) {
	profiles := NewProfiles()
	for _, uid := range []domain.UID{50, 10, 30} {
		require.Equal(t, domain.ResultSuccess, profiles.AddUser(uid))
	}
	var seen []domain.UID
	profiles.ForEach(func(uid domain.UID, _ *domain.UserProfile) {
		seen = append(seen, uid)
	})
	assert.Equal(t, []domain.UID{10, 30, 50}, seen)
}

func TestEngine_AddAccounts(t *testing.T) {
	e := NewEngine(NewProfiles())
	e.AddAccounts([]AccountRecord{
		{UID: 7, Currency: ltc, Amount: 100},
		{UID: 7, Currency: ltc, Amount: 50},
		{UID: 8, Currency: btc, Amount: 1},
	})
	u7, ok := e.Profiles().Get(7)
	require.True(t, ok)
	assert.Equal(t, int64(150), u7.Accounts[ltc])
	u8, ok := e.Profiles().Get(8)
	require.True(t, ok)
	assert.Equal(t, int64(1), u8.Accounts[btc])
}

// eventChain is a minimal stand-in for events.Chain built directly against
// domain.MatcherTradeEvent, with no pool.Manager behind it, while still
// exercising Engine's own event-chain walk exactly as internal/matching
// wires it in production.
type eventChain struct {
	head, tail *domain.MatcherTradeEvent
}

func (c *eventChain) append(e *domain.MatcherTradeEvent) {
	if c.head == nil {
		c.head = e
	} else {
		c.tail.Next = e
	}
	c.tail = e
}

func (c *eventChain) trade(price domain.Price, size domain.Size, bidderHold domain.Price, matchedOrderID domain.OrderID, matchedUID domain.UID, activeCompleted, matchedCompleted bool) {
	c.append(&domain.MatcherTradeEvent{
		Kind: domain.EventTrade, Price: price, Size: size, BidderHoldPrice: bidderHold,
		MatchedOrderID: matchedOrderID, MatchedUID: matchedUID,
		ActiveOrderCompleted: activeCompleted, MatchedOrderCompleted: matchedCompleted,
	})
}

func (c *eventChain) reduce(size domain.Size, price domain.Price, completed bool) {
	c.append(&domain.MatcherTradeEvent{Kind: domain.EventReduce, Size: size, Price: price, ActiveOrderCompleted: completed})
}

func (c *eventChain) reject(size domain.Size) {
	c.append(&domain.MatcherTradeEvent{Kind: domain.EventReject, Size: size, ActiveOrderCompleted: true})
}
