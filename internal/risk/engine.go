// Package risk implements the two-sided risk protocol described in §4.6,
// §4.7: a pre-hold (R1) before matching reserves the worst-case cost of an
// order, and a release/settlement (R2) after matching adjusts balances to
// the actual fill and returns any unused hold.
package risk

import (
	"fmt"
	"sort"

	"github.com/tradsys-labs/exchange-core/internal/domain"
)

// Profiles owns every UserProfile of one risk shard in a single map keyed
// by uid; it does no sharding of its own.
type Profiles struct {
	byUID map[domain.UID]*domain.UserProfile
}

func NewProfiles() *Profiles {
	return &Profiles{byUID: make(map[domain.UID]*domain.UserProfile)}
}

// ForEach visits every profile in ascending UID order, the determinism
// §8 invariant 6 requires of anything that folds profile state into a
// STATE_HASH.
func (p *Profiles) ForEach(fn func(uid domain.UID, u *domain.UserProfile)) {
	uids := make([]int64, 0, len(p.byUID))
	for uid := range p.byUID {
		uids = append(uids, int64(uid))
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	for _, uid := range uids {
		fn(domain.UID(uid), p.byUID[domain.UID(uid)])
	}
}

func (p *Profiles) Get(uid domain.UID) (*domain.UserProfile, bool) {
	u, ok := p.byUID[uid]
	return u, ok
}

func (p *Profiles) AddUser(uid domain.UID) domain.ResultCode {
	if _, exists := p.byUID[uid]; exists {
		return domain.ResultUserMgmtUserAlreadyExists
	}
	p.byUID[uid] = domain.NewUserProfile(uid)
	return domain.ResultSuccess
}

func (p *Profiles) SuspendUser(uid domain.UID) domain.ResultCode {
	u, ok := p.byUID[uid]
	if !ok {
		return domain.ResultUserMgmtUserNotFound
	}
	if u.Status == domain.UserStatusSuspended {
		return domain.ResultUserMgmtUserAlreadySuspended
	}
	ok2, hasPositions, nonZero := u.CanSuspend()
	if !ok2 {
		if hasPositions {
			return domain.ResultUserMgmtUserNotSuspendableHasPositions
		}
		if nonZero {
			return domain.ResultUserMgmtNonEmptyAccounts
		}
	}
	u.Status = domain.UserStatusSuspended
	return domain.ResultSuccess
}

func (p *Profiles) ResumeUser(uid domain.UID) domain.ResultCode {
	u, ok := p.byUID[uid]
	if !ok {
		return domain.ResultUserMgmtUserNotFound
	}
	if u.Status != domain.UserStatusSuspended {
		return domain.ResultUserMgmtUserNotSuspended
	}
	u.Status = domain.UserStatusActive
	return domain.ResultSuccess
}

// BalanceAdjustment applies a signed balance change guarded by a strictly
// increasing transactionID, protecting it from replay (§4.6). Replaying
// the same transactionID is a no-op reported distinctly from a fresh
// transactionID that happens to also be rejected for insufficient funds.
func (p *Profiles) BalanceAdjustment(uid domain.UID, currency domain.Currency, amount int64, transactionID int64) (*domain.TransferRecord, domain.ResultCode) {
	u, ok := p.byUID[uid]
	if !ok {
		return nil, domain.ResultUserMgmtUserNotFound
	}
	if transactionID <= u.AdjustmentsCounter {
		return nil, domain.ResultUserMgmtAdjustmentAlreadyAppliedMany
	}
	balance := u.Accounts[currency]
	if amount < 0 && balance+amount < 0 {
		return nil, domain.ResultUserMgmtAdjustmentNSF
	}
	u.Accounts[currency] = balance + amount
	u.AdjustmentsCounter = transactionID
	direction := "CREDIT"
	if amount < 0 {
		direction = "DEBIT"
	}
	return &domain.TransferRecord{
		TransactionID: transactionID,
		UID:           uid,
		Currency:      currency,
		Amount:        amount,
		Direction:     direction,
		ResultBalance: u.Accounts[currency],
	}, domain.ResultSuccess
}

// Engine runs the pre-hold (R1) and release (R2) halves of the risk
// protocol around a matching command (§4.6).
type Engine struct {
	profiles *Profiles
	specs    map[domain.SymbolID]*domain.SymbolSpec
}

func NewEngine(profiles *Profiles) *Engine {
	return &Engine{profiles: profiles, specs: make(map[domain.SymbolID]*domain.SymbolSpec)}
}

func (e *Engine) RegisterSymbol(spec *domain.SymbolSpec) {
	e.specs[spec.SymbolID] = spec
}

// AccountRecord is one entry of an ADD_ACCOUNTS binary command batch
// (§4.9): credit amount of currency to uid, creating the profile first if
// it doesn't exist yet.
type AccountRecord struct {
	UID      domain.UID
	Currency domain.Currency
	Amount   int64
}

// AddAccounts applies a batch of account records from the binary commands
// processor, the risk-engine-handled half of ADD_ACCOUNTS (§4.5 "ADD_ACCOUNTS
// is handled by the risk engine").
func (e *Engine) AddAccounts(records []AccountRecord) {
	for _, rec := range records {
		u, ok := e.profiles.Get(rec.UID)
		if !ok {
			e.profiles.AddUser(rec.UID)
			u, _ = e.profiles.Get(rec.UID)
		}
		u.Accounts[rec.Currency] += rec.Amount
	}
}

// Profiles exposes the user-profile store so the pipeline's R1 stage can
// dispatch ADD_USER/SUSPEND_USER/RESUME_USER/BALANCE_ADJUSTMENT entirely
// within the risk shard (§4.6 "handled entirely by the risk engine").
func (e *Engine) Profiles() *Profiles {
	return e.profiles
}

// bidFeeRate is the fee basis a BID's pre-hold reserves: a resting GTC
// order only owes the maker rate unless/until a fill makes it act as
// taker, while an IOC/FOK order always fills immediately as a taker
// (§4.6 R1).
func bidFeeRate(cmd *domain.OrderCommand, spec *domain.SymbolSpec) int64 {
	if cmd.OrderType == domain.OrderTypeGTC {
		return spec.MakerFee
	}
	return spec.TakerFee
}

// worstCaseCost is the exchange-mode (spot) hold amount for a new order:
// a BID reserves size*price*quoteScaleK plus its fee budget in quote
// currency; an ASK reserves size*baseScaleK in base currency (§4.6).
func worstCaseCost(cmd *domain.OrderCommand, spec *domain.SymbolSpec) int64 {
	if cmd.Action == domain.OrderActionBid {
		feeRate := bidFeeRate(cmd, spec)
		return int64(cmd.Size)*int64(cmd.Price)*spec.QuoteScaleK + int64(cmd.Size)*feeRate
	}
	return int64(cmd.Size) * spec.BaseScaleK
}

// PreHold reserves the worst-case cost of cmd against the user's balance
// before matching runs (R1). Margin-mode symbols are checked against
// collateral rather than a spot hold.
func (e *Engine) PreHold(cmd *domain.OrderCommand) domain.ResultCode {
	u, ok := e.profiles.Get(cmd.UID)
	if !ok {
		return domain.ResultUserMgmtUserNotFound
	}
	spec, ok := e.specs[cmd.SymbolID]
	if !ok {
		return domain.ResultMatchingInvalidOrderBookID
	}

	if spec.Type.IsExchange() {
		currency := spec.QuoteCurrency
		if cmd.Action == domain.OrderActionAsk {
			currency = spec.BaseCurrency
		}
		cost := worstCaseCost(cmd, spec)
		if u.Accounts[currency] < cost {
			return domain.ResultRiskNSF
		}
		u.Accounts[currency] -= cost
		// Only default the reserve when the caller left it below the limit
		// price; an explicitly supplied reserve (the budget a MOVE is later
		// checked against, §4.3) must survive placement untouched.
		if cmd.Action == domain.OrderActionBid && cmd.ReserveBidPrice < cmd.Price {
			cmd.ReserveBidPrice = cmd.Price
		}
		return domain.ResultSuccess
	}

	// Margin mode: required margin is a per-symbol constant scaled by size.
	margin := spec.MarginBuy
	if cmd.Action == domain.OrderActionAsk {
		margin = spec.MarginSell
	}
	required := margin * int64(cmd.Size)
	if u.Accounts[spec.QuoteCurrency] < required {
		return domain.ResultRiskMarginRequired
	}
	u.Accounts[spec.QuoteCurrency] -= required
	return domain.ResultSuccess
}

// Release walks cmd's emitted event chain and settles every TRADE, REJECT,
// and REDUCE node against the hold PreHold reserved (R2, §4.6): trades
// credit the matched counter-currency and charge fees on both sides of
// the fill (taker and resting maker alike), while REJECT/REDUCE nodes
// return the portion of the hold no longer needed.
func (e *Engine) Release(cmd *domain.OrderCommand) domain.ResultCode {
	u, ok := e.profiles.Get(cmd.UID)
	if !ok {
		return domain.ResultUserMgmtUserNotFound
	}
	spec, ok := e.specs[cmd.SymbolID]
	if !ok {
		return domain.ResultMatchingInvalidOrderBookID
	}
	if !spec.Type.IsExchange() {
		return domain.ResultSuccess // margin settlement handled via position records, not modeled here
	}

	for ev := cmd.EventsHead; ev != nil; ev = ev.Next {
		switch ev.Kind {
		case domain.EventTrade:
			e.settleTrade(u, spec, cmd, ev)
		case domain.EventReduce:
			e.settleReduce(u, spec, cmd, ev)
		case domain.EventReject:
			e.settleReject(u, spec, cmd, ev)
		}
	}
	return domain.ResultSuccess
}

func (e *Engine) settleTrade(u *domain.UserProfile, spec *domain.SymbolSpec, cmd *domain.OrderCommand, ev *domain.MatcherTradeEvent) {
	size := int64(ev.Size)
	maker, hasMaker := e.profiles.Get(ev.MatchedUID)

	if cmd.Action == domain.OrderActionAsk {
		// Taker sells: credit quote at the fill price, less the taker fee.
		u.Accounts[spec.QuoteCurrency] += size*int64(ev.Price)*spec.QuoteScaleK - size*spec.TakerFee
		if hasMaker {
			maker.Accounts[spec.BaseCurrency] += size * spec.BaseScaleK
		}
		return
	}

	// Taker buys: credit base, refund the price improvement against the
	// hold's limit price, and true up the fee if the hold was reserved at
	// the (lower) maker rate but this fill makes the order act as taker.
	u.Accounts[spec.BaseCurrency] += size * spec.BaseScaleK
	priceRefund := (int64(cmd.Price) - int64(ev.Price)) * spec.QuoteScaleK * size
	feeAdjust := (spec.TakerFee - bidFeeRate(cmd, spec)) * size
	u.Accounts[spec.QuoteCurrency] += priceRefund - feeAdjust
	if hasMaker {
		maker.Accounts[spec.QuoteCurrency] += size*int64(ev.Price)*spec.QuoteScaleK - size*spec.MakerFee
	}
}

func (e *Engine) settleReduce(u *domain.UserProfile, spec *domain.SymbolSpec, cmd *domain.OrderCommand, ev *domain.MatcherTradeEvent) {
	size := int64(ev.Size)

	if cmd.Action == domain.OrderActionAsk {
		u.Accounts[spec.BaseCurrency] += size * spec.BaseScaleK
		return
	}

	if cmd.Type == domain.CommandMoveOrder {
		// MOVE re-prices the hold still backing the resting remainder:
		// ev.Price is the pre-move price, cmd.Price the new one; the
		// delta between old and new hold is credited or debited so the
		// account reflects the new limit price without re-running R1.
		oldRefund := size*int64(ev.Price)*spec.QuoteScaleK + size*spec.MakerFee
		newHold := size*int64(cmd.Price)*spec.QuoteScaleK + size*spec.MakerFee
		u.Accounts[spec.QuoteCurrency] += oldRefund - newHold
		return
	}

	// Plain CANCEL/REDUCE: return the hold reserved for the removed size
	// at its resting price (§4.3 "Cancel: remove and emit REDUCE").
	u.Accounts[spec.QuoteCurrency] += size*int64(ev.Price)*spec.QuoteScaleK + size*spec.MakerFee
}

func (e *Engine) settleReject(u *domain.UserProfile, spec *domain.SymbolSpec, cmd *domain.OrderCommand, ev *domain.MatcherTradeEvent) {
	size := int64(ev.Size)
	if cmd.Action == domain.OrderActionAsk {
		u.Accounts[spec.BaseCurrency] += size * spec.BaseScaleK
		return
	}
	u.Accounts[spec.QuoteCurrency] += size*int64(cmd.Price)*spec.QuoteScaleK + size*spec.TakerFee
}

// Validate checks every user's accounting invariants reachable from the
// position map (§8): no position marked empty while holding pending size.
func (e *Engine) Validate() error {
	for uid, u := range e.profiles.byUID {
		for symbol, pos := range u.Positions {
			if pos.IsEmpty() && (pos.PendingBuySize != 0 || pos.PendingSellSize != 0) {
				return fmt.Errorf("risk: uid %d symbol %d marked empty with pending size", uid, symbol)
			}
		}
	}
	return nil
}
