package domain

// SymbolPositionRecord is a per (uid, symbol) margin position (§3).
// Invariant: Direction == PositionEmpty iff OpenVolume == 0 && OpenPriceSum == 0;
// pending sizes are always >= 0.
type SymbolPositionRecord struct {
	UID      UID
	SymbolID SymbolID

	Direction      PositionDirection
	OpenVolume     Size
	OpenPriceSum   int64 // sum of (price * filled volume) for the open side
	RealizedProfit int64

	PendingSellSize Size
	PendingBuySize  Size
}

// IsEmpty reports whether the position is eligible for removal: no open
// volume and no pending holds.
func (p *SymbolPositionRecord) IsEmpty() bool {
	return p.Direction == PositionEmpty && p.PendingSellSize == 0 && p.PendingBuySize == 0
}

// Reset clears a SymbolPositionRecord for return to the object pool.
func (p *SymbolPositionRecord) Reset() {
	*p = SymbolPositionRecord{}
}

// UserProfile is the per-user account and position state (§3). A profile
// suspended by risk.Profiles.SuspendUser stays in the store with Status
// UserStatusSuspended; it is not removed, and ResumeUser only reactivates
// a profile that is already present.
type UserProfile struct {
	UID    UID
	Status UserStatus

	Accounts  map[Currency]int64
	Positions map[SymbolID]*SymbolPositionRecord

	// AdjustmentsCounter is strictly increasing across accepted balance
	// adjustments; it protects BALANCE_ADJUSTMENT from replay (§4.6).
	AdjustmentsCounter int64
}

// NewUserProfile creates an ACTIVE profile with empty accounts/positions.
func NewUserProfile(uid UID) *UserProfile {
	return &UserProfile{
		UID:       uid,
		Status:    UserStatusActive,
		Accounts:  make(map[Currency]int64),
		Positions: make(map[SymbolID]*SymbolPositionRecord),
	}
}

// CanSuspend reports whether every position is empty and every account is
// zero, the precondition for SUSPEND_USER (§4.7).
func (u *UserProfile) CanSuspend() (ok bool, hasPositions bool, nonZeroAccounts bool) {
	for _, pos := range u.Positions {
		if !pos.IsEmpty() {
			hasPositions = true
		}
	}
	for _, bal := range u.Accounts {
		if bal != 0 {
			nonZeroAccounts = true
		}
	}
	return !hasPositions && !nonZeroAccounts, hasPositions, nonZeroAccounts
}

// TransferRecord documents one accepted BALANCE_ADJUSTMENT (§8 round-trip
// list names it; recovered from original_source's transaction bookkeeping).
type TransferRecord struct {
	TransactionID int64
	UID           UID
	Currency      Currency
	Amount        int64 // signed: positive credit, negative debit
	Direction     string
	ResultBalance int64
}
