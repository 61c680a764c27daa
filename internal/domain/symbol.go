package domain

// SymbolSpec is immutable after registration (§3). Invariants, checked by
// Valid: TakerFee >= MakerFee; BaseScaleK, QuoteScaleK > 0.
type SymbolSpec struct {
	SymbolID     SymbolID
	Type         SymbolType
	BaseCurrency Currency
	QuoteCurrency Currency
	BaseScaleK   int64 // lot size
	QuoteScaleK  int64 // price step
	TakerFee     int64
	MakerFee     int64
	MarginBuy    int64
	MarginSell   int64
}

// Valid reports whether the spec satisfies §3's invariants.
func (s *SymbolSpec) Valid() bool {
	return s.TakerFee >= s.MakerFee && s.BaseScaleK > 0 && s.QuoteScaleK > 0
}
