package matching

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/tradsys-labs/exchange-core/internal/domain"
	"github.com/tradsys-labs/exchange-core/internal/risk"
)

// Binary command/query class codes carried as the leading 4-byte
// little-endian word of a decompressed BINARY_DATA_COMMAND/QUERY payload
// (§4.5, §4.9). The remaining bytes are the class's own record stream.
const (
	ClassAddSymbols                 int32 = 1
	ClassAddAccounts                int32 = 2
	ClassReportStateHash            int32 = 3
	ClassReportSingleUser           int32 = 4
	ClassReportTotalCurrencyBalance int32 = 5
)

// symbolSpecRecordSize is ADD_SYMBOLS' fixed-width record: ten
// little-endian int64 fields, in SymbolSpec's declaration order.
const symbolSpecRecordSize = 80

// accountRecordSize is ADD_ACCOUNTS' fixed-width record: uid, currency,
// signed amount, each a little-endian int64.
const accountRecordSize = 24

func decodeSymbolSpecs(payload []byte) []*domain.SymbolSpec {
	var specs []*domain.SymbolSpec
	for i := 0; i+symbolSpecRecordSize <= len(payload); i += symbolSpecRecordSize {
		rec := payload[i : i+symbolSpecRecordSize]
		specs = append(specs, &domain.SymbolSpec{
			SymbolID:      domain.SymbolID(readI64(rec[0:8])),
			Type:          domain.SymbolType(readI64(rec[8:16])),
			BaseCurrency:  domain.Currency(readI64(rec[16:24])),
			QuoteCurrency: domain.Currency(readI64(rec[24:32])),
			BaseScaleK:    readI64(rec[32:40]),
			QuoteScaleK:   readI64(rec[40:48]),
			TakerFee:      readI64(rec[48:56]),
			MakerFee:      readI64(rec[56:64]),
			MarginBuy:     readI64(rec[64:72]),
			MarginSell:    readI64(rec[72:80]),
		})
	}
	return specs
}

func decodeAccountRecords(payload []byte) []risk.AccountRecord {
	var out []risk.AccountRecord
	for i := 0; i+accountRecordSize <= len(payload); i += accountRecordSize {
		rec := payload[i : i+accountRecordSize]
		out = append(out, risk.AccountRecord{
			UID:      domain.UID(readI64(rec[0:8])),
			Currency: domain.Currency(readI64(rec[8:16])),
			Amount:   readI64(rec[16:24]),
		})
	}
	return out
}

func readI64(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b))
}

func appendI64(buf []byte, v int64) []byte {
	var w [8]byte
	binary.LittleEndian.PutUint64(w[:], uint64(v))
	return append(buf, w[:]...)
}

// HandleReport answers a report query class code against the router's own
// order books and the risk engine's profiles, returning the serialized
// payload a BINARY_EVENT chain carries back to the caller (§4.5, §4.9, §6
// "State hash").
func (r *Router) HandleReport(class int32, payload []byte, eng *risk.Engine) ([]byte, bool) {
	switch class {
	case ClassReportStateHash:
		return r.stateHash(eng), true
	case ClassReportSingleUser:
		if len(payload) < 8 {
			return nil, false
		}
		return singleUserReport(eng, domain.UID(readI64(payload[0:8]))), true
	case ClassReportTotalCurrencyBalance:
		if len(payload) < 8 {
			return nil, false
		}
		return totalCurrencyBalance(eng, domain.Currency(readI64(payload[0:8]))), true
	default:
		return nil, false
	}
}

// stateHash folds every open book's L2 levels and every user's currency
// balances, both in a fixed sorted order, into a single sha256 digest
// (§6 "State hash", §8 invariant 6: identical command sequences produce
// byte-identical hashes).
func (r *Router) stateHash(eng *risk.Engine) []byte {
	h := sha256.New()

	symbolIDs := make([]int, 0, len(r.books))
	for id := range r.books {
		symbolIDs = append(symbolIDs, int(id))
	}
	sort.Ints(symbolIDs)

	var buf []byte
	for _, id := range symbolIDs {
		symbol := domain.SymbolID(id)
		buf = appendI64(buf[:0], int64(symbol))
		h.Write(buf)

		l2 := r.books[symbol].L2(0)
		for _, lvl := range l2.BidLevels {
			buf = appendI64(buf[:0], int64(lvl.Price))
			buf = appendI64(buf, int64(lvl.Volume))
			h.Write(buf)
		}
		for _, lvl := range l2.AskLevels {
			buf = appendI64(buf[:0], int64(lvl.Price))
			buf = appendI64(buf, int64(lvl.Volume))
			h.Write(buf)
		}
	}

	eng.Profiles().ForEach(func(uid domain.UID, u *domain.UserProfile) {
		buf = appendI64(buf[:0], int64(uid))
		h.Write(buf)
		for _, currency := range sortedCurrencies(u.Accounts) {
			buf = appendI64(buf[:0], int64(currency))
			buf = appendI64(buf, u.Accounts[currency])
			h.Write(buf)
		}
	})

	return h.Sum(nil)
}

func sortedCurrencies(accounts map[domain.Currency]int64) []domain.Currency {
	currencies := make([]domain.Currency, 0, len(accounts))
	for c := range accounts {
		currencies = append(currencies, c)
	}
	sort.Slice(currencies, func(i, j int) bool { return currencies[i] < currencies[j] })
	return currencies
}

// singleUserReport serializes one user's currency balances as a count
// followed by (currency, amount) pairs, sorted by currency for
// determinism.
func singleUserReport(eng *risk.Engine, uid domain.UID) []byte {
	u, ok := eng.Profiles().Get(uid)
	if !ok {
		return appendI64(nil, 0)
	}
	currencies := sortedCurrencies(u.Accounts)
	out := appendI64(nil, int64(len(currencies)))
	for _, c := range currencies {
		out = appendI64(out, int64(c))
		out = appendI64(out, u.Accounts[c])
	}
	return out
}

// totalCurrencyBalance sums one currency's balance across every profile.
func totalCurrencyBalance(eng *risk.Engine, currency domain.Currency) []byte {
	var total int64
	eng.Profiles().ForEach(func(_ domain.UID, u *domain.UserProfile) {
		total += u.Accounts[currency]
	})
	return appendI64(nil, total)
}
