package symbols

import "strings"

// DefaultCoinGeckoIDs lists the symbols whose CoinGecko id differs from the
// lowercased base asset.
var DefaultCoinGeckoIDs = map[string]string{
	"BTCUSDT":  "bitcoin",
	"ETHUSDT":  "ethereum",
	"BNBUSDT":  "binancecoin",
	"SOLUSDT":  "solana",
	"XRPUSDT":  "ripple",
	"DOGEUSDT": "dogecoin",
	"ADAUSDT":  "cardano",
	"TONUSDT":  "toncoin",
	"TRXUSDT":  "tron",
	"LINKUSDT": "chainlink",
}

// multiplierPrefixes are the contract-size prefixes Binance puts in front of
// low priced assets, longest first.
var multiplierPrefixes = []string{"1000000", "1000", "1M"}

// BaseAsset strips quote and any contract multiplier prefix from a Binance
// symbol, e.g. 1000PEPEUSDT -> PEPE.
func BaseAsset(symbol, quote string) string {
	base := strings.TrimSuffix(strings.ToUpper(symbol), strings.ToUpper(quote))
	for _, p := range multiplierPrefixes {
		if strings.HasPrefix(base, p) && len(base) > len(p) {
			return base[len(p):]
		}
	}
	return base
}

// ToCoinGeckoID maps a USDT symbol to a CoinGecko coin id. overrides take
// precedence over DefaultCoinGeckoIDs; everything else falls back to the
// lowercased base asset.
func ToCoinGeckoID(symbol string, overrides map[string]string) string {
	if id, ok := overrides[symbol]; ok {
		return id
	}
	if id, ok := DefaultCoinGeckoIDs[symbol]; ok {
		return id
	}
	return strings.ToLower(BaseAsset(symbol, "USDT"))
}

// CoinGeckoIDs maps every symbol to its CoinGecko id.
func CoinGeckoIDs(syms []string, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(syms))
	for _, s := range syms {
		out[s] = ToCoinGeckoID(s, overrides)
	}
	return out
}
