package symbol

import (
	"strings"
)

type Symbol struct {
	Base  string
	Quote string
}

// Internal is the slash-separated form, e.g. BTC/USDT.
func (s Symbol) Internal() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Binance is the concatenated form Binance futures expects, e.g. BTCUSDT.
func (s Symbol) Binance() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// Parse accepts either form, case-insensitively, and ignores a settlement
// suffix like BTC/USDT:USDT.
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{
			Base:  strings.TrimSpace(parts[0]),
			Quote: strings.TrimSpace(parts[1]),
		}
	}

	quoteCurrencies := []string{"USDT", "BUSD", "USDC", "TUSD", "BTC", "ETH", "BNB"}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}

	return Symbol{}
}

// Normalize canonicalizes to the exchange form used as state keys
// throughout the bot: BTC/USDT and btcusdt both become BTCUSDT.
func Normalize(s string) string {
	return Parse(s).Binance()
}

// NormalizeList canonicalizes and dedupes, preserving order. Entries that
// fail to parse survive as uppercased trims so validation can report them.
func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Normalize(s)
		if norm == "" {
			norm = strings.ToUpper(strings.TrimSpace(s))
			if norm == "" {
				continue
			}
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}

// ToExchange yields the form Binance futures endpoints expect. Unparseable
// input falls back to a stripped uppercase so a stream subscription never
// receives an empty symbol.
func ToExchange(s string) string {
	if norm := Normalize(s); norm != "" {
		return norm
	}
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "/", "")
}
