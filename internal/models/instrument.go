package models

// Instrument is one tradable symbol of the monitored universe. The
// classification fields are only consulted while the universe is built.
type Instrument struct {
	Symbol       string
	BaseAsset    string
	QuoteAsset   string
	ContractType string
	Status       string
}

// Symbols returns the identifiers of the given instruments in order.
func Symbols(instruments []Instrument) []string {
	out := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		out = append(out, inst.Symbol)
	}
	return out
}
