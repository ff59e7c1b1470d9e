package processor

import "github.com/DIY-6/web3-script/internal/signal"

// Update is one state write produced by a successful scan.
type Update struct {
	Symbol string
	Key    string
	Value  float64
}

// State carries the last seen values that need comparison across rounds,
// keyed by symbol then signal name. A State is never modified in place;
// Apply returns a new value.
type State struct {
	values map[string]map[string]float64
}

// NewState returns an empty State.
func NewState() State {
	return State{values: map[string]map[string]float64{}}
}

// Get returns the stored value for symbol and key.
func (s State) Get(symbol, key string) (float64, bool) {
	v, ok := s.values[symbol][key]
	return v, ok
}

// Reading returns the stored value as a signal reading, undefined when the
// value is missing.
func (s State) Reading(symbol, key string) signal.Reading {
	if v, ok := s.Get(symbol, key); ok {
		return signal.Of(v)
	}
	return signal.Reading{}
}

// Len returns the number of symbols with stored values.
func (s State) Len() int {
	return len(s.values)
}

// Apply returns a copy of s with updates written in order. s is left
// untouched.
func (s State) Apply(updates []Update) State {
	if len(updates) == 0 {
		return s
	}
	next := make(map[string]map[string]float64, len(s.values)+len(updates))
	for sym, kv := range s.values {
		next[sym] = kv
	}
	copied := make(map[string]bool, len(updates))
	for _, u := range updates {
		if !copied[u.Symbol] {
			inner := make(map[string]float64, len(next[u.Symbol])+1)
			for k, v := range next[u.Symbol] {
				inner[k] = v
			}
			next[u.Symbol] = inner
			copied[u.Symbol] = true
		}
		next[u.Symbol][u.Key] = u.Value
	}
	return State{values: next}
}
