package domain

// MarketDataPoint is one simulated day's price and volatility for an asset.
type MarketDataPoint struct {
	Price float64
	Vol   float64
}

// PricePath is one asset's generated series for a single iteration.
// Points has length TradingDays+1; index 0 is the initial state.
type PricePath struct {
	Ticker string
	Points []MarketDataPoint
}

// PathSet is all asset paths of one iteration, primary assets first, then
// leveraged derivatives. Lookup is case-insensitive on ticker via ByTicker.
type PathSet struct {
	Paths []PricePath

	index map[string]int // lowercase ticker -> Paths index
}

// NewPathSet builds a PathSet with a lookup index over tickers.
func NewPathSet(paths []PricePath) *PathSet {
	idx := make(map[string]int, len(paths))
	for i, p := range paths {
		idx[lowerASCII(p.Ticker)] = i
	}
	return &PathSet{Paths: paths, index: idx}
}

// ByTicker returns the path for a ticker (case-insensitive), or nil.
func (s *PathSet) ByTicker(ticker string) *PricePath {
	i, ok := s.index[lowerASCII(ticker)]
	if !ok {
		return nil
	}
	return &s.Paths[i]
}

// lowerASCII lowercases ASCII letters without allocating for the common
// already-lowercase case. Tickers are ASCII by construction.
func lowerASCII(s string) string {
	hasUpper := false
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			hasUpper = true
			break
		}
	}
	if !hasUpper {
		return s
	}
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
