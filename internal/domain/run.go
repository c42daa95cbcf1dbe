package domain

// TransactionType distinguishes opening from closing trades.
type TransactionType string

// Transaction type constants
const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
	TransactionTax  TransactionType = "TAX"
)

// Transaction is one executed trade (or tax payment) in a run's append-only
// log.
type Transaction struct {
	Day        int
	Ticker     string
	Type       TransactionType
	Quantity   float64
	Price      float64
	Value      float64
	Tag        string // position definition name, empty for plain asset trades
	Commission float64
	Slippage   float64
	Tax        float64
}

// SimulationRunResult is the execution engine's output for one iteration.
// EquityCurve has length TradingDays+1; index 0 is the starting state.
type SimulationRunResult struct {
	RunID        int
	EquityCurve  []float64
	Transactions []Transaction
}

// TotalCosts sums commission, slippage, and tax over the transaction log.
func (r *SimulationRunResult) TotalCosts() (commission, slippage, tax float64) {
	for _, t := range r.Transactions {
		commission += t.Commission
		slippage += t.Slippage
		tax += t.Tax
	}
	return commission, slippage, tax
}
