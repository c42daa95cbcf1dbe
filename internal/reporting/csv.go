package reporting

import (
	"fmt"
	"strings"

	"strategy-lab/internal/domain"
)

// SamplePathsCSV renders the report's sample equity curves as CSV: one day
// column plus one column per percentile path.
func SamplePathsCSV(r *domain.SimulationReport) string {
	var sb strings.Builder

	sb.WriteString("day")
	for _, p := range r.SamplePaths {
		sb.WriteString(fmt.Sprintf(",p%d", p.Percentile))
	}
	sb.WriteString("\n")

	days := 0
	for _, p := range r.SamplePaths {
		if len(p.Curve) > days {
			days = len(p.Curve)
		}
	}
	for d := 0; d < days; d++ {
		sb.WriteString(fmt.Sprintf("%d", d))
		for _, p := range r.SamplePaths {
			if d < len(p.Curve) {
				sb.WriteString(fmt.Sprintf(",%.6f", p.Curve[d]))
			} else {
				sb.WriteString(",")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// DrawdownConeCSV renders the per-day drawdown percentiles as CSV.
func DrawdownConeCSV(r *domain.SimulationReport) string {
	var sb strings.Builder

	sb.WriteString("day,p10,p50,p90\n")
	for d := range r.Cone.P50 {
		sb.WriteString(fmt.Sprintf("%d,%.6f,%.6f,%.6f\n", d, r.Cone.P10[d], r.Cone.P50[d], r.Cone.P90[d]))
	}
	return sb.String()
}

// TransactionsCSV renders one run's transaction log as CSV.
func TransactionsCSV(txs []domain.Transaction) string {
	var sb strings.Builder

	sb.WriteString("day,ticker,type,quantity,price,value,tag,commission,slippage,tax\n")
	for _, t := range txs {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%.6f,%.6f,%.6f,%s,%.6f,%.6f,%.6f\n",
			t.Day, t.Ticker, t.Type, t.Quantity, t.Price, t.Value, t.Tag,
			t.Commission, t.Slippage, t.Tax))
	}
	return sb.String()
}
