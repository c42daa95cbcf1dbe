// Package reporting renders simulation reports as Markdown and CSV for the
// CLI hosts.
package reporting

import (
	"fmt"
	"strings"
	"time"

	"strategy-lab/internal/domain"
)

// RenderOptions carries request metadata shown in the report header.
type RenderOptions struct {
	Title       string
	ReportID    string
	Source      string
	BaseSeed    int64
	InitialCash float64
	GeneratedAt time.Time
}

// RenderMarkdown renders an aggregate report as a Markdown document.
func RenderMarkdown(r *domain.SimulationReport, opts RenderOptions) string {
	var sb strings.Builder

	title := opts.Title
	if title == "" {
		title = "Simulation Report"
	}
	sb.WriteString("# " + title + "\n\n")
	if !opts.GeneratedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Generated: %s\n\n", opts.GeneratedAt.Format(time.RFC3339)))
	}
	if opts.ReportID != "" {
		sb.WriteString(fmt.Sprintf("Report ID: `%s`\n\n", opts.ReportID))
	}
	if opts.Source != "" {
		sb.WriteString("## Strategy\n\n```\n")
		sb.WriteString(strings.TrimRight(opts.Source, "\n"))
		sb.WriteString("\n```\n\n")
	}

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Iterations | %d |\n", r.Iterations))
	sb.WriteString(fmt.Sprintf("| Trading Days | %d |\n", r.TradingDays))
	if opts.InitialCash > 0 {
		sb.WriteString(fmt.Sprintf("| Initial Cash | %.2f |\n", opts.InitialCash))
	}
	if opts.BaseSeed != 0 {
		sb.WriteString(fmt.Sprintf("| Base Seed | %d |\n", opts.BaseSeed))
	}
	sb.WriteString(fmt.Sprintf("| Probability of Success | %.4f |\n", r.ProbabilityOfSuccess))
	sb.WriteString(fmt.Sprintf("| Probability of Ruin | %.4f |\n", r.ProbabilityOfRuin))
	sb.WriteString(fmt.Sprintf("| Avg CAGR | %.4f |\n", r.AvgCAGR))
	sb.WriteString(fmt.Sprintf("| Avg Sharpe | %.4f |\n", r.AvgSharpe))
	sb.WriteString(fmt.Sprintf("| Avg Sortino | %.4f |\n", r.AvgSortino))
	sb.WriteString(fmt.Sprintf("| Avg Volatility | %.4f |\n", r.AvgVolatility))
	sb.WriteString(fmt.Sprintf("| Avg Commission | %.2f |\n", r.AvgCommission))
	sb.WriteString(fmt.Sprintf("| Avg Slippage | %.2f |\n", r.AvgSlippage))
	sb.WriteString(fmt.Sprintf("| Avg Tax | %.2f |\n", r.AvgTax))
	sb.WriteString("\n")

	writeDistribution(&sb, "Final Wealth", r.FinalWealth)
	writeDistribution(&sb, "Days to Goal", r.DaysToGoal)

	sb.WriteString("## Drawdown Frequency\n\n")
	sb.WriteString("| Threshold | Fraction of Runs |\n")
	sb.WriteString("|-----------|------------------|\n")
	for _, t := range domain.DrawdownThresholds {
		sb.WriteString(fmt.Sprintf("| %d%% | %.4f |\n", t, r.DrawdownFrequency[t]))
	}
	sb.WriteString("\n")

	sb.WriteString("## Recovery\n\n")
	if len(r.Recovery) > 0 {
		sb.WriteString("| Underwater Days (up to) | Runs |\n")
		sb.WriteString("|-------------------------|------|\n")
		for _, bin := range r.Recovery {
			sb.WriteString(fmt.Sprintf("| %d | %d |\n", bin.UpToDays, bin.Count))
		}
	} else {
		sb.WriteString("No recovery data available.\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Sample Paths\n\n")
	if len(r.SamplePaths) > 0 {
		sb.WriteString("| Percentile | Final Wealth |\n")
		sb.WriteString("|------------|--------------|\n")
		for _, p := range r.SamplePaths {
			final := 0.0
			if len(p.Curve) > 0 {
				final = p.Curve[len(p.Curve)-1]
			}
			sb.WriteString(fmt.Sprintf("| P%d | %.2f |\n", p.Percentile, final))
		}
	} else {
		sb.WriteString("No sample paths available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// writeDistribution renders one cross-run distribution as a table. Empty
// distributions (e.g. days-to-goal with no goal configured) are skipped.
func writeDistribution(sb *strings.Builder, name string, d domain.DistributionStats) {
	if d.Mean == 0 && d.Median == 0 && d.GeometricMean == 0 {
		return
	}
	sb.WriteString("## " + name + " Distribution\n\n")
	sb.WriteString("| Statistic | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Mean | %.2f |\n", d.Mean))
	sb.WriteString(fmt.Sprintf("| Median | %.2f |\n", d.Median))
	sb.WriteString(fmt.Sprintf("| Geometric Mean | %.2f |\n", d.GeometricMean))
	for p := 10; p <= 90; p += 10 {
		sb.WriteString(fmt.Sprintf("| P%d | %.2f |\n", p, d.Deciles[p]))
	}
	sb.WriteString("\n")
}
