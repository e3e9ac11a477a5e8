package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// FormatEdges renders the first topN edges of report. A topN of zero or less
// renders all of them.
func FormatEdges(report domain.Report, topN int) (title, message string) {
	edges := report.Edges
	if topN > 0 && len(edges) > topN {
		edges = edges[:topN]
	}
	title = fmt.Sprintf("%d edge(s) detected", len(report.Edges))

	var b strings.Builder
	for i, e := range edges {
		question := e.Question
		if question == "" {
			question = e.MarketID
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, question)
		fmt.Fprintf(&b, "   %s %s @ %.3f | realized %.3f | edge %+.3f | conf %.2f (n=%d)",
			e.Recommendation, e.Side, e.ImpliedProbability, e.RealizedWinRate,
			e.EdgeMagnitude, e.Confidence, e.SampleCount)
		if e.ReducedConfidence {
			b.WriteString(" one-sided")
		}
		b.WriteString("\n")
	}
	if rest := len(report.Edges) - len(edges); rest > 0 {
		fmt.Fprintf(&b, "…and %d more\n", rest)
	}
	fmt.Fprintf(&b, "run %s", report.RunID)
	return title, b.String()
}

// NotifyReport sends an edge_detected alert when the report has edges.
func (n *Notifier) NotifyReport(ctx context.Context, report domain.Report, topN int) error {
	if len(report.Edges) == 0 {
		return nil
	}
	title, message := FormatEdges(report, topN)
	return n.Notify(ctx, EventEdgeDetected, title, message)
}

// NotifyFailure sends an analysis_failed alert.
func (n *Notifier) NotifyFailure(ctx context.Context, err error) error {
	return n.Notify(ctx, EventAnalysisFailed, "Analysis failed", err.Error())
}
