package review

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"kpiflow/internal/domain/kpi"
	"kpiflow/internal/domain/scoring"
)

// RenderReport writes a one-page PDF summary of r and its KPIs to w.
func RenderReport(w io.Writer, r FinalReview, kpis []kpi.KPI) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Performance Review %s %d", r.Quarter, r.Year), false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Performance Review")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Employee: %s", r.EmployeeName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s %d", r.Quarter, r.Year))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Finalized: %s by %s", r.FinalizedAt.Format("2006-01-02"), r.FinalizedByName))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Final score: %d (%s)", r.FinalScore, r.Category))
	pdf.Ln(7)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("KPI score: %d x %d%%   Feedback score: %s x %d%%",
		r.KPIScore, r.AppliedKPIWeight, trimFloat(r.FeedbackScore), r.AppliedFeedbackWeight))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(80, 8, "KPI", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 8, "Weight", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, "Progress", "1", 0, "R", true, 0, "")
	pdf.CellFormat(25, 8, "Achieved", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, k := range kpis {
		pct := scoring.NormalizedPct(k.TargetValue, k.CurrentValue).Round(0).IntPart()
		pdf.CellFormat(80, 7, truncate(k.Title, 45), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%d%%", k.Weight), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, fmt.Sprintf("%s / %s %s", trimFloat(k.CurrentValue), trimFloat(k.TargetValue), truncate(k.Unit, 6)), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%d%%", pct), "1", 1, "R", false, 0, "")
	}
	if r.WeightCoverage < 100 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.Cell(0, 6, fmt.Sprintf("KPI weights cover %d%% of the period.", r.WeightCoverage))
	}

	return pdf.Output(w)
}

func trimFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-3]) + "..."
}
