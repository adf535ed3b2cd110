package corpus

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"otp-predictor/internal/ml"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog/log"
)

// Plot geometry in millimetres on an A4 portrait page.
const (
	plotOffsetX = 25.0
	plotOffsetY = 95.0
	plotSize    = 80.0
	barMaxWidth = 80.0
	barHeight   = 5.0
)

// WritePDFSummary renders a one page training summary: the headline scores,
// an actual-vs-predicted scatter of the held-out rows and the permutation
// importance of every input column.
func WritePDFSummary(path string, eval *ml.Evaluation, meta ml.ModelMetadata) error {
	if eval == nil {
		return fmt.Errorf("no evaluation to report")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "On-time arrival model "+meta.Version)
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 10)
	lines := []string{
		fmt.Sprintf("Trained at %s", meta.TrainedAt.UTC().Format(time.RFC3339)),
		fmt.Sprintf("%d trees, seed %d, encoded width %d", meta.Trees, meta.Seed, meta.EncodedWidth),
		fmt.Sprintf("%d training rows, %d held out, %d dropped", eval.TrainRows, eval.TestRows, meta.DroppedRows),
		fmt.Sprintf("MAE %.2f    R^2 %.3f", eval.MAE, eval.R2),
	}
	for _, l := range lines {
		pdf.Cell(0, 6, l)
		pdf.Ln(6)
	}

	drawScatter(pdf, eval.Comparisons)
	drawImportance(pdf, eval.Importance)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}

	log.Info().Str("path", path).Msg("Evaluation summary written")
	return nil
}

func drawScatter(pdf *gofpdf.Fpdf, comparisons []ml.Comparison) {
	pdf.SetFont("Arial", "B", 11)
	pdf.Text(plotOffsetX, plotOffsetY-5, "Held-out rows: actual (x) vs predicted (y), %")

	pdf.SetDrawColor(0x00, 0x00, 0x00)
	pdf.SetLineWidth(0.3)
	pdf.Rect(plotOffsetX, plotOffsetY, plotSize, plotSize, "D")
	if len(comparisons) == 0 {
		return
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range comparisons {
		lo = math.Min(lo, math.Min(c.Actual, c.Predicted))
		hi = math.Max(hi, math.Max(c.Actual, c.Predicted))
	}
	if hi-lo < 1 {
		lo, hi = lo-0.5, hi+0.5
	}
	toX := func(v float64) float64 { return plotOffsetX + plotSize*(v-lo)/(hi-lo) }
	toY := func(v float64) float64 { return plotOffsetY + plotSize - plotSize*(v-lo)/(hi-lo) }

	// y = x reference
	pdf.SetDrawColor(0x99, 0x99, 0x99)
	pdf.Line(toX(lo), toY(lo), toX(hi), toY(hi))

	pdf.SetFillColor(0x1f, 0x5f, 0xbf)
	for _, c := range comparisons {
		pdf.Circle(toX(c.Actual), toY(c.Predicted), 0.6, "F")
	}

	pdf.SetFont("Arial", "", 8)
	pdf.Text(plotOffsetX, plotOffsetY+plotSize+4, fmt.Sprintf("%.0f", lo))
	pdf.Text(plotOffsetX+plotSize-6, plotOffsetY+plotSize+4, fmt.Sprintf("%.0f", hi))
}

func drawImportance(pdf *gofpdf.Fpdf, importance []ml.FeatureImportance) {
	top := plotOffsetY + plotSize + 15
	pdf.SetFont("Arial", "B", 11)
	pdf.Text(plotOffsetX, top, "Permutation importance (MAE increase)")
	if len(importance) == 0 {
		return
	}

	peak := 0.0
	for _, fi := range importance {
		peak = math.Max(peak, fi.MAEIncrease)
	}

	pdf.SetFont("Arial", "", 8)
	pdf.SetFillColor(0xbf, 0x5f, 0x1f)
	for i, fi := range importance {
		y := top + 4 + float64(i)*(barHeight+1)
		pdf.Text(plotOffsetX, y+barHeight-1, fi.Column)
		if peak > 0 && fi.MAEIncrease > 0 {
			pdf.Rect(plotOffsetX+45, y, barMaxWidth*fi.MAEIncrease/peak, barHeight, "F")
		}
		pdf.Text(plotOffsetX+45+barMaxWidth+3, y+barHeight-1, fmt.Sprintf("%.3f", fi.MAEIncrease))
	}
}
