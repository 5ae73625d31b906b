package export

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/zip3-etl/internal/zip3"
)

// WriteCoverageWorkbook writes the per-state coverage analysis to an xlsx
// workbook: one sheet of per-state ratios with quality bands, one summary
// sheet with run metadata and band counts.
func WriteCoverageWorkbook(path string, rep *zip3.Report) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("coverage")
	if err != nil {
		return eris.Wrap(err, "export: add coverage sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"State", "Coverage Ratio", "Coverage %", "Band"} {
		header.AddCell().Value = h
	}

	bandCounts := map[string]int{}
	for _, c := range rep.Coverage {
		row := sheet.AddRow()
		row.AddCell().Value = c.State
		row.AddCell().SetFloatWithFormat(c.Ratio, "0.0000")
		row.AddCell().SetFloatWithFormat(c.Ratio, "0.0%")
		row.AddCell().Value = c.Band()
		bandCounts[c.Band()]++
	}

	summary, err := f.AddSheet("summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	addKV := func(k, v string) {
		row := summary.AddRow()
		row.AddCell().Value = k
		row.AddCell().Value = v
	}
	addKV("Run ID", rep.RunID.String())
	addKV("Mode", string(rep.Mode))
	addKV("Generated", rep.StartedAt.Format("2006-01-02 15:04:05 UTC"))
	addKV("States analyzed", fmt.Sprintf("%d", len(rep.Coverage)))
	for _, band := range []string{"excellent", "good", "fair", "poor"} {
		addKV("Band: "+band, fmt.Sprintf("%d", bandCounts[band]))
	}
	addKV("Max coverage", fmt.Sprintf("%.1f%%", rep.MaxCoverage()*100))

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}

	zap.L().Info("coverage workbook written",
		zap.String("component", "export.xlsx"),
		zap.String("path", path),
		zap.Int("states", len(rep.Coverage)),
	)
	return nil
}
