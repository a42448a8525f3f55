package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/tess-exoclass/internal/model"
)

var workbookHeader = []string{
	"rank", "tic", "pn", "score", "match_flag", "tier", "flag_bits", "causes", "annotation",
}

// WriteWorkbook saves one sheet per tier plus an "all" sheet, rows in rank
// order.
func WriteWorkbook(path string, rows []model.TierRow) error {
	f := xlsx.NewFile()
	sheets := make(map[int]*xlsx.Sheet, 4)
	for i, name := range []string{"all", "tier1", "tier2", "tier3"} {
		sh, err := f.AddSheet(name)
		if err != nil {
			return eris.Wrapf(err, "report: add sheet %s", name)
		}
		header := sh.AddRow()
		for _, h := range workbookHeader {
			header.AddCell().SetString(h)
		}
		sheets[i] = sh
	}

	for _, r := range rows {
		addRow(sheets[0], r)
		if sh, ok := sheets[r.Tier]; ok && r.Tier > 0 {
			addRow(sh, r)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save workbook %s", path)
	}
	return nil
}

func addRow(sh *xlsx.Sheet, r model.TierRow) {
	row := sh.AddRow()
	row.AddCell().SetInt(r.Rank)
	row.AddCell().SetInt64(int64(r.TIC))
	row.AddCell().SetInt(r.PlanetNum)
	row.AddCell().SetFloat(r.Score)
	row.AddCell().SetInt(r.MatchFlag)
	row.AddCell().SetInt(r.Tier)
	row.AddCell().SetString(r.FlagBits)
	row.AddCell().SetString(r.Causes)
	row.AddCell().SetString(r.Annotation)
}
