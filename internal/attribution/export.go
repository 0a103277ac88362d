package attribution

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/shopper-cli/internal/model"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Write encodes rows in the named format.
func Write(w io.Writer, format string, rows []model.AttributionRow) error {
	switch format {
	case FormatCSV, "":
		return WriteCSV(w, rows)
	case FormatXLSX:
		return WriteXLSX(w, rows)
	default:
		return eris.Wrapf(model.ErrValidation, "attribution: unknown export format %q", format)
	}
}

// WriteCSV writes rows as CSV with a header line. The header is written even
// when rows is empty.
func WriteCSV(w io.Writer, rows []model.AttributionRow) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(model.AttributionRow{}); err != nil {
		return eris.Wrap(err, "attribution: csv header")
	}
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return eris.Wrapf(err, "attribution: csv row %d", i)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "attribution: csv flush")
}

// ReadCSV decodes rows previously written by WriteCSV.
func ReadCSV(r io.Reader) ([]model.AttributionRow, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, eris.Wrap(err, "attribution: csv header")
	}
	var rows []model.AttributionRow
	if err := dec.Decode(&rows); err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "attribution: csv decode")
	}
	return rows, nil
}

// Columns is the header used by both export formats.
func Columns() []string {
	header, err := csvutil.Header(model.AttributionRow{}, "csv")
	if err != nil {
		// AttributionRow carries static tags; a failure here is a programming error.
		panic(err)
	}
	return header
}

const sheetName = "attribution"

// WriteXLSX writes rows to a single-sheet workbook.
func WriteXLSX(w io.Writer, rows []model.AttributionRow) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "attribution: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range Columns() {
		header.AddCell().SetString(col)
	}

	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.BatchID)
		row.AddCell().SetString(r.DecisionID)
		row.AddCell().SetString(string(r.Mode))
		row.AddCell().SetString(r.Provider)
		row.AddCell().SetString(r.Model)
		row.AddCell().SetString(r.PromptVersion)
		row.AddCell().SetString(r.DecidedAt.UTC().Format(time.RFC3339))
		row.AddCell().SetString(r.ProductID)
		row.AddCell().SetString(r.Category)
		row.AddCell().SetString(r.Title)
		row.AddCell().SetFloat(r.Price)
		row.AddCell().SetFloat(r.Rating)
		row.AddCell().SetInt(r.ReviewCount)
		setOptionalInt(row.AddCell(), r.Position)
		setOptionalInt(row.AddCell(), r.Page)
		tags, _ := r.Tags.MarshalText()
		row.AddCell().SetString(string(tags))
		row.AddCell().SetBool(r.IsSponsored)
		row.AddCell().SetBool(r.IsBestSeller)
		row.AddCell().SetBool(r.IsOverallPick)
		row.AddCell().SetBool(r.InConsideration)
		row.AddCell().SetBool(r.Chosen)
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "attribution: write xlsx")
	}
	return nil
}

func setOptionalInt(c *xlsx.Cell, v *int) {
	if v == nil {
		c.SetString("")
		return
	}
	c.SetInt(*v)
}

// FormatSummary renders summaries as rows of strings for tabular display.
func FormatSummary(sums []ProviderSummary) [][]string {
	out := [][]string{{"provider", "model", "decisions", "no_purchase", "mean_considered", "chosen_sponsored", "chosen_best_seller", "chosen_page1"}}
	for _, s := range sums {
		out = append(out, []string{
			s.Provider,
			s.Model,
			strconv.Itoa(s.Decisions),
			strconv.Itoa(s.NoPurchase),
			strconv.FormatFloat(s.MeanConsidered, 'f', 2, 64),
			strconv.Itoa(s.ChosenSponsored),
			strconv.Itoa(s.ChosenBestSeller),
			strconv.Itoa(s.ChosenTopPage),
		})
	}
	return out
}
