package report

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Sheet names of the workbook.
const (
	SheetSummary  = "SDI Summary"
	SheetSegments = "Segments"
	SheetOverview = "Overview"
)

var summaryHeader = []string{
	"Segment", "STA", "% Cracked", "Crack Width (mm)", "Potholes", "Rutting (cm)",
	"SDI1", "SDI2", "SDI3", "SDI4", "Condition", "Fallbacks",
}

// WriteXLSX writes the metrics table, the segment stations and a run
// overview to a workbook at path.
func WriteXLSX(r *Report, path string) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "xlsx: add summary sheet")
	}
	addStrings(summary.AddRow(), summaryHeader...)
	for _, row := range Rows(r.Metrics) {
		xr := summary.AddRow()
		xr.AddCell().SetInt(row.Segment)
		xr.AddCell().SetString(row.STA)
		xr.AddCell().SetFloat(row.PercentCrackedArea)
		xr.AddCell().SetFloat(row.MeanCrackWidthMM)
		xr.AddCell().SetInt(row.PotholeCount)
		xr.AddCell().SetFloat(row.MeanRuttingDepthCM)
		xr.AddCell().SetFloat(row.SDI1)
		xr.AddCell().SetFloat(row.SDI2)
		xr.AddCell().SetFloat(row.SDI3)
		xr.AddCell().SetFloat(row.SDI4)
		xr.AddCell().SetString(row.Condition)
		xr.AddCell().SetString(row.Fallbacks)
	}

	segments, err := f.AddSheet(SheetSegments)
	if err != nil {
		return eris.Wrap(err, "xlsx: add segments sheet")
	}
	addStrings(segments.AddRow(), "Segment", "STA", "Start (m)", "End (m)", "Area (m2)")
	for _, m := range r.Metrics {
		xr := segments.AddRow()
		xr.AddCell().SetInt(m.Index)
		xr.AddCell().SetString(m.STA)
		xr.AddCell().SetFloat(m.StartM)
		xr.AddCell().SetFloat(m.EndM)
		xr.AddCell().SetFloat(m.AreaM2)
	}

	overview, err := f.AddSheet(SheetOverview)
	if err != nil {
		return eris.Wrap(err, "xlsx: add overview sheet")
	}
	for _, kv := range Overview(r) {
		addStrings(overview.AddRow(), kv[0], kv[1])
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

// Overview lists the run header and summary as label/value pairs.
func Overview(r *Report) [][2]string {
	s := r.Summary
	return [][2]string{
		{"Run", r.RunID},
		{"Agency", r.Survey.Agency},
		{"Location", r.Survey.Location},
		{"STA", r.Survey.STARange},
		{"Surveyor", r.Survey.Surveyor},
		{"Date", r.Survey.Date},
		{"Segments", fmt.Sprintf("%d", s.SegmentCount)},
		{"Measured length", fmt.Sprintf("%g meter", s.MeasuredLengthM)},
		{"Mean SDI", fmt.Sprintf("%.2f", s.MeanSDI)},
		{"Dominant condition", string(s.DominantCondition)},
		{"Road width (m)", fmt.Sprintf("%g", r.Params.RoadWidthM)},
		{"Segment interval (m)", fmt.Sprintf("%g", r.Params.SegmentIntervalM)},
		{"CRS", r.Params.ProjectedCRS},
	}
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
