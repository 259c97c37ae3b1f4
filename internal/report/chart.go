package report

import (
	"fmt"
	"image/color"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sells-group/sdi-cli/internal/model"
)

// ConditionColors is the palette used for each condition class.
var ConditionColors = map[model.Condition]color.RGBA{
	model.ConditionGood:       {R: 0x2e, G: 0xcc, B: 0x71, A: 0xff},
	model.ConditionFair:       {R: 0xf1, G: 0xc4, B: 0x0f, A: 0xff},
	model.ConditionPoorLight:  {R: 0xe6, G: 0x7e, B: 0x22, A: 0xff},
	model.ConditionPoorSevere: {R: 0xe7, G: 0x4c, B: 0x3c, A: 0xff},
}

var unknownColor = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}

func conditionColor(c model.Condition) color.Color {
	if col, ok := ConditionColors[c]; ok {
		return col
	}
	return unknownColor
}

// ConditionChart plots the number of segments per condition class.
func ConditionChart(r *Report) (*plot.Plot, error) {
	counts := make(map[model.Condition]int, len(model.Conditions))
	for _, m := range r.Metrics {
		counts[m.Condition]++
	}

	p := plot.New()
	p.Title.Text = "Road Condition Distribution (segments)"
	p.Y.Label.Text = "Segments"
	p.Y.Min = 0

	names := make([]string, 0, len(model.Conditions))
	for i, c := range model.Conditions {
		bar, err := plotter.NewBarChart(plotter.Values{float64(counts[c])}, vg.Points(40))
		if err != nil {
			return nil, eris.Wrapf(err, "chart: bar %s", c)
		}
		bar.XMin = float64(i)
		bar.Color = conditionColor(c)
		bar.LineStyle.Width = vg.Points(0.5)
		p.Add(bar)
		names = append(names, string(c))
	}
	p.NominalX(names...)
	return p, nil
}

// WriteChart saves the condition distribution bar chart as PNG.
func WriteChart(r *Report, path string) error {
	p, err := ConditionChart(r)
	if err != nil {
		return err
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return eris.Wrapf(err, "chart: save %s", path)
	}
	return nil
}

// ConditionMap draws the segment polygons filled by condition, labeled with
// the segment number and SDI.
func ConditionMap(r *Report) (*plot.Plot, error) {
	if len(r.Polygons) != len(r.Metrics) {
		return nil, eris.Errorf("chart: %d polygons for %d metric rows", len(r.Polygons), len(r.Metrics))
	}

	p := plot.New()
	p.Title.Text = "Road Condition Map (SDI)"
	p.HideAxes()

	var labels plotter.XYLabels
	legend := make(map[model.Condition]*plotter.Polygon)
	counts := make(map[model.Condition]int)

	for i, g := range r.Polygons {
		m := r.Metrics[i]
		rings, err := polygonRings(g)
		if err != nil {
			return nil, eris.Wrapf(err, "chart: segment %d", m.Index)
		}
		poly, err := plotter.NewPolygon(rings...)
		if err != nil {
			return nil, eris.Wrapf(err, "chart: polygon %d", m.Index)
		}
		poly.Color = conditionColor(m.Condition)
		poly.LineStyle.Width = vg.Points(0.5)
		p.Add(poly)

		if _, ok := legend[m.Condition]; !ok {
			legend[m.Condition] = poly
		}
		counts[m.Condition]++

		b := g.Bounds()
		labels.XYs = append(labels.XYs, plotter.XY{X: (b.Min(0) + b.Max(0)) / 2, Y: (b.Min(1) + b.Max(1)) / 2})
		labels.Labels = append(labels.Labels, fmt.Sprintf("S%d\n%.0f", m.Index, m.SDI4))
	}

	if len(labels.XYs) > 0 {
		l, err := plotter.NewLabels(labels)
		if err != nil {
			return nil, eris.Wrap(err, "chart: labels")
		}
		p.Add(l)
	}

	for _, c := range model.Conditions {
		if poly, ok := legend[c]; ok {
			p.Legend.Add(fmt.Sprintf("%s (%d)", c, counts[c]), poly)
		}
	}
	return p, nil
}

// WriteMap saves the condition map as PNG.
func WriteMap(r *Report, path string) error {
	p, err := ConditionMap(r)
	if err != nil {
		return err
	}
	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return eris.Wrapf(err, "chart: save %s", path)
	}
	return nil
}

func polygonRings(g geom.T) ([]plotter.XYer, error) {
	var polys []*geom.Polygon
	switch g := g.(type) {
	case *geom.Polygon:
		polys = append(polys, g)
	case *geom.MultiPolygon:
		for i := range g.NumPolygons() {
			polys = append(polys, g.Polygon(i))
		}
	default:
		return nil, eris.Errorf("chart: unsupported geometry %T", g)
	}

	var rings []plotter.XYer
	for _, p := range polys {
		for i := range p.NumLinearRings() {
			coords := p.LinearRing(i).Coords()
			xys := make(plotter.XYs, len(coords))
			for j, c := range coords {
				xys[j] = plotter.XY{X: c.X(), Y: c.Y()}
			}
			rings = append(rings, xys)
		}
	}
	return rings, nil
}
