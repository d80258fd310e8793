package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const (
	figureWidth  = 14 * vg.Inch
	figureHeight = 8 * vg.Inch
)

// RenderPNG draws fig at a fixed 14x8 inch size.
func RenderPNG(fig *Figure) ([]byte, error) {
	if fig == nil || len(fig.Series) == 0 {
		return nil, errors.New("figure has no series")
	}

	p := plot.New()
	p.Title.Text = fig.Title
	p.X.Label.Text = fig.XLabel
	p.Y.Label.Text = fig.YLabel
	p.Legend.Top = true

	var nominal []string
	bars := 0
	for _, s := range fig.Series {
		if s.Kind == KindBar {
			bars++
		}
	}

	barIndex := 0
	for i, s := range fig.Series {
		col := plotutil.Color(i)
		switch s.Kind {
		case KindBar:
			if nominal != nil && !sameStrings(nominal, s.Labels) {
				return nil, fmt.Errorf("bar series %d uses different categories", i)
			}
			nominal = s.Labels
			bar, err := plotter.NewBarChart(plotter.Values(s.Y), barWidth(len(s.Y), bars))
			if err != nil {
				return nil, fmt.Errorf("bar series %d: %w", i, err)
			}
			bar.Color = col
			bar.LineStyle.Width = 0
			bar.Offset = vg.Length(float64(barIndex)-float64(bars-1)/2) * bar.Width
			barIndex++
			p.Add(bar)
			addLegend(p, fig, s.Label, bar)
		case KindLine:
			xys := make(plotter.XYs, len(s.Y))
			for j := range s.Y {
				xys[j] = plotter.XY{X: float64(j), Y: s.Y[j]}
				if s.X != nil {
					xys[j].X = s.X[j]
				}
			}
			if s.Labels != nil {
				if nominal != nil && !sameStrings(nominal, s.Labels) {
					return nil, fmt.Errorf("line series %d uses different categories", i)
				}
				nominal = s.Labels
			}
			line, points, err := plotter.NewLinePoints(xys)
			if err != nil {
				return nil, fmt.Errorf("line series %d: %w", i, err)
			}
			line.Color = col
			line.Width = vg.Points(2)
			p.Add(line)
			if s.Markers {
				points.Color = col
				points.Shape = draw.CircleGlyph{}
				points.Radius = vg.Points(3)
				p.Add(points)
				addLegend(p, fig, s.Label, line, points)
			} else {
				addLegend(p, fig, s.Label, line)
			}
		case KindScatter:
			xys := make(plotter.XYs, len(s.Y))
			for j := range s.Y {
				xys[j] = plotter.XY{X: s.X[j], Y: s.Y[j]}
			}
			sc, err := plotter.NewScatter(xys)
			if err != nil {
				return nil, fmt.Errorf("scatter series %d: %w", i, err)
			}
			sc.Color = withAlpha(col, s.Alpha)
			sc.Shape = draw.CircleGlyph{}
			sc.Radius = vg.Points(4)
			p.Add(sc)
			addLegend(p, fig, s.Label, sc)
		case KindPie:
			pie := &pieChart{labels: s.Labels, values: s.Y, style: p.Legend.TextStyle}
			p.HideAxes()
			p.Add(pie)
			for j, label := range s.Labels {
				p.Legend.Add(label, wedgeThumb{color: plotutil.Color(j)})
			}
		default:
			return nil, fmt.Errorf("series %d has unsupported kind %q", i, s.Kind)
		}
	}
	if nominal != nil {
		p.NominalX(nominal...)
	}

	writer, err := p.WriterTo(figureWidth, figureHeight, "png")
	if err != nil {
		return nil, fmt.Errorf("create png writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := writer.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func addLegend(p *plot.Plot, fig *Figure, label string, thumbs ...plot.Thumbnailer) {
	if !fig.Legend || label == "" {
		return
	}
	p.Legend.Add(label, thumbs...)
}

func barWidth(categories, series int) vg.Length {
	if categories < 1 {
		categories = 1
	}
	if series < 1 {
		series = 1
	}
	usable := (figureWidth - 2*vg.Inch) * 0.8
	w := usable / vg.Length(categories*series)
	return vg.Length(math.Min(float64(w), float64(vg.Points(48))))
}

func withAlpha(c color.Color, alpha float64) color.Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = uint8(math.Round(alpha * 255))
	return n
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// pieChart draws proportional wedges with percentage labels. gonum/plot has
// no pie plotter.
type pieChart struct {
	labels []string
	values []float64
	style  text.Style
}

func (pc *pieChart) Plot(c draw.Canvas, _ *plot.Plot) {
	var total float64
	for _, v := range pc.values {
		total += v
	}
	if total <= 0 {
		return
	}
	center := c.Center()
	radius := vg.Length(math.Min(float64(c.Max.X-c.Min.X), float64(c.Max.Y-c.Min.Y))) * 0.42

	start := math.Pi / 2
	for i, v := range pc.values {
		if v == 0 {
			continue
		}
		sweep := -2 * math.Pi * v / total
		var path vg.Path
		path.Move(center)
		path.Arc(center, radius, start, sweep)
		path.Close()
		c.SetColor(plotutil.Color(i))
		c.Fill(path)

		mid := start + sweep/2
		labelAt := vg.Point{
			X: center.X + radius*0.65*vg.Length(math.Cos(mid)),
			Y: center.Y + radius*0.65*vg.Length(math.Sin(mid)),
		}
		sty := pc.style
		sty.Color = color.Black
		sty.XAlign = text.XCenter
		sty.YAlign = text.YCenter
		c.FillText(sty, labelAt, fmt.Sprintf("%s\n%.1f%%", pc.labels[i], 100*v/total))
		start += sweep
	}
}

type wedgeThumb struct {
	color color.Color
}

func (w wedgeThumb) Thumbnail(c *draw.Canvas) {
	pts := []vg.Point{
		{X: c.Min.X, Y: c.Min.Y},
		{X: c.Min.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Min.Y},
	}
	c.FillPolygon(w.color, c.ClipPolygonY(pts))
}
