package tracker

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// MaxPlotPoints is the maximum number of points plotted per curve
const MaxPlotPoints = 500

// smooth returns the points of a curve indexed by position. Curves with
// more than maxPoints points are split into consecutive windows of
// equal length, and the mean of each window is plotted at the window's
// centre.
func smooth(data []float64, maxPoints int) plotter.XYs {
	window := (len(data) + maxPoints - 1) / maxPoints
	if window < 1 {
		window = 1
	}

	pts := make(plotter.XYs, 0, (len(data)+window-1)/window)
	for start := 0; start < len(data); start += window {
		end := start + window
		if end > len(data) {
			end = len(data)
		}
		pts = append(pts, plotter.XY{
			X: float64(start+end-1) / 2,
			Y: stat.Mean(data[start:end], nil),
		})
	}
	return pts
}

// PlotCurves plots learning curves as lines and saves the plot as an
// image at filename. The image format is determined by the extension
// of filename. Each curve is indexed by its position, and curves are
// labelled by their name in the legend. Long curves are smoothed to at
// most MaxPlotPoints points.
func PlotCurves(filename, title, xLabel, yLabel string,
	curves map[string][]float64) error {
	p := plot.New()

	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	names := make([]string, 0, len(curves))
	for name := range curves {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		data := curves[name]
		if len(data) == 0 {
			continue
		}

		line, err := plotter.NewLine(smooth(data, MaxPlotPoints))
		if err != nil {
			return errors.Wrapf(err, "plotCurves: could not plot curve %v",
				name)
		}
		line.Color = plotutil.Color(i)

		p.Add(line)
		p.Legend.Add(name, line)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, filename); err != nil {
		return errors.Wrap(err, "plotCurves: could not save plot")
	}
	return nil
}
