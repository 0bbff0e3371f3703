package report

import (
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SlopeSeries extracts the averaged left and right slopes per frame.
// Frames without a fit for a side are left out of that side's series.
func SlopeSeries(frames []FrameRecord) (left, right plotter.XYs) {
	for _, f := range frames {
		if f.LeftFit != nil {
			left = append(left, plotter.XY{X: float64(f.Index), Y: f.LeftFit.Slope})
		}
		if f.RightFit != nil {
			right = append(right, plotter.XY{X: float64(f.Index), Y: f.RightFit.Slope})
		}
	}
	return left, right
}

// PlotSlopes draws the left and right averaged slope of every frame and
// saves the plot to path. The image format follows the file extension.
func PlotSlopes(frames []FrameRecord, title, path string) error {
	left, right := SlopeSeries(frames)
	if len(left) == 0 && len(right) == 0 {
		return errors.New("no lane fits to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Slope (dy/dx)"

	series := []struct {
		name  string
		pts   plotter.XYs
		color color.Color
	}{
		{"left", left, color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}},
		{"right", right, color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}},
	}
	for _, s := range series {
		if len(s.pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return errors.Wrapf(err, "%s series", s.name)
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Add(plotter.NewGrid())

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrap(err, "save slope plot")
	}
	return nil
}
