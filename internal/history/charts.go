package history

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// AssetsHost is where the rendered page loads the echarts scripts from.
const AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ErrNoSamples is returned by RenderPNG when the ring is empty.
var ErrNoSamples = errors.New("no samples recorded")

// RenderPage writes an HTML page with FPS and tag count line charts.
func RenderPage(w io.Writer, samples []Sample, sum Summary) error {
	x := make([]string, len(samples))
	fps := make([]opts.LineData, len(samples))
	tags := make([]opts.LineData, len(samples))
	for i, s := range samples {
		x[i] = s.Time.Local().Format(time.TimeOnly)
		fps[i] = opts.LineData{Value: s.FPS}
		tags[i] = opts.LineData{Value: s.Tags}
	}

	fpsChart := charts.NewLine()
	fpsChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "tagview", Width: "100%", Height: "360px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Processing FPS",
			Subtitle: fmt.Sprintf("mean=%.1f std=%.2f samples=%d", sum.MeanFPS, sum.StdFPS, sum.Samples),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "FPS"}),
	)
	fpsChart.SetXAxis(x).AddSeries("fps", fps)

	tagChart := charts.NewLine()
	tagChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Tags detected",
			Subtitle: fmt.Sprintf("mean=%.2f max=%d", sum.MeanTags, sum.MaxTags),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "tags"}),
	)
	tagChart.SetXAxis(x).AddSeries("tags", tags)

	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.AddCharts(fpsChart, tagChart)
	return page.Render(w)
}

// RenderPNG writes a PNG line plot of FPS over the last samples. Time is
// plotted in seconds relative to the newest sample.
func RenderPNG(w io.Writer, samples []Sample, width, height vg.Length) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}
	newest := samples[len(samples)-1].Time
	pts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		pts[i] = plotter.XY{X: s.Time.Sub(newest).Seconds(), Y: s.FPS}
	}

	p := plot.New()
	p.Title.Text = "Processing FPS"
	p.X.Label.Text = "Seconds"
	p.Y.Label.Text = "FPS"
	p.Y.Min = 0

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("fps line: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line, plotter.NewGrid())

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("png canvas: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
