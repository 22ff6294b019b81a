package history

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/banshee-data/heading.report/internal/httputil"
)

// The y axis is fixed slightly wider than a full turn so traces at 0° and
// 360° stay visible.
const (
	axisMin = -10
	axisMax = 370
)

var (
	headingColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	irColor      = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// RenderHTML writes an interactive line chart of samples to w.
func RenderHTML(w io.Writer, samples []Sample, title string) error {
	xs := make([]int, len(samples))
	headings := make([]opts.LineData, len(samples))
	irs := make([]opts.LineData, len(samples))
	for i, s := range samples {
		xs[i] = i
		headings[i] = lineValue(s.Heading)
		irs[i] = lineValue(s.IRBearing)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d samples", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Sample", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: axisMin, Max: axisMax, Name: "Degrees", NameLocation: "middle", NameGap: 35}),
	)
	line.SetXAxis(xs).
		AddSeries("Heading", headings, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})).
		AddSeries("IR bearing", irs, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	return line.Render(w)
}

// lineValue maps values with no JSON form to the ECharts gap marker.
func lineValue(v float64) opts.LineData {
	if !finite(v) {
		return opts.LineData{Value: "-"}
	}
	return opts.LineData{Value: v}
}

// RenderPNG writes a static PNG line chart of samples to w. Non-finite
// values are skipped.
func RenderPNG(w io.Writer, samples []Sample, title string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "Degrees"
	p.Y.Min = axisMin
	p.Y.Max = axisMax
	p.X.Min = 0
	p.X.Max = float64(max(len(samples)-1, 1))
	p.Add(plotter.NewGrid())

	headingPts := make(plotter.XYs, 0, len(samples))
	irPts := make(plotter.XYs, 0, len(samples))
	for i, s := range samples {
		if finite(s.Heading) {
			headingPts = append(headingPts, plotter.XY{X: float64(i), Y: s.Heading})
		}
		if finite(s.IRBearing) {
			irPts = append(irPts, plotter.XY{X: float64(i), Y: s.IRBearing})
		}
	}

	for _, series := range []struct {
		name  string
		pts   plotter.XYs
		color color.Color
	}{
		{"Heading", headingPts, headingColor},
		{"IR bearing", irPts, irColor},
	} {
		if len(series.pts) == 0 {
			continue
		}
		l, err := plotter.NewLine(series.pts)
		if err != nil {
			return fmt.Errorf("%s line: %w", series.name, err)
		}
		l.Color = series.color
		l.Width = vg.Points(1)
		p.Add(l)
		p.Legend.Add(series.name, l)
	}

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// AttachAdminRoutes serves the buffer as charts and a JSON summary under
// /debug/.
func (b *Buffer) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("chart", "interactive chart of recent readings", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := RenderHTML(&buf, b.Samples(), "Heading and IR bearing"); err != nil {
			http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})

	debug.HandleSilentFunc("chart.png", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := RenderPNG(&buf, b.Samples(), "Heading and IR bearing"); err != nil {
			http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	})

	debug.HandleFunc("summary", "summary statistics of recent readings", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, Summarize(b.Samples()))
	})
}
