// Package report renders a parsed sample log as an interactive HTML chart or
// a static PNG, and summarizes it per video segment.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/maastricht-university/amusement-pipeline/samplelog"
)

const (
	FormatHTML = "html"
	FormatPNG  = "png"
)

var ErrUnknownFormat = errors.New("unknown report format")

// FormatFromPath guesses the format from a file extension, defaulting to HTML.
func FormatFromPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return FormatPNG
	}
	return FormatHTML
}

// Segment is a contiguous run of records with the same video id.
type Segment struct {
	VideoID string
	Start   float64 // seconds since the session start
	End     float64
	Samples int
	Mean    float64
}

// Segments splits the log at video id changes and averages the amusement of
// each run. Only logged records are counted, so means are of the rate-limited
// samples and can differ slightly from the live session totals.
func Segments(l *samplelog.Log) []Segment {
	var (
		out  []Segment
		vals []float64
	)
	flush := func() {
		if len(vals) == 0 {
			return
		}
		out[len(out)-1].Samples = len(vals)
		out[len(out)-1].Mean = stat.Mean(vals, nil)
		vals = vals[:0]
	}
	for _, r := range l.Records {
		t := elapsed(l, r)
		if len(out) == 0 || out[len(out)-1].VideoID != r.VideoID {
			flush()
			out = append(out, Segment{VideoID: r.VideoID, Start: t})
		}
		out[len(out)-1].End = t
		vals = append(vals, r.Amusement)
	}
	flush()
	return out
}

func elapsed(l *samplelog.Log, r samplelog.Record) float64 {
	start := l.Start
	if start.IsZero() && len(l.Records) > 0 {
		start = l.Records[0].Time
	}
	return r.Time.Sub(start).Seconds()
}

type series struct {
	name  string
	value func(samplelog.Record) float64
}

var plotted = []series{
	{"amusement", func(r samplelog.Record) float64 { return r.Amusement }},
	{"smile", func(r samplelog.Record) float64 { return r.Smile }},
	{"laughter", func(r samplelog.Record) float64 { return r.Laughter }},
	{"audio", func(r samplelog.Record) float64 { return r.Audio }},
}

// Render writes the log in the given format.
func Render(w io.Writer, l *samplelog.Log, format string) error {
	if len(l.Records) == 0 {
		return errors.New("sample log has no records")
	}
	switch format {
	case FormatHTML:
		return renderHTML(w, l)
	case FormatPNG:
		return renderPNG(w, l)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func title(l *samplelog.Log) (string, string) {
	sub := l.Start.Format("2006-01-02 15:04:05")
	if l.RunID != "" {
		sub = fmt.Sprintf("run=%s start=%s", l.RunID, sub)
	}
	return "Amusement", sub
}

func renderHTML(w io.Writer, l *samplelog.Log) error {
	head, sub := title(l)
	x := make([]string, len(l.Records))
	for i, r := range l.Records {
		x[i] = fmt.Sprintf("%.1f", elapsed(l, r))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Amusement Detection Log", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: head, Subtitle: sub}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "score", Min: 0}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x)
	for _, s := range plotted {
		data := make([]opts.LineData, len(l.Records))
		for i, r := range l.Records {
			data[i] = opts.LineData{Value: s.value(r)}
		}
		line.AddSeries(s.name, data)
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

var palette = []color.RGBA{
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff},
}

func renderPNG(w io.Writer, l *samplelog.Log) error {
	head, sub := title(l)
	p := plot.New()
	p.Title.Text = head + " (" + sub + ")"
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = "score"
	p.Y.Min = 0

	for i, s := range plotted {
		pts := make(plotter.XYs, len(l.Records))
		for j, r := range l.Records {
			pts[j] = plotter.XY{X: elapsed(l, r), Y: s.value(r)}
		}
		ln, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plot %s: %w", s.name, err)
		}
		ln.Color = palette[i%len(palette)]
		ln.Width = vg.Points(1)
		if s.name == "amusement" {
			ln.Width = vg.Points(2)
		}
		p.Add(ln)
		p.Legend.Add(s.name, ln)
	}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	wt, err := p.WriterTo(12*vg.Inch, 5*vg.Inch, FormatPNG)
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
