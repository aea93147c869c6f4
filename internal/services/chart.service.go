package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"log"
	"sync"
	"time"

	"uptimeboard/internal/models"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var (
	colorHealthy = drawing.ColorFromHex("22c55e")
	colorFailing = drawing.ColorFromHex("ef4444")
	colorLine    = drawing.ColorFromHex("60a5fa")
)

// ChartSurface is a passive projection of one series buffer. It keeps the
// latest frame and forwards every redraw to its listeners.
type ChartSurface struct {
	name      models.Surface
	telemetry *Telemetry

	mu        sync.RWMutex
	frame     models.ChartFrame
	listeners []func(models.ChartFrame)
}

// NewChartSurface creates an empty surface
func NewChartSurface(name models.Surface, telemetry *Telemetry) *ChartSurface {
	return &ChartSurface{
		name:      name,
		telemetry: telemetry,
		frame:     buildFrame(name, "", nil, 0),
	}
}

// OnRedraw registers a listener called with every new frame. Listeners run
// on the caller's goroutine and must not block.
func (s *ChartSurface) OnRedraw(fn func(models.ChartFrame)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Redraw replaces the frame with points
func (s *ChartSurface) Redraw(monitorUUID string, points []models.TimeSeriesPoint) {
	s.mu.Lock()
	s.frame = buildFrame(s.name, monitorUUID, points, s.frame.Version+1)
	frame := s.frame
	listeners := s.listeners
	s.mu.Unlock()

	s.telemetry.SetSeriesPoints(s.name, frame.Len())
	for _, fn := range listeners {
		fn(frame)
	}
}

// Frame returns the latest frame
func (s *ChartSurface) Frame() models.ChartFrame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// RenderPNG paints the latest frame. Fewer than two points render a blank
// canvas since a line needs two.
func (s *ChartSurface) RenderPNG(w io.Writer, width, height int) error {
	frame := s.Frame()
	if frame.Len() < 2 {
		return blankPNG(w, width, height)
	}

	xs := make([]time.Time, frame.Len())
	for i, ts := range frame.Timestamps {
		xs[i] = time.UnixMilli(ts)
	}

	style := chart.Style{
		StrokeColor: colorLine,
		StrokeWidth: 2,
	}
	if s.name == models.SurfacePopup {
		codes := frame.StatusCodes
		style.DotWidth = 4
		style.DotColorProvider = func(_, _ chart.Range, index int, _, _ float64) drawing.Color {
			if index < len(codes) && codes[index] > 0 && codes[index] < 400 {
				return colorHealthy
			}
			return colorFailing
		}
	}

	title := "Response time (ms)"
	if frame.MonitorUUID != "" && len(frame.Sources) > 0 {
		title = fmt.Sprintf("%s response time (ms)", frame.Sources[len(frame.Sources)-1])
	}

	ch := chart.Chart{
		Title:      title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{ValueFormatter: chart.TimeValueFormatterWithFormat("15:04:05")},
		YAxis:      chart.YAxis{Name: "ms"},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    string(s.name),
				XValues: xs,
				YValues: frame.Values,
				Style:   style,
			},
		},
	}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		log.Printf("[CHART] %s render error: %v; using blank fallback", s.name, err)
		return blankPNG(w, width, height)
	}
	_, err := buf.WriteTo(w)
	return err
}

func buildFrame(name models.Surface, monitorUUID string, points []models.TimeSeriesPoint, version uint64) models.ChartFrame {
	f := models.ChartFrame{
		Surface:     name,
		MonitorUUID: monitorUUID,
		Version:     version,
		Labels:      make([]string, 0, len(points)),
		Values:      make([]float64, 0, len(points)),
		Timestamps:  make([]int64, 0, len(points)),
		Sources:     make([]string, 0, len(points)),
	}
	if name == models.SurfacePopup {
		f.StatusCodes = make([]int, 0, len(points))
	}
	for _, p := range points {
		f.Labels = append(f.Labels, p.Label)
		f.Values = append(f.Values, p.Value)
		f.Timestamps = append(f.Timestamps, p.Timestamp)
		f.Sources = append(f.Sources, p.Source)
		if f.StatusCodes != nil {
			f.StatusCodes = append(f.StatusCodes, p.StatusCode)
		}
	}
	return f
}

func blankPNG(w io.Writer, width, height int) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return png.Encode(w, img)
}
