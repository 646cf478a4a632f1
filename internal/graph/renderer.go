// Package graph rasterizes the download and upload history into a small
// bitmap.
//
// The polling goroutine owns the frames returned by Render and Frame. Any
// other goroutine that keeps a frame past the next tick, such as a tray host
// painting on its own schedule, should take a private copy with Snapshot.
package graph

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync/atomic"

	"github.com/saba-futai/fwspeed/internal/throughput"
)

// Palette holds the four colors of the graph. Upload is blended over the
// download bars, so it is normally semi-transparent.
type Palette struct {
	Background color.Color
	Download   color.Color
	Warning    color.Color
	Upload     color.Color
}

// DefaultPalette: dark gray background, green download, yellow outage bar,
// red upload at 80% opacity.
var DefaultPalette = Palette{
	Background: color.RGBA{R: 64, G: 64, B: 64, A: 255},
	Download:   color.RGBA{G: 255, A: 255},
	Warning:    color.RGBA{R: 255, G: 255, A: 255},
	Upload:     color.NRGBA{R: 255, A: 204},
}

type Option func(*Renderer)

func WithPalette(p Palette) Option {
	return func(r *Renderer) {
		r.palette = p
	}
}

// Renderer draws the download/upload history into a W×H bitmap.
//
// Two frames are allocated up front and used alternately; each Render draws
// into the frame that is not currently published and then publishes it. A
// frame returned by Render or Frame is therefore stable until the second
// following Render. Render must not be called concurrently; Frame may be
// called from any goroutine.
type Renderer struct {
	w, h    int
	maxDown float64
	maxUp   float64
	palette Palette

	bg, down, warn, up *image.Uniform

	frames  [2]*image.RGBA
	back    int
	current atomic.Pointer[image.RGBA]
}

// NewRenderer expects positive dimensions and ceilings; they are validated
// with the rest of the configuration.
func NewRenderer(w, h int, maxDown, maxUp float64, opts ...Option) *Renderer {
	r := &Renderer{
		w:       w,
		h:       h,
		maxDown: maxDown,
		maxUp:   maxUp,
		palette: DefaultPalette,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.bg = image.NewUniform(r.palette.Background)
	r.down = image.NewUniform(r.palette.Download)
	r.warn = image.NewUniform(r.palette.Warning)
	r.up = image.NewUniform(r.palette.Upload)

	bounds := image.Rect(0, 0, w, h)
	r.frames[0] = image.NewRGBA(bounds)
	r.frames[1] = image.NewRGBA(bounds)
	draw.Draw(r.frames[1], bounds, r.bg, image.Point{}, draw.Src)
	r.current.Store(r.frames[1])
	return r
}

// Frame returns the most recently published frame. Before the first Render it
// is a blank background frame. The pixels are rewritten two renders later;
// readers outside the render goroutine should prefer Snapshot.
func (r *Renderer) Frame() *image.RGBA {
	return r.current.Load()
}

// Snapshot returns a private copy of the current frame.
func (r *Renderer) Snapshot() *image.RGBA {
	src := r.current.Load()
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}

// Render draws both series and publishes the result. down and up are ordered
// oldest to newest and right-aligned to the last column.
func (r *Renderer) Render(down, up []throughput.Sample) *image.RGBA {
	img := r.frames[r.back]
	draw.Draw(img, img.Rect, r.bg, image.Point{}, draw.Src)

	r.drawDownload(img, down)
	r.drawUpload(img, up)

	r.current.Store(img)
	r.back ^= 1
	return img
}

func (r *Renderer) drawDownload(img *image.RGBA, samples []throughput.Sample) {
	x := r.w - len(samples)
	for _, s := range samples {
		switch {
		case s > 0:
			height := r.scale(s, r.maxDown)
			draw.Draw(img, image.Rect(x, r.h-height, x+1, r.h), r.down, image.Point{}, draw.Src)
		case s < 0:
			// outage: one full-height bar covers both series
			draw.Draw(img, image.Rect(x, 0, x+1, r.h), r.warn, image.Point{}, draw.Src)
		}
		x++
	}
}

func (r *Renderer) drawUpload(img *image.RGBA, samples []throughput.Sample) {
	if len(samples) == 0 {
		return
	}
	x := r.w - len(samples)
	prevY := r.h - r.scale(samples[0], r.maxUp)
	for _, s := range samples {
		if s > 0 {
			y := r.h - r.scale(s, r.maxUp)
			r.line(img, x-1, prevY, x, y)
			prevY = y
		}
		x++
	}
}

// scale maps s to a pixel height capped at h. The conversion truncates
// toward zero, so tiny and negative values map to 0.
func (r *Renderer) scale(s throughput.Sample, ceiling float64) int {
	return int(math.Min(float64(s)/ceiling*float64(r.h), float64(r.h)))
}

// line plots a Bresenham line, clipping to the frame.
func (r *Renderer) line(img *image.RGBA, x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		r.plot(img, x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func (r *Renderer) plot(img *image.RGBA, x, y int) {
	if !(image.Point{X: x, Y: y}).In(img.Rect) {
		return
	}
	draw.Draw(img, image.Rect(x, y, x+1, y+1), r.up, image.Point{}, draw.Over)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
