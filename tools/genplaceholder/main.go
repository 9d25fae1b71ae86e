// Command genplaceholder renders the offline camera placeholder: a muted
// camera glyph crossed by a red slash on a dark background.
// Run from the repository root: go run ./tools/genplaceholder
package main

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/vector"
)

const (
	width  = 320
	height = 240
)

var (
	bgColor    = color.NRGBA{31, 41, 55, 255}   // #1F2937
	bodyColor  = color.NRGBA{75, 85, 99, 255}   // #4B5563
	lensColor  = color.NRGBA{156, 163, 175, 255} // #9CA3AF
	slashColor = color.NRGBA{220, 38, 38, 255}  // #DC2626
)

func main() {
	out := filepath.Join("internal", "asset", "offline.png")
	if len(os.Args) > 1 {
		out = os.Args[1]
	}

	f, err := os.Create(out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", out, err)
		os.Exit(1)
	}
	if err := png.Encode(f, render()); err != nil {
		f.Close()
		fmt.Fprintf(os.Stderr, "encode %s: %v\n", out, err)
		os.Exit(1)
	}
	f.Close()
	fmt.Printf("generated %s (%dx%d)\n", out, width, height)
}

func render() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(bgColor), image.Point{}, draw.Src)

	fill(img, bodyColor, func(r *vector.Rasterizer) {
		roundedRect(r, 100, 85, 200, 155, 10)
		roundedRect(r, 200, 100, 230, 140, 4)
	})
	fill(img, lensColor, func(r *vector.Rasterizer) { circle(r, 150, 120, 22) })
	fill(img, bodyColor, func(r *vector.Rasterizer) { circle(r, 150, 120, 10) })
	fill(img, slashColor, func(r *vector.Rasterizer) { thickLine(r, 95, 60, 235, 180, 5) })
	return img
}

// fill rasterizes the path built by fn and paints it with c.
func fill(img *image.NRGBA, c color.NRGBA, fn func(*vector.Rasterizer)) {
	var r vector.Rasterizer
	r.Reset(width, height)
	fn(&r)
	r.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{})
}

func roundedRect(r *vector.Rasterizer, x0, y0, x1, y1, rad float32) {
	// Quadratic corners approximate the arcs closely enough at this size.
	r.MoveTo(x0+rad, y0)
	r.LineTo(x1-rad, y0)
	r.QuadTo(x1, y0, x1, y0+rad)
	r.LineTo(x1, y1-rad)
	r.QuadTo(x1, y1, x1-rad, y1)
	r.LineTo(x0+rad, y1)
	r.QuadTo(x0, y1, x0, y1-rad)
	r.LineTo(x0, y0+rad)
	r.QuadTo(x0, y0, x0+rad, y0)
	r.ClosePath()
}

func circle(r *vector.Rasterizer, cx, cy, rad float32) {
	const steps = 64
	r.MoveTo(cx+rad, cy)
	for i := 1; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / steps
		r.LineTo(cx+rad*float32(math.Cos(a)), cy+rad*float32(math.Sin(a)))
	}
	r.ClosePath()
}

func thickLine(r *vector.Rasterizer, x0, y0, x1, y1, half float32) {
	dx, dy := float64(x1-x0), float64(y1-y0)
	n := math.Hypot(dx, dy)
	nx, ny := float32(-dy/n)*half, float32(dx/n)*half
	r.MoveTo(x0+nx, y0+ny)
	r.LineTo(x1+nx, y1+ny)
	r.LineTo(x1-nx, y1-ny)
	r.LineTo(x0-nx, y0-ny)
	r.ClosePath()
}
