package share

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	qrcode "github.com/skip2/go-qrcode"
)

// QROptions controls the rendered QR image. Zero values take defaults.
type QROptions struct {
	// Output size in pixels.
	TargetPx int

	Fg   color.RGBA
	Bg   color.RGBA
	Mark color.RGBA

	// Side of the central box as a fraction of the image, 0.20..0.32.
	MarkBoxFrac float64
}

func (o *QROptions) defaults() {
	if o.TargetPx <= 0 {
		o.TargetPx = 512
	}
	if o.MarkBoxFrac <= 0 {
		o.MarkBoxFrac = 0.26
	}
	o.MarkBoxFrac = math.Max(0.20, math.Min(0.32, o.MarkBoxFrac))
	if (o.Fg == color.RGBA{}) {
		o.Fg = color.RGBA{0x1b, 0x1f, 0x23, 0xff}
	}
	if (o.Bg == color.RGBA{}) {
		o.Bg = color.RGBA{0xff, 0xff, 0xff, 0xff}
	}
	if (o.Mark == color.RGBA{}) {
		o.Mark = color.RGBA{0x2e, 0x7d, 0x32, 0xff}
	}
}

// QR writes link as a PNG QR code with an antenna mark in the middle. The
// code uses the highest error correction level so the covered modules are
// recovered by readers.
func QR(w io.Writer, link string, opt QROptions) error {
	opt.defaults()

	qr, err := qrcode.New(link, qrcode.Highest)
	if err != nil {
		return err
	}
	qr.ForegroundColor = opt.Fg
	qr.BackgroundColor = opt.Bg

	src := qr.Image(opt.TargetPx)
	b := src.Bounds()
	W, H := b.Dx(), b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, W, H))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	box := int(opt.MarkBoxFrac * float64(min(W, H)))
	box -= box % 2
	cx, cy := W/2, H/2
	fillRect(dst, cx-box/2, cy-box/2, box, box, opt.Bg)
	drawAntenna(dst, cx, cy, box, opt.Mark)

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, dst)
}

// drawAntenna draws a mast with a node on top and two pairs of radio waves.
func drawAntenna(dst *image.RGBA, cx, cy, box int, col color.RGBA) {
	half := box / 2
	top := cy - half/3
	stroke := max(2, box/14)

	// mast and base
	fillRect(dst, cx-stroke/2, top, stroke, cy+int(0.8*float64(half))-top, col)
	fillRect(dst, cx-half/3, cy+int(0.8*float64(half))-stroke, 2*half/3, stroke, col)

	fillCircle(dst, cx, top, stroke+stroke/2, col)

	// waves open to the left and right of the node
	for _, r := range []int{int(0.45 * float64(half)), int(0.75 * float64(half))} {
		drawArc(dst, cx, top, r-stroke/2, r+stroke/2, deg(-40), deg(40), col)
		drawArc(dst, cx, top, r-stroke/2, r+stroke/2, deg(140), deg(220), col)
	}
}

func deg(d float64) float64 { return d * math.Pi / 180 }

func fillRect(img *image.RGBA, x, y, w, h int, col color.RGBA) {
	draw.Draw(img, image.Rect(x, y, x+w, y+h), &image.Uniform{col}, image.Point{}, draw.Src)
}

func fillCircle(img *image.RGBA, cx, cy, r int, col color.RGBA) {
	drawArc(img, cx, cy, 0, r, 0, 2*math.Pi, col)
}

// drawArc fills the ring sector between radii ri and ro and angles a0..a1
// (radians, counterclockwise from +x, screen y pointing down).
func drawArc(img *image.RGBA, cx, cy, ri, ro int, a0, a1 float64, col color.RGBA) {
	if ro <= 0 || ro < ri {
		return
	}
	b := img.Bounds()
	ri2, ro2 := ri*ri, ro*ro
	for y := max(cy-ro, b.Min.Y); y <= min(cy+ro, b.Max.Y-1); y++ {
		for x := max(cx-ro, b.Min.X); x <= min(cx+ro, b.Max.X-1); x++ {
			dx, dy := x-cx, cy-y
			r2 := dx*dx + dy*dy
			if r2 < ri2 || r2 > ro2 {
				continue
			}
			if a1-a0 >= 2*math.Pi || inSector(math.Atan2(float64(dy), float64(dx)), a0, a1) {
				img.SetRGBA(x, y, col)
			}
		}
	}
}

func inSector(a, a0, a1 float64) bool {
	for a < a0 {
		a += 2 * math.Pi
	}
	for a > a0+2*math.Pi {
		a -= 2 * math.Pi
	}
	return a <= a1
}
