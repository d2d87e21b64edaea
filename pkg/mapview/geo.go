// Package mapview is the server-side render surface: the marker set on the
// map, the subset currently displayed, the camera, clusters and the open popup.
package mapview

import (
	"math"

	"github.com/golang/geo/s2"
)

const (
	tileSize      = 256.0
	earthRadius   = 6378137.0
	originShift   = math.Pi * earthRadius
	maxMercator   = 85.05112878
	defaultWidth  = 1024
	defaultHeight = 768
)

// LatLng is a coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Viewport is the map camera. Width and Height are the map size in pixels and
// only matter for in-view queries; zero means a 1024x768 map.
type Viewport struct {
	Center LatLng `json:"center"`
	Zoom   int    `json:"zoom"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// latLngToWebMercator projects degrees onto spherical mercator metres.
func latLngToWebMercator(lat, lng float64) (x, y float64) {
	lat = clamp(lat, -maxMercator, maxMercator)
	x = lng * originShift / 180.0
	y = math.Log(math.Tan((90.0+lat)*math.Pi/360.0)) / (math.Pi / 180.0)
	y = y * originShift / 180.0
	return x, y
}

// webMercatorToPixel converts mercator metres to global pixels at zoom.
func webMercatorToPixel(x, y float64, zoom int) (px, py float64) {
	world := tileSize * math.Exp2(float64(zoom))
	px = (x + originShift) / (2 * originShift) * world
	py = (originShift - y) / (2 * originShift) * world
	return px, py
}

func latLngToPixel(ll LatLng, zoom int) (px, py float64) {
	x, y := latLngToWebMercator(ll.Lat, ll.Lng)
	return webMercatorToPixel(x, y, zoom)
}

func pixelToLatLng(px, py float64, zoom int) LatLng {
	world := tileSize * math.Exp2(float64(zoom))
	lng := px/world*360.0 - 180.0
	n := math.Pi - 2.0*math.Pi*py/world
	lat := 180.0 / math.Pi * math.Atan(math.Sinh(n))
	return LatLng{Lat: clamp(lat, -90, 90), Lng: clamp(lng, -180, 180)}
}

// Bounds returns the rectangle covered by the viewport.
func Bounds(vp Viewport) s2.Rect {
	w, h := vp.Width, vp.Height
	if w <= 0 {
		w = defaultWidth
	}
	if h <= 0 {
		h = defaultHeight
	}
	cx, cy := latLngToPixel(vp.Center, vp.Zoom)
	world := tileSize * math.Exp2(float64(vp.Zoom))
	if float64(w) >= world {
		return s2.FullRect()
	}

	sw := pixelToLatLng(cx-float64(w)/2, cy+float64(h)/2, vp.Zoom)
	ne := pixelToLatLng(cx+float64(w)/2, cy-float64(h)/2, vp.Zoom)
	return s2.RectFromLatLng(s2.LatLngFromDegrees(sw.Lat, sw.Lng)).
		AddPoint(s2.LatLngFromDegrees(ne.Lat, ne.Lng))
}

// Contains reports whether ll lies inside the viewport.
func (vp Viewport) Contains(ll LatLng) bool {
	return Bounds(vp).ContainsLatLng(s2.LatLngFromDegrees(ll.Lat, ll.Lng))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
