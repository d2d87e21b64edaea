// Package share turns the current viewport into a link other people can
// open, copies it to the clipboard and renders it as a QR code.
package share

import (
	"math"
	"net/url"
	"strconv"

	"mesh-node-map/pkg/mapview"
)

// Query parameter names.
const (
	ParamLat  = "lat"
	ParamLng  = "lng"
	ParamZoom = "z"
)

// DefaultZoom applies to links that carry a position but no zoom.
const DefaultZoom = 15

// Encode returns base with the viewport in its query. Other parameters of
// base are kept.
func Encode(base *url.URL, vp mapview.Viewport) string {
	u := *base
	q := u.Query()
	q.Set(ParamLat, strconv.FormatFloat(vp.Center.Lat, 'f', 6, 64))
	q.Set(ParamLng, strconv.FormatFloat(vp.Center.Lng, 'f', 6, 64))
	q.Set(ParamZoom, strconv.Itoa(vp.Zoom))
	u.RawQuery = q.Encode()
	return u.String()
}

// Decode overrides fallback with the position in values. Both lat and lng
// must be finite numbers, otherwise fallback is returned unchanged.
func Decode(values url.Values, fallback mapview.Viewport) mapview.Viewport {
	lat, ok := parseFinite(values.Get(ParamLat))
	if !ok {
		return fallback
	}
	lng, ok := parseFinite(values.Get(ParamLng))
	if !ok {
		return fallback
	}

	vp := fallback
	vp.Center = mapview.LatLng{Lat: lat, Lng: lng}
	vp.Zoom = DefaultZoom
	if z, err := strconv.Atoi(values.Get(ParamZoom)); err == nil && z >= 0 && z <= 22 {
		vp.Zoom = z
	}
	return vp
}

func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
