package dashboard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"mesh-node-map/pkg/feed"
	"mesh-node-map/pkg/mapview"
)

// minQueryRunes is the shortest query that opens the result list.
const minQueryRunes = 2

// Hit is one search result. Lat and Lon are the raw feed values.
type Hit struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Lat   string `json:"lat"`
	Lon   string `json:"lon"`
}

// SearchResult is what the result panel shows. Visible is false when the
// panel stays hidden: short query or no match.
type SearchResult struct {
	Visible bool  `json:"visible"`
	Hits    []Hit `json:"hits"`
}

// Selection describes where the camera went after choosing a hit.
type Selection struct {
	Center      mapview.LatLng `json:"center"`
	Zoom        int            `json:"zoom"`
	PopupOpened bool           `json:"popupOpened"`
	MarkerID    string         `json:"markerId,omitempty"`
}

// Search matches query against record names, case-insensitively, over every
// parsed record including those without coordinates. Hits keep feed order.
func (d *Dashboard) Search(ctx context.Context, query string) (SearchResult, error) {
	res := SearchResult{Hits: []Hit{}}
	err := d.do(ctx, func(st *state) {
		q := d.fold.String(strings.TrimSpace(query))
		if utf8.RuneCountInString(q) < minQueryRunes {
			return
		}
		for i, rec := range st.records {
			name := rec.Name()
			if name == "" || !strings.Contains(d.fold.String(name), q) {
				continue
			}
			res.Hits = append(res.Hits, Hit{
				Index: i,
				Name:  name,
				Lat:   rec.Get(feed.FieldLat),
				Lon:   rec.Get(feed.FieldLon),
			})
			if len(res.Hits) == d.searchLimit {
				break
			}
		}
		res.Visible = len(res.Hits) > 0
	})
	return res, err
}

// Select centers the map on hit at the search zoom and opens the popup of
// the displayed marker sitting exactly on that coordinate, if any.
func (d *Dashboard) Select(ctx context.Context, hit Hit) (Selection, error) {
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(hit.Lat), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(hit.Lon), 64)
	if errLat != nil || errLon != nil || !finite(lat) || !finite(lon) {
		return Selection{}, fmt.Errorf("%w: %q,%q", ErrInvalidCoordinate, hit.Lat, hit.Lon)
	}

	sel := Selection{Center: mapview.LatLng{Lat: lat, Lng: lon}, Zoom: d.searchZoom}
	err := d.do(ctx, func(st *state) {
		vp := d.surface.Viewport()
		vp.Center = sel.Center
		vp.Zoom = sel.Zoom
		d.surface.SetViewport(vp)

		for _, m := range d.surface.Displayed() {
			if m.Position == sel.Center && d.surface.OpenPopup(m.ID) {
				sel.PopupOpened = true
				sel.MarkerID = m.ID
				break
			}
		}
	})
	return sel, err
}
