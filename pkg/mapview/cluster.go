package mapview

import (
	"sort"

	geohash "github.com/TomiHiltunen/geohash-golang"
)

// Cluster groups displayed markers that share a geohash cell at the current
// zoom. Center is the mean of the member positions.
type Cluster struct {
	Key       string   `json:"key"`
	Count     int      `json:"count"`
	Center    LatLng   `json:"center"`
	MarkerIDs []string `json:"markerIds"`
}

// precisionForZoom picks a geohash length whose cell is roughly the size of a
// 60px cluster radius at zoom: z10 is ~5km cells, z15 is ~150m cells.
func precisionForZoom(zoom int) int {
	p := zoom / 2
	if p < 1 {
		return 1
	}
	if p > 9 {
		return 9
	}
	return p
}

// ClusterMarkers buckets markers by geohash prefix. The result is ordered by
// key so repeated calls over the same input are stable.
func ClusterMarkers(markers []Marker, zoom int) []Cluster {
	if len(markers) == 0 {
		return nil
	}
	precision := precisionForZoom(zoom)

	type acc struct {
		sumLat, sumLng float64
		ids            []string
	}
	cells := make(map[string]*acc)
	for _, m := range markers {
		key := geohash.EncodeWithPrecision(m.Position.Lat, m.Position.Lng, precision)
		a := cells[key]
		if a == nil {
			a = &acc{}
			cells[key] = a
		}
		a.sumLat += m.Position.Lat
		a.sumLng += m.Position.Lng
		a.ids = append(a.ids, m.ID)
	}

	out := make([]Cluster, 0, len(cells))
	for key, a := range cells {
		n := float64(len(a.ids))
		out = append(out, Cluster{
			Key:       key,
			Count:     len(a.ids),
			Center:    LatLng{Lat: a.sumLat / n, Lng: a.sumLng / n},
			MarkerIDs: a.ids,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
