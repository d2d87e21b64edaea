// Package feed turns the node registry CSV into records and fetches it from
// the HTTP endpoint the registration bot keeps up to date.
package feed

import (
	"math"
	"strconv"
	"strings"
)

// Field names written by the registration bot.
const (
	FieldLat       = "lat"
	FieldLon       = "lon"
	FieldName      = "name"
	FieldDesc      = "desc"
	FieldNodeType  = "node_type"
	FieldFrequency = "frequency"
	FieldLink      = "link"
	FieldID        = "ID"
	FieldUser      = "user"
	FieldTimestamp = "timestamp"
)

// Record is one data row keyed by header name. Values are kept as strings;
// numeric fields are parsed by whoever needs them.
type Record map[string]string

// Get returns the value of field or "" when the header did not declare it.
func (r Record) Get(field string) string {
	return r[field]
}

// Name is the display name of the node.
func (r Record) Name() string {
	return r[FieldName]
}

// Contributor identifies who registered the node: the Telegram username when
// present, otherwise the numeric ID.
func (r Record) Contributor() string {
	if u := r[FieldUser]; u != "" {
		return u
	}
	return r[FieldID]
}

// Coordinates parses lat/lon. ok is false unless both are finite numbers.
func (r Record) Coordinates() (lat, lon float64, ok bool) {
	lat, ok = parseFinite(r[FieldLat])
	if !ok {
		return 0, 0, false
	}
	lon, ok = parseFinite(r[FieldLon])
	if !ok {
		return 0, 0, false
	}
	return lat, lon, true
}

func parseFinite(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
