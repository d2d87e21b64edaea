package mapview

import (
	"bytes"
	"html/template"
	"strconv"
	"strings"
	"time"

	"mesh-node-map/pkg/feed"
)

// DefaultTitle labels markers whose record has no name.
const DefaultTitle = "LoRa node"

// Marker is a record that has a valid position and can be drawn.
type Marker struct {
	ID       string        `json:"id"`
	Position LatLng        `json:"position"`
	Title    string        `json:"title"`
	Record   feed.Record   `json:"record"`
	Popup    template.HTML `json:"popup"`
}

// NewMarker derives a marker from rec. id must be unique within one refresh;
// callers use the record's position in the feed. ok is false when the record
// has no usable coordinates.
func NewMarker(id string, rec feed.Record) (Marker, bool) {
	lat, lon, ok := rec.Coordinates()
	if !ok {
		return Marker{}, false
	}
	title := rec.Name()
	if title == "" {
		title = DefaultTitle
	}
	return Marker{
		ID:       id,
		Position: LatLng{Lat: lat, Lng: lon},
		Title:    title,
		Record:   rec,
		Popup:    RenderPopup(rec),
	}, true
}

var popupTemplate = template.Must(template.New("popup").Parse(
	`<div class="map-popup"><b>{{.Title}}</b>` +
		`{{with .NodeType}}<p><i class="fas fa-microchip"></i> Type: {{.}}</p>{{end}}` +
		`{{with .Frequency}}<p><i class="fas fa-wave-square"></i> Freq: {{.}}</p>{{end}}` +
		`{{with .Desc}}<p><i class="fas fa-info-circle"></i> {{.}}</p>{{end}}` +
		`{{with .Link}}<p><i class="fas fa-external-link-alt"></i> <a href="{{.}}" target="_blank">More information</a></p>{{end}}` +
		`{{with .User}}<p><i class="fas fa-user"></i> User: <a href="https://t.me/{{$.UserHandle}}" target="_blank">{{.}}</a></p>{{end}}` +
		`{{with .Inserted}}<p class="timestamp-info"><i class="far fa-calendar-alt"></i> Added {{.}}</p>{{end}}` +
		`</div>`))

type popupData struct {
	Title      string
	NodeType   string
	Frequency  string
	Desc       string
	Link       string
	User       string
	UserHandle string
	Inserted   string
}

// RenderPopup builds the HTML shown when a marker is opened. Values are
// escaped by html/template, and unsafe link schemes are neutralised.
func RenderPopup(rec feed.Record) template.HTML {
	d := popupData{
		Title:     rec.Name(),
		NodeType:  rec.Get(feed.FieldNodeType),
		Frequency: rec.Get(feed.FieldFrequency),
		Desc:      rec.Get(feed.FieldDesc),
		Link:      rec.Get(feed.FieldLink),
	}
	if d.Title == "" {
		d.Title = DefaultTitle
	}
	if u := rec.Get(feed.FieldUser); u != "" {
		d.UserHandle = strings.TrimPrefix(u, "@")
		d.User = "@" + d.UserHandle
	}
	if ts, err := strconv.ParseInt(rec.Get(feed.FieldTimestamp), 10, 64); err == nil && ts > 0 {
		d.Inserted = time.Unix(ts, 0).UTC().Format("02/01/2006 15:04:05 MST")
	}

	var buf bytes.Buffer
	if err := popupTemplate.Execute(&buf, d); err != nil {
		return template.HTML(template.HTMLEscapeString(d.Title))
	}
	return template.HTML(buf.String())
}
