// Package dashboard owns the single map session: the parsed records, the
// markers derived from them, statistics, active filters and the render
// surface. Every read and write goes through one goroutine, so a refresh is
// applied atomically with respect to filters, searches and viewport changes.
package dashboard

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	"golang.org/x/text/cases"

	"mesh-node-map/pkg/cyclelog"
	"mesh-node-map/pkg/feed"
	"mesh-node-map/pkg/mapview"
	"mesh-node-map/pkg/status"
)

var log = logrus.WithField("prefix", "dashboard")

const (
	DefaultSearchLimit = 10
	DefaultSearchZoom  = 16
	maxZoom            = 22
)

// DefaultFilterFields are the record fields a FilterState may constrain.
var DefaultFilterFields = []string{feed.FieldFrequency, feed.FieldNodeType}

var (
	// ErrNoValidData is returned by Refresh when the feed has no record
	// with usable coordinates.
	ErrNoValidData = errors.New("no valid data found")

	// ErrUnknownFilter rejects a filter on a field that is not filterable.
	ErrUnknownFilter = errors.New("unknown filter field")

	// ErrInvalidViewport rejects non-finite centers and out of range zooms.
	ErrInvalidViewport = errors.New("invalid viewport")

	// ErrInvalidCoordinate rejects a search hit without a usable position.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrNotLoaded is returned by Export before any feed was downloaded.
	ErrNotLoaded = errors.New("feed not loaded yet")

	// ErrClosed is returned by every call made after Close.
	ErrClosed = errors.New("dashboard closed")
)

// Options configures New. Source and Surface are required.
type Options struct {
	Source       feed.Source
	Surface      mapview.Surface
	Publisher    status.Publisher
	Scope        tally.Scope
	CycleLog     *cyclelog.Log
	SearchLimit  int
	SearchZoom   int
	FilterFields []string
	Now          func() time.Time
}

type op struct {
	fn   func(st *state)
	done chan struct{}
}

// Dashboard is safe for concurrent use.
type Dashboard struct {
	source    feed.Source
	surface   mapview.Surface
	publisher status.Publisher
	scope     tally.Scope
	clog      *cyclelog.Log
	now       func() time.Time

	searchLimit int
	searchZoom  int
	filterable  map[string]bool
	fold        cases.Caser

	ops  chan op
	quit chan struct{}
}

type nopPublisher struct{}

func (nopPublisher) Publish(status.Status) {}

// New starts the session goroutine.
func New(opts Options) *Dashboard {
	d := &Dashboard{
		source:      opts.Source,
		surface:     opts.Surface,
		publisher:   opts.Publisher,
		scope:       opts.Scope,
		clog:        opts.CycleLog,
		now:         opts.Now,
		searchLimit: opts.SearchLimit,
		searchZoom:  opts.SearchZoom,
		filterable:  make(map[string]bool),
		fold:        cases.Fold(),
		ops:         make(chan op),
		quit:        make(chan struct{}),
	}
	if d.publisher == nil {
		d.publisher = nopPublisher{}
	}
	if d.scope == nil {
		d.scope = tally.NoopScope
	}
	if d.clog == nil {
		d.clog = cyclelog.New(logrus.WithField("prefix", "refresh"))
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.searchLimit <= 0 {
		d.searchLimit = DefaultSearchLimit
	}
	if d.searchZoom <= 0 {
		d.searchZoom = DefaultSearchZoom
	}
	fields := opts.FilterFields
	if len(fields) == 0 {
		fields = DefaultFilterFields
	}
	for _, f := range fields {
		d.filterable[f] = true
	}

	go d.loop()
	return d
}

// Close stops the session goroutine. Later calls fail with an error.
func (d *Dashboard) Close() {
	select {
	case <-d.quit:
	default:
		close(d.quit)
	}
}

func (d *Dashboard) loop() {
	st := state{filters: FilterState{}}
	for {
		select {
		case <-d.quit:
			return
		case o := <-d.ops:
			o.fn(&st)
			close(o.done)
		}
	}
}

// do runs fn on the session goroutine and waits for it to finish.
func (d *Dashboard) do(ctx context.Context, fn func(st *state)) error {
	o := op{fn: fn, done: make(chan struct{})}
	select {
	case d.ops <- o:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.quit:
		return ErrClosed
	}
	select {
	case <-o.done:
		return nil
	case <-d.quit:
		return ErrClosed
	}
}

func (d *Dashboard) publish(kind status.Kind, id string, data map[string]any) {
	d.publisher.Publish(status.New(kind, id, data))
}

// Stats returns the statistics of the last parsed feed.
func (d *Dashboard) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := d.do(ctx, func(st *state) {
		s = st.stats
		s.TopContributors = append([]ContributorCount(nil), st.stats.TopContributors...)
	})
	return s, err
}

// Version changes whenever records, markers or filters change.
func (d *Dashboard) Version(ctx context.Context) (uint64, error) {
	var v uint64
	err := d.do(ctx, func(st *state) { v = st.version })
	return v, err
}

// Displayed returns the markers currently drawn, optionally only those
// inside the viewport.
func (d *Dashboard) Displayed(ctx context.Context, inViewOnly bool) ([]mapview.Marker, error) {
	var out []mapview.Marker
	err := d.do(ctx, func(st *state) {
		shown := d.surface.Displayed()
		out = make([]mapview.Marker, 0, len(shown))
		for _, m := range shown {
			if !inViewOnly || d.surface.InView(m.Position) {
				out = append(out, m)
			}
		}
	})
	return out, err
}

// Clusters groups the displayed markers for the current zoom.
func (d *Dashboard) Clusters(ctx context.Context) ([]mapview.Cluster, error) {
	var out []mapview.Cluster
	err := d.do(ctx, func(st *state) { out = d.surface.Clusters() })
	return out, err
}

func (d *Dashboard) Viewport(ctx context.Context) (mapview.Viewport, error) {
	var vp mapview.Viewport
	err := d.do(ctx, func(st *state) { vp = d.surface.Viewport() })
	return vp, err
}

// SetViewport moves the camera. Zero width or height keeps the previous size.
func (d *Dashboard) SetViewport(ctx context.Context, vp mapview.Viewport) (mapview.Viewport, error) {
	if !validViewport(vp) {
		return mapview.Viewport{}, ErrInvalidViewport
	}
	err := d.do(ctx, func(st *state) {
		cur := d.surface.Viewport()
		if vp.Width <= 0 || vp.Height <= 0 {
			vp.Width, vp.Height = cur.Width, cur.Height
		}
		d.surface.SetViewport(vp)
	})
	return vp, err
}

func validViewport(vp mapview.Viewport) bool {
	return finite(vp.Center.Lat) && finite(vp.Center.Lng) &&
		vp.Center.Lat >= -90 && vp.Center.Lat <= 90 &&
		vp.Zoom >= 0 && vp.Zoom <= maxZoom
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
