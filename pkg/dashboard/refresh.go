package dashboard

import (
	"context"
	"fmt"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"mesh-node-map/pkg/feed"
	"mesh-node-map/pkg/mapview"
	"mesh-node-map/pkg/metrics"
	"mesh-node-map/pkg/status"
)

// RefreshResult summarises one refresh cycle.
type RefreshResult struct {
	CycleID string `json:"cycleId"`
	Records int    `json:"records"`
	Markers int    `json:"markers"`
	Visible int    `json:"visible"`
}

// Refresh runs one cycle: fetch, parse, rebuild markers, keep the camera
// where it was and reapply the active filters.
//
// A failed download leaves everything as it was and returns the source's
// error. A feed without any geolocated record updates statistics and the
// search set but keeps the previous markers, and returns ErrNoValidData.
// Overlapping calls are allowed; whichever applies last wins.
func (d *Dashboard) Refresh(ctx context.Context) (RefreshResult, error) {
	res := RefreshResult{CycleID: uuid.New().String()}
	d.clog.Begin(res.CycleID)
	d.publish(status.Loading, status.MsgLoading, nil)

	sw := d.scope.Timer(metrics.Fetch).Start()
	text, err := d.source.Fetch(ctx)
	sw.Stop()
	if err != nil {
		d.scope.Counter(metrics.RefreshTransportError).Inc(1)
		d.clog.FlushError(res.CycleID, err)
		sentry.CaptureException(err)
		d.publish(status.Error, status.MsgTransportError, map[string]any{"Error": err.Error()})
		return res, err
	}
	d.clog.Append(res.CycleID, fmt.Sprintf("fetched %d bytes", len(text)))

	var applyErr error
	if err := d.do(ctx, func(st *state) { applyErr = d.apply(st, text, &res) }); err != nil {
		d.clog.FlushError(res.CycleID, err)
		d.publish(status.Error, status.MsgRefreshAborted, map[string]any{"Error": err.Error()})
		return res, err
	}
	return res, applyErr
}

// apply runs on the session goroutine.
func (d *Dashboard) apply(st *state, text string, res *RefreshResult) error {
	records := feed.Parse(text)
	st.raw = text
	st.loaded = true
	st.records = records
	st.stats = computeStats(records, d.now())
	st.version++
	res.Records = len(records)
	d.clog.Append(res.CycleID, fmt.Sprintf("parsed %d records, %d contributors", len(records), st.stats.UniqueContributors))

	vp := d.surface.Viewport()

	markers := make([]mapview.Marker, 0, len(records))
	for i, rec := range records {
		if m, ok := mapview.NewMarker(strconv.Itoa(i), rec); ok {
			markers = append(markers, m)
		}
	}
	if len(markers) == 0 {
		d.scope.Counter(metrics.RefreshEmpty).Inc(1)
		d.clog.FlushError(res.CycleID, ErrNoValidData)
		d.publish(status.Error, status.MsgNoValidData, nil)
		return ErrNoValidData
	}

	d.surface.Replace(markers)
	d.surface.SetViewport(vp)
	st.markers = markers

	visible := st.visible()
	d.surface.Show(visible)

	res.Markers = len(markers)
	res.Visible = len(visible)
	d.scope.Gauge(metrics.Markers).Update(float64(len(markers)))
	d.scope.Counter(metrics.RefreshSuccess).Inc(1)
	d.clog.Success(res.CycleID, fmt.Sprintf("loaded %d markers (%d visible) from %d records",
		res.Markers, res.Visible, res.Records))
	d.publish(status.Success, status.MsgLoaded, status.Count(len(markers)))
	return nil
}
