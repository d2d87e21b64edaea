package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"github.com/uber-go/tally"

	"mesh-node-map/pkg/cyclelog"
	"mesh-node-map/pkg/feed"
	"mesh-node-map/pkg/mapview"
	"mesh-node-map/pkg/metrics"
	"mesh-node-map/pkg/mocks"
	"mesh-node-map/pkg/status"
)

const nodesCSV = `lat,lon,name,desc,node_type,frequency,link,ID,user,timestamp
45.5400,10.2200,Alpha Gateway,,gateway,868,https://a.example,101,@alice,1700000000
45.5500,10.2300,Beta Gateway,,gateway,433,,102,@bob,
45.5600,10.2400,"Gamma, Gateway",,gateway,868,,103,,
45.5700,10.2500,Delta Node,,node,868,,101,@alice,
45.5800,10.2600,Epsilon Node,,node,433,https://e.example,105,,
,,Ghost Alpha,,node,868,,106,@carol,
`

type recorder struct {
	mu       sync.Mutex
	statuses []status.Status
}

func (r *recorder) Publish(s status.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) last() status.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return status.Status{}
	}
	return r.statuses[len(r.statuses)-1]
}

func (r *recorder) kinds() []status.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]status.Kind, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, s.Kind)
	}
	return out
}

type DashboardTestSuite struct {
	suite.Suite
	ctl       *gomock.Controller
	source    *mocks.MockSource
	surface   *mapview.Memory
	statuses  *recorder
	scope     tally.TestScope
	dashboard *Dashboard
	ctx       context.Context
	startView mapview.Viewport
}

func (s *DashboardTestSuite) SetupTest() {
	s.ctl = gomock.NewController(s.T())
	s.source = mocks.NewMockSource(s.ctl)
	s.startView = mapview.Viewport{Center: mapview.LatLng{Lat: 45.5397, Lng: 10.2206}, Zoom: 10, Width: 1280, Height: 720}
	s.surface = mapview.NewMemory(s.startView)
	s.statuses = &recorder{}
	s.scope = tally.NewTestScope("", nil)
	s.ctx = context.Background()

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	s.dashboard = New(Options{
		Source:    s.source,
		Surface:   s.surface,
		Publisher: s.statuses,
		Scope:     s.scope,
		CycleLog:  cyclelog.New(quiet.WithField("prefix", "refresh")),
		Now:       func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func (s *DashboardTestSuite) TearDownTest() {
	s.dashboard.Close()
	s.ctl.Finish()
}

func (s *DashboardTestSuite) counter(name string) int64 {
	for _, c := range s.scope.Snapshot().Counters() {
		if c.Name() == name {
			return c.Value()
		}
	}
	return 0
}

func (s *DashboardTestSuite) gauge(name string) float64 {
	for _, g := range s.scope.Snapshot().Gauges() {
		if g.Name() == name {
			return g.Value()
		}
	}
	return 0
}

func (s *DashboardTestSuite) loadNodes() {
	s.source.EXPECT().Fetch(gomock.Any()).Return(nodesCSV, nil).Times(1)
	res, err := s.dashboard.Refresh(s.ctx)
	s.Require().NoError(err)
	s.Equal(5, res.Markers)
}

func (s *DashboardTestSuite) displayed() int {
	markers, err := s.dashboard.Displayed(s.ctx, false)
	s.Require().NoError(err)
	return len(markers)
}

func (s *DashboardTestSuite) TestRefresh() {
	s.source.EXPECT().Fetch(gomock.Any()).Return(nodesCSV, nil).Times(1)

	res, err := s.dashboard.Refresh(s.ctx)
	s.Require().NoError(err)
	s.NotEmpty(res.CycleID)
	s.Equal(6, res.Records)
	s.Equal(5, res.Markers)
	s.Equal(5, res.Visible)
	s.Equal(5, s.displayed())

	s.Equal([]status.Kind{status.Loading, status.Success}, s.statuses.kinds())
	s.Equal(status.MsgLoaded, s.statuses.last().MessageID)
	s.Equal(5, s.statuses.last().Data["Count"])

	s.Equal(int64(1), s.counter(metrics.RefreshSuccess))
	s.Equal(float64(5), s.gauge(metrics.Markers))
}

func (s *DashboardTestSuite) TestRefreshKeepsViewport() {
	s.loadNodes()
	vp, err := s.dashboard.Viewport(s.ctx)
	s.Require().NoError(err)
	s.Equal(s.startView, vp)

	moved := mapview.Viewport{Center: mapview.LatLng{Lat: 45.123456789, Lng: 10.987654321}, Zoom: 13}
	_, err = s.dashboard.SetViewport(s.ctx, moved)
	s.Require().NoError(err)

	s.loadNodes()
	vp, err = s.dashboard.Viewport(s.ctx)
	s.Require().NoError(err)
	s.Equal(moved.Center, vp.Center)
	s.Equal(moved.Zoom, vp.Zoom)
	s.Equal(1280, vp.Width, "size kept when not given")
}

func (s *DashboardTestSuite) TestStats() {
	s.loadNodes()

	stats, err := s.dashboard.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(6, stats.TotalNodes)
	s.Equal(5, stats.UniqueContributors)
	s.Equal(2, stats.WithLinks)
	s.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), stats.LastUpdate)
	s.Require().Len(stats.TopContributors, 5)
	s.Equal(ContributorCount{ID: "101", Contributor: "@alice", Records: 2}, stats.TopContributors[0])
	s.Equal(ContributorCount{ID: "102", Contributor: "@bob", Records: 1}, stats.TopContributors[1])
	s.Equal(ContributorCount{ID: "103", Contributor: "#103", Records: 1}, stats.TopContributors[2])
}

func (s *DashboardTestSuite) TestExport() {
	_, err := s.dashboard.Export(s.ctx)
	s.True(errors.Is(err, ErrNotLoaded))

	s.loadNodes()
	text, err := s.dashboard.Export(s.ctx)
	s.Require().NoError(err)
	s.Equal(nodesCSV, text)

	s.source.EXPECT().Fetch(gomock.Any()).Return("", &feed.TransportError{URL: "http://feed/dati.csv", Status: 500}).Times(1)
	_, err = s.dashboard.Refresh(s.ctx)
	s.Error(err)
	text, err = s.dashboard.Export(s.ctx)
	s.Require().NoError(err)
	s.Equal(nodesCSV, text, "a failed download keeps the last feed")
}

func (s *DashboardTestSuite) TestContributorNodes() {
	s.loadNodes()

	nodes, err := s.dashboard.ContributorNodes(s.ctx, "101")
	s.Require().NoError(err)
	s.Equal([]ContributorNode{
		{Index: 0, Name: "Alpha Gateway", Link: "https://a.example"},
		{Index: 3, Name: "Delta Node"},
	}, nodes)

	nodes, err = s.dashboard.ContributorNodes(s.ctx, "106")
	s.Require().NoError(err)
	s.Equal([]ContributorNode{{Index: 5, Name: "Ghost Alpha"}}, nodes, "records without coordinates are listed too")

	for _, id := range []string{"", "999"} {
		nodes, err = s.dashboard.ContributorNodes(s.ctx, id)
		s.Require().NoError(err)
		s.NotNil(nodes)
		s.Empty(nodes)
	}
}

func (s *DashboardTestSuite) TestAbortedApplyPublishesError() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	hold := make(chan struct{})
	busy := make(chan struct{})
	s.source.EXPECT().Fetch(gomock.Any()).DoAndReturn(func(context.Context) (string, error) {
		go s.dashboard.do(s.ctx, func(*state) {
			close(busy)
			<-hold
		})
		<-busy
		cancel()
		return nodesCSV, nil
	}).Times(1)

	_, err := s.dashboard.Refresh(ctx)
	close(hold)

	s.ErrorIs(err, context.Canceled)
	s.Equal([]status.Kind{status.Loading, status.Error}, s.statuses.kinds())
	s.Equal(status.MsgRefreshAborted, s.statuses.last().MessageID)
	s.Equal(0, s.displayed())
}

func (s *DashboardTestSuite) TestFilters() {
	s.loadNodes()

	n, err := s.dashboard.ApplyFilters(s.ctx, FilterState{feed.FieldNodeType: "gateway"})
	s.Require().NoError(err)
	s.Equal(3, n)
	s.Equal(3, s.displayed())
	s.Equal(status.MsgFiltersVisible, s.statuses.last().MessageID)
	s.Equal(3, s.statuses.last().Data["Count"])

	n, err = s.dashboard.SetFilter(s.ctx, feed.FieldFrequency, "868")
	s.Require().NoError(err)
	s.Equal(2, n)

	f, err := s.dashboard.Filters(s.ctx)
	s.Require().NoError(err)
	s.Equal(FilterState{feed.FieldNodeType: "gateway", feed.FieldFrequency: "868"}, f)

	n, err = s.dashboard.SetFilter(s.ctx, feed.FieldFrequency, "")
	s.Require().NoError(err)
	s.Equal(3, n)

	n, err = s.dashboard.ResetFilters(s.ctx)
	s.Require().NoError(err)
	s.Equal(5, n)
	s.Equal(5, s.displayed())
	s.Equal(status.MsgFiltersReset, s.statuses.last().MessageID)

	n, err = s.dashboard.ApplyFilters(s.ctx, FilterState{feed.FieldNodeType: ""})
	s.Require().NoError(err)
	s.Equal(5, n)
	s.Equal(status.MsgFiltersAll, s.statuses.last().MessageID)
}

func (s *DashboardTestSuite) TestFiltersSurviveRefresh() {
	s.loadNodes()
	_, err := s.dashboard.ApplyFilters(s.ctx, FilterState{feed.FieldNodeType: "gateway"})
	s.Require().NoError(err)

	s.source.EXPECT().Fetch(gomock.Any()).Return(nodesCSV, nil).Times(1)
	res, err := s.dashboard.Refresh(s.ctx)
	s.Require().NoError(err)
	s.Equal(5, res.Markers)
	s.Equal(3, res.Visible)
	s.Equal(3, s.displayed())
	s.Equal(status.MsgLoaded, s.statuses.last().MessageID)
}

func (s *DashboardTestSuite) TestUnknownFilterField() {
	_, err := s.dashboard.ApplyFilters(s.ctx, FilterState{"colour": "red"})
	s.True(errors.Is(err, ErrUnknownFilter))

	_, err = s.dashboard.SetFilter(s.ctx, "colour", "red")
	s.True(errors.Is(err, ErrUnknownFilter))
}

func (s *DashboardTestSuite) TestTransportErrorKeepsMarkers() {
	s.loadNodes()
	before, err := s.dashboard.Version(s.ctx)
	s.Require().NoError(err)

	s.source.EXPECT().Fetch(gomock.Any()).Return("", &feed.TransportError{URL: "http://feed/dati.csv", Status: 503}).Times(1)
	_, err = s.dashboard.Refresh(s.ctx)

	var terr *feed.TransportError
	s.Require().True(errors.As(err, &terr))
	s.Equal(503, terr.Status)
	s.Equal(5, s.displayed())
	s.Equal(status.Error, s.statuses.last().Kind)
	s.Equal(status.MsgTransportError, s.statuses.last().MessageID)
	s.Contains(s.statuses.last().Data["Error"], "503")
	s.Equal(int64(1), s.counter(metrics.RefreshTransportError))

	after, err := s.dashboard.Version(s.ctx)
	s.Require().NoError(err)
	s.Equal(before, after)

	stats, err := s.dashboard.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(6, stats.TotalNodes)
}

func (s *DashboardTestSuite) TestEmptyDatasetKeepsMarkers() {
	s.loadNodes()
	s.Require().True(s.surface.OpenPopup("0"))

	s.source.EXPECT().Fetch(gomock.Any()).Return("lat,lon,name\nx,y,Only Name\n", nil).Times(1)
	_, err := s.dashboard.Refresh(s.ctx)
	s.True(errors.Is(err, ErrNoValidData))

	s.Equal(5, s.displayed())
	_, open := s.surface.OpenedPopup()
	s.True(open, "previous render state untouched")
	s.Equal(status.MsgNoValidData, s.statuses.last().MessageID)
	s.Equal(int64(1), s.counter(metrics.RefreshEmpty))

	stats, err := s.dashboard.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.TotalNodes)

	res, err := s.dashboard.Search(s.ctx, "only")
	s.Require().NoError(err)
	s.Len(res.Hits, 1)
}

func (s *DashboardTestSuite) TestSearch() {
	s.loadNodes()

	res, err := s.dashboard.Search(s.ctx, " a ")
	s.Require().NoError(err)
	s.False(res.Visible)
	s.Empty(res.Hits)

	res, err = s.dashboard.Search(s.ctx, "  ALPHA ")
	s.Require().NoError(err)
	s.True(res.Visible)
	s.Equal([]Hit{
		{Index: 0, Name: "Alpha Gateway", Lat: "45.5400", Lon: "10.2200"},
		{Index: 5, Name: "Ghost Alpha", Lat: "", Lon: ""},
	}, res.Hits)

	res, err = s.dashboard.Search(s.ctx, "gamma, g")
	s.Require().NoError(err)
	s.Require().Len(res.Hits, 1)
	s.Equal("Gamma, Gateway", res.Hits[0].Name)

	res, err = s.dashboard.Search(s.ctx, "zz")
	s.Require().NoError(err)
	s.False(res.Visible)
}

func (s *DashboardTestSuite) TestSearchLimit() {
	var b strings.Builder
	b.WriteString("lat,lon,name\n")
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, "45.%d,10.%d,Repeater %02d\n", i, i, i)
	}
	s.source.EXPECT().Fetch(gomock.Any()).Return(b.String(), nil).Times(1)
	_, err := s.dashboard.Refresh(s.ctx)
	s.Require().NoError(err)

	res, err := s.dashboard.Search(s.ctx, "repeater")
	s.Require().NoError(err)
	s.Require().Len(res.Hits, DefaultSearchLimit)
	for i, h := range res.Hits {
		s.Equal(i, h.Index)
		s.Equal(fmt.Sprintf("Repeater %02d", i), h.Name)
	}
}

func (s *DashboardTestSuite) TestSelect() {
	s.loadNodes()

	sel, err := s.dashboard.Select(s.ctx, Hit{Index: 0, Name: "Alpha Gateway", Lat: "45.5400", Lon: "10.2200"})
	s.Require().NoError(err)
	s.True(sel.PopupOpened)
	s.Equal("0", sel.MarkerID)
	s.Equal(DefaultSearchZoom, sel.Zoom)

	vp, err := s.dashboard.Viewport(s.ctx)
	s.Require().NoError(err)
	s.Equal(mapview.LatLng{Lat: 45.54, Lng: 10.22}, vp.Center)
	s.Equal(DefaultSearchZoom, vp.Zoom)
	id, open := s.surface.OpenedPopup()
	s.True(open)
	s.Equal("0", id)

	_, err = s.dashboard.ApplyFilters(s.ctx, FilterState{feed.FieldNodeType: "node"})
	s.Require().NoError(err)
	sel, err = s.dashboard.Select(s.ctx, Hit{Index: 0, Lat: "45.5400", Lon: "10.2200"})
	s.Require().NoError(err)
	s.False(sel.PopupOpened, "hidden marker is not opened")

	_, err = s.dashboard.Select(s.ctx, Hit{Index: 5, Name: "Ghost Alpha"})
	s.True(errors.Is(err, ErrInvalidCoordinate))
}

func (s *DashboardTestSuite) TestDisplayedInView() {
	s.loadNodes()
	_, err := s.dashboard.SetViewport(s.ctx, mapview.Viewport{Center: mapview.LatLng{Lat: 45.54, Lng: 10.22}, Zoom: 16})
	s.Require().NoError(err)

	inView, err := s.dashboard.Displayed(s.ctx, true)
	s.Require().NoError(err)
	s.Require().Len(inView, 1)
	s.Equal("Alpha Gateway", inView[0].Title)

	clusters, err := s.dashboard.Clusters(s.ctx)
	s.Require().NoError(err)
	s.NotEmpty(clusters)
}

func (s *DashboardTestSuite) TestInvalidViewport() {
	_, err := s.dashboard.SetViewport(s.ctx, mapview.Viewport{Center: mapview.LatLng{Lat: 91}, Zoom: 3})
	s.True(errors.Is(err, ErrInvalidViewport))
	_, err = s.dashboard.SetViewport(s.ctx, mapview.Viewport{Zoom: 30})
	s.True(errors.Is(err, ErrInvalidViewport))
}

func (s *DashboardTestSuite) TestClosed() {
	s.dashboard.Close()
	_, err := s.dashboard.Stats(s.ctx)
	s.Equal(ErrClosed, err)
}

func TestDashboardTestSuite(t *testing.T) {
	suite.Run(t, new(DashboardTestSuite))
}
