package mapview

// Surface is what the dashboard draws on. Implementations are not required to
// be safe for concurrent use; the dashboard serialises every call.
type Surface interface {
	// Replace swaps the whole marker set and displays all of it.
	Replace(markers []Marker)
	// Show displays a subset of the current marker set.
	Show(markers []Marker)
	// Markers is the full set from the last Replace.
	Markers() []Marker
	// Displayed is what is currently drawn.
	Displayed() []Marker
	Viewport() Viewport
	SetViewport(vp Viewport)
	// OpenPopup opens the popup of a displayed marker.
	OpenPopup(id string) bool
	OpenedPopup() (string, bool)
	// InView reports whether a coordinate is inside the current viewport.
	InView(ll LatLng) bool
	// Clusters groups the displayed markers for the current zoom.
	Clusters() []Cluster
}

// Memory is the in-process Surface.
type Memory struct {
	markers   []Marker
	displayed []Marker
	viewport  Viewport
	popup     string
}

// NewMemory returns an empty surface looking at vp.
func NewMemory(vp Viewport) *Memory {
	return &Memory{viewport: vp}
}

func (m *Memory) Replace(markers []Marker) {
	m.markers = markers
	m.displayed = markers
	m.popup = ""
}

func (m *Memory) Show(markers []Marker) {
	m.displayed = markers
	if m.popup != "" && !containsID(markers, m.popup) {
		m.popup = ""
	}
}

func (m *Memory) Markers() []Marker   { return m.markers }
func (m *Memory) Displayed() []Marker { return m.displayed }
func (m *Memory) Viewport() Viewport  { return m.viewport }

func (m *Memory) SetViewport(vp Viewport) {
	m.viewport = vp
}

func (m *Memory) OpenPopup(id string) bool {
	if !containsID(m.displayed, id) {
		return false
	}
	m.popup = id
	return true
}

func (m *Memory) OpenedPopup() (string, bool) {
	return m.popup, m.popup != ""
}

func (m *Memory) InView(ll LatLng) bool {
	return m.viewport.Contains(ll)
}

func (m *Memory) Clusters() []Cluster {
	return ClusterMarkers(m.displayed, m.viewport.Zoom)
}

func containsID(markers []Marker, id string) bool {
	for _, mk := range markers {
		if mk.ID == id {
			return true
		}
	}
	return false
}
