package dashboard

import (
	"sort"
	"strings"
	"time"

	"mesh-node-map/pkg/feed"
	"mesh-node-map/pkg/mapview"
)

// topContributors is how many entries Stats.TopContributors holds.
const topContributors = 5

// ContributorCount is how many records one registering account owns. ID is
// the account's numeric ID; Contributor is how it is shown: "@user" when
// any of its records carries a username, "#ID" otherwise.
type ContributorCount struct {
	ID          string `json:"id"`
	Contributor string `json:"contributor"`
	Records     int    `json:"records"`
}

// Stats is recomputed from the full record set on every refresh.
type Stats struct {
	TotalNodes         int                `json:"totalNodes"`
	UniqueContributors int                `json:"uniqueContributors"`
	LastUpdate         time.Time          `json:"lastUpdate"`
	WithLinks          int                `json:"withLinks"`
	TopContributors    []ContributorCount `json:"topContributors"`
}

// computeStats counts distinct contributors by username falling back to ID,
// while the ranking groups records by account ID only: a username can change
// between registrations, the ID cannot.
func computeStats(records []feed.Record, now time.Time) Stats {
	contributors := make(map[string]struct{})
	perID := make(map[string]int)
	names := make(map[string]string)
	withLinks := 0
	for _, rec := range records {
		if c := rec.Contributor(); c != "" {
			contributors[c] = struct{}{}
		}
		if id := rec.Get(feed.FieldID); id != "" {
			perID[id]++
			if _, ok := names[id]; !ok && rec.Get(feed.FieldUser) != "" {
				names[id] = "@" + strings.TrimPrefix(rec.Get(feed.FieldUser), "@")
			}
		}
		if rec.Get(feed.FieldLink) != "" {
			withLinks++
		}
	}

	top := make([]ContributorCount, 0, len(perID))
	for id, n := range perID {
		name, ok := names[id]
		if !ok {
			name = "#" + id
		}
		top = append(top, ContributorCount{ID: id, Contributor: name, Records: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Records != top[j].Records {
			return top[i].Records > top[j].Records
		}
		return top[i].ID < top[j].ID
	})
	if len(top) > topContributors {
		top = top[:topContributors]
	}

	return Stats{
		TotalNodes:         len(records),
		UniqueContributors: len(contributors),
		LastUpdate:         now,
		WithLinks:          withLinks,
		TopContributors:    top,
	}
}

// FilterState maps a filterable field to the value it must equal. An empty
// value leaves the field unset.
type FilterState map[string]string

// Active returns a copy holding only the set fields.
func (f FilterState) Active() FilterState {
	out := make(FilterState, len(f))
	for k, v := range f {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Match reports whether rec satisfies every set field.
func (f FilterState) Match(rec feed.Record) bool {
	for k, v := range f {
		if v != "" && rec.Get(k) != v {
			return false
		}
	}
	return true
}

// state is owned by the dashboard loop and never leaves it.
type state struct {
	raw     string
	loaded  bool
	records []feed.Record
	markers []mapview.Marker
	stats   Stats
	filters FilterState
	version uint64
}

func (st *state) visible() []mapview.Marker {
	active := st.filters.Active()
	if len(active) == 0 {
		return st.markers
	}
	out := make([]mapview.Marker, 0, len(st.markers))
	for _, m := range st.markers {
		if active.Match(m.Record) {
			out = append(out, m)
		}
	}
	return out
}
