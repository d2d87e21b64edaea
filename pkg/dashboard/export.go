package dashboard

import (
	"context"

	"mesh-node-map/pkg/feed"
)

// ContributorNode is one node in a contributor's list.
type ContributorNode struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Link  string `json:"link,omitempty"`
}

// Export returns the feed text of the last refresh that got past the
// download, byte for byte.
func (d *Dashboard) Export(ctx context.Context) (string, error) {
	var (
		text   string
		loaded bool
	)
	err := d.do(ctx, func(st *state) { text, loaded = st.raw, st.loaded })
	if err != nil {
		return "", err
	}
	if !loaded {
		return "", ErrNotLoaded
	}
	return text, nil
}

// ContributorNodes lists, in feed order, the records registered under the
// account id, with or without coordinates.
func (d *Dashboard) ContributorNodes(ctx context.Context, id string) ([]ContributorNode, error) {
	nodes := []ContributorNode{}
	err := d.do(ctx, func(st *state) {
		if id == "" {
			return
		}
		for i, rec := range st.records {
			if rec.Get(feed.FieldID) != id {
				continue
			}
			nodes = append(nodes, ContributorNode{Index: i, Name: rec.Name(), Link: rec.Get(feed.FieldLink)})
		}
	})
	return nodes, err
}
