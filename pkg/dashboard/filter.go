package dashboard

import (
	"context"
	"fmt"

	"mesh-node-map/pkg/status"
)

// Filters returns a copy of the active filters.
func (d *Dashboard) Filters(ctx context.Context) (FilterState, error) {
	var f FilterState
	err := d.do(ctx, func(st *state) { f = st.filters.Active() })
	return f, err
}

// ApplyFilters replaces the filter state and redraws the matching subset of
// the current markers. It returns how many markers are visible.
func (d *Dashboard) ApplyFilters(ctx context.Context, f FilterState) (int, error) {
	if err := d.checkFields(f); err != nil {
		return 0, err
	}
	var n int
	err := d.do(ctx, func(st *state) { n = d.setFilters(st, f) })
	return n, err
}

// SetFilter changes one field and keeps the others. An empty value unsets it.
func (d *Dashboard) SetFilter(ctx context.Context, field, value string) (int, error) {
	if !d.filterable[field] {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFilter, field)
	}
	var n int
	err := d.do(ctx, func(st *state) {
		f := st.filters.Active()
		f[field] = value
		n = d.setFilters(st, f)
	})
	return n, err
}

// ResetFilters clears every field and shows the full marker set again.
func (d *Dashboard) ResetFilters(ctx context.Context) (int, error) {
	var n int
	err := d.do(ctx, func(st *state) {
		st.filters = FilterState{}
		n = d.redraw(st)
		d.publish(status.Success, status.MsgFiltersReset, status.Count(n))
	})
	return n, err
}

func (d *Dashboard) checkFields(f FilterState) error {
	for field := range f {
		if !d.filterable[field] {
			return fmt.Errorf("%w: %q", ErrUnknownFilter, field)
		}
	}
	return nil
}

func (d *Dashboard) setFilters(st *state, f FilterState) int {
	st.filters = f.Active()
	n := d.redraw(st)
	if len(st.filters) == 0 {
		d.publish(status.Success, status.MsgFiltersAll, status.Count(n))
	} else {
		d.publish(status.Success, status.MsgFiltersVisible, status.Count(n))
	}
	return n
}

func (d *Dashboard) redraw(st *state) int {
	visible := st.visible()
	d.surface.Show(visible)
	st.version++
	return len(visible)
}
