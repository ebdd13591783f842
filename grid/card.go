// Package grid is the virtualized card grid core: a pure layout engine,
// a latest-value-wins state pipeline that keeps layout off the input
// thread, and a gesture recognizer that separates taps, long-presses and
// drags. The package renders nothing itself; it produces an ordered list
// of draw commands for a backend to rasterize.
package grid

import "time"

// CardRecord is the immutable identity and display data for one cell.
// Identity is the stable ID string, but equality and grid position come
// from array position: row = index / columns, col = index % columns.
type CardRecord struct {
	// ID is the stable card identifier (e.g. a Scryfall UUID).
	ID string
	// Name is the display name drawn in the cell label.
	Name string
	// SizeClass is the card's physical layout class ("normal", "split",
	// "planar", ...). It selects which image variant suits the cell.
	SizeClass string
	// Quantity is how many copies the collection holds.
	Quantity int
	// Price is the cached display price, nil until enrichment arrives.
	// A nil price renders as no indicator, never as "0".
	Price *PriceData
}

// PriceData is a point-in-time price snapshot for a card, delivered
// asynchronously after first paint. Values are preformatted display
// strings; an empty string means that market has no price.
type PriceData struct {
	USD     string
	USDFoil string
	EUR     string
	Updated time.Time
}

// Viewport is the visible window over the grid. Values are replaced
// wholesale on every input event, never mutated in place.
type Viewport struct {
	Width   float32
	Height  float32
	ScrollY float32
}

// GridState is one immutable snapshot of everything layout needs.
// Every state transition produces a new value; no component ever
// mutates a previously published GridState.
type GridState struct {
	Items    []CardRecord
	Config   GridConfig
	Viewport Viewport
}
