package grid

import "math"

// GridConfig holds the sizing constants the layout engine works from.
type GridConfig struct {
	MinItemWidth  float32
	Spacing       float32
	LabelHeight   float32
	AspectRatio   float32
	FixedPadding  float32
	FooterPadding float32
	BufferRows    int
}

// DefaultGridConfig returns the stock card-grid sizing.
func DefaultGridConfig() GridConfig {
	return GridConfig{
		MinItemWidth:  100,
		Spacing:       8,
		LabelHeight:   24,
		AspectRatio:   1.4,
		FixedPadding:  0,
		FooterPadding: 16,
		BufferRows:    1,
	}
}

// Rect is an axis-aligned rectangle in absolute grid coordinates
// (0..totalHeight), independent of the current scroll offset. The
// backend translates the whole surface by -scrollY instead of
// recomputing rects per scroll tick.
type Rect struct {
	X, Y, W, H float32
}

// Contains reports whether the point lies inside the rect.
func (r Rect) Contains(x, y float32) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// DrawItemCmd draws one card cell at an absolute rectangle.
type DrawItemCmd struct {
	Record CardRecord
	Rect   Rect
	Index  int
}

// DrawCommand is a closed union over draw command kinds: exactly one
// field is non-nil. New kinds are added as new fields, not subclasses.
type DrawCommand struct {
	Item *DrawItemCmd
}

// RenderList is the layout engine's output: draw commands for the
// visible index range plus the totals a scrollable surface needs.
//
// Invariant: 0 <= VisibleStart <= VisibleEnd < item count, or
// VisibleEnd == -1 when the item count is 0.
type RenderList struct {
	Commands     []DrawCommand
	TotalHeight  float32
	VisibleStart int
	VisibleEnd   int
	ItemWidth    float32
	ItemHeight   float32
	Columns      int
}

// Calculate lays out the visible portion of the grid. It is a pure
// function: the same state always yields a bit-identical RenderList, it
// performs no I/O, touches no shared state, and never panics; every
// degenerate input is clamped to a safe range.
func Calculate(state GridState) RenderList {
	cfg := clampConfig(state.Config)
	count := len(state.Items)

	available := state.Viewport.Width - cfg.FixedPadding
	if available < 0 {
		available = 0
	}

	columns := int((available - cfg.Spacing) / (cfg.MinItemWidth + cfg.Spacing))
	if columns < 1 {
		columns = 1
	}

	itemWidth := (available - cfg.Spacing*float32(columns+1)) / float32(columns)
	if itemWidth < 1 {
		itemWidth = 1
	}
	itemHeight := itemWidth*cfg.AspectRatio + cfg.LabelHeight

	if count == 0 {
		return RenderList{
			TotalHeight:  0,
			VisibleStart: 0,
			VisibleEnd:   -1,
			ItemWidth:    itemWidth,
			ItemHeight:   itemHeight,
			Columns:      columns,
		}
	}

	rows := (count + columns - 1) / columns
	rowHeight := itemHeight + cfg.Spacing
	totalHeight := float32(rows)*rowHeight + cfg.Spacing + cfg.FooterPadding

	scrollY := state.Viewport.ScrollY
	if scrollY < 0 {
		scrollY = 0
	}
	viewH := state.Viewport.Height
	if viewH < 0 {
		viewH = 0
	}

	// One row of lookahead on each side, plus the configured buffer,
	// for smooth scrolling and image prefetch.
	firstRow := int(math.Floor(float64((scrollY-cfg.Spacing)/rowHeight))) - cfg.BufferRows
	lastRow := int(math.Floor(float64((scrollY+viewH+cfg.Spacing)/rowHeight))) + 1 + cfg.BufferRows
	if firstRow < 0 {
		firstRow = 0
	}
	if firstRow > rows-1 {
		firstRow = rows - 1
	}
	if lastRow > rows-1 {
		lastRow = rows - 1
	}
	if lastRow < firstRow {
		lastRow = firstRow
	}

	start := firstRow * columns
	end := lastRow*columns + columns - 1
	if end > count-1 {
		end = count - 1
	}

	commands := make([]DrawCommand, 0, end-start+1)
	originX := cfg.FixedPadding / 2
	for i := start; i <= end; i++ {
		row := i / columns
		col := i % columns
		commands = append(commands, DrawCommand{Item: &DrawItemCmd{
			Record: state.Items[i],
			Index:  i,
			Rect: Rect{
				X: originX + cfg.Spacing + float32(col)*(itemWidth+cfg.Spacing),
				Y: cfg.Spacing + float32(row)*rowHeight,
				W: itemWidth,
				H: itemHeight,
			},
		}})
	}

	return RenderList{
		Commands:     commands,
		TotalHeight:  totalHeight,
		VisibleStart: start,
		VisibleEnd:   end,
		ItemWidth:    itemWidth,
		ItemHeight:   itemHeight,
		Columns:      columns,
	}
}

// clampConfig replaces unusable sizing constants so Calculate can keep
// its never-fails contract.
func clampConfig(cfg GridConfig) GridConfig {
	if cfg.MinItemWidth <= 0 {
		cfg.MinItemWidth = 100
	}
	if cfg.Spacing < 0 {
		cfg.Spacing = 0
	}
	if cfg.AspectRatio <= 0 {
		cfg.AspectRatio = 1.4
	}
	if cfg.LabelHeight < 0 {
		cfg.LabelHeight = 0
	}
	if cfg.FixedPadding < 0 {
		cfg.FixedPadding = 0
	}
	if cfg.FooterPadding < 0 {
		cfg.FooterPadding = 0
	}
	if cfg.BufferRows < 0 {
		cfg.BufferRows = 0
	}
	return cfg
}
