package grid

import (
	"fmt"
	"reflect"
	"testing"
)

func makeCards(n int) []CardRecord {
	items := make([]CardRecord, n)
	for i := range items {
		items[i] = CardRecord{ID: fmt.Sprintf("card-%d", i), Name: fmt.Sprintf("Card %d", i)}
	}
	return items
}

func makeState(n int, width, height, scrollY float32) GridState {
	return GridState{
		Items:    makeCards(n),
		Config:   DefaultGridConfig(),
		Viewport: Viewport{Width: width, Height: height, ScrollY: scrollY},
	}
}

func TestCalculateDeterminism(t *testing.T) {
	state := makeState(50, 360, 640, 300)

	first := Calculate(state)
	second := Calculate(state)

	if !reflect.DeepEqual(first, second) {
		t.Error("Calculate is not deterministic for identical input")
	}
}

func TestCalculateColumnPacking(t *testing.T) {
	tests := []struct {
		name        string
		width       float32
		wantColumns int
	}{
		{"phone width", 360, 3},
		{"narrow", 120, 1},
		{"degenerate zero", 0, 1},
		{"wide", 700, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := Calculate(makeState(20, tt.width, 640, 0))
			if rl.Columns != tt.wantColumns {
				t.Errorf("columns = %d, want %d", rl.Columns, tt.wantColumns)
			}
		})
	}
}

func TestCalculateEmptyList(t *testing.T) {
	rl := Calculate(makeState(0, 360, 640, 0))

	if rl.TotalHeight != 0 {
		t.Errorf("TotalHeight = %v, want 0", rl.TotalHeight)
	}
	if rl.VisibleEnd != -1 {
		t.Errorf("VisibleEnd = %d, want -1", rl.VisibleEnd)
	}
	if len(rl.Commands) != 0 {
		t.Errorf("expected no commands, got %d", len(rl.Commands))
	}
}

func TestCalculateSevenItemsThreeColumns(t *testing.T) {
	rl := Calculate(makeState(7, 360, 640, 0))

	if rl.Columns != 3 {
		t.Fatalf("columns = %d, want 3", rl.Columns)
	}
	if rl.VisibleStart != 0 || rl.VisibleEnd != 6 {
		t.Fatalf("visible range = [%d, %d], want [0, 6]", rl.VisibleStart, rl.VisibleEnd)
	}

	// The last row holds exactly one item at column 0.
	last := rl.Commands[len(rl.Commands)-1].Item
	if last.Index != 6 {
		t.Fatalf("last index = %d, want 6", last.Index)
	}
	first := rl.Commands[0].Item
	if last.Rect.X != first.Rect.X {
		t.Errorf("item 6 X = %v, want column 0 X %v", last.Rect.X, first.Rect.X)
	}
	rowHeight := rl.ItemHeight + DefaultGridConfig().Spacing
	wantY := DefaultGridConfig().Spacing + 2*rowHeight
	if last.Rect.Y != wantY {
		t.Errorf("item 6 Y = %v, want %v", last.Rect.Y, wantY)
	}
}

func TestCalculateContainmentInvariant(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		width   float32
		height  float32
		scrollY float32
	}{
		{"empty", 0, 360, 640, 0},
		{"one item", 1, 360, 640, 0},
		{"partial last row", 7, 360, 640, 0},
		{"scrolled", 500, 360, 640, 5000},
		{"overscrolled", 500, 360, 640, 1e9},
		{"negative scroll", 50, 360, 640, -400},
		{"zero viewport", 50, 0, 0, 0},
		{"negative viewport", 50, -10, -10, 0},
		{"huge", 100000, 1920, 1080, 50000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := Calculate(makeState(tt.count, tt.width, tt.height, tt.scrollY))
			if tt.count == 0 {
				if rl.VisibleEnd != -1 {
					t.Errorf("VisibleEnd = %d, want -1 for empty list", rl.VisibleEnd)
				}
				return
			}
			if rl.VisibleStart < 0 || rl.VisibleStart > rl.VisibleEnd || rl.VisibleEnd >= tt.count {
				t.Errorf("visible range [%d, %d] violates containment for count %d",
					rl.VisibleStart, rl.VisibleEnd, tt.count)
			}
			if got, want := len(rl.Commands), rl.VisibleEnd-rl.VisibleStart+1; got != want {
				t.Errorf("command count = %d, want %d", got, want)
			}
		})
	}
}

func TestCalculateOverscrollClampsToLastRows(t *testing.T) {
	rl := Calculate(makeState(7, 360, 640, 1e9))

	if rl.VisibleEnd != 6 {
		t.Errorf("VisibleEnd = %d, want 6", rl.VisibleEnd)
	}
	if rl.VisibleStart > rl.VisibleEnd {
		t.Errorf("VisibleStart %d > VisibleEnd %d", rl.VisibleStart, rl.VisibleEnd)
	}
}

func TestCalculateRectsInjectiveAndNonOverlapping(t *testing.T) {
	rl := Calculate(makeState(30, 520, 700, 0))

	rects := make(map[Rect]int)
	for _, cmd := range rl.Commands {
		if prev, dup := rects[cmd.Item.Rect]; dup {
			t.Fatalf("indices %d and %d share rect %+v", prev, cmd.Item.Index, cmd.Item.Rect)
		}
		rects[cmd.Item.Rect] = cmd.Item.Index
	}

	cmds := rl.Commands
	for i := 0; i < len(cmds); i++ {
		for j := i + 1; j < len(cmds); j++ {
			a, b := cmds[i].Item.Rect, cmds[j].Item.Rect
			if a.X < b.X+b.W && b.X < a.X+a.W && a.Y < b.Y+b.H && b.Y < a.Y+a.H {
				t.Fatalf("rects for %d and %d overlap: %+v vs %+v",
					cmds[i].Item.Index, cmds[j].Item.Index, a, b)
			}
		}
	}
}

func TestCalculateAbsoluteCoordinates(t *testing.T) {
	// Rects are in absolute grid space: scrolling must not move them.
	top := Calculate(makeState(100, 360, 640, 0))
	scrolled := Calculate(makeState(100, 360, 640, 200))

	for _, cmd := range scrolled.Commands {
		idx := cmd.Item.Index
		for _, topCmd := range top.Commands {
			if topCmd.Item.Index == idx && topCmd.Item.Rect != cmd.Item.Rect {
				t.Fatalf("index %d moved between scroll offsets: %+v vs %+v",
					idx, topCmd.Item.Rect, cmd.Item.Rect)
			}
		}
	}
}

func TestCalculateClampsDegenerateConfig(t *testing.T) {
	state := makeState(10, 360, 640, 0)
	state.Config = GridConfig{MinItemWidth: -5, Spacing: -1, AspectRatio: -2, BufferRows: -3}

	rl := Calculate(state) // must not panic
	if rl.Columns < 1 {
		t.Errorf("columns = %d, want >= 1", rl.Columns)
	}
	if rl.ItemWidth < 1 {
		t.Errorf("item width = %v, want >= 1", rl.ItemWidth)
	}
}

func BenchmarkCalculate(b *testing.B) {
	state := makeState(10000, 1920, 1080, 40000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Calculate(state)
	}
}
