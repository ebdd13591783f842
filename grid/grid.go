package grid

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mtgfetch "github.com/Raygunpewpew1/mtgfetch"
	"github.com/Raygunpewpew1/mtgfetch/imagecache"
)

// Listener receives the grid's outward events. All calls arrive on the
// dispatch executor supplied in Options, regardless of which internal
// thread produced them.
type Listener interface {
	// VisibleRangeChanged fires when the visible index bounds change.
	VisibleRangeChanged(start, end int)
	// RequestRedraw fires whenever the backend should repaint: a new
	// RenderList was published or an image finished resolving.
	RequestRedraw()

	ItemClicked(id string)
	ItemLongPressed(id string)
	DragStarted(id string, sourceIndex int)
	DragMoved(x, y float32)
	DragEnded(sourceIndex, targetIndex int)
	DragCancelled()
}

// ImageCache is the slice of the image cache the grid drives. Satisfied
// by *imagecache.Cache.
type ImageCache interface {
	Resolve(ctx context.Context, key imagecache.Key) (*imagecache.Image, bool)
	Peek(key imagecache.Key) (*imagecache.Image, bool)
	CancelAll()
	BumpGeneration()
	DropMemory()
}

// DragState describes an in-progress drag. It exists only while the
// gesture machine is in the Dragging state.
type DragState struct {
	SourceIndex int
	TargetIndex int
	Record      CardRecord
	PointerX    float32
	PointerY    float32
}

// Options configures a Grid.
type Options struct {
	// Config holds the layout sizing constants.
	Config GridConfig

	// Gesture thresholds; zero values use the recognizer defaults.
	LongPressDelay time.Duration
	ScrollSlop     float32
	DragSlop       float32

	// Cache, if set, is driven from visible-range changes: newly
	// visible cards prefetch their images, and wholesale item swaps
	// cancel all outstanding cache work.
	Cache ImageCache
	// Variant selects which image rendition grid cells use.
	// The zero value (VariantSmall) suits thumbnail-sized cells.
	Variant imagecache.SizeVariant

	// Listener receives all outward events. Required.
	Listener Listener

	// Haptic and ScrollLock are forwarded to the gesture recognizer.
	Haptic     func()
	ScrollLock func(bool)
	// Dispatch marshals events onto the UI-affinity thread.
	// Defaults to calling directly.
	Dispatch func(func())
	// Logger overrides the module-level logger.
	Logger *slog.Logger
}

// Grid is the controller tying the layout pipeline, gesture recognizer
// and image cache together behind the surface a view layer consumes.
type Grid struct {
	opts     Options
	pipeline *Pipeline
	rec      *Recognizer
	cache    ImageCache
	dispatch func(func())
	log      *slog.Logger

	mu   sync.Mutex
	drag *DragState

	sleeping     atomic.Bool
	scrollLocked atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a grid with an empty item list and starts its layout
// worker.
func New(opts Options) *Grid {
	if opts.Dispatch == nil {
		opts.Dispatch = func(fn func()) { fn() }
	}
	if opts.Logger == nil {
		opts.Logger = mtgfetch.Logger()
	}
	if opts.Config == (GridConfig{}) {
		opts.Config = DefaultGridConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Grid{
		opts:     opts,
		cache:    opts.Cache,
		dispatch: opts.Dispatch,
		log:      opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	g.pipeline = NewPipeline(PipelineOptions{
		Initial:        GridState{Config: opts.Config},
		OnRender:       g.onRender,
		OnVisibleRange: g.onVisibleRange,
		Logger:         opts.Logger,
	})

	g.rec = NewRecognizer(RecognizerOptions{
		LongPressDelay: opts.LongPressDelay,
		ScrollSlop:     opts.ScrollSlop,
		DragSlop:       opts.DragSlop,
		HitTest:        g.hitTest,
		Listener:       gestureAdapter{g},
		Haptic:         opts.Haptic,
		ScrollLock:     g.setScrollLock,
		Dispatch:       opts.Dispatch,
	})

	return g
}

// Close stops the layout worker and cancels outstanding cache work.
func (g *Grid) Close() {
	g.cancel()
	if g.cache != nil {
		g.cache.CancelAll()
	}
	g.pipeline.Close()
}

// ----------------------------------------------------------------------------
// Mutators
// ----------------------------------------------------------------------------

// SetItems replaces the whole collection. All outstanding image fetches
// are cancelled: a wholesale swap invalidates their relevance at once.
func (g *Grid) SetItems(items []CardRecord) {
	if g.cache != nil {
		g.cache.CancelAll()
	}
	snapshot := append([]CardRecord(nil), items...)
	g.pipeline.UpdateState(func(st GridState) GridState {
		st.Items = snapshot
		return st
	})
}

// AddItems appends records, e.g. a further page of search results.
func (g *Grid) AddItems(items []CardRecord) {
	snapshot := append([]CardRecord(nil), items...)
	g.pipeline.UpdateState(func(st GridState) GridState {
		merged := make([]CardRecord, 0, len(st.Items)+len(snapshot))
		merged = append(merged, st.Items...)
		merged = append(merged, snapshot...)
		st.Items = merged
		return st
	})
}

// ClearItems empties the grid and cancels outstanding cache work.
func (g *Grid) ClearItems() {
	if g.cache != nil {
		g.cache.CancelAll()
	}
	g.pipeline.UpdateState(func(st GridState) GridState {
		st.Items = nil
		return st
	})
}

// UpdatePrice attaches a price snapshot to the card with the given id.
// Unknown ids are ignored; price enrichment is fire-and-forget.
func (g *Grid) UpdatePrice(id string, price PriceData) {
	g.UpdatePricesBulk(map[string]PriceData{id: price})
}

// UpdatePricesBulk attaches price snapshots to many cards in one state
// transition. Item order, and therefore grid position, is preserved.
func (g *Grid) UpdatePricesBulk(prices map[string]PriceData) {
	if len(prices) == 0 {
		return
	}
	g.pipeline.UpdateState(func(st GridState) GridState {
		items := append([]CardRecord(nil), st.Items...)
		for i := range items {
			if p, ok := prices[items[i].ID]; ok {
				snapshot := p
				items[i].Price = &snapshot
			}
		}
		st.Items = items
		return st
	})
}

// Resize replaces the viewport dimensions.
func (g *Grid) Resize(width, height float32) {
	g.pipeline.UpdateState(func(st GridState) GridState {
		st.Viewport.Width = width
		st.Viewport.Height = height
		return st
	})
}

// ScrollTo replaces the scroll offset, clamped to the scrollable extent.
func (g *Grid) ScrollTo(offset float32) {
	g.pipeline.UpdateState(func(st GridState) GridState {
		st.Viewport.ScrollY = g.clampScroll(st, offset)
		return st
	})
}

// ScrollBy adjusts the scroll offset by delta. Ignored while a drag has
// suppressed ambient scrolling.
func (g *Grid) ScrollBy(delta float32) {
	if g.scrollLocked.Load() {
		return
	}
	g.pipeline.UpdateState(func(st GridState) GridState {
		st.Viewport.ScrollY = g.clampScroll(st, st.Viewport.ScrollY+delta)
		return st
	})
}

func (g *Grid) clampScroll(st GridState, offset float32) float32 {
	if offset < 0 {
		return 0
	}
	rl := g.pipeline.Current()
	if rl == nil {
		return offset
	}
	max := rl.TotalHeight - st.Viewport.Height
	if max < 0 {
		max = 0
	}
	if offset > max {
		return max
	}
	return offset
}

// ----------------------------------------------------------------------------
// Queries
// ----------------------------------------------------------------------------

// VisibleRange returns the currently published visible index bounds.
func (g *Grid) VisibleRange() (start, end int) {
	rl := g.pipeline.Current()
	return rl.VisibleStart, rl.VisibleEnd
}

// ItemAt returns the record at index from the latest published state.
func (g *Grid) ItemAt(index int) (CardRecord, bool) {
	st := g.pipeline.Snapshot()
	if index < 0 || index >= len(st.Items) {
		return CardRecord{}, false
	}
	return st.Items[index], true
}

// ItemCount returns the number of records in the latest published state.
func (g *Grid) ItemCount() int {
	return len(g.pipeline.Snapshot().Items)
}

// RenderList returns the latest published render list.
func (g *Grid) RenderList() *RenderList {
	return g.pipeline.Current()
}

// ImageAt returns the cached image for the record at index, without
// blocking. A false return means "draw the placeholder"; the prefetch
// triggered by the visible-range change will request a redraw once the
// image resolves.
func (g *Grid) ImageAt(index int) (*imagecache.Image, bool) {
	if g.cache == nil {
		return nil, false
	}
	rec, ok := g.ItemAt(index)
	if !ok {
		return nil, false
	}
	return g.cache.Peek(g.keyFor(rec))
}

// CurrentDrag returns the in-progress drag, if any.
func (g *Grid) CurrentDrag() (DragState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.drag == nil {
		return DragState{}, false
	}
	return *g.drag, true
}

// ----------------------------------------------------------------------------
// Pointer input
// ----------------------------------------------------------------------------

// PointerDown feeds a press at viewport coordinates.
func (g *Grid) PointerDown(x, y float32) { g.rec.Press(x, y) }

// PointerMove feeds pointer movement at viewport coordinates.
func (g *Grid) PointerMove(x, y float32) { g.rec.Move(x, y) }

// PointerUp feeds a release at viewport coordinates.
func (g *Grid) PointerUp(x, y float32) { g.rec.Release(x, y) }

// PointerCancel aborts the current gesture (pointer left the surface or
// the platform cancelled the touch).
func (g *Grid) PointerCancel() { g.rec.Cancel() }

// hitTest maps viewport coordinates to the card under them using the
// latest published render list. Only visible cards can be hit.
func (g *Grid) hitTest(x, y float32) (int, string, bool) {
	rl := g.pipeline.Current()
	st := g.pipeline.Snapshot()
	absY := y + st.Viewport.ScrollY
	for _, cmd := range rl.Commands {
		if cmd.Item == nil {
			continue
		}
		if cmd.Item.Rect.Contains(x, absY) {
			return cmd.Item.Index, cmd.Item.Record.ID, true
		}
	}
	return 0, "", false
}

// ----------------------------------------------------------------------------
// Lifecycle
// ----------------------------------------------------------------------------

// Sleep releases every platform-bound image resource. Call when the OS
// invalidates the graphics context (app backgrounded).
func (g *Grid) Sleep() {
	g.sleeping.Store(true)
	if g.cache != nil {
		g.cache.CancelAll()
		g.cache.DropMemory()
	}
}

// Resume marks all previously decoded images as belonging to a stale
// resource generation and requests a repaint; visible images lazily
// re-resolve (cheaply, from the disk tier).
func (g *Grid) Resume() {
	g.sleeping.Store(false)
	if g.cache != nil {
		g.cache.BumpGeneration()
	}
	g.dispatch(func() { g.opts.Listener.RequestRedraw() })
	rl := g.pipeline.Current()
	g.prefetch(rl)
}

// ----------------------------------------------------------------------------
// Pipeline callbacks (worker goroutine)
// ----------------------------------------------------------------------------

func (g *Grid) onRender(*RenderList) {
	g.dispatch(func() { g.opts.Listener.RequestRedraw() })
}

func (g *Grid) onVisibleRange(start, end int) {
	g.dispatch(func() { g.opts.Listener.VisibleRangeChanged(start, end) })
	g.prefetch(g.pipeline.Current())
}

// prefetch resolves images for every command in the render list. The
// cache dedups and gates concurrency; each resolution that lands
// requests a repaint.
func (g *Grid) prefetch(rl *RenderList) {
	if g.cache == nil || g.sleeping.Load() || rl == nil {
		return
	}
	for _, cmd := range rl.Commands {
		if cmd.Item == nil {
			continue
		}
		key := g.keyFor(cmd.Item.Record)
		if _, ok := g.cache.Peek(key); ok {
			continue
		}
		go func(key imagecache.Key) {
			if _, ok := g.cache.Resolve(g.ctx, key); ok {
				g.dispatch(func() { g.opts.Listener.RequestRedraw() })
			}
		}(key)
	}
}

func (g *Grid) keyFor(rec CardRecord) imagecache.Key {
	return imagecache.Key{ID: rec.ID, Variant: g.opts.Variant, Face: imagecache.FaceFront}
}

func (g *Grid) setScrollLock(locked bool) {
	g.scrollLocked.Store(locked)
	if g.opts.ScrollLock != nil {
		g.opts.ScrollLock(locked)
	}
}

// ----------------------------------------------------------------------------
// Gesture adapter
// ----------------------------------------------------------------------------

// gestureAdapter translates recognizer gestures into grid events and
// drag bookkeeping. Its methods run on the dispatch executor.
type gestureAdapter struct{ g *Grid }

func (a gestureAdapter) Tapped(id string) {
	a.g.opts.Listener.ItemClicked(id)
}

func (a gestureAdapter) LongPressed(id string) {
	a.g.opts.Listener.ItemLongPressed(id)
}

func (a gestureAdapter) DragStarted(id string, sourceIndex int) {
	rec, _ := a.g.ItemAt(sourceIndex)
	a.g.mu.Lock()
	a.g.drag = &DragState{
		SourceIndex: sourceIndex,
		TargetIndex: sourceIndex,
		Record:      rec,
	}
	a.g.mu.Unlock()
	a.g.opts.Listener.DragStarted(id, sourceIndex)
}

func (a gestureAdapter) DragMoved(x, y float32) {
	a.g.mu.Lock()
	if a.g.drag != nil {
		a.g.drag.PointerX, a.g.drag.PointerY = x, y
		if idx, _, ok := a.g.hitTest(x, y); ok {
			a.g.drag.TargetIndex = idx
		}
	}
	a.g.mu.Unlock()
	a.g.opts.Listener.DragMoved(x, y)
}

func (a gestureAdapter) DragEnded(x, y float32) {
	a.g.mu.Lock()
	drag := a.g.drag
	a.g.drag = nil
	a.g.mu.Unlock()

	if drag == nil {
		return
	}

	source, target := drag.SourceIndex, drag.TargetIndex
	if idx, _, ok := a.g.hitTest(x, y); ok {
		target = idx
	}
	if target != source {
		a.g.moveItem(source, target)
	}
	a.g.opts.Listener.DragEnded(source, target)
}

func (a gestureAdapter) DragCancelled() {
	a.g.mu.Lock()
	a.g.drag = nil
	a.g.mu.Unlock()
	a.g.opts.Listener.DragCancelled()
}

// moveItem publishes a state with the record at source moved to target,
// shifting the records in between. Positions elsewhere are unchanged,
// preserving index-based layout identity.
func (g *Grid) moveItem(source, target int) {
	g.pipeline.UpdateState(func(st GridState) GridState {
		n := len(st.Items)
		if source < 0 || source >= n || target < 0 || target >= n || source == target {
			return st
		}
		items := append([]CardRecord(nil), st.Items...)
		moved := items[source]
		if source < target {
			copy(items[source:], items[source+1:target+1])
		} else {
			copy(items[target+1:], items[target:source])
		}
		items[target] = moved
		st.Items = items
		return st
	})
}
