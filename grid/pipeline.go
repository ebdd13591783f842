package grid

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	mtgfetch "github.com/Raygunpewpew1/mtgfetch"
)

// Pipeline decouples high-frequency input from layout recomputation.
//
// UpdateState applies a cheap, pure transform to the last input state
// synchronously and offers the result to a single latest-value slot; if
// a previous value is still unconsumed it is overwritten. One background
// worker repeatedly takes the newest state, runs Calculate, and
// publishes the RenderList. FIFO completeness is deliberately
// sacrificed for responsiveness: only the newest state is guaranteed to
// be processed.
type Pipeline struct {
	mu      sync.Mutex
	input   GridState  // last state handed to UpdateState transforms
	pending *GridState // latest unconsumed state, nil when drained
	wake    chan struct{}

	current   atomic.Pointer[RenderList]
	published atomic.Pointer[GridState]

	lastStart int
	lastEnd   int

	onRender       func(*RenderList)
	onVisibleRange func(start, end int)

	// calc is swapped in tests to exercise failure handling; production
	// code always uses Calculate.
	calc func(GridState) RenderList

	log    *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// Initial is the state published before any update arrives.
	Initial GridState
	// OnRender is called from the worker after every successful layout.
	OnRender func(*RenderList)
	// OnVisibleRange is called only when the visible index bounds
	// actually differ from the previously published bounds.
	OnVisibleRange func(start, end int)
	// Logger overrides the module-level logger.
	Logger *slog.Logger

	// calc substitutes the layout function in tests; nil means Calculate.
	calc func(GridState) RenderList
}

// NewPipeline starts the layout worker and synchronously publishes the
// layout of the initial state.
func NewPipeline(opts PipelineOptions) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = mtgfetch.Logger()
	}

	calc := opts.calc
	if calc == nil {
		calc = Calculate
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		input:          opts.Initial,
		wake:           make(chan struct{}, 1),
		lastStart:      -1,
		lastEnd:        -2, // sentinel so the first publish always notifies
		onRender:       opts.OnRender,
		onVisibleRange: opts.OnVisibleRange,
		calc:           calc,
		log:            log,
		cancel:         cancel,
		done:           make(chan struct{}),
	}

	p.process(opts.Initial)
	go p.run(ctx)
	return p
}

// UpdateState applies transform to the last input state and offers the
// result to the worker, overwriting any unconsumed previous offer.
// The transform must be pure and cheap; it runs on the caller's thread.
func (p *Pipeline) UpdateState(transform func(GridState) GridState) {
	p.mu.Lock()
	next := transform(p.input)
	p.input = next
	p.pending = &next
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default: // worker already signalled
	}
}

// Current returns the most recently published RenderList. Never nil
// after NewPipeline returns.
func (p *Pipeline) Current() *RenderList {
	return p.current.Load()
}

// Snapshot returns the most recently laid-out state. The returned value
// is immutable and safe to share.
func (p *Pipeline) Snapshot() GridState {
	if st := p.published.Load(); st != nil {
		return *st
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input
}

// Close stops the worker and waits for it to exit. No further publishes
// or notifications happen after Close returns.
func (p *Pipeline) Close() {
	p.cancel()
	<-p.done
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}
		for {
			p.mu.Lock()
			st := p.pending
			p.pending = nil
			p.mu.Unlock()
			if st == nil {
				break
			}
			p.process(*st)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// process lays out one state and publishes the result. A panic inside
// layout is logged and swallowed so the worker survives to handle the
// next state; the previously published RenderList stays in effect.
func (p *Pipeline) process(st GridState) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("layout pass panicked", "err", r, "items", len(st.Items))
		}
	}()

	rl := p.calc(st)

	p.published.Store(&st)
	p.current.Store(&rl)

	changed := rl.VisibleStart != p.lastStart || rl.VisibleEnd != p.lastEnd
	p.lastStart = rl.VisibleStart
	p.lastEnd = rl.VisibleEnd

	if p.onRender != nil {
		p.onRender(&rl)
	}
	if changed && p.onVisibleRange != nil {
		p.onVisibleRange(rl.VisibleStart, rl.VisibleEnd)
	}
}
