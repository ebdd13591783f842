package grid

import (
	"sync"
	"time"
)

// GestureState is the recognizer's current phase. All transitions
// eventually funnel back to GestureIdle.
type GestureState uint8

const (
	GestureIdle GestureState = iota
	GesturePressTracking
	GestureDragArmed
	GestureDragging
)

// GestureListener receives recognized gestures. Implementations are
// invoked on the recognizer's dispatch executor regardless of which
// thread produced the underlying pointer event.
type GestureListener interface {
	Tapped(id string)
	LongPressed(id string)
	DragStarted(id string, sourceIndex int)
	DragMoved(x, y float32)
	DragEnded(x, y float32)
	DragCancelled()
}

// HitTestFunc resolves a pointer position to the card under it. It is
// supplied by the current render state, not owned by the recognizer.
type HitTestFunc func(x, y float32) (index int, id string, ok bool)

// RecognizerOptions configures a Recognizer.
type RecognizerOptions struct {
	// LongPressDelay is the hold time before a press arms for dragging
	// (default 500ms).
	LongPressDelay time.Duration
	// ScrollSlop is the movement that yields a tracked press to ambient
	// scrolling (default 10 units).
	ScrollSlop float32
	// DragSlop is the movement that turns an armed press into a drag
	// (default 8 units). Smaller than ScrollSlop: a deliberate
	// long-press survives jitter while an accidental touch bails out
	// into scrolling quickly.
	DragSlop float32

	// HitTest resolves press/release points. Required.
	HitTest HitTestFunc
	// Listener receives the recognized gestures. Required.
	Listener GestureListener

	// Haptic, if set, is invoked when a press arms. Panics are
	// swallowed; haptic feedback is cosmetic.
	Haptic func()
	// ScrollLock, if set, is invoked with true when ambient scroll
	// interception must be suppressed (press armed) and false when it
	// is re-enabled (gesture finished).
	ScrollLock func(bool)
	// Dispatch marshals listener calls onto the UI-affinity thread.
	// Defaults to calling directly.
	Dispatch func(func())
}

// Recognizer is the tap / long-press / drag state machine for one
// pointer. Transitions are strictly monotonic within a press session; a
// new press invalidates everything from the previous session, including
// a long-press timer that has not fired yet.
type Recognizer struct {
	opts RecognizerOptions

	mu      sync.Mutex
	state   GestureState
	session uint64
	pressX  float32
	pressY  float32
	timer   *time.Timer
	dragID  string
	dragIdx int
}

// NewRecognizer creates a recognizer in the Idle state.
func NewRecognizer(opts RecognizerOptions) *Recognizer {
	if opts.LongPressDelay <= 0 {
		opts.LongPressDelay = 500 * time.Millisecond
	}
	if opts.ScrollSlop <= 0 {
		opts.ScrollSlop = 10
	}
	if opts.DragSlop <= 0 {
		opts.DragSlop = 8
	}
	if opts.Dispatch == nil {
		opts.Dispatch = func(fn func()) { fn() }
	}
	return &Recognizer{opts: opts}
}

// State returns the current gesture phase.
func (r *Recognizer) State() GestureState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Press begins a new press session. Any prior session is cancelled and
// its timer replaced; timers are never stacked.
func (r *Recognizer) Press(x, y float32) {
	r.mu.Lock()
	emit := r.abortLocked()
	r.session++
	session := r.session
	r.state = GesturePressTracking
	r.pressX, r.pressY = x, y
	r.timer = time.AfterFunc(r.opts.LongPressDelay, func() {
		r.timerFired(session)
	})
	r.mu.Unlock()

	r.emit(emit)
}

// Move feeds pointer movement into the state machine.
func (r *Recognizer) Move(x, y float32) {
	r.mu.Lock()
	var emit []func()

	switch r.state {
	case GesturePressTracking:
		if r.exceeds(x, y, r.opts.ScrollSlop) {
			// Gesture yielded to ambient scroll.
			r.stopTimerLocked()
			r.state = GestureIdle
		}
	case GestureDragArmed:
		if r.exceeds(x, y, r.opts.DragSlop) {
			r.state = GestureDragging
			id, idx := r.dragID, r.dragIdx
			l := r.opts.Listener
			emit = append(emit,
				func() { l.DragStarted(id, idx) },
				func() { l.DragMoved(x, y) },
			)
		}
	case GestureDragging:
		l := r.opts.Listener
		emit = append(emit, func() { l.DragMoved(x, y) })
	}

	r.mu.Unlock()
	r.emit(emit)
}

// Release ends the current press session.
func (r *Recognizer) Release(x, y float32) {
	r.mu.Lock()
	var emit []func()
	l := r.opts.Listener

	switch r.state {
	case GesturePressTracking:
		// Released before the long-press timer fired: a tap, if it
		// lands on a card.
		r.stopTimerLocked()
		r.state = GestureIdle
		if r.opts.HitTest != nil {
			if _, id, ok := r.opts.HitTest(x, y); ok {
				emit = append(emit, func() { l.Tapped(id) })
			}
		}
	case GestureDragArmed:
		// Armed but never moved past the drag slop: a long-press.
		r.state = GestureIdle
		id := r.dragID
		emit = append(emit, func() { l.LongPressed(id) })
		emit = append(emit, r.unlockScrollLocked())
	case GestureDragging:
		r.state = GestureIdle
		emit = append(emit, func() { l.DragEnded(x, y) })
		emit = append(emit, r.unlockScrollLocked())
	}

	r.mu.Unlock()
	r.emit(emit)
}

// Cancel aborts the session, e.g. when the pointer leaves the tracked
// surface or the platform cancels the touch.
func (r *Recognizer) Cancel() {
	r.mu.Lock()
	emit := r.abortLocked()
	r.mu.Unlock()
	r.emit(emit)
}

// abortLocked tears down the current session and returns the emissions
// the teardown owes (DragCancelled, scroll unlock).
func (r *Recognizer) abortLocked() []func() {
	var emit []func()
	switch r.state {
	case GestureDragging:
		l := r.opts.Listener
		emit = append(emit, func() { l.DragCancelled() })
		emit = append(emit, r.unlockScrollLocked())
	case GestureDragArmed:
		emit = append(emit, r.unlockScrollLocked())
	}
	r.stopTimerLocked()
	r.state = GestureIdle
	return emit
}

// timerFired runs on the timer goroutine when the long-press delay
// elapses. The session check discards callbacks from replaced timers.
func (r *Recognizer) timerFired(session uint64) {
	r.mu.Lock()
	if session != r.session || r.state != GesturePressTracking {
		r.mu.Unlock()
		return
	}

	var emit []func()
	idx, id, ok := 0, "", false
	if r.opts.HitTest != nil {
		idx, id, ok = r.opts.HitTest(r.pressX, r.pressY)
	}
	if !ok {
		// Long-press over empty space is nothing.
		r.state = GestureIdle
		r.mu.Unlock()
		return
	}

	r.state = GestureDragArmed
	r.dragID, r.dragIdx = id, idx
	if lock := r.opts.ScrollLock; lock != nil {
		emit = append(emit, func() { lock(true) })
	}
	if haptic := r.opts.Haptic; haptic != nil {
		emit = append(emit, func() {
			// Haptic support is cosmetic; a platform without it must
			// not break the gesture.
			defer func() { _ = recover() }()
			haptic()
		})
	}
	r.mu.Unlock()

	r.emit(emit)
}

func (r *Recognizer) unlockScrollLocked() func() {
	lock := r.opts.ScrollLock
	if lock == nil {
		return func() {}
	}
	return func() { lock(false) }
}

func (r *Recognizer) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Recognizer) exceeds(x, y, slop float32) bool {
	dx := x - r.pressX
	dy := y - r.pressY
	return dx*dx+dy*dy > slop*slop
}

// emit runs queued listener calls on the dispatch executor, outside the
// recognizer lock so listeners may re-enter the recognizer.
func (r *Recognizer) emit(fns []func()) {
	for _, fn := range fns {
		if fn == nil {
			continue
		}
		r.opts.Dispatch(fn)
	}
}
