package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/workflow"
)

// DefaultLimit bounds the undo stack unless overridden with WithLimit.
const DefaultLimit = 50

// DefaultPasteOffset shifts pasted nodes so they do not cover the originals.
var DefaultPasteOffset = workflow.Position{X: 40, Y: 40}

// Mutation edits a private copy of the current definition.
type Mutation func(def *workflow.Definition)

// Option configures a History.
type Option func(*History)

// WithLimit bounds the undo depth. Values below 1 fall back to DefaultLimit.
func WithLimit(n int) Option {
	return func(h *History) {
		if n < 1 {
			n = DefaultLimit
		}
		h.limit = n
	}
}

// WithPasteOffset sets the position shift applied to pasted nodes.
func WithPasteOffset(dx, dy float64) Option {
	return func(h *History) { h.offset = workflow.Position{X: dx, Y: dy} }
}

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *History) {
		if logger != nil {
			h.logger = logger.With(zap.String("component", "edit_history"))
		}
	}
}

// WithClock overrides the clock used to stamp UpdatedAt on commits.
func WithClock(now func() time.Time) Option {
	return func(h *History) { h.now = now }
}

// History records value snapshots of a definition for undo and redo. It is
// meant for one author per document; the mutex only guards its own stacks.
type History struct {
	mu        sync.Mutex
	current   *workflow.Definition
	undo      []*workflow.Definition
	redo      []*workflow.Definition
	clipboard *Clipboard
	limit     int
	offset    workflow.Position
	now       func() time.Time
	newID     func() string
	logger    *zap.Logger
}

// New starts a history at a copy of initial.
func New(initial *workflow.Definition, opts ...Option) *History {
	if initial == nil {
		initial = &workflow.Definition{}
	}
	h := &History{
		current: initial.Clone(),
		limit:   DefaultLimit,
		offset:  DefaultPasteOffset,
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Current returns a copy of the current definition.
func (h *History) Current() *workflow.Definition {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current.Clone()
}

// Commit applies m to a copy of the current definition. The pre-mutation
// snapshot goes on the undo stack and the redo stack is cleared. A mutation
// that changes nothing records no entry and keeps the redo stack.
func (h *History) Commit(m Mutation) *workflow.Definition {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commitLocked(m)
}

func (h *History) commitLocked(m Mutation) *workflow.Definition {
	next := h.current.Clone()
	if m != nil {
		m(next)
	}
	if next.Equal(h.current) {
		h.logger.Debug("commit absorbed, definition unchanged")
		return next
	}
	next.Touch(h.now())

	h.undo = append(h.undo, h.current)
	if len(h.undo) > h.limit {
		evicted := len(h.undo) - h.limit
		h.undo = append(h.undo[:0:0], h.undo[evicted:]...)
		h.logger.Debug("undo history evicted", zap.Int("entries", evicted))
	}
	h.redo = nil
	h.current = next
	return next.Clone()
}

// Undo restores the previous snapshot. It reports false when there is
// nothing to undo.
func (h *History) Undo() (*workflow.Definition, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.undo) == 0 {
		return nil, false
	}
	prev := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, h.current)
	h.current = prev
	return prev.Clone(), true
}

// Redo reapplies the most recently undone snapshot.
func (h *History) Redo() (*workflow.Definition, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.redo) == 0 {
		return nil, false
	}
	next := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, h.current)
	h.current = next
	return next.Clone(), true
}

// CanUndo reports whether Undo would change the definition.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0
}

// CanRedo reports whether Redo would change the definition.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0
}

// Depth returns the sizes of the undo and redo stacks.
func (h *History) Depth() (undo, redo int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo), len(h.redo)
}

// Reset replaces the current definition and drops both stacks. The
// clipboard survives.
func (h *History) Reset(def *workflow.Definition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if def == nil {
		def = &workflow.Definition{}
	}
	h.current = def.Clone()
	h.undo = nil
	h.redo = nil
}
