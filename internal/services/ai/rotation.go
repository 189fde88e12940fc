package ai

import "sync"

// ModelRotation tracks which model a completion pass tries first. One
// rotation is shared by every call in the process; the cursor moves only
// when a model fails and wraps around the end of the list, so a working
// model keeps answering until it breaks.
type ModelRotation struct {
	mu     sync.Mutex
	models []string
	cursor int
}

// NewModelRotation builds a rotation over a priority-ordered, non-empty
// model list.
func NewModelRotation(models []string) *ModelRotation {
	return &ModelRotation{models: append([]string(nil), models...)}
}

// Len returns the number of models in the rotation.
func (r *ModelRotation) Len() int {
	return len(r.models)
}

// Models returns a copy of the list in priority order.
func (r *ModelRotation) Models() []string {
	return append([]string(nil), r.models...)
}

// Current returns the model the next attempt should use.
func (r *ModelRotation) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.models) == 0 {
		return ""
	}
	return r.models[r.cursor]
}

// Advance moves the cursor past a failed model.
func (r *ModelRotation) Advance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.models) == 0 {
		return
	}
	r.cursor = (r.cursor + 1) % len(r.models)
}
