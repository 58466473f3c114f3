package sim

import "github.com/bytearena/box2d"

// bodyRegistry is the bidirectional translation table between external
// ids (caller-chosen, stable) and native solver bodies (valid only
// inside the engine). Invariant: exactly one entry in each direction per
// live body; add and remove mutate both directions together.
//
// The insertion-order slice exists so snapshots are emitted in a stable
// order regardless of map iteration, which matters for the determinism
// comparisons between two independent engines.
type bodyRegistry struct {
	byID   map[string]*box2d.B2Body
	byBody map[*box2d.B2Body]string
	order  []string
}

func newBodyRegistry() *bodyRegistry {
	return &bodyRegistry{
		byID:   make(map[string]*box2d.B2Body),
		byBody: make(map[*box2d.B2Body]string),
	}
}

func (r *bodyRegistry) add(id string, body *box2d.B2Body) {
	r.byID[id] = body
	r.byBody[body] = id
	r.order = append(r.order, id)
}

// remove purges both directions. Returns the native body, or nil if the
// id was untracked.
func (r *bodyRegistry) remove(id string) *box2d.B2Body {
	body, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	delete(r.byBody, body)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return body
}

func (r *bodyRegistry) lookup(id string) (*box2d.B2Body, bool) {
	body, ok := r.byID[id]
	return body, ok
}

// reverse translates a native body back to its external id. Untracked
// bodies (e.g. boundary walls) report ok=false.
func (r *bodyRegistry) reverse(body *box2d.B2Body) (string, bool) {
	id, ok := r.byBody[body]
	return id, ok
}

func (r *bodyRegistry) len() int {
	return len(r.byID)
}

// ids returns the external ids in insertion order.
func (r *bodyRegistry) ids() []string {
	return r.order
}
