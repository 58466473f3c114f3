// Rigid-body engine wrapping the Box2D port. The engine owns exactly
// one world plus the external-id registry; the Host drives it through
// the protocol, and the benchmark harness may also drive it directly
// for in-process comparison runs.

package sim

import (
	"math"

	"github.com/bytearena/box2d"
)

const (
	// Solver iteration counts per step.
	velocityIterations = 8
	positionIterations = 3

	// Thickness of the four static boundary walls created on init.
	wallThickness = 50.0

	// DefaultInternalStep is the fixed sub-step for
	// ADVANCE_SIMULATION_TIME when the caller does not pick one:
	// one 60 Hz frame, in milliseconds.
	DefaultInternalStep = 1000.0 / 60.0

	// The solver caps polygons at 8 vertices.
	maxPolygonSides = 8

	defaultDensity  = 1.0
	defaultFriction = 0.1
)

// Engine owns one mutable Box2D world, the id registry, and the
// collision capture buffer. It is not safe for concurrent use; the Host
// serializes all access, and direct users must do the same.
type Engine struct {
	world      box2d.B2World
	width      float64
	height     float64
	gravity    Gravity
	registry   *bodyRegistry
	collisions []CollisionPair
	stepCount  int
}

// NewEngine creates a fresh world of the given dimensions: gravity
// applied as (x*scale, y*scale) px/ms², four untracked static boundary
// walls sized to the dimensions, and a begin-contact observer feeding
// the collision buffer.
func NewEngine(width, height float64, gravity Gravity) *Engine {
	world := box2d.MakeB2World(box2d.MakeB2Vec2(gravity.X*gravity.Scale, gravity.Y*gravity.Scale))
	e := &Engine{
		world:    world,
		width:    width,
		height:   height,
		gravity:  gravity,
		registry: newBodyRegistry(),
	}
	e.world.SetContactListener(&contactObserver{engine: e})
	e.createBoundaryWalls()
	return e
}

// createBoundaryWalls adds ground, ceiling, left and right walls. The
// walls are not registered, so their collisions never reach
// PHYSICS_EVENTS.
func (e *Engine) createBoundaryWalls() {
	t := wallThickness
	w, h := e.width, e.height
	e.addStaticBox(w/2, h+t/2, w+2*t, t) // ground
	e.addStaticBox(w/2, -t/2, w+2*t, t)  // ceiling
	e.addStaticBox(-t/2, h/2, t, h)      // left
	e.addStaticBox(w+t/2, h/2, t, h)     // right
}

func (e *Engine) addStaticBox(cx, cy, width, height float64) {
	def := box2d.MakeB2BodyDef()
	def.Type = box2d.B2BodyType.B2_staticBody
	def.Position.Set(cx, cy)
	body := e.world.CreateBody(&def)
	shape := box2d.MakeB2PolygonShape()
	shape.SetAsBox(width/2, height/2)
	body.CreateFixture(&shape, 0)
}

// AddBody validates the payload, creates the native body, and registers
// it under the external id in both directions. A rejected payload
// leaves the world and registry untouched.
func (e *Engine) AddBody(p AddBodyPayload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, exists := e.registry.lookup(p.ID); exists {
		return hostErrorf(ErrInvalidBodyParameters, "body id %q already registered", p.ID)
	}

	def := box2d.MakeB2BodyDef()
	def.Type = box2d.B2BodyType.B2_dynamicBody
	if p.Options != nil {
		if p.Options.IsStatic {
			def.Type = box2d.B2BodyType.B2_staticBody
		}
		def.Angle = p.Options.Angle
	}
	def.Position.Set(p.X, p.Y)

	body := e.world.CreateBody(&def)
	e.attachFixture(body, p)
	e.registry.add(p.ID, body)
	return nil
}

// attachFixture builds the per-shape fixture. The payload has already
// been validated, so geometry pointers are safe to dereference.
func (e *Engine) attachFixture(body *box2d.B2Body, p AddBodyPayload) {
	fd := box2d.MakeB2FixtureDef()
	fd.Density = defaultDensity
	fd.Friction = defaultFriction
	if p.Options != nil {
		if p.Options.Density != nil {
			fd.Density = *p.Options.Density
		}
		if p.Options.Friction != nil {
			fd.Friction = *p.Options.Friction
		}
		if p.Options.Restitution != nil {
			fd.Restitution = *p.Options.Restitution
		}
	}

	switch p.Type {
	case ShapeRectangle:
		shape := box2d.MakeB2PolygonShape()
		shape.SetAsBox(*p.Width/2, *p.Height/2)
		fd.Shape = &shape
	case ShapeCircle:
		shape := box2d.MakeB2CircleShape()
		shape.M_radius = *p.Radius
		fd.Shape = &shape
	case ShapePolygon:
		shape := box2d.MakeB2PolygonShape()
		if len(p.Vertices) >= 3 {
			shape.Set(toB2Vertices(p.Vertices), len(p.Vertices))
		} else {
			verts := regularPolygon(*p.Sides, *p.Radius)
			shape.Set(verts, len(verts))
		}
		fd.Shape = &shape
	case ShapeFromVertices:
		// The solver's Set computes the convex hull of the points.
		shape := box2d.MakeB2PolygonShape()
		shape.Set(toB2Vertices(p.Vertices), len(p.Vertices))
		fd.Shape = &shape
	}

	body.CreateFixtureFromDef(&fd)
}

// regularPolygon lays out n vertices on a circle of the given radius,
// centered on the body origin.
func regularPolygon(n int, radius float64) []box2d.B2Vec2 {
	verts := make([]box2d.B2Vec2, n)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		verts[i] = box2d.MakeB2Vec2(radius*math.Cos(theta), radius*math.Sin(theta))
	}
	return verts
}

// toB2Vertices converts protocol vertices (local offsets from the body
// center) to solver vectors.
func toB2Vertices(vs []Vec2) []box2d.B2Vec2 {
	out := make([]box2d.B2Vec2, len(vs))
	for i, v := range vs {
		out[i] = box2d.MakeB2Vec2(v.X, v.Y)
	}
	return out
}

// RemoveBody destroys the native body registered under id and purges
// both registry directions atomically. Unknown ids are an error and
// cause no mutation.
func (e *Engine) RemoveBody(id string) error {
	body := e.registry.remove(id)
	if body == nil {
		return hostErrorf(ErrBodyNotFound, "no body registered under id %q", id)
	}
	e.world.DestroyBody(body)
	return nil
}

// Step advances the world exactly one solver step of dt milliseconds
// and returns the snapshot of every tracked body. A solver panic is
// recovered into an EngineStepFailure; the world is considered intact
// for subsequent commands.
func (e *Engine) Step(dt float64) (bodies []BodyState, err error) {
	defer func() {
		if r := recover(); r != nil {
			bodies = nil
			err = hostErrorf(ErrEngineStepFailure, "integration step failed: %v", r)
		}
	}()
	e.world.Step(dt, velocityIterations, positionIterations)
	e.stepCount++
	return e.Snapshot(), nil
}

// AdvanceTime consumes total milliseconds in fixed sub-steps of
// stepSize (DefaultInternalStep when stepSize <= 0), plus one final
// partial sub-step for any remainder. Returns the snapshot after the
// last sub-step and the number of sub-steps performed. Collisions from
// all sub-steps accumulate in the capture buffer.
func (e *Engine) AdvanceTime(total, stepSize float64) ([]BodyState, int, error) {
	if stepSize <= 0 {
		stepSize = DefaultInternalStep
	}
	steps := 0
	remaining := total
	const eps = 1e-9
	for remaining > eps {
		dt := stepSize
		if remaining < stepSize {
			dt = remaining
		}
		if _, err := e.Step(dt); err != nil {
			return nil, steps, err
		}
		steps++
		remaining -= dt
	}
	return e.Snapshot(), steps, nil
}

// Snapshot captures the current transform of every tracked body, in
// registration order. Velocity is intentionally not part of the wire
// snapshot.
func (e *Engine) Snapshot() []BodyState {
	bodies := make([]BodyState, 0, e.registry.len())
	for _, id := range e.registry.ids() {
		body, ok := e.registry.lookup(id)
		if !ok {
			continue
		}
		pos := body.GetPosition()
		bodies = append(bodies, BodyState{
			ID:    id,
			X:     pos.X,
			Y:     pos.Y,
			Angle: body.GetAngle(),
		})
	}
	return bodies
}

// DrainCollisions returns the begin-contact pairs captured since the
// previous drain and clears the buffer.
func (e *Engine) DrainCollisions() []CollisionPair {
	out := e.collisions
	e.collisions = nil
	return out
}

// BodyCount reports the number of tracked bodies (boundary walls are
// not tracked).
func (e *Engine) BodyCount() int {
	return e.registry.len()
}

// StepCount reports the total number of solver steps taken since init.
func (e *Engine) StepCount() int {
	return e.stepCount
}

// Gravity reports the gravity specification the world was created with.
func (e *Engine) Gravity() Gravity {
	return e.gravity
}

// contactObserver feeds begin-contact pairs into the engine's capture
// buffer, translated to external ids. Pairs where either side lacks a
// translation (boundary walls) are dropped, not reported as errors.
type contactObserver struct {
	engine *Engine
}

func (o *contactObserver) BeginContact(contact box2d.B2ContactInterface) {
	idA, okA := o.engine.registry.reverse(contact.GetFixtureA().GetBody())
	idB, okB := o.engine.registry.reverse(contact.GetFixtureB().GetBody())
	if !okA || !okB {
		return
	}
	o.engine.collisions = append(o.engine.collisions, CollisionPair{BodyAID: idA, BodyBID: idB})
}

func (o *contactObserver) EndContact(contact box2d.B2ContactInterface) {}

func (o *contactObserver) PreSolve(contact box2d.B2ContactInterface, oldManifold box2d.B2Manifold) {
}

func (o *contactObserver) PostSolve(contact box2d.B2ContactInterface, impulse *box2d.B2ContactImpulse) {
}
