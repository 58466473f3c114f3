// Shared command/response vocabulary for the Host protocol.
// Both sides exchange Message envelopes; payloads are typed per message
// type. The envelope carries json tags so the protocol stays wire-ready
// even though the default transport is an in-process pipe.

package sim

import "fmt"

// Command types accepted by the Host. The set is closed: anything else
// is answered with an ERROR response.
const (
	CmdInitWorld        = "INIT_WORLD"
	CmdAddBody          = "ADD_BODY"
	CmdRemoveBody       = "REMOVE_BODY"
	CmdStepSimulation   = "STEP_SIMULATION"
	CmdAdvanceSimByTime = "ADVANCE_SIMULATION_TIME"
)

// Response and event types emitted by the Host. The vocabulary is
// disjoint from the command types.
const (
	MsgWorkerReady         = "WORKER_READY"
	MsgWorldInitialized    = "WORLD_INITIALIZED"
	MsgBodyAdded           = "BODY_ADDED"
	MsgBodyRemoved         = "BODY_REMOVED"
	MsgSimulationStepped   = "SIMULATION_STEPPED"
	MsgSimAdvanceCompleted = "SIMULATION_ADVANCED_TIME_COMPLETED"
	MsgPhysicsEvents       = "PHYSICS_EVENTS"
	MsgError               = "ERROR"
)

// Body shape discriminators for ADD_BODY.
const (
	ShapeRectangle    = "rectangle"
	ShapeCircle       = "circle"
	ShapePolygon      = "polygon"
	ShapeFromVertices = "fromVertices"
)

// Message is the protocol envelope for both directions.
// CommandID correlates a request with its response; it is empty on
// fire-and-forget requests and on unsolicited Host messages
// (WORKER_READY, PHYSICS_EVENTS).
type Message struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	CommandID string `json:"commandId,omitempty"`
}

// Gravity is an explicit gravity specification. The effective
// acceleration applied to the world is (X*Scale, Y*Scale) in px/ms²,
// positive Y pointing down.
type Gravity struct {
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Scale float64 `json:"scale" yaml:"scale"`
}

// DefaultGravity is applied when INIT_WORLD carries no gravity:
// straight down at the reference scale.
func DefaultGravity() Gravity {
	return Gravity{X: 0, Y: 1, Scale: 0.001}
}

// Vec2 is a protocol-level 2D point, used for explicit vertex lists.
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// InitWorldPayload creates (or recreates, discarding all prior state)
// the Host's world.
type InitWorldPayload struct {
	Width   float64  `json:"width"`
	Height  float64  `json:"height"`
	Gravity *Gravity `json:"gravity,omitempty"`
}

// BodyOptions carries the optional physical properties of a new body.
// Nil pointer fields fall back to solver defaults.
type BodyOptions struct {
	IsStatic    bool     `json:"isStatic,omitempty" yaml:"isStatic"`
	Angle       float64  `json:"angle,omitempty" yaml:"angle"`
	Density     *float64 `json:"density,omitempty" yaml:"density"`
	Friction    *float64 `json:"friction,omitempty" yaml:"friction"`
	Restitution *float64 `json:"restitution,omitempty" yaml:"restitution"`
}

// AddBodyPayload creates one body under a caller-chosen external id.
// Geometry fields are pointers so that "absent" is distinguishable from
// zero: validation happens before any world mutation.
type AddBodyPayload struct {
	ID       string       `json:"id" yaml:"id"`
	Type     string       `json:"type" yaml:"type"`
	X        float64      `json:"x" yaml:"x"`
	Y        float64      `json:"y" yaml:"y"`
	Width    *float64     `json:"width,omitempty" yaml:"width"`
	Height   *float64     `json:"height,omitempty" yaml:"height"`
	Radius   *float64     `json:"radius,omitempty" yaml:"radius"`
	Sides    *int         `json:"sides,omitempty" yaml:"sides"`
	Vertices []Vec2       `json:"vertices,omitempty" yaml:"vertices"`
	Options  *BodyOptions `json:"options,omitempty" yaml:"options"`
}

// RemoveBodyPayload removes the body registered under ID.
// An unknown id is an error, not a no-op.
type RemoveBodyPayload struct {
	ID string `json:"id"`
}

// StepPayload advances the engine exactly one step of DeltaTime
// milliseconds.
type StepPayload struct {
	DeltaTime float64 `json:"deltaTime"`
}

// AdvanceTimePayload consumes TotalDeltaTime milliseconds in fixed
// sub-steps of InternalStepSize (default DefaultInternalStep when nil),
// decoupling caller granularity from the solver's stable step.
type AdvanceTimePayload struct {
	TotalDeltaTime   float64  `json:"totalDeltaTime"`
	InternalStepSize *float64 `json:"internalStepSize,omitempty"`
}

// BodyState is the wire snapshot of one body: position and orientation
// only. Velocity never crosses the boundary.
type BodyState struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
}

// CollisionPair reports one begin-contact event using external ids
// only. Internal solver handles never cross the boundary.
type CollisionPair struct {
	BodyAID string `json:"bodyAId"`
	BodyBID string `json:"bodyBId"`
}

// Response payloads.

type WorldInitializedPayload struct {
	Success bool `json:"success"`
}

type BodyAddedPayload struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

type BodyRemovedPayload struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

type SteppedPayload struct {
	Success bool        `json:"success"`
	Bodies  []BodyState `json:"bodies"`
}

// AdvanceCompletedPayload additionally reports how many fixed sub-steps
// were actually performed.
type AdvanceCompletedPayload struct {
	Success bool        `json:"success"`
	Bodies  []BodyState `json:"bodies"`
	Steps   int         `json:"steps"`
}

type PhysicsEventsPayload struct {
	Collisions []CollisionPair `json:"collisions"`
}

// ErrorPayload carries the failure code, a readable message, and the
// offending command verbatim so the Controller can attribute it.
type ErrorPayload struct {
	Code            ErrorCode `json:"code"`
	Message         string    `json:"message"`
	OriginalCommand *Message  `json:"originalCommand,omitempty"`
}

// ErrorCode classifies Host-side command failures.
type ErrorCode string

const (
	// ErrEngineNotInitialized: any command other than INIT_WORLD arrived
	// before a world exists.
	ErrEngineNotInitialized ErrorCode = "EngineNotInitialized"
	// ErrInvalidBodyParameters: ADD_BODY geometry insufficient for the
	// requested shape type.
	ErrInvalidBodyParameters ErrorCode = "InvalidBodyParameters"
	// ErrBodyNotFound: REMOVE_BODY referenced an untracked external id.
	ErrBodyNotFound ErrorCode = "BodyNotFound"
	// ErrEngineStepFailure: the underlying integration step failed.
	ErrEngineStepFailure ErrorCode = "EngineStepFailure"
)

// HostError is the typed error produced by engine and host operations.
// It converts 1:1 into an ERROR response at the Host boundary.
type HostError struct {
	Code    ErrorCode
	Message string
}

func (e *HostError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hostErrorf(code ErrorCode, format string, args ...any) *HostError {
	return &HostError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Float returns a pointer to v, for optional geometry fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional count fields.
func Int(v int) *int { return &v }

// Validate checks that the payload carries the geometry its shape type
// requires. It is called before any world mutation so a rejected body
// leaves no trace.
func (p *AddBodyPayload) Validate() error {
	if p.ID == "" {
		return hostErrorf(ErrInvalidBodyParameters, "body id must not be empty")
	}
	switch p.Type {
	case ShapeRectangle:
		if p.Width == nil || p.Height == nil {
			return hostErrorf(ErrInvalidBodyParameters,
				"rectangle %q requires width and height", p.ID)
		}
		if *p.Width <= 0 || *p.Height <= 0 {
			return hostErrorf(ErrInvalidBodyParameters,
				"rectangle %q requires positive width and height", p.ID)
		}
	case ShapeCircle:
		if p.Radius == nil || *p.Radius <= 0 {
			return hostErrorf(ErrInvalidBodyParameters,
				"circle %q requires a positive radius", p.ID)
		}
	case ShapePolygon:
		if len(p.Vertices) >= 3 {
			return nil
		}
		if p.Sides == nil || p.Radius == nil {
			return hostErrorf(ErrInvalidBodyParameters,
				"polygon %q requires sides and radius, or an explicit vertex list", p.ID)
		}
		if *p.Sides < 3 || *p.Sides > maxPolygonSides {
			return hostErrorf(ErrInvalidBodyParameters,
				"polygon %q requires between 3 and %d sides, got %d", p.ID, maxPolygonSides, *p.Sides)
		}
		if *p.Radius <= 0 {
			return hostErrorf(ErrInvalidBodyParameters,
				"polygon %q requires a positive radius", p.ID)
		}
	case ShapeFromVertices:
		if len(p.Vertices) < 3 {
			return hostErrorf(ErrInvalidBodyParameters,
				"fromVertices %q requires at least 3 vertices, got %d", p.ID, len(p.Vertices))
		}
	default:
		return hostErrorf(ErrInvalidBodyParameters,
			"unknown body type %q for %q", p.Type, p.ID)
	}
	return nil
}
