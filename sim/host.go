// The simulation Host: an isolated message loop owning one engine.
// Commands are applied strictly in delivery order against the current
// world; because the transport is single-consumer FIFO and the loop
// runs on one goroutine, no locking is needed anywhere in the Host.

package sim

import (
	"github.com/sirupsen/logrus"
)

// Host owns at most one Engine at a time and answers protocol commands
// over its endpoint. A failing command becomes an ERROR response; it
// never corrupts the world or aborts the loop. Only INIT_WORLD resets
// state.
type Host struct {
	endpoint *Endpoint
	engine   *Engine
	log      *logrus.Entry
}

// NewHost wraps the Host side of a pipe. Run must be called (usually on
// its own goroutine) before the Controller sends anything.
func NewHost(endpoint *Endpoint) *Host {
	return &Host{
		endpoint: endpoint,
		log:      logrus.WithField("component", "host"),
	}
}

// Run emits WORKER_READY and then processes commands until the
// transport closes. Each handler runs to completion before the next
// message is read.
func (h *Host) Run() {
	h.send(Message{Type: MsgWorkerReady})
	h.log.Debug("host ready")

	for {
		select {
		case <-h.endpoint.Done():
			return
		case msg := <-h.endpoint.Recv():
			h.handle(msg)
		}
	}
}

// handle dispatches one command and sends its response, converting any
// handler failure into an ERROR response carrying the offending
// command.
func (h *Host) handle(msg Message) {
	if h.engine == nil && msg.Type != CmdInitWorld {
		h.sendError(msg, hostErrorf(ErrEngineNotInitialized,
			"%s received before INIT_WORLD", msg.Type))
		return
	}

	switch msg.Type {
	case CmdInitWorld:
		h.handleInitWorld(msg)
	case CmdAddBody:
		h.handleAddBody(msg)
	case CmdRemoveBody:
		h.handleRemoveBody(msg)
	case CmdStepSimulation:
		h.handleStep(msg)
	case CmdAdvanceSimByTime:
		h.handleAdvanceTime(msg)
	default:
		h.sendError(msg, hostErrorf(ErrInvalidBodyParameters,
			"unsupported command %q", msg.Type))
	}
}

// handleInitWorld discards all prior state unconditionally: fresh
// world, empty registry, new boundary walls, new collision observer.
func (h *Host) handleInitWorld(msg Message) {
	p, ok := msg.Payload.(InitWorldPayload)
	if !ok {
		h.sendError(msg, hostErrorf(ErrInvalidBodyParameters,
			"INIT_WORLD payload has unexpected shape"))
		return
	}
	gravity := DefaultGravity()
	if p.Gravity != nil {
		gravity = *p.Gravity
	}
	h.engine = NewEngine(p.Width, p.Height, gravity)
	h.log.Infof("world initialized %.0fx%.0f gravity=(%g,%g,%g)",
		p.Width, p.Height, gravity.X, gravity.Y, gravity.Scale)
	h.respond(msg, MsgWorldInitialized, WorldInitializedPayload{Success: true})
}

func (h *Host) handleAddBody(msg Message) {
	p, ok := msg.Payload.(AddBodyPayload)
	if !ok {
		h.sendError(msg, hostErrorf(ErrInvalidBodyParameters,
			"ADD_BODY payload has unexpected shape"))
		return
	}
	if err := h.engine.AddBody(p); err != nil {
		h.sendError(msg, err)
		return
	}
	h.respond(msg, MsgBodyAdded, BodyAddedPayload{ID: p.ID, Success: true})
}

func (h *Host) handleRemoveBody(msg Message) {
	p, ok := msg.Payload.(RemoveBodyPayload)
	if !ok {
		h.sendError(msg, hostErrorf(ErrInvalidBodyParameters,
			"REMOVE_BODY payload has unexpected shape"))
		return
	}
	if err := h.engine.RemoveBody(p.ID); err != nil {
		h.sendError(msg, err)
		return
	}
	h.respond(msg, MsgBodyRemoved, BodyRemovedPayload{ID: p.ID, Success: true})
}

func (h *Host) handleStep(msg Message) {
	p, ok := msg.Payload.(StepPayload)
	if !ok {
		h.sendError(msg, hostErrorf(ErrInvalidBodyParameters,
			"STEP_SIMULATION payload has unexpected shape"))
		return
	}
	bodies, err := h.engine.Step(p.DeltaTime)
	if err != nil {
		h.sendError(msg, err)
		return
	}
	h.respond(msg, MsgSimulationStepped, SteppedPayload{Success: true, Bodies: bodies})
	h.emitCollisions()
}

func (h *Host) handleAdvanceTime(msg Message) {
	p, ok := msg.Payload.(AdvanceTimePayload)
	if !ok {
		h.sendError(msg, hostErrorf(ErrInvalidBodyParameters,
			"ADVANCE_SIMULATION_TIME payload has unexpected shape"))
		return
	}
	stepSize := 0.0
	if p.InternalStepSize != nil {
		stepSize = *p.InternalStepSize
	}
	bodies, steps, err := h.engine.AdvanceTime(p.TotalDeltaTime, stepSize)
	if err != nil {
		h.sendError(msg, err)
		return
	}
	h.respond(msg, MsgSimAdvanceCompleted, AdvanceCompletedPayload{
		Success: true,
		Bodies:  bodies,
		Steps:   steps,
	})
	h.emitCollisions()
}

// emitCollisions flushes captured begin-contact pairs as an unsolicited
// PHYSICS_EVENTS notification. It fires only when a step produced
// collisions, never before the owning step's response, and carries no
// commandId.
func (h *Host) emitCollisions() {
	collisions := h.engine.DrainCollisions()
	if len(collisions) == 0 {
		return
	}
	h.send(Message{
		Type:    MsgPhysicsEvents,
		Payload: PhysicsEventsPayload{Collisions: collisions},
	})
}

// respond echoes the request's commandId verbatim.
func (h *Host) respond(req Message, msgType string, payload any) {
	h.send(Message{Type: msgType, Payload: payload, CommandID: req.CommandID})
}

func (h *Host) sendError(req Message, err error) {
	code := ErrEngineStepFailure
	if he, ok := err.(*HostError); ok {
		code = he.Code
	}
	h.log.Warnf("command %s failed: %v", req.Type, err)
	original := req
	h.send(Message{
		Type: MsgError,
		Payload: ErrorPayload{
			Code:            code,
			Message:         err.Error(),
			OriginalCommand: &original,
		},
		CommandID: req.CommandID,
	})
}

// send delivers on a best-effort basis: the Host has no visibility into
// transport failures beyond a closed pipe.
func (h *Host) send(msg Message) {
	if err := h.endpoint.Send(msg); err != nil {
		h.log.Debugf("dropping %s: %v", msg.Type, err)
	}
}
