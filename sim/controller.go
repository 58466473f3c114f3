// The Controller side of the protocol: command correlation, response
// dispatch, and typed convenience calls over a transport endpoint.

package sim

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Controller is the sole owner of its transport endpoint. It assigns
// monotonically increasing command ids, tracks one pending resolver per
// outstanding id, and fans every inbound message out to subscribers.
//
// Calls carry a context for cancellation; the Controller installs no
// timeout of its own, so a command the Host never answers blocks until
// the caller cancels or the transport closes.
type Controller struct {
	endpoint *Endpoint
	nextID   atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan Message
	subs    []func(Message)

	ready     chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once
	log       *logrus.Entry
}

// NewController wraps the Controller side of a pipe and starts the
// dispatch loop.
func NewController(endpoint *Endpoint) *Controller {
	c := &Controller{
		endpoint: endpoint,
		pending:  make(map[string]chan Message),
		ready:    make(chan struct{}),
		log:      logrus.WithField("component", "controller"),
	}
	go c.dispatchLoop()
	return c
}

func (c *Controller) dispatchLoop() {
	for {
		select {
		case <-c.endpoint.Done():
			return
		case msg := <-c.endpoint.Recv():
			c.dispatch(msg)
		}
	}
}

func (c *Controller) dispatch(msg Message) {
	if msg.Type == MsgWorkerReady {
		c.readyOnce.Do(func() { close(c.ready) })
	}

	if msg.CommandID != "" {
		c.mu.Lock()
		resolver, ok := c.pending[msg.CommandID]
		if ok {
			delete(c.pending, msg.CommandID)
		}
		subs := append(make([]func(Message), 0, len(c.subs)), c.subs...)
		c.mu.Unlock()
		if ok {
			resolver <- msg
		}
		for _, fn := range subs {
			fn(msg)
		}
		return
	}

	c.mu.Lock()
	subs := append(make([]func(Message), 0, len(c.subs)), c.subs...)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(msg)
	}
}

// Subscribe registers fn for every inbound message, solicited or not.
// This is the only way to observe unsolicited PHYSICS_EVENTS.
func (c *Controller) Subscribe(fn func(Message)) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// WaitReady blocks until the Host's WORKER_READY arrives. INIT_WORLD
// must not be sent before that.
func (c *Controller) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.endpoint.Done():
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send posts a fire-and-forget command: no id is assigned and no
// response is awaited.
func (c *Controller) Send(msg Message) error {
	return c.endpoint.Send(msg)
}

// Call assigns a command id (unless the caller set one), sends the
// command, and blocks until the correlated response arrives. An ERROR
// response resolves the call as a *HostError; a response of an
// unexpected type is a protocol violation.
func (c *Controller) Call(ctx context.Context, msg Message, wantType string) (Message, error) {
	if msg.CommandID == "" {
		msg.CommandID = strconv.FormatUint(c.nextID.Add(1), 10)
	}

	resolver := make(chan Message, 1)
	c.mu.Lock()
	c.pending[msg.CommandID] = resolver
	c.mu.Unlock()

	if err := c.endpoint.Send(msg); err != nil {
		c.abandon(msg.CommandID)
		return Message{}, err
	}

	select {
	case resp := <-resolver:
		if resp.Type == MsgError {
			return resp, errorFromResponse(resp)
		}
		if resp.Type != wantType {
			return resp, fmt.Errorf("expected %s response for command %s, got %s",
				wantType, msg.CommandID, resp.Type)
		}
		return resp, nil
	case <-c.endpoint.Done():
		c.abandon(msg.CommandID)
		return Message{}, ErrTransportClosed
	case <-ctx.Done():
		c.abandon(msg.CommandID)
		return Message{}, ctx.Err()
	}
}

// abandon drops a pending resolver so the map never accumulates
// entries for calls nobody is waiting on.
func (c *Controller) abandon(commandID string) {
	c.mu.Lock()
	delete(c.pending, commandID)
	c.mu.Unlock()
}

func errorFromResponse(msg Message) error {
	if p, ok := msg.Payload.(ErrorPayload); ok {
		return &HostError{Code: p.Code, Message: p.Message}
	}
	return fmt.Errorf("host reported an error with an unreadable payload")
}

// Close releases the transport exactly once. In-flight commands are
// never answered; their Calls fail with ErrTransportClosed.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.endpoint.Close()
		c.log.Debug("controller closed")
	})
}

// Typed convenience calls.

// InitWorld creates (or resets) the Host's world. A nil gravity selects
// the documented default.
func (c *Controller) InitWorld(ctx context.Context, width, height float64, gravity *Gravity) error {
	_, err := c.Call(ctx, Message{
		Type:    CmdInitWorld,
		Payload: InitWorldPayload{Width: width, Height: height, Gravity: gravity},
	}, MsgWorldInitialized)
	return err
}

// AddBody registers a body under the payload's external id.
func (c *Controller) AddBody(ctx context.Context, body AddBodyPayload) error {
	_, err := c.Call(ctx, Message{Type: CmdAddBody, Payload: body}, MsgBodyAdded)
	return err
}

// RemoveBody removes a body by external id.
func (c *Controller) RemoveBody(ctx context.Context, id string) error {
	_, err := c.Call(ctx, Message{Type: CmdRemoveBody, Payload: RemoveBodyPayload{ID: id}}, MsgBodyRemoved)
	return err
}

// StepSimulation advances one step of deltaTime milliseconds and
// returns the snapshot of every tracked body.
func (c *Controller) StepSimulation(ctx context.Context, deltaTime float64) ([]BodyState, error) {
	resp, err := c.Call(ctx, Message{
		Type:    CmdStepSimulation,
		Payload: StepPayload{DeltaTime: deltaTime},
	}, MsgSimulationStepped)
	if err != nil {
		return nil, err
	}
	p, ok := resp.Payload.(SteppedPayload)
	if !ok {
		return nil, fmt.Errorf("SIMULATION_STEPPED payload has unexpected shape")
	}
	return p.Bodies, nil
}

// AdvanceSimulationTime consumes total milliseconds in fixed sub-steps
// (internalStepSize nil selects the default) and returns the final
// snapshot plus the sub-step count.
func (c *Controller) AdvanceSimulationTime(ctx context.Context, total float64, internalStepSize *float64) ([]BodyState, int, error) {
	resp, err := c.Call(ctx, Message{
		Type:    CmdAdvanceSimByTime,
		Payload: AdvanceTimePayload{TotalDeltaTime: total, InternalStepSize: internalStepSize},
	}, MsgSimAdvanceCompleted)
	if err != nil {
		return nil, 0, err
	}
	p, ok := resp.Payload.(AdvanceCompletedPayload)
	if !ok {
		return nil, 0, fmt.Errorf("SIMULATION_ADVANCED_TIME_COMPLETED payload has unexpected shape")
	}
	return p.Bodies, p.Steps, nil
}
