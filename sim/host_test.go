package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startHosted wires a Host and Controller over a fresh pipe and waits
// for WORKER_READY.
func startHosted(t *testing.T) (*Controller, context.Context) {
	t.Helper()
	controllerEnd, hostEnd := NewPipe(64)
	go NewHost(hostEnd).Run()
	controller := NewController(controllerEnd)
	t.Cleanup(controller.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	require.NoError(t, controller.WaitReady(ctx))
	return controller, ctx
}

func TestHostEmitsReadyBeforeAnythingElse(t *testing.T) {
	controllerEnd, hostEnd := NewPipe(4)
	go NewHost(hostEnd).Run()
	defer controllerEnd.Close()

	select {
	case msg := <-controllerEnd.Recv():
		assert.Equal(t, MsgWorkerReady, msg.Type)
		assert.Empty(t, msg.CommandID, "READY is unsolicited and carries no commandId")
	case <-time.After(5 * time.Second):
		t.Fatal("no WORKER_READY within 5s")
	}
}

func TestHostRejectsCommandsBeforeInitWorld(t *testing.T) {
	controller, ctx := startHosted(t)

	var hostErr *HostError

	err := controller.RemoveBody(ctx, "ghost")
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, ErrEngineNotInitialized, hostErr.Code)

	_, err = controller.StepSimulation(ctx, 16.666)
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, ErrEngineNotInitialized, hostErr.Code)

	// the loop survived: INIT_WORLD still works
	require.NoError(t, controller.InitWorld(ctx, 800, 600, nil))
}

func TestHostGravityScenario(t *testing.T) {
	controller, ctx := startHosted(t)

	require.NoError(t, controller.InitWorld(ctx, 800, 600, &Gravity{X: 0, Y: 1, Scale: 0.001}))
	require.NoError(t, controller.AddBody(ctx, AddBodyPayload{
		ID: "c1", Type: ShapeCircle, X: 400, Y: 50, Radius: Float(20),
	}))

	var bodies []BodyState
	var err error
	for i := 0; i < 60; i++ {
		bodies, err = controller.StepSimulation(ctx, 16.666)
		require.NoError(t, err)
	}

	require.Len(t, bodies, 1)
	assert.Equal(t, "c1", bodies[0].ID)
	assert.Greater(t, bodies[0].Y, 50.0)
	assert.Less(t, bodies[0].Y, 600.0)
}

func TestHostAdvanceSimulationTime(t *testing.T) {
	controller, ctx := startHosted(t)
	require.NoError(t, controller.InitWorld(ctx, 800, 600, nil))
	require.NoError(t, controller.AddBody(ctx, AddBodyPayload{
		ID: "c1", Type: ShapeCircle, X: 400, Y: 100, Radius: Float(10),
	}))

	bodies, steps, err := controller.AdvanceSimulationTime(ctx, 100, Float(10))
	require.NoError(t, err)
	assert.Equal(t, 10, steps)
	require.Len(t, bodies, 1)
}

func TestHostRemoveBodyLifecycle(t *testing.T) {
	controller, ctx := startHosted(t)
	require.NoError(t, controller.InitWorld(ctx, 800, 600, nil))
	require.NoError(t, controller.AddBody(ctx, AddBodyPayload{
		ID: "b1", Type: ShapeCircle, X: 400, Y: 100, Radius: Float(10),
	}))
	require.NoError(t, controller.RemoveBody(ctx, "b1"))

	// removing again is BodyNotFound, not a no-op
	var hostErr *HostError
	err := controller.RemoveBody(ctx, "b1")
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, ErrBodyNotFound, hostErr.Code)

	// later snapshots never include the removed id
	bodies, err := controller.StepSimulation(ctx, 16.666)
	require.NoError(t, err)
	assert.Empty(t, bodies)
}

func TestHostReinitDiscardsAllState(t *testing.T) {
	controller, ctx := startHosted(t)
	require.NoError(t, controller.InitWorld(ctx, 800, 600, nil))
	require.NoError(t, controller.AddBody(ctx, AddBodyPayload{
		ID: "pre", Type: ShapeCircle, X: 400, Y: 100, Radius: Float(10),
	}))

	require.NoError(t, controller.InitWorld(ctx, 400, 300, nil))

	var hostErr *HostError
	err := controller.RemoveBody(ctx, "pre")
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, ErrBodyNotFound, hostErr.Code)

	// the pre-reset id is free for reuse in the fresh world
	require.NoError(t, controller.AddBody(ctx, AddBodyPayload{
		ID: "pre", Type: ShapeCircle, X: 200, Y: 50, Radius: Float(10),
	}))
}

func TestHostErrorCarriesOriginalCommand(t *testing.T) {
	controller, ctx := startHosted(t)
	require.NoError(t, controller.InitWorld(ctx, 800, 600, nil))

	resp, err := controller.Call(ctx, Message{
		Type:    CmdAddBody,
		Payload: AddBodyPayload{ID: "bad", Type: ShapeRectangle, X: 10, Y: 10},
	}, MsgBodyAdded)
	require.Error(t, err)
	require.Equal(t, MsgError, resp.Type)

	payload, ok := resp.Payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, ErrInvalidBodyParameters, payload.Code)
	require.NotNil(t, payload.OriginalCommand)
	assert.Equal(t, CmdAddBody, payload.OriginalCommand.Type)
	assert.Equal(t, resp.CommandID, payload.OriginalCommand.CommandID)
}

func TestHostRejectsUnsupportedCommand(t *testing.T) {
	controller, ctx := startHosted(t)
	require.NoError(t, controller.InitWorld(ctx, 800, 600, nil))

	resp, err := controller.Call(ctx, Message{Type: "TELEPORT_BODY"}, MsgBodyAdded)
	require.Error(t, err)
	require.Equal(t, MsgError, resp.Type)
	assert.Contains(t, err.Error(), "unsupported command")

	// the loop survived the bad command
	_, err = controller.StepSimulation(ctx, 16.666)
	require.NoError(t, err)
}

func TestHostRejectedBodyLeavesWorldUntouched(t *testing.T) {
	controller, ctx := startHosted(t)
	require.NoError(t, controller.InitWorld(ctx, 800, 600, nil))

	err := controller.AddBody(ctx, AddBodyPayload{ID: "bad", Type: ShapeRectangle, X: 10, Y: 10, Width: Float(5)})
	var hostErr *HostError
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, ErrInvalidBodyParameters, hostErr.Code)

	bodies, err := controller.StepSimulation(ctx, 16.666)
	require.NoError(t, err)
	assert.Empty(t, bodies, "rejected body must not reach the world")
}

func TestHostPhysicsEventsAreUnsolicited(t *testing.T) {
	controller, ctx := startHosted(t)

	var mu sync.Mutex
	var events []Message
	controller.Subscribe(func(msg Message) {
		if msg.Type == MsgPhysicsEvents {
			mu.Lock()
			events = append(events, msg)
			mu.Unlock()
		}
	})

	require.NoError(t, controller.InitWorld(ctx, 800, 600, &Gravity{}))
	require.NoError(t, controller.AddBody(ctx, AddBodyPayload{
		ID: "a", Type: ShapeCircle, X: 400, Y: 300, Radius: Float(30),
	}))
	require.NoError(t, controller.AddBody(ctx, AddBodyPayload{
		ID: "b", Type: ShapeCircle, X: 400, Y: 340, Radius: Float(30),
	}))

	_, err := controller.StepSimulation(ctx, 16.666)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0
	}, 5*time.Second, 10*time.Millisecond, "no PHYSICS_EVENTS after an overlapping-body step")

	mu.Lock()
	defer mu.Unlock()
	msg := events[0]
	assert.Empty(t, msg.CommandID, "PHYSICS_EVENTS is not a response to any request")
	payload, ok := msg.Payload.(PhysicsEventsPayload)
	require.True(t, ok)
	require.NotEmpty(t, payload.Collisions)
	pair := payload.Collisions[0]
	ids := map[string]bool{pair.BodyAID: true, pair.BodyBID: true}
	assert.True(t, ids["a"] && ids["b"], "collision pair %v should reference a and b", pair)
}

func TestHostDeterminismAcrossInstances(t *testing.T) {
	run := func() []BodyState {
		controller, ctx := startHosted(t)
		require.NoError(t, controller.InitWorld(ctx, 800, 600, nil))
		require.NoError(t, controller.AddBody(ctx, AddBodyPayload{
			ID: "c1", Type: ShapeCircle, X: 400, Y: 50, Radius: Float(20),
		}))
		require.NoError(t, controller.AddBody(ctx, AddBodyPayload{
			ID: "r1", Type: ShapeRectangle, X: 300, Y: 80, Width: Float(30), Height: Float(30),
		}))

		var bodies []BodyState
		var err error
		for i := 0; i < 30; i++ {
			bodies, err = controller.StepSimulation(ctx, 16.666)
			require.NoError(t, err)
		}
		return bodies
	}

	first := run()
	second := run()

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.InDelta(t, first[i].X, second[i].X, 1e-12)
		assert.InDelta(t, first[i].Y, second[i].Y, 1e-12)
		assert.InDelta(t, first[i].Angle, second[i].Angle, 1e-12)
	}
}
