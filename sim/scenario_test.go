package sim

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioBodiesExpansionIsDeterministic(t *testing.T) {
	scenario := DefaultScenario()

	first := scenario.Bodies()
	second := scenario.Bodies()

	require.Len(t, first, scenario.Generation.Count)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].X, second[i].X)
		assert.Equal(t, first[i].Y, second[i].Y)
		assert.Equal(t, *first[i].Radius, *second[i].Radius)
	}
}

func TestScenarioSeedChangesPlacement(t *testing.T) {
	a := DefaultScenario()
	b := DefaultScenario()
	b.Seed = a.Seed + 1

	bodiesA := a.Bodies()
	bodiesB := b.Bodies()

	diverged := false
	for i := range bodiesA {
		if bodiesA[i].X != bodiesB[i].X || bodiesA[i].Y != bodiesB[i].Y {
			diverged = true
			break
		}
	}
	assert.True(t, diverged, "different seeds should place bodies differently")
}

func TestScenarioFixedDrawOrder(t *testing.T) {
	// The generator draws x, then y, then size per body. Recompute the
	// first body by hand to pin that order.
	scenario := &Scenario{
		Seed:  42,
		World: WorldOptions{Width: 800, Height: 600},
		Generation: &GenerationRule{
			Count:     1,
			Placement: PlacementRandom,
			Shape:     ShapeCircle,
			X:         Range{Min: 50, Max: 750},
			Y:         Range{Min: 50, Max: 300},
			Size:      Range{Min: 5, Max: 20},
		},
		Simulation: SimulationParams{DeltaTime: 10, Steps: 1},
	}

	rng := NewRNG(42)
	wantX := rng.FloatRange(50, 750)
	wantY := rng.FloatRange(50, 300)
	wantSize := rng.FloatRange(5, 20)

	bodies := scenario.Bodies()
	require.Len(t, bodies, 1)
	assert.Equal(t, wantX, bodies[0].X)
	assert.Equal(t, wantY, bodies[0].Y)
	assert.Equal(t, wantSize, *bodies[0].Radius)
}

func TestScenarioPolygonGeneration(t *testing.T) {
	// Polygon rules draw a side count after x, y, size. Recompute the
	// first body by hand to pin the extended order.
	scenario := &Scenario{
		Seed:  7,
		World: WorldOptions{Width: 800, Height: 600},
		Generation: &GenerationRule{
			Count:     8,
			Placement: PlacementRandom,
			Shape:     ShapePolygon,
			X:         Range{Min: 50, Max: 750},
			Y:         Range{Min: 50, Max: 300},
			Size:      Range{Min: 5, Max: 20},
		},
		Simulation: SimulationParams{DeltaTime: 10, Steps: 1},
	}

	rng := NewRNG(7)
	wantX := rng.FloatRange(50, 750)
	wantY := rng.FloatRange(50, 300)
	wantSize := rng.FloatRange(5, 20)
	wantSides := rng.IntRange(3, maxPolygonSides)

	bodies := scenario.Bodies()
	require.Len(t, bodies, 8)
	first := bodies[0]
	assert.Equal(t, ShapePolygon, first.Type)
	assert.Equal(t, wantX, first.X)
	assert.Equal(t, wantY, first.Y)
	assert.Equal(t, wantSize, *first.Radius)
	require.NotNil(t, first.Sides)
	assert.Equal(t, wantSides, *first.Sides)

	for _, body := range bodies {
		require.NotNil(t, body.Sides)
		assert.GreaterOrEqual(t, *body.Sides, 3)
		assert.LessOrEqual(t, *body.Sides, maxPolygonSides)
	}

	// every generated polygon passes body validation
	engine, err := scenario.BuildEngine()
	require.NoError(t, err)
	assert.Equal(t, 8, engine.BodyCount())
}

func TestScenarioStackPlacement(t *testing.T) {
	scenario := &Scenario{
		Seed:  1,
		World: WorldOptions{Width: 800, Height: 600},
		Generation: &GenerationRule{
			Count:     4,
			Placement: PlacementStack,
			Shape:     ShapeRectangle,
			IDPrefix:  "crate",
			Stack:     &StackRule{X: 400, StartY: 560, Spacing: 2, Size: 30},
		},
		Simulation: SimulationParams{DeltaTime: 10, Steps: 1},
	}

	bodies := scenario.Bodies()
	require.Len(t, bodies, 4)
	for i, body := range bodies {
		assert.Equal(t, 400.0, body.X)
		assert.Equal(t, 560.0-float64(i)*32, body.Y)
		assert.Equal(t, ShapeRectangle, body.Type)
		assert.Equal(t, 30.0, *body.Width)
		assert.Equal(t, fmt.Sprintf("crate-%d", i), body.ID)
	}
}

func TestScenarioDeterminismAcrossExecutionContexts(t *testing.T) {
	// The core determinism property: one seed, two execution contexts
	// (direct engine vs worker-hosted engine), equal trajectories.
	scenario := &Scenario{
		Name:  "cross-context",
		Seed:  2024,
		World: WorldOptions{Width: 800, Height: 600},
		StaticBodies: []AddBodyPayload{
			{ID: "platform", Type: ShapeRectangle, X: 400, Y: 500,
				Width: Float(300), Height: Float(20), Options: &BodyOptions{IsStatic: true}},
		},
		Generation: &GenerationRule{
			Count:     20,
			Placement: PlacementRandom,
			Shape:     ShapeCircle,
			X:         Range{Min: 100, Max: 700},
			Y:         Range{Min: 50, Max: 200},
			Size:      Range{Min: 5, Max: 15},
		},
		Simulation: SimulationParams{DeltaTime: 1000.0 / 60.0, Steps: 30},
	}

	engine, err := scenario.BuildEngine()
	require.NoError(t, err)
	var direct []BodyState
	for i := 0; i < scenario.Simulation.Steps; i++ {
		direct, err = engine.Step(scenario.Simulation.DeltaTime)
		require.NoError(t, err)
	}

	controller, ctx := startHosted(t)
	require.NoError(t, scenario.Setup(ctx, controller))
	var hosted []BodyState
	for i := 0; i < scenario.Simulation.Steps; i++ {
		hosted, err = controller.StepSimulation(ctx, scenario.Simulation.DeltaTime)
		require.NoError(t, err)
	}

	require.Equal(t, len(direct), len(hosted))
	for i := range direct {
		require.Equal(t, direct[i].ID, hosted[i].ID)
		assert.InDelta(t, direct[i].X, hosted[i].X, 1e-9, "body %s x", direct[i].ID)
		assert.InDelta(t, direct[i].Y, hosted[i].Y, 1e-9, "body %s y", direct[i].ID)
		assert.InDelta(t, direct[i].Angle, hosted[i].Angle, 1e-9, "body %s angle", direct[i].ID)
	}
}

func TestLoadScenarioYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	content := `
name: yaml-check
seed: 99
world:
  width: 640
  height: 480
  gravity:
    x: 0
    y: 1
    scale: 0.001
staticBodies:
  - id: floor-box
    type: rectangle
    x: 320
    y: 400
    width: 200
    height: 20
    options:
      isStatic: true
bodyGeneration:
  count: 10
  placement: random
  shape: circle
  x: {min: 50, max: 590}
  y: {min: 50, max: 200}
  size: {min: 4, max: 12}
simulation:
  deltaTime: 16.666
  steps: 120
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "yaml-check", scenario.Name)
	assert.Equal(t, uint32(99), scenario.Seed)
	assert.Equal(t, 640.0, scenario.World.Width)
	require.NotNil(t, scenario.World.Gravity)
	assert.Equal(t, 0.001, scenario.World.Gravity.Scale)
	require.Len(t, scenario.StaticBodies, 1)
	assert.Equal(t, "floor-box", scenario.StaticBodies[0].ID)
	require.NotNil(t, scenario.StaticBodies[0].Width)
	assert.Equal(t, 200.0, *scenario.StaticBodies[0].Width)
	require.NotNil(t, scenario.Generation)
	assert.Equal(t, 10, scenario.Generation.Count)

	// the loaded scenario is directly runnable
	engine, err := scenario.BuildEngine()
	require.NoError(t, err)
	assert.Equal(t, 11, engine.BodyCount())
}

func TestLoadScenarioRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"no dimensions", "name: broken\nsimulation: {steps: 10, deltaTime: 10}\n"},
		{"no run bound", "world: {width: 800, height: 600}\n"},
		{"stack without rule", `
world: {width: 800, height: 600}
bodyGeneration: {count: 3, placement: stack}
simulation: {steps: 10, deltaTime: 10}
`},
		{"not yaml", "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := LoadScenario(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadScenario(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultScenarioIsRunnable(t *testing.T) {
	scenario := DefaultScenario()
	require.NoError(t, scenario.validate())

	engine, err := scenario.BuildEngine()
	require.NoError(t, err)
	assert.Equal(t, scenario.Generation.Count, engine.BodyCount())
}
