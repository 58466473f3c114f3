// Declarative scenario setup: a seeded, reproducible description of a
// world's static and procedurally generated contents. The same scenario
// applied to a direct engine and to a worker-hosted engine produces
// identical worlds, which is the basis of the determinism checks and of
// apples-to-apples benchmark comparisons.

package sim

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Placement strategies for generated bodies.
const (
	PlacementRandom = "random"
	PlacementStack  = "stack"
)

// WorldOptions mirrors the INIT_WORLD payload.
type WorldOptions struct {
	Width   float64  `yaml:"width"`
	Height  float64  `yaml:"height"`
	Gravity *Gravity `yaml:"gravity"` // nil selects the documented default
}

// Range is a half-open interval for randomized draws.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// StackRule places bodies in a vertical stack with fixed spacing,
// growing upward from StartY (y points down).
type StackRule struct {
	X       float64 `yaml:"x"`
	StartY  float64 `yaml:"startY"`
	Spacing float64 `yaml:"spacing"`
	Size    float64 `yaml:"size"`
}

// GenerationRule procedurally instantiates Count dynamic bodies.
// Randomized placement draws from the scenario PRNG in a fixed call
// order (x, then y, then size, then sides for polygons): call order is
// the only determinism hazard, so it is pinned here and nowhere else.
type GenerationRule struct {
	Count     int        `yaml:"count"`
	Placement string     `yaml:"placement"` // "random" (default) or "stack"
	Shape     string     `yaml:"shape"`     // "circle" (default), "rectangle", or "polygon"
	IDPrefix  string     `yaml:"idPrefix"`  // defaults to "body"
	X         Range      `yaml:"x"`
	Y         Range      `yaml:"y"`
	Size      Range      `yaml:"size"`
	Stack     *StackRule `yaml:"stack"`
}

// SimulationParams bound a benchmark run: fixed step size, and either a
// target step count, a wall-clock budget in milliseconds, or both
// (whichever is hit first wins).
type SimulationParams struct {
	DeltaTime  float64 `yaml:"deltaTime"`
	Steps      int     `yaml:"steps"`
	DurationMs float64 `yaml:"durationMs"`
}

// Scenario is the full declarative description. It is accepted only by
// the harness, never by the Host directly.
type Scenario struct {
	Name         string           `yaml:"name"`
	Seed         uint32           `yaml:"seed"`
	World        WorldOptions     `yaml:"world"`
	StaticBodies []AddBodyPayload `yaml:"staticBodies"`
	Generation   *GenerationRule  `yaml:"bodyGeneration"`
	Simulation   SimulationParams `yaml:"simulation"`
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if s.World.Width <= 0 || s.World.Height <= 0 {
		return fmt.Errorf("world dimensions must be positive, got %gx%g", s.World.Width, s.World.Height)
	}
	if s.Generation != nil {
		if s.Generation.Count < 0 {
			return fmt.Errorf("bodyGeneration.count must not be negative")
		}
		if s.Generation.Placement == PlacementStack && s.Generation.Stack == nil {
			return fmt.Errorf("stack placement requires a stack rule")
		}
	}
	if s.Simulation.Steps <= 0 && s.Simulation.DurationMs <= 0 {
		return fmt.Errorf("simulation needs a step target or a duration budget")
	}
	return nil
}

// GravityOrDefault resolves the scenario's effective gravity.
func (s *Scenario) GravityOrDefault() Gravity {
	if s.World.Gravity != nil {
		return *s.World.Gravity
	}
	return DefaultGravity()
}

// Bodies expands the scenario into the exact ADD_BODY sequence:
// explicit static bodies first, then generated dynamic bodies in PRNG
// draw order. Identical seeds expand to identical sequences.
func (s *Scenario) Bodies() []AddBodyPayload {
	out := append([]AddBodyPayload(nil), s.StaticBodies...)
	gen := s.Generation
	if gen == nil || gen.Count == 0 {
		return out
	}

	prefix := gen.IDPrefix
	if prefix == "" {
		prefix = "body"
	}
	rng := NewRNG(s.Seed)
	for i := 0; i < gen.Count; i++ {
		var x, y, size float64
		switch gen.Placement {
		case PlacementStack:
			x = gen.Stack.X
			y = gen.Stack.StartY - float64(i)*(gen.Stack.Size+gen.Stack.Spacing)
			size = gen.Stack.Size
		default: // random: draw order is x, then y, then size
			x = rng.FloatRange(gen.X.Min, gen.X.Max)
			y = rng.FloatRange(gen.Y.Min, gen.Y.Max)
			size = rng.FloatRange(gen.Size.Min, gen.Size.Max)
		}

		body := AddBodyPayload{
			ID: fmt.Sprintf("%s-%d", prefix, i),
			X:  x,
			Y:  y,
		}
		switch gen.Shape {
		case ShapeRectangle:
			body.Type = ShapeRectangle
			body.Width = Float(size)
			body.Height = Float(size)
		case ShapePolygon:
			body.Type = ShapePolygon
			body.Sides = Int(rng.IntRange(3, maxPolygonSides))
			body.Radius = Float(size)
		default:
			body.Type = ShapeCircle
			body.Radius = Float(size)
		}
		out = append(out, body)
	}
	return out
}

// BuildEngine creates a direct (in-process) engine populated per the
// scenario. The engine constructor creates the same four boundary walls
// the Host creates on INIT_WORLD, so the two paths stay comparable.
func (s *Scenario) BuildEngine() (*Engine, error) {
	engine := NewEngine(s.World.Width, s.World.Height, s.GravityOrDefault())
	for _, body := range s.Bodies() {
		if err := engine.AddBody(body); err != nil {
			return nil, fmt.Errorf("scenario body %s: %w", body.ID, err)
		}
	}
	return engine, nil
}

// Setup populates a worker-hosted engine through the protocol:
// INIT_WORLD followed by the same ADD_BODY sequence BuildEngine uses.
// It waits for WORKER_READY first.
func (s *Scenario) Setup(ctx context.Context, c *Controller) error {
	if err := c.WaitReady(ctx); err != nil {
		return err
	}
	gravity := s.GravityOrDefault()
	if err := c.InitWorld(ctx, s.World.Width, s.World.Height, &gravity); err != nil {
		return err
	}
	for _, body := range s.Bodies() {
		if err := c.AddBody(ctx, body); err != nil {
			return fmt.Errorf("scenario body %s: %w", body.ID, err)
		}
	}
	return nil
}

// DefaultScenario is the built-in benchmark: a box of circles raining
// under default gravity.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name: "default-rain",
		Seed: 1337,
		World: WorldOptions{
			Width:  800,
			Height: 600,
		},
		Generation: &GenerationRule{
			Count:     120,
			Placement: PlacementRandom,
			Shape:     ShapeCircle,
			X:         Range{Min: 50, Max: 750},
			Y:         Range{Min: 50, Max: 300},
			Size:      Range{Min: 5, Max: 20},
		},
		Simulation: SimulationParams{
			DeltaTime: 1000.0 / 60.0,
			Steps:     600,
		},
	}
}
