// Timed benchmark execution over any stepper, producing throughput
// statistics. The same runner drives a direct engine and a
// worker-hosted engine, so the two execution contexts can be compared
// under identical seeds.

package sim

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stepper advances a simulation by one fixed step. Both execution
// contexts implement it: EngineStepper in-process, ControllerStepper
// through the Host protocol.
type Stepper interface {
	Step(deltaTime float64) error
}

// EngineStepper drives a direct engine.
type EngineStepper struct {
	Engine *Engine
}

func (s *EngineStepper) Step(deltaTime float64) error {
	if _, err := s.Engine.Step(deltaTime); err != nil {
		return err
	}
	// Collisions are irrelevant to throughput runs; drain so the
	// capture buffer does not grow across a long benchmark.
	s.Engine.DrainCollisions()
	return nil
}

// ControllerStepper drives a worker-hosted engine through the protocol,
// paying the full command/response round trip per step.
type ControllerStepper struct {
	Ctx        context.Context
	Controller *Controller
}

func (s *ControllerStepper) Step(deltaTime float64) error {
	_, err := s.Controller.StepSimulation(s.Ctx, deltaTime)
	return err
}

// BenchmarkConfig bounds a run: fixed step size plus a step target, a
// wall-clock budget, or both (first bound hit ends the run).
type BenchmarkConfig struct {
	DeltaTime   float64       // per-step delta in milliseconds
	MaxSteps    int           // 0 = unbounded
	MaxDuration time.Duration // 0 = unbounded
}

// PerformanceMetrics accumulates per-step wall-clock cost over one run.
type PerformanceMetrics struct {
	RunID     string    // unique id for cross-run comparison reports
	Mode      string    // execution context label, e.g. "inproc" or "worker"
	Steps     int       // number of steps performed
	StepTimes []float64 // per-step wall-clock cost in milliseconds
	TotalTime time.Duration
}

// NewPerformanceMetrics creates an empty accumulator for the given
// execution mode.
func NewPerformanceMetrics(mode string) *PerformanceMetrics {
	return &PerformanceMetrics{
		RunID: uuid.NewString(),
		Mode:  mode,
	}
}

// RecordStep adds one step's wall-clock cost.
func (m *PerformanceMetrics) RecordStep(d time.Duration) {
	m.Steps++
	m.StepTimes = append(m.StepTimes, float64(d.Nanoseconds())/1e6)
}

// PerformanceReport is the derived statistics of one run. All times are
// in milliseconds.
type PerformanceReport struct {
	RunID          string
	Mode           string
	Steps          int
	TotalMs        float64
	AvgMs          float64
	MinMs          float64
	MaxMs          float64
	MedianMs       float64
	StdDevMs       float64
	StepsPerSecond float64
}

// Report derives the run statistics.
func (m *PerformanceMetrics) Report() PerformanceReport {
	report := PerformanceReport{
		RunID:   m.RunID,
		Mode:    m.Mode,
		Steps:   m.Steps,
		TotalMs: float64(m.TotalTime.Nanoseconds()) / 1e6,
	}
	if len(m.StepTimes) == 0 {
		return report
	}

	sorted := append([]float64(nil), m.StepTimes...)
	sort.Float64s(sorted)

	report.AvgMs = stat.Mean(sorted, nil)
	report.MinMs = floats.Min(sorted)
	report.MaxMs = floats.Max(sorted)
	report.MedianMs = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	report.StdDevMs = stat.StdDev(sorted, nil)
	if report.TotalMs > 0 {
		report.StepsPerSecond = float64(m.Steps) / (report.TotalMs / 1000)
	}
	return report
}

// Print displays the report at the end of a run.
func (r PerformanceReport) Print() {
	fmt.Println("=== Benchmark Report ===")
	fmt.Printf("Run ID          : %s\n", r.RunID)
	fmt.Printf("Mode            : %s\n", r.Mode)
	fmt.Printf("Steps           : %d\n", r.Steps)
	fmt.Printf("Total time      : %.2f ms\n", r.TotalMs)
	fmt.Printf("Avg step        : %.4f ms\n", r.AvgMs)
	fmt.Printf("Min step        : %.4f ms\n", r.MinMs)
	fmt.Printf("Max step        : %.4f ms\n", r.MaxMs)
	fmt.Printf("Median step     : %.4f ms\n", r.MedianMs)
	fmt.Printf("Stddev step     : %.4f ms\n", r.StdDevMs)
	fmt.Printf("Steps per second: %.1f\n", r.StepsPerSecond)
}

// RunBenchmark steps the stepper at cfg.DeltaTime until a bound is hit,
// recording per-step wall-clock cost.
func RunBenchmark(cfg BenchmarkConfig, stepper Stepper, mode string) (*PerformanceMetrics, error) {
	if cfg.DeltaTime <= 0 {
		return nil, fmt.Errorf("benchmark deltaTime must be positive, got %g", cfg.DeltaTime)
	}
	if cfg.MaxSteps <= 0 && cfg.MaxDuration <= 0 {
		return nil, fmt.Errorf("benchmark needs a step target or a duration budget")
	}

	metrics := NewPerformanceMetrics(mode)
	start := time.Now()
	for {
		if cfg.MaxSteps > 0 && metrics.Steps >= cfg.MaxSteps {
			break
		}
		if cfg.MaxDuration > 0 && time.Since(start) >= cfg.MaxDuration {
			break
		}
		stepStart := time.Now()
		if err := stepper.Step(cfg.DeltaTime); err != nil {
			return nil, fmt.Errorf("benchmark step %d: %w", metrics.Steps+1, err)
		}
		metrics.RecordStep(time.Since(stepStart))
	}
	metrics.TotalTime = time.Since(start)

	logrus.Infof("benchmark %s done: %d steps in %s (mode=%s)",
		metrics.RunID, metrics.Steps, metrics.TotalTime, mode)
	return metrics, nil
}
