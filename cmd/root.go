package cmd

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rigidsim/rigidsim/sim"
)

var (
	// CLI flags shared by the subcommands
	scenarioPath string  // YAML scenario file; empty selects the built-in default
	seed         uint32  // Overrides the scenario seed when set
	deltaTime    float64 // Overrides the scenario step size (ms) when > 0
	maxSteps     int     // Overrides the scenario step target when > 0
	durationMs   float64 // Overrides the scenario wall-clock budget (ms) when > 0
	mode         string  // Execution context: inproc, worker, or both
	logLevel     string  // Log verbosity level

	// verify flags
	tolerance float64 // Max per-coordinate divergence allowed between modes
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "rigidsim",
	Short: "Worker-hosted rigid-body simulation benchmark harness",
}

// setupLogging applies the --log-level flag.
func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// loadScenario resolves the scenario and applies CLI overrides.
func loadScenario() *sim.Scenario {
	scenario := sim.DefaultScenario()
	if scenarioPath != "" {
		loaded, err := sim.LoadScenario(scenarioPath)
		if err != nil {
			logrus.Fatalf("unable to load scenario: %v", err)
		}
		scenario = loaded
	}
	if rootCmd.PersistentFlags().Changed("seed") {
		scenario.Seed = seed
	}
	if deltaTime > 0 {
		scenario.Simulation.DeltaTime = deltaTime
	}
	if maxSteps > 0 {
		scenario.Simulation.Steps = maxSteps
	}
	if durationMs > 0 {
		scenario.Simulation.DurationMs = durationMs
	}
	return scenario
}

func benchConfig(scenario *sim.Scenario) sim.BenchmarkConfig {
	return sim.BenchmarkConfig{
		DeltaTime:   scenario.Simulation.DeltaTime,
		MaxSteps:    scenario.Simulation.Steps,
		MaxDuration: time.Duration(scenario.Simulation.DurationMs * float64(time.Millisecond)),
	}
}

// runInproc benchmarks a directly driven engine.
func runInproc(scenario *sim.Scenario) *sim.PerformanceMetrics {
	engine, err := scenario.BuildEngine()
	if err != nil {
		logrus.Fatalf("scenario setup failed: %v", err)
	}
	metrics, err := sim.RunBenchmark(benchConfig(scenario), &sim.EngineStepper{Engine: engine}, "inproc")
	if err != nil {
		logrus.Fatalf("in-process benchmark failed: %v", err)
	}
	return metrics
}

// runWorker benchmarks the same scenario through the hosted protocol.
func runWorker(ctx context.Context, scenario *sim.Scenario) *sim.PerformanceMetrics {
	controllerEnd, hostEnd := sim.NewPipe(64)
	go sim.NewHost(hostEnd).Run()
	controller := sim.NewController(controllerEnd)
	defer controller.Close()

	if err := scenario.Setup(ctx, controller); err != nil {
		logrus.Fatalf("scenario setup failed: %v", err)
	}
	metrics, err := sim.RunBenchmark(benchConfig(scenario),
		&sim.ControllerStepper{Ctx: ctx, Controller: controller}, "worker")
	if err != nil {
		logrus.Fatalf("worker benchmark failed: %v", err)
	}
	return metrics
}

// benchCmd runs the scenario benchmark and prints the statistics report.
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark a scenario in-process, worker-hosted, or both",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		scenario := loadScenario()
		ctx := context.Background()

		logrus.Infof("Starting benchmark: scenario=%s seed=%d delta=%.3fms",
			scenario.Name, scenario.Seed, scenario.Simulation.DeltaTime)

		switch mode {
		case "inproc":
			runInproc(scenario).Report().Print()
		case "worker":
			runWorker(ctx, scenario).Report().Print()
		case "both":
			inproc := runInproc(scenario).Report()
			worker := runWorker(ctx, scenario).Report()
			inproc.Print()
			worker.Print()
			if worker.StepsPerSecond > 0 {
				logrus.Infof("in-process / worker throughput ratio: %.2f",
					inproc.StepsPerSecond/worker.StepsPerSecond)
			}
		default:
			logrus.Fatalf("unknown mode %q (want inproc, worker, or both)", mode)
		}
	},
}

// verifyCmd steps the same seeded scenario in both execution contexts
// and compares the final snapshots, the determinism property the whole
// harness rests on.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that in-process and worker-hosted runs agree under one seed",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		scenario := loadScenario()
		ctx := context.Background()
		steps := scenario.Simulation.Steps
		if steps <= 0 {
			logrus.Fatalf("verify needs a step target (set simulation.steps or --steps)")
		}
		delta := scenario.Simulation.DeltaTime

		engine, err := scenario.BuildEngine()
		if err != nil {
			logrus.Fatalf("scenario setup failed: %v", err)
		}
		var direct []sim.BodyState
		for i := 0; i < steps; i++ {
			if direct, err = engine.Step(delta); err != nil {
				logrus.Fatalf("in-process step %d failed: %v", i+1, err)
			}
		}

		controllerEnd, hostEnd := sim.NewPipe(64)
		go sim.NewHost(hostEnd).Run()
		controller := sim.NewController(controllerEnd)
		defer controller.Close()
		if err := scenario.Setup(ctx, controller); err != nil {
			logrus.Fatalf("scenario setup failed: %v", err)
		}
		var hosted []sim.BodyState
		for i := 0; i < steps; i++ {
			if hosted, err = controller.StepSimulation(ctx, delta); err != nil {
				logrus.Fatalf("worker step %d failed: %v", i+1, err)
			}
		}

		if len(direct) != len(hosted) {
			logrus.Fatalf("FAIL: %d bodies in-process vs %d worker-hosted", len(direct), len(hosted))
		}
		worst := 0.0
		for i := range direct {
			if direct[i].ID != hosted[i].ID {
				logrus.Fatalf("FAIL: body order diverged at %d: %s vs %s", i, direct[i].ID, hosted[i].ID)
			}
			worst = math.Max(worst, math.Abs(direct[i].X-hosted[i].X))
			worst = math.Max(worst, math.Abs(direct[i].Y-hosted[i].Y))
			worst = math.Max(worst, math.Abs(direct[i].Angle-hosted[i].Angle))
		}
		if worst > tolerance {
			logrus.Fatalf("FAIL: snapshots diverged by %g (tolerance %g)", worst, tolerance)
		}
		logrus.Infof("PASS: %d bodies identical after %d steps (max divergence %g)",
			len(direct), steps, worst)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&scenarioPath, "scenario", "", "YAML scenario file (default: built-in)")
	rootCmd.PersistentFlags().Uint32Var(&seed, "seed", 0, "override the scenario seed")
	rootCmd.PersistentFlags().Float64Var(&deltaTime, "delta", 0, "override the step size in ms")
	rootCmd.PersistentFlags().IntVar(&maxSteps, "steps", 0, "override the step target")
	rootCmd.PersistentFlags().Float64Var(&durationMs, "duration", 0, "override the wall-clock budget in ms")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	benchCmd.Flags().StringVar(&mode, "mode", "both", "execution context: inproc, worker, or both")
	verifyCmd.Flags().Float64Var(&tolerance, "tolerance", 1e-9, "max per-coordinate divergence")

	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(verifyCmd)
}

// Execute runs the root command
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
