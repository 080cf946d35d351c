package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trainkit/trainkit/internal/demo"
	"github.com/trainkit/trainkit/internal/hook"
	"github.com/trainkit/trainkit/internal/operator"
	"github.com/trainkit/trainkit/internal/registry"
	"github.com/trainkit/trainkit/internal/service"
	"github.com/trainkit/trainkit/internal/timestep"
	"github.com/trainkit/trainkit/pkg/config"
	"github.com/trainkit/trainkit/pkg/telemetry"
	"github.com/trainkit/trainkit/pkg/utils"
)

var (
	runWorkers  int
	runEpochs   int
	runDim      int
	runBlocks   int
	runLR       float64
	runMomentum float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a demo linear-regression training loop",
	Long: `run spins up an Operator against a small in-memory linear-regression
problem: each worker fits its own replica of the weights to synthetic data,
and the operator merges replicas back together at every epoch boundary.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runWorkers, "workers", 4, "Number of training workers")
	runCmd.Flags().IntVar(&runEpochs, "epochs", 3, "Number of epochs to run before stopping")
	runCmd.Flags().IntVar(&runDim, "dim", 8, "Dimensionality of the synthetic regression problem")
	runCmd.Flags().IntVar(&runBlocks, "blocks", 32, "Data blocks per epoch")
	runCmd.Flags().Float64Var(&runLR, "lr", 0.01, "SGD learning rate")
	runCmd.Flags().Float64Var(&runMomentum, "momentum", 0.9, "SGD momentum")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.InitWithConfig(context.Background(), telemetryConfigFromOperator(cfg))
	if err != nil {
		log.Warn("telemetry: init failed, continuing without spans: %v", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Warn("telemetry: shutdown failed: %v", err)
		}
	}()

	handler := demo.NewVectorHandler()
	trainer := demo.NewLinearTrainer(runDim, runBlocks, runLR, runMomentum, 42)
	network := demo.NewLinearNetwork(runDim, handler)

	deps := operator.Deps{
		Handler: handler,
		Trainer: trainer,
		Network: network,
		Logger:  log,
	}

	svc, err := service.New(cfg, deps, log)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	attachEpochProgressHook(svc.Operator(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received interrupt, stopping")
		cancel()
	}()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}

	op := svc.Operator()
waitLoop:
	for op.EpochNumber() < runEpochs {
		select {
		case <-ctx.Done():
			break waitLoop
		case <-time.After(20 * time.Millisecond):
		}
	}

	stats := op.Stats()
	log.Info("reached epoch %d/%d, iteration %d, stopping", stats.EpochNumber, runEpochs, stats.HighestIterationNumber)

	if err := svc.Stop(); err != nil {
		return fmt.Errorf("stopping service: %w", err)
	}

	return nil
}

// telemetryConfigFromOperator adapts the run command's loaded config.Config
// into the telemetry package's own Config, tagging spans from this run as
// coming from the "operator" component and recording the worker count as a
// resource attribute so traces from different pool sizes are distinguishable.
func telemetryConfigFromOperator(cfg *config.Config) *telemetry.Config {
	return &telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Protocol:       cfg.Telemetry.Protocol,
		Insecure:       cfg.Telemetry.Insecure,
		Component:      "operator",
		ResourceAttrs: map[string]string{
			"operator.worker_count": strconv.Itoa(cfg.Operator.WorkerCount),
		},
	}
}

func loadRunConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	cfg, err := config.LoadFromReader("yaml", []byte(""))
	if err != nil {
		return nil, fmt.Errorf("loading default config: %w", err)
	}
	cfg.Operator.WorkerCount = runWorkers
	cfg.Operator.BackgroundPoolSize = runWorkers
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run configuration: %w", err)
	}
	return cfg, nil
}

// attachEpochProgressHook attaches a global hook that logs the operator's
// epoch and runtime at every epoch boundary.
func attachEpochProgressHook(op *operator.Operator, log utils.Logger) {
	h := &hook.Hook{
		Name:              "demo.epoch_progress",
		FunctionalKey:     "demo.epoch_progress",
		TimeStep:          timestep.Every(1, timestep.Epoch),
		ParameterRegistry: registry.New(),
		DefaultTarget:     hook.Global,
		Fn: func(reg *registry.Registry, resolver *registry.Resolver) {
			epoch, _ := reg.Get("epoch")
			runtimeMillis, _ := reg.Get("runtime_millis")
			log.Info("epoch %v complete, runtime %vms", epoch, runtimeMillis)
		},
	}
	op.AttachGlobalHook(h)
}
