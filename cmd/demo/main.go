package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"lightctl/config"
	"lightctl/internal/application"
	"lightctl/internal/domain"
	"lightctl/internal/infra/backend"
)

const hints = `Troubleshooting:
  - check the vendor credentials (HUBSPACE_EMAIL and HUBSPACE_PASSWORD for hubspace)
  - check network connectivity to the vendor cloud
  - the vendor API may have changed`

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to dotenv file")
	hold := flag.Duration("hold", 3*time.Second, "how long the lights stay on (overrides demo.hold)")
	flag.Parse()

	_ = godotenv.Load(*envPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	if err := cfg.ValidateVendor(); err != nil {
		fail(err)
	}

	holdFor := config.Duration(cfg.Demo.Hold, 3*time.Second)
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "hold" {
			holdFor = *hold
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, holdFor, setupLogger(cfg.Log)); err != nil {
		cancel()
		fail(err)
	}
}

func run(ctx context.Context, cfg *config.Config, hold time.Duration, logger *slog.Logger) error {
	vendor, err := backend.New(cfg.Vendor)
	if err != nil {
		return err
	}

	fmt.Printf("Connecting to %s...\n", vendor.Name())
	devices, err := vendor.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", vendor.Name(), err)
	}

	fmt.Printf("Found %d devices:\n", len(devices))
	for i, d := range devices {
		fmt.Printf("  %d. %s (id: %s, class: %s)\n", i+1, d.Name(), d.ID(), d.Class())
	}

	var lights []application.Device
	for _, d := range devices {
		if strings.EqualFold(d.Class(), cfg.Session.DeviceClass) {
			lights = append(lights, d)
		}
	}
	if len(lights) == 0 {
		return fmt.Errorf("no devices of class %q found", cfg.Session.DeviceClass)
	}

	executor := application.NewExecutor(application.ExecutorConfig{
		MaxWorkers:    cfg.Control.MaxWorkers,
		DeviceTimeout: config.Duration(cfg.Control.DeviceTimeout, 10*time.Second),
	}, application.NoopMetrics{}, logger)

	fmt.Printf("\nTurning %d lights ON...\n", len(lights))
	report(executor.Run(ctx, lights, []domain.Instruction{domain.PowerInstruction(true)}))

	fmt.Printf("\nWaiting %s...\n", hold)
	select {
	case <-time.After(hold):
	case <-ctx.Done():
		return ctx.Err()
	}

	fmt.Printf("\nTurning %d lights OFF...\n", len(lights))
	report(executor.Run(ctx, lights, []domain.Instruction{domain.PowerInstruction(false)}))

	fmt.Println("\nCurrent state:")
	states := executor.ReadStates(ctx, lights)
	for i, d := range lights {
		power := "unknown"
		if states[i].Power != nil {
			power = domain.PowerString(*states[i].Power)
		}
		fmt.Printf("  %s: %s\n", d.Name(), power)
	}

	return nil
}

func report(results []domain.DeviceResult) {
	for _, r := range application.Aggregate(results, "", application.PolicyAny, time.Now()).Results {
		mark := "ok"
		if !r.Success {
			mark = "FAILED"
		}
		fmt.Printf("  [%s] %s\n", mark, r.Message)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n\n%s\n", err, hints)
	os.Exit(1)
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelWarn
	if cfg.Level == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
