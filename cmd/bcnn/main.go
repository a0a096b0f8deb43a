// Package main provides the bcnn command: train the bilinear embedding
// network on the half-panorama dataset, then report test accuracy.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/go-logr/logr"

	"github.com/born-ml/bcnn"
	"github.com/born-ml/bcnn/internal/config"
	"github.com/born-ml/bcnn/internal/logging"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "bcnn: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "version" {
		fmt.Fprintf(stdout, "bcnn %s\n", bcnn.Version)
		return nil
	}

	fs := flag.NewFlagSet("bcnn", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file (defaults apply when empty)")
	printConfig := fs.Bool("print-config", false, "print the effective configuration and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *printConfig {
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err
	}

	log, err := logging.New(cfg.Log, stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := runOn(ctx, cfg, log)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Test accuracy %g\n", report.Test.Accuracy)
	return nil
}

// runOn picks the backend named by cfg.Device.
func runOn(ctx context.Context, cfg config.Config, log logr.Logger) (*bcnn.Report, error) {
	switch strings.ToLower(cfg.Device) {
	case config.DeviceWebGPU:
		return runWebGPU(ctx, cfg, log)
	default:
		log.Info("using backend", "device", config.DeviceCPU)
		return bcnn.Run(ctx, cfg, autodiff.New(cpu.New()), log)
	}
}
