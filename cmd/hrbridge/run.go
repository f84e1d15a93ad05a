package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/hrbridge/internal/bridge"
	"github.com/srg/hrbridge/internal/output"
	"github.com/srg/hrbridge/internal/pipeline"
	"github.com/srg/hrbridge/internal/sensor"
	"github.com/srg/hrbridge/pkg/config"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Read the heart rate sensor and forward BPM values",
	Long: `Connects to the heart rate sensor, decodes beat events and forwards the
resulting BPM to the selected output until interrupted with Ctrl+C.

BPM modes:
  computed               heart rate averaged by the sensor
  intra-beat             derived from the time between beats, outliers rejected
  intra-beat-unfiltered  derived from the time between beats, unfiltered

Settings are read from --config (YAML), then --env-file and HRBRIDGE_*
environment variables, then command-line flags.

Example:
  hrbridge run
  hrbridge run --bpm computed --output log
  hrbridge run --sensor ble --ble-address aa:bb:cc:dd:ee:ff --output ws
  hrbridge run --sensor sim --sim-bpm 90 --output nats --nats-url nats://127.0.0.1:4222`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runConfigFile  string
	runEnvFile     string
	runBpmMode     string
	runOutput      string
	runSensor      string
	runPort        string
	runBaud        int
	runBLEAddress  string
	runOSCAddr     string
	runOSCPath     string
	runNATSURL     string
	runNATSSubject string
	runWSAddr      string
	runPoll        time.Duration
	runDuration    time.Duration
	runSimBPM      float64
	runSimJitter   float64
	runSimMissed   int
	runSimDouble   int
)

func init() {
	defaults := config.DefaultConfig()

	runCmd.Flags().StringVar(&runConfigFile, "config", "", "YAML configuration file")
	runCmd.Flags().StringVar(&runEnvFile, "env-file", ".env", "Environment file with HRBRIDGE_* variables")
	runCmd.Flags().StringVarP(&runBpmMode, "bpm", "b", defaults.BpmMode, "BPM mode (computed, intra-beat, intra-beat-unfiltered)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", defaults.Output, "Output (log, osc, nats, ws)")
	runCmd.Flags().StringVarP(&runSensor, "sensor", "s", defaults.Sensor, "Sensor kind (ant, ble, sim)")
	runCmd.Flags().StringVarP(&runPort, "port", "p", "", "ANT+ stick serial port (default: auto-detect)")
	runCmd.Flags().IntVar(&runBaud, "baud", defaults.ANT.BaudRate, "ANT+ stick baud rate")
	runCmd.Flags().StringVar(&runBLEAddress, "ble-address", "", "BLE heart rate strap address (default: first strap found)")
	runCmd.Flags().StringVar(&runOSCAddr, "osc-addr", defaults.OSC.Address, "OSC destination host:port")
	runCmd.Flags().StringVar(&runOSCPath, "osc-path", defaults.OSC.Path, "OSC address pattern")
	runCmd.Flags().StringVar(&runNATSURL, "nats-url", defaults.NATS.URL, "NATS server URL")
	runCmd.Flags().StringVar(&runNATSSubject, "nats-subject", defaults.NATS.Subject, "NATS subject")
	runCmd.Flags().StringVar(&runWSAddr, "ws-addr", defaults.WebSocket.Addr, "WebSocket listen address")
	runCmd.Flags().DurationVar(&runPoll, "poll-interval", defaults.PollInterval, "Sensor poll interval")
	runCmd.Flags().DurationVarP(&runDuration, "duration", "d", 0, "Stop after this long (0 to run until Ctrl+C)")
	runCmd.Flags().Float64Var(&runSimBPM, "sim-bpm", defaults.Sim.BPM, "Simulated heart rate")
	runCmd.Flags().Float64Var(&runSimJitter, "sim-jitter", defaults.Sim.Jitter, "Simulated beat-to-beat jitter (fraction of the interval)")
	runCmd.Flags().IntVar(&runSimMissed, "sim-missed-every", 0, "Drop every Nth simulated beat (0 disables)")
	runCmd.Flags().IntVar(&runSimDouble, "sim-double-every", 0, "Double every Nth simulated beat (0 disables)")
}

// loadConfig applies file, environment and then explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(runConfigFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvironment(runEnvFile); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("bpm", func() { cfg.BpmMode = runBpmMode })
	set("output", func() { cfg.Output = runOutput })
	set("sensor", func() { cfg.Sensor = runSensor })
	set("port", func() { cfg.ANT.Port = runPort })
	set("baud", func() { cfg.ANT.BaudRate = runBaud })
	set("ble-address", func() { cfg.BLE.Address = runBLEAddress })
	set("osc-addr", func() { cfg.OSC.Address = runOSCAddr })
	set("osc-path", func() { cfg.OSC.Path = runOSCPath })
	set("nats-url", func() { cfg.NATS.URL = runNATSURL })
	set("nats-subject", func() { cfg.NATS.Subject = runNATSSubject })
	set("ws-addr", func() { cfg.WebSocket.Addr = runWSAddr })
	set("poll-interval", func() { cfg.PollInterval = runPoll })
	set("sim-bpm", func() { cfg.Sim.BPM = runSimBPM })
	set("sim-jitter", func() { cfg.Sim.Jitter = runSimJitter })
	set("sim-missed-every", func() { cfg.Sim.MissedEvery = runSimMissed })
	set("sim-double-every", func() { cfg.Sim.DoubleEvery = runSimDouble })
	resolveLogLevel(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := configureLogger(cmd, cfg)

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	mode, _ := cfg.Bpm()
	out := cmd.OutOrStdout()
	configureColor(out)

	src, err := sensor.New(cfg.Sensor, cfg.SensorOptions(), logger)
	if err != nil {
		return err
	}

	sinkOpts := cfg.OutputOptions()
	sinkOpts.Console = out
	sink, err := output.New(sinkOpts, logger)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("failed to create %s output: %w", sinkOpts.Mode, err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close output")
		}
	}()

	shutdown := bridge.NewShutdown()

	// Handle interrupts gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	stopSignals := shutdown.Subscribe()
	go func() {
		select {
		case <-sigChan:
			logger.Info("Received interrupt signal, shutting down...")
			shutdown.Trigger()
		case <-stopSignals:
		}
	}()

	if d := runDuration; d > 0 {
		timer := time.AfterFunc(d, func() {
			logger.WithField("duration", d).Info("Run duration elapsed, shutting down...")
			shutdown.Trigger()
		})
		defer timer.Stop()
	}

	progress := func(string) {}
	if isTerminal(cmd.ErrOrStderr()) {
		p := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Starting %s sensor", cfg.Sensor), "Starting", "Running", "Stopped", "Sensor failed")
		p.Start()
		defer p.Stop()
		progress = p.Callback()
	}

	result, err := pipeline.Run(context.Background(), &pipeline.Options{
		Source:       src,
		Sink:         sink,
		Mode:         mode,
		PollInterval: cfg.PollInterval,
		Shutdown:     shutdown,
		Logger:       logger,
	}, progress)

	if result != nil {
		sent, _ := result.Summary.Get("sent")
		fmt.Fprintf(out, "Session %s: %d heart rate values sent\n", result.Session, sent)
	}
	return err
}
