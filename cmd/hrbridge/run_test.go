package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type RunCmdTestSuite struct {
	CommandTestSuite
	noEnv string
}

func (s *RunCmdTestSuite) SetupTest() {
	s.CommandTestSuite.SetupTest()
	s.noEnv = filepath.Join(s.T().TempDir(), "missing.env")
}

func (s *RunCmdTestSuite) TestSimulatorToLog() {
	start := time.Now()
	stdout, stderr, err := s.ExecuteCommand("run",
		"--sensor", "sim",
		"--output", "log",
		"--bpm", "computed",
		"--sim-bpm", "200",
		"--poll-interval", "5ms",
		"--duration", "800ms",
		"--env-file", s.noEnv,
	)

	s.Require().NoError(err, stderr)
	s.GreaterOrEqual(time.Since(start), 800*time.Millisecond)
	s.Contains(stdout, "♥ 200 BPM")
	s.Regexp(`Session [0-9a-f-]{36}: [1-9]\d* heart rate values sent`, stdout)
	s.Contains(stderr, "Heart rate: 200 BPM (mode: computed)")
	s.Contains(stderr, "Simulated heart rate strap stopped")
}

func (s *RunCmdTestSuite) TestConfigFileAndFlagPrecedence() {
	dir := s.T().TempDir()
	cfgPath := filepath.Join(dir, "hrbridge.yaml")
	s.Require().NoError(os.WriteFile(cfgPath, []byte("sensor: sim\noutput: log\nbpm_mode: computed\nsim:\n  bpm: 150\n"), 0o600))

	stdout, stderr, err := s.ExecuteCommand("run",
		"--config", cfgPath,
		"--env-file", s.noEnv,
		"--sim-bpm", "240",
		"--duration", "700ms",
	)

	s.Require().NoError(err, stderr)
	s.Contains(stdout, "♥ 240 BPM")
	s.NotContains(stdout, "150 BPM")
}

func (s *RunCmdTestSuite) TestLogLevelFromEnvironment() {
	s.T().Setenv("HRBRIDGE_LOG_LEVEL", "trace")

	stdout, stderr, err := s.ExecuteCommand("run",
		"--sensor", "sim",
		"--output", "log",
		"--bpm", "computed",
		"--sim-bpm", "180",
		"--duration", "700ms",
		"--env-file", s.noEnv,
	)

	s.Require().NoError(err, stderr)
	s.Contains(stdout, "♥ 180 BPM")
	s.Contains(stderr, "level=debug", "trace enables the decoder's debug records")
}

func (s *RunCmdTestSuite) TestInvalidSettings() {
	tests := []struct {
		name   string
		args   []string
		errMsg string
	}{
		{"bpm mode", []string{"--bpm", "average"}, "invalid bpm mode"},
		{"output", []string{"--output", "midi"}, "invalid output mode"},
		{"log level", []string{"--log-level", "loud"}, "invalid log level"},
		{"sensor", []string{"--sensor", "polar", "--output", "log"}, `unknown sensor "polar"`},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resetFlags(rootCmd)
			args := append([]string{"run", "--env-file", s.noEnv}, tt.args...)
			_, _, err := s.ExecuteCommand(args...)
			s.Require().Error(err)
			s.Contains(err.Error(), tt.errMsg)
		})
	}
}

func (s *RunCmdTestSuite) TestEnvironmentOverrides() {
	s.T().Setenv("HRBRIDGE_SENSOR", "sim")
	s.T().Setenv("HRBRIDGE_OUTPUT", "log")
	s.T().Setenv("HRBRIDGE_BPM_MODE", "computed")

	cmd := runCmd
	s.Require().NoError(cmd.ParseFlags([]string{"--env-file", s.noEnv, "--output", "nats"}))
	cfg, err := loadConfig(cmd)
	s.Require().NoError(err)

	s.Equal("sim", cfg.Sensor)
	s.Equal("nats", cfg.Output, "flags win over environment")
	s.Equal("computed", cfg.BpmMode)
}

func TestRunCmdTestSuite(t *testing.T) {
	suite.Run(t, new(RunCmdTestSuite))
}
